package core

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PatternSettings tunes matching and promotion of learned patterns
type PatternSettings struct {
	Lookback            time.Duration
	MinOccurrences      int
	PromotionConfidence float64
	IgnoredDomains      []string
}

// DefaultPatternSettings returns a 30 day lookback, three occurrences and 0.8 confidence
func DefaultPatternSettings() PatternSettings {
	return PatternSettings{
		Lookback:            30 * 24 * time.Hour,
		MinOccurrences:      3,
		PromotionConfidence: 0.8,
	}
}

// RepeatOffenderEngine matches messages against promoted patterns and learns
// new patterns from final actions
type RepeatOffenderEngine struct {
	store          PatternStore
	logger         *zap.Logger
	settings       PatternSettings
	ignoredDomains map[string]struct{}
	now            func() time.Time

	mu         sync.Mutex
	regexCache map[string]*regexp.Regexp
}

// NewRepeatOffenderEngine creates a new engine backed by the pattern store
func NewRepeatOffenderEngine(store PatternStore, logger *zap.Logger, settings PatternSettings) *RepeatOffenderEngine {
	defaults := DefaultPatternSettings()
	if settings.Lookback <= 0 {
		settings.Lookback = defaults.Lookback
	}
	if settings.MinOccurrences <= 0 {
		settings.MinOccurrences = defaults.MinOccurrences
	}
	if settings.PromotionConfidence <= 0 {
		settings.PromotionConfidence = defaults.PromotionConfidence
	}

	ignored := make(map[string]struct{}, len(settings.IgnoredDomains))
	for _, d := range settings.IgnoredDomains {
		ignored[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}

	return &RepeatOffenderEngine{
		store:          store,
		logger:         logger,
		settings:       settings,
		ignoredDomains: ignored,
		now:            time.Now,
		regexCache:     make(map[string]*regexp.Regexp),
	}
}

// SetClock replaces the time source
func (e *RepeatOffenderEngine) SetClock(now func() time.Time) {
	e.now = now
}

// Check returns a repeat-offender verdict when a promoted pattern seen within
// the lookback window matches the message. Email patterns beat domain patterns,
// which beat subject patterns; within a kind the most confident wins.
func (e *RepeatOffenderEngine) Check(ctx context.Context, accountID, senderEmail, senderDomain, subject string) (Verdict, bool) {
	since := e.now().Add(-e.settings.Lookback)
	patterns, err := e.store.FindPatterns(ctx, accountID, true, since)
	if err != nil {
		e.logger.Warn("Failed to load repeat offender patterns",
			zap.String("account", accountID),
			zap.Error(err))
		return Verdict{}, false
	}

	candidates := make([]*Pattern, 0, len(patterns))
	for _, p := range patterns {
		if !p.IsActive || !p.IsRepeatOffender() || p.LastSeen.Before(since) {
			continue
		}
		candidates = append(candidates, p)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := candidates[i].Kind.priority(), candidates[j].Kind.priority()
		if pi != pj {
			return pi < pj
		}
		return candidates[i].ConfidenceScore > candidates[j].ConfidenceScore
	})

	for _, p := range candidates {
		if !e.matches(p, senderEmail, senderDomain, subject) {
			continue
		}
		e.logger.Debug("Repeat offender pattern matched",
			zap.String("account", accountID),
			zap.String("kind", string(p.Kind)),
			zap.String("value", p.Value),
			zap.String("category", string(p.Category)),
			zap.Float64("confidence", p.ConfidenceScore))
		return Verdict{Category: p.Category, RepeatOffender: true}, true
	}

	return Verdict{}, false
}

func (e *RepeatOffenderEngine) matches(p *Pattern, senderEmail, senderDomain, subject string) bool {
	switch p.Kind {
	case ScopeSenderEmail:
		return senderEmail != "" && strings.EqualFold(p.Value, senderEmail)
	case ScopeSenderDomain:
		return senderDomain != "" && strings.EqualFold(p.Value, senderDomain)
	case ScopeSubjectPattern:
		if subject == "" {
			return false
		}
		re := e.compile(p.Value)
		return re != nil && re.MatchString(subject)
	default:
		return false
	}
}

func (e *RepeatOffenderEngine) compile(expr string) *regexp.Regexp {
	e.mu.Lock()
	defer e.mu.Unlock()

	if re, ok := e.regexCache[expr]; ok {
		return re
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		e.logger.Warn("Skipping subject pattern that does not compile",
			zap.String("pattern", expr),
			zap.Error(err))
	}
	// nil is cached too so a broken pattern is only reported once
	e.regexCache[expr] = re
	return re
}

type patternScope struct {
	kind  ScopeKind
	value string
}

func (e *RepeatOffenderEngine) scopesFor(senderEmail, senderDomain, subject string) []patternScope {
	scopes := make([]patternScope, 0, 3)
	if senderEmail != "" {
		scopes = append(scopes, patternScope{kind: ScopeSenderEmail, value: senderEmail})
	}
	if senderDomain != "" && senderDomain != senderEmail {
		if _, ignored := e.ignoredDomains[senderDomain]; !ignored {
			scopes = append(scopes, patternScope{kind: ScopeSenderDomain, value: senderDomain})
		}
	}
	if expr, ok := ExtractSubjectPattern(subject); ok {
		scopes = append(scopes, patternScope{kind: ScopeSubjectPattern, value: expr})
	}
	return scopes
}

// RecordOutcome updates pattern statistics after the final action for a
// message is known. Verdicts that came from a learned pattern and categories
// that are never disposed of are ignored. Store failures are logged and
// swallowed.
func (e *RepeatOffenderEngine) RecordOutcome(ctx context.Context, accountID, senderEmail, senderDomain, subject string, verdict Verdict, wasDeleted bool) {
	if verdict.RepeatOffender || !verdict.Category.IsLearnable() {
		return
	}

	now := e.now()
	for _, scope := range e.scopesFor(senderEmail, senderDomain, subject) {
		p, err := e.store.FindOrCreatePattern(ctx, accountID, scope.kind, scope.value, verdict.Category)
		if err != nil {
			e.logger.Warn("Failed to load pattern for learning",
				zap.String("account", accountID),
				zap.String("kind", string(scope.kind)),
				zap.Error(err))
			continue
		}

		p.recordOccurrence(wasDeleted, now)
		promoted := p.promote(now, e.settings.MinOccurrences, e.settings.PromotionConfidence)

		if err := e.store.SavePattern(ctx, p); err != nil {
			e.logger.Warn("Failed to save learned pattern",
				zap.String("account", accountID),
				zap.String("kind", string(scope.kind)),
				zap.Error(err))
			continue
		}

		if promoted {
			e.logger.Info("Pattern promoted to repeat offender",
				zap.String("account", accountID),
				zap.String("kind", string(p.Kind)),
				zap.String("value", p.Value),
				zap.String("category", string(p.Category)),
				zap.Int("occurrences", p.TotalOccurrences),
				zap.Float64("confidence", p.ConfidenceScore))
		}
	}
}

// recordOccurrence counts one disposal-eligible outcome and recomputes confidence
func (p *Pattern) recordOccurrence(deleted bool, now time.Time) {
	if p.FirstSeen.IsZero() {
		p.FirstSeen = now
	}
	p.TotalOccurrences++
	if deleted {
		p.DeletionCount++
	}
	if p.DeletionCount > p.TotalOccurrences {
		p.DeletionCount = p.TotalOccurrences
	}
	p.ConfidenceScore = float64(p.DeletionCount) / float64(p.TotalOccurrences)
	p.LastSeen = now
}

// promote marks the pattern as a repeat offender once it qualifies.
// The mark is never cleared.
func (p *Pattern) promote(now time.Time, minOccurrences int, minConfidence float64) bool {
	if p.MarkedAsRepeatOffender != nil {
		return false
	}
	if p.TotalOccurrences < minOccurrences || p.ConfidenceScore < minConfidence {
		return false
	}
	marked := now
	p.MarkedAsRepeatOffender = &marked
	return true
}
