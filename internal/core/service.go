package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/llm-inbox-triage/internal/utils"
	"go.uber.org/zap"
)

var (
	// ErrClassifierFailed wraps any error returned by the classifier backend
	ErrClassifierFailed = errors.New("classifier failed")
	// ErrBodyUnavailable is returned when the message body could not be fetched
	ErrBodyUnavailable = errors.New("message body unavailable")
)

// TriageSettings configures the decision pipeline
type TriageSettings struct {
	LabelPrefix            string
	MaxBodySize            int
	AbortOnClassifierError bool
	DryRun                 bool
}

// DecisionContext carries one message through the pipeline stages
type DecisionContext struct {
	AccountID      string
	Email          *Email
	SenderEmail    string
	SenderDomain   string
	Verdict        Verdict
	Origin         Origin
	PreCategorized bool
	Disposal       bool
}

// NewDecisionContext derives the sender fields for a message
func NewDecisionContext(accountID string, email *Email) *DecisionContext {
	senderEmail, senderDomain := ParseSender(email.From)
	return &DecisionContext{
		AccountID:    accountID,
		Email:        email,
		SenderEmail:  senderEmail,
		SenderDomain: senderDomain,
	}
}

// Decision renders the context as a final decision with the given action
func (dc *DecisionContext) Decision(action Action) Decision {
	return Decision{
		MessageID:      dc.Email.ID,
		Verdict:        dc.Verdict,
		Action:         action,
		PreCategorized: dc.PreCategorized,
		Origin:         dc.Origin,
	}
}

// BatchRun is the state of one account's batch. It is not safe for
// concurrent use; messages of a batch are processed sequentially.
type BatchRun struct {
	ID        string
	AccountID string
	StartedAt time.Time
	Stats     *Statistics
	Decisions []Decision
	pending   []string
}

// NewBatchRun starts a batch for an account
func NewBatchRun(accountID string, startedAt time.Time) *BatchRun {
	return &BatchRun{
		ID:        uuid.NewString(),
		AccountID: accountID,
		StartedAt: startedAt,
		Stats:     NewStatistics(),
	}
}

// PendingIDs returns the message ids queued for bulk dedup marking
func (r *BatchRun) PendingIDs() []string {
	return append([]string(nil), r.pending...)
}

// TriageService is the core service that decides and applies an action per message
type TriageService struct {
	classifier    Classifier
	offenders     *RepeatOffenderEngine
	policy        DomainPolicy
	dedup         DedupStore
	sink          StatsSink
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
	settings      TriageSettings
	now           func() time.Time
}

// NewTriageService creates a new triage service. dedup and sink may be nil.
func NewTriageService(
	classifier Classifier,
	offenders *RepeatOffenderEngine,
	policy DomainPolicy,
	dedup DedupStore,
	sink StatsSink,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
	settings TriageSettings,
) *TriageService {
	return &TriageService{
		classifier:    classifier,
		offenders:     offenders,
		policy:        policy,
		dedup:         dedup,
		sink:          sink,
		textProcessor: textProcessor,
		logger:        logger,
		settings:      settings,
		now:           time.Now,
	}
}

// Decide runs the categorization stages for one message without side effects.
// The body is only fetched when the classifier is reached; bodies may be nil
// when the email already carries its body.
func (s *TriageService) Decide(ctx context.Context, accountID string, email *Email, bodies BodyFetcher) (*DecisionContext, error) {
	dc := NewDecisionContext(accountID, email)

	if s.checkRepeatOffender(ctx, dc) || s.checkDomainPolicy(dc) {
		s.decideDisposal(dc)
		return dc, nil
	}

	if err := s.classify(ctx, dc, bodies); err != nil {
		return dc, err
	}
	s.decideDisposal(dc)
	return dc, nil
}

func (s *TriageService) checkRepeatOffender(ctx context.Context, dc *DecisionContext) bool {
	verdict, ok := s.offenders.Check(ctx, dc.AccountID, dc.SenderEmail, dc.SenderDomain, dc.Email.Subject)
	if !ok {
		return false
	}
	dc.Verdict = verdict
	dc.Origin = OriginRepeatOffender
	dc.PreCategorized = true
	return true
}

func (s *TriageService) checkDomainPolicy(dc *DecisionContext) bool {
	category, ok := s.policy.CheckDomain(dc.SenderDomain)
	if !ok {
		return false
	}
	dc.Verdict = Verdict{Category: category}
	dc.Origin = OriginDomainPolicy
	dc.PreCategorized = true
	return true
}

func (s *TriageService) classify(ctx context.Context, dc *DecisionContext, bodies BodyFetcher) error {
	body := dc.Email.Body
	if body == "" && bodies != nil {
		fetched, err := bodies.GetBody(ctx, dc.Email)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBodyUnavailable, err)
		}
		dc.Email.Body = fetched
		body = fetched
	}

	text := s.textProcessor.CleanForClassification(dc.Email.Subject, body, s.settings.MaxBodySize)
	raw, err := s.classifier.Categorize(ctx, text)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClassifierFailed, err)
	}

	category := SanitizeCategory(raw)
	if string(category) != raw {
		s.logger.Debug("Classifier output normalized",
			zap.String("raw", raw),
			zap.String("category", string(category)))
	}

	dc.Verdict = Verdict{Category: category}
	dc.Origin = OriginClassifier
	dc.PreCategorized = false
	return nil
}

func (s *TriageService) decideDisposal(dc *DecisionContext) {
	switch dc.Origin {
	case OriginRepeatOffender:
		dc.Disposal = true
	case OriginDomainPolicy:
		dc.Disposal = dc.Verdict.Category == CategoryBlockedDomain
	default:
		dc.Disposal = s.policy.IsCategoryBlocked(dc.Verdict.Category)
	}
}

// isDuplicate fails open: lookup errors are treated as not processed
func (s *TriageService) isDuplicate(ctx context.Context, accountID, messageID string, logger *zap.Logger) bool {
	if s.dedup == nil || messageID == "" {
		return false
	}
	processed, err := s.dedup.IsProcessed(ctx, accountID, messageID)
	if err != nil {
		logger.Warn("Dedup lookup failed, processing message anyway", zap.Error(err))
		return false
	}
	return processed
}

// ProcessMessage runs the full pipeline for one message within a batch.
// Transport failures are absorbed per message; only classifier failures are returned.
func (s *TriageService) ProcessMessage(ctx context.Context, run *BatchRun, transport MailTransport, email *Email) error {
	logger := s.logger.With(
		zap.String("account", run.AccountID),
		zap.String("message_id", email.ID))

	if s.isDuplicate(ctx, run.AccountID, email.ID, logger) {
		logger.Debug("Message already processed")
		run.Stats.RecordDuplicate()
		return nil
	}

	dc, err := s.Decide(ctx, run.AccountID, email, transport)
	if err != nil {
		if errors.Is(err, ErrBodyUnavailable) {
			logger.Warn("Skipping message without body", zap.Error(err))
			run.Stats.RecordSkipped()
			return nil
		}
		run.Stats.RecordClassifierError()
		return err
	}

	action := ActionKept
	if dc.Disposal {
		action = ActionDeleted
	}

	if s.settings.DryRun {
		decision := dc.Decision(action)
		run.Stats.Record(decision)
		run.Decisions = append(run.Decisions, decision)
		logger.Info("Dry run decision",
			zap.String("category", decision.Category()),
			zap.String("action", string(action)),
			zap.Bool("pre_categorized", decision.PreCategorized))
		return nil
	}

	label := s.settings.LabelPrefix + dc.Verdict.String()
	if err := transport.AddLabel(ctx, email.ID, label); err != nil {
		logger.Warn("Failed to apply label, skipping message",
			zap.String("label", label),
			zap.Error(err))
		run.Stats.RecordSkipped()
		return nil
	}

	if action == ActionDeleted {
		if err := transport.Delete(ctx, email.ID); err != nil {
			logger.Warn("Failed to delete message, keeping it", zap.Error(err))
			action = ActionKept
		}
	}

	decision := dc.Decision(action)
	run.Stats.Record(decision)
	run.Decisions = append(run.Decisions, decision)
	s.offenders.RecordOutcome(ctx, run.AccountID, dc.SenderEmail, dc.SenderDomain, email.Subject, dc.Verdict, action == ActionDeleted)
	run.pending = append(run.pending, email.ID)

	logger.Info("Message triaged",
		zap.String("sender", dc.SenderEmail),
		zap.String("category", decision.Category()),
		zap.String("action", string(action)),
		zap.String("origin", string(decision.Origin)),
		zap.Bool("pre_categorized", decision.PreCategorized))
	return nil
}

// ProcessBatch processes messages sequentially for one account. Classifier
// failures stop the batch unless AbortOnClassifierError is disabled. Processed
// ids are bulk-marked and the summary is sent to the stats sink even when the
// batch stops early.
func (s *TriageService) ProcessBatch(ctx context.Context, accountID string, transport MailTransport, emails []*Email) (*RunSummary, error) {
	run := NewBatchRun(accountID, s.now())
	logger := s.logger.With(zap.String("account", accountID), zap.String("run_id", run.ID))
	logger.Info("Starting batch", zap.Int("messages", len(emails)))

	var batchErr error
	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			batchErr = err
			break
		}
		if err := s.ProcessMessage(ctx, run, transport, email); err != nil {
			if s.settings.AbortOnClassifierError {
				logger.Error("Classifier failure, stopping batch",
					zap.String("message_id", email.ID),
					zap.Error(err))
				batchErr = err
				break
			}
			logger.Warn("Classifier failure, continuing with next message",
				zap.String("message_id", email.ID),
				zap.Error(err))
		}
	}

	return s.finishRun(context.WithoutCancel(ctx), run, batchErr), batchErr
}

func (s *TriageService) finishRun(ctx context.Context, run *BatchRun, batchErr error) *RunSummary {
	logger := s.logger.With(zap.String("account", run.AccountID), zap.String("run_id", run.ID))

	summary := &RunSummary{
		RunID:            run.ID,
		AccountID:        run.AccountID,
		StartedAt:        run.StartedAt,
		Categories:       run.Stats.Snapshot(),
		Processed:        run.Stats.Processed,
		Skipped:          run.Stats.Skipped,
		Duplicates:       run.Stats.Duplicates,
		PreCategorized:   run.Stats.PreCategorized,
		ClassifierErrors: run.Stats.ClassifierErrors,
	}
	if batchErr != nil {
		summary.Err = batchErr.Error()
	}

	if s.dedup != nil && len(run.pending) > 0 {
		marked, failed, err := s.dedup.BulkMarkProcessed(ctx, run.AccountID, run.PendingIDs())
		if err != nil {
			logger.Warn("Failed to mark messages processed", zap.Error(err))
		}
		summary.MarkedProcessed = marked
		summary.MarkErrors = failed
	}

	summary.FinishedAt = s.now()
	if s.sink != nil {
		if err := s.sink.RecordRun(ctx, summary); err != nil {
			logger.Warn("Failed to record run statistics", zap.Error(err))
		}
	}

	totals := run.Stats.Totals()
	logger.Info("Batch finished",
		zap.Int("processed", summary.Processed),
		zap.Int("deleted", totals.Deleted),
		zap.Int("kept", totals.Kept),
		zap.Int("skipped", summary.Skipped),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("pre_categorized", summary.PreCategorized),
		zap.Int("classifier_errors", summary.ClassifierErrors),
		zap.Int("marked_processed", summary.MarkedProcessed),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)))

	return summary
}
