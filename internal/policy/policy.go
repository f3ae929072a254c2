package policy

import (
	"strings"

	"github.com/mikey/llm-inbox-triage/internal/core"
	"go.uber.org/zap"
)

// Filter decides from configured domain lists whether a sender is blocked or
// allowed, and which classifier categories are deleted
type Filter struct {
	blocked           map[string]struct{}
	allowed           map[string]struct{}
	blockedCategories map[core.Category]struct{}
	matchSubdomains   bool
	logger            *zap.Logger
}

// NewFilter creates a new domain policy filter
func NewFilter(blocked, allowed, blockedCategories []string, matchSubdomains bool, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Filter{
		blocked:           normalizeDomains(blocked),
		allowed:           normalizeDomains(allowed),
		blockedCategories: make(map[core.Category]struct{}, len(blockedCategories)),
		matchSubdomains:   matchSubdomains,
		logger:            logger,
	}

	for _, c := range blockedCategories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		category, ok := core.LookupClassifierCategory(c)
		if !ok {
			logger.Warn("Ignoring unknown blocked category", zap.String("category", c))
			continue
		}
		f.blockedCategories[category] = struct{}{}
	}

	logger.Info("Initialized domain policy",
		zap.Int("blocked_domains", len(f.blocked)),
		zap.Int("allowed_domains", len(f.allowed)),
		zap.Strings("blocked_categories", blockedCategories),
		zap.Bool("match_subdomains", matchSubdomains))

	return f
}

func normalizeDomains(domains []string) map[string]struct{} {
	out := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "@")
		if domain != "" {
			out[domain] = struct{}{}
		}
	}
	return out
}

// CheckDomain returns Blocked_Domain or Allowed_Domain for a listed sender
// domain. Block is evaluated first.
func (f *Filter) CheckDomain(domain string) (core.Category, bool) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return "", false
	}

	if f.listed(f.blocked, domain) {
		f.logger.Debug("Domain is blocked", zap.String("domain", domain))
		return core.CategoryBlockedDomain, true
	}
	if f.listed(f.allowed, domain) {
		f.logger.Debug("Domain is allowed", zap.String("domain", domain))
		return core.CategoryAllowedDomain, true
	}
	return "", false
}

func (f *Filter) listed(set map[string]struct{}, domain string) bool {
	if _, ok := set[domain]; ok {
		return true
	}
	if !f.matchSubdomains {
		return false
	}
	for parent := domain; ; {
		i := strings.Index(parent, ".")
		if i < 0 {
			return false
		}
		parent = parent[i+1:]
		if _, ok := set[parent]; ok {
			return true
		}
	}
}

// IsCategoryBlocked reports whether classifier output in this category is deleted
func (f *Filter) IsCategoryBlocked(category core.Category) bool {
	_, ok := f.blockedCategories[category]
	return ok
}
