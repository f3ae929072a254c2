package core

import (
	"time"
)

// Email represents a message fetched from a mailbox
type Email struct {
	ID         string
	From       string
	To         []string
	Subject    string
	Body       string
	Headers    map[string][]string
	ReceivedAt time.Time
}

// Action is the outcome applied to a message
type Action string

const (
	ActionKept    Action = "kept"
	ActionDeleted Action = "deleted"
)

// Origin identifies which pipeline stage produced a verdict
type Origin string

const (
	OriginRepeatOffender Origin = "repeat_offender"
	OriginDomainPolicy   Origin = "domain_policy"
	OriginClassifier     Origin = "classifier"
)

// Decision is the final per-message outcome of the pipeline
type Decision struct {
	MessageID      string
	Verdict        Verdict
	Action         Action
	PreCategorized bool
	Origin         Origin
}

// Category returns the rendered category string, including any
// repeat-offender suffix
func (d Decision) Category() string {
	return d.Verdict.String()
}

// ScopeKind is the kind of key a learned pattern matches on
type ScopeKind string

const (
	ScopeSenderEmail    ScopeKind = "sender_email"
	ScopeSenderDomain   ScopeKind = "sender_domain"
	ScopeSubjectPattern ScopeKind = "subject_pattern"
)

// priority orders scope kinds for matching; lower wins
func (k ScopeKind) priority() int {
	switch k {
	case ScopeSenderEmail:
		return 0
	case ScopeSenderDomain:
		return 1
	case ScopeSubjectPattern:
		return 2
	default:
		return 3
	}
}

// Pattern is a learned per-account heuristic that predicts disposal
type Pattern struct {
	ID                     int64
	AccountID              string
	Kind                   ScopeKind
	Value                  string
	Category               Category
	TotalOccurrences       int
	DeletionCount          int
	ConfidenceScore        float64
	FirstSeen              time.Time
	LastSeen               time.Time
	IsActive               bool
	MarkedAsRepeatOffender *time.Time
}

// IsRepeatOffender reports whether the pattern has been promoted
func (p *Pattern) IsRepeatOffender() bool {
	return p.MarkedAsRepeatOffender != nil
}

// RunSummary is handed to the statistics sink when an account batch ends
type RunSummary struct {
	RunID            string
	AccountID        string
	StartedAt        time.Time
	FinishedAt       time.Time
	Categories       map[string]CategoryStats
	Processed        int
	Skipped          int
	Duplicates       int
	PreCategorized   int
	ClassifierErrors int
	MarkedProcessed  int
	MarkErrors       int
	Err              string
}
