package core

import (
	"sort"
)

// CategoryStats holds running counters for one category within a batch
type CategoryStats struct {
	Total    int `json:"total"`
	Deleted  int `json:"deleted"`
	Kept     int `json:"kept"`
	Archived int `json:"archived"`
}

// Statistics accumulates decisions for one account batch.
// It is owned by a single goroutine for the lifetime of the batch.
type Statistics struct {
	categories       map[string]*CategoryStats
	Processed        int
	Skipped          int
	Duplicates       int
	PreCategorized   int
	ClassifierErrors int
}

// NewStatistics creates an empty accumulator
func NewStatistics() *Statistics {
	return &Statistics{
		categories: make(map[string]*CategoryStats),
	}
}

// Record counts a completed decision under its rendered category
func (s *Statistics) Record(d Decision) {
	key := d.Category()
	entry, ok := s.categories[key]
	if !ok {
		entry = &CategoryStats{}
		s.categories[key] = entry
	}

	entry.Total++
	switch d.Action {
	case ActionDeleted:
		entry.Deleted++
	case ActionKept:
		entry.Kept++
	}

	s.Processed++
	if d.PreCategorized {
		s.PreCategorized++
	}
}

// RecordSkipped counts a message that never reached a terminal action
func (s *Statistics) RecordSkipped() {
	s.Skipped++
}

// RecordDuplicate counts a message already processed in an earlier run
func (s *Statistics) RecordDuplicate() {
	s.Duplicates++
}

// RecordClassifierError counts a message whose classification failed
func (s *Statistics) RecordClassifierError() {
	s.ClassifierErrors++
}

// Get returns the counters for a rendered category
func (s *Statistics) Get(category string) CategoryStats {
	if entry, ok := s.categories[category]; ok {
		return *entry
	}
	return CategoryStats{}
}

// Snapshot copies the per-category counters
func (s *Statistics) Snapshot() map[string]CategoryStats {
	out := make(map[string]CategoryStats, len(s.categories))
	for k, v := range s.categories {
		out[k] = *v
	}
	return out
}

// Categories returns the recorded category names in sorted order
func (s *Statistics) Categories() []string {
	names := make([]string, 0, len(s.categories))
	for k := range s.categories {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Totals sums every category
func (s *Statistics) Totals() CategoryStats {
	var t CategoryStats
	for _, v := range s.categories {
		t.Total += v.Total
		t.Deleted += v.Deleted
		t.Kept += v.Kept
		t.Archived += v.Archived
	}
	return t
}
