package core

import (
	"context"
	"errors"
	"testing"

	"github.com/mikey/llm-inbox-triage/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type serviceFixture struct {
	classifier *fakeClassifier
	policy     *fakePolicy
	patterns   *patternMap
	dedup      *fakeDedup
	sink       *fakeSink
	transport  *fakeTransport
	service    *TriageService
}

func newServiceFixture(t *testing.T, settings TriageSettings) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		classifier: &fakeClassifier{},
		policy:     newFakePolicy(),
		patterns:   newPatternMap(),
		dedup:      newFakeDedup(),
		sink:       &fakeSink{},
		transport:  newFakeTransport(),
	}
	logger := zap.NewNop()
	engine := newTestEngine(f.patterns, DefaultPatternSettings())
	f.service = NewTriageService(f.classifier, engine, f.policy, f.dedup, f.sink,
		utils.NewTextProcessor(logger), logger, settings)
	return f
}

func defaultSettings() TriageSettings {
	return TriageSettings{LabelPrefix: "AI/", MaxBodySize: 2048, AbortOnClassifierError: true}
}

func email(id, from, subject string) *Email {
	return &Email{ID: id, From: from, Subject: subject}
}

func TestProcessBatch_BlockedDomainSkipsClassifier(t *testing.T) {
	f := newServiceFixture(t, defaultSettings())
	f.policy.blocked["spam.example"] = true

	summary, err := f.service.ProcessBatch(context.Background(), "acct", f.transport,
		[]*Email{email("m1", "Bad <x@spam.example>", "hello there")})
	require.NoError(t, err)

	assert.Empty(t, f.classifier.calls)
	assert.Empty(t, f.transport.fetched)
	assert.Equal(t, []string{"AI/Blocked_Domain"}, f.transport.labels["m1"])
	assert.Equal(t, []string{"m1"}, f.transport.deleted)
	assert.Equal(t, CategoryStats{Total: 1, Deleted: 1}, summary.Categories["Blocked_Domain"])
	assert.Equal(t, 1, summary.PreCategorized)
	assert.Equal(t, []string{"m1"}, f.dedup.marked)
	require.Len(t, f.sink.runs, 1)
	assert.Equal(t, summary, f.sink.runs[0])
}

func TestProcessBatch_AllowedDomainKept(t *testing.T) {
	f := newServiceFixture(t, defaultSettings())
	f.policy.allowed["friends.example"] = true

	summary, err := f.service.ProcessBatch(context.Background(), "acct", f.transport,
		[]*Email{email("m1", "pal@friends.example", "50% off everything, buy now!")})
	require.NoError(t, err)

	assert.Empty(t, f.classifier.calls)
	assert.Empty(t, f.transport.deleted)
	assert.Equal(t, CategoryStats{Total: 1, Kept: 1}, summary.Categories["Allowed_Domain"])
	assert.Empty(t, f.patterns.patterns)
}

func TestProcessBatch_LearnsThenShortCircuits(t *testing.T) {
	f := newServiceFixture(t, defaultSettings())
	f.classifier.responses = []string{"Advertising"}

	subject := "50% off everything, buy now!"
	var batch []*Email
	for i, from := range []string{"a@one.example", "b@two.example", "c@three.example"} {
		e := email(string(rune('1'+i)), from, subject)
		f.transport.bodies[e.ID] = "shop today"
		batch = append(batch, e)
	}

	summary, err := f.service.ProcessBatch(context.Background(), "acct", f.transport, batch)
	require.NoError(t, err)
	assert.Len(t, f.classifier.calls, 3)
	assert.Equal(t, CategoryStats{Total: 3, Deleted: 3}, summary.Categories["Advertising"])

	expr, ok := ExtractSubjectPattern(subject)
	require.True(t, ok)
	p := f.patterns.get("acct", ScopeSubjectPattern, expr)
	require.NotNil(t, p)
	assert.Equal(t, 3, p.TotalOccurrences)
	assert.Equal(t, 3, p.DeletionCount)
	assert.Equal(t, 1.0, p.ConfidenceScore)
	assert.True(t, p.IsRepeatOffender())

	fourth := email("4", "d@four.example", "Mega sale: 20% off")
	summary, err = f.service.ProcessBatch(context.Background(), "acct", f.transport, []*Email{fourth})
	require.NoError(t, err)

	assert.Len(t, f.classifier.calls, 3)
	assert.Equal(t, []string{"AI/Advertising-RepeatOffender"}, f.transport.labels["4"])
	assert.Contains(t, f.transport.deleted, "4")
	assert.Equal(t, CategoryStats{Total: 1, Deleted: 1}, summary.Categories["Advertising-RepeatOffender"])
	assert.Equal(t, 1, summary.PreCategorized)
}

func TestProcessBatch_LabelFailureSkipsMessage(t *testing.T) {
	f := newServiceFixture(t, defaultSettings())
	f.classifier.responses = []string{"Other"}
	f.transport.labelErrFor["m1"] = true
	f.transport.bodies["m1"] = "body one"
	f.transport.bodies["m2"] = "body two"

	summary, err := f.service.ProcessBatch(context.Background(), "acct", f.transport, []*Email{
		email("m1", "a@x.example", "first"),
		email("m2", "b@y.example", "second"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, CategoryStats{Total: 1, Kept: 1}, summary.Categories["Other"])
	assert.Equal(t, []string{"m2"}, f.dedup.marked)
	assert.Equal(t, 1, summary.MarkedProcessed)
}

func TestProcessBatch_DeleteFailureCountsAsKept(t *testing.T) {
	f := newServiceFixture(t, defaultSettings())
	f.classifier.responses = []string{"Marketing"}
	f.transport.deleteErr = errors.New("trash failed")
	f.transport.bodies["m1"] = "newsletter"

	summary, err := f.service.ProcessBatch(context.Background(), "acct", f.transport,
		[]*Email{email("m1", "news@letters.example", "weekly digest")})
	require.NoError(t, err)

	assert.Equal(t, CategoryStats{Total: 1, Kept: 1}, summary.Categories["Marketing"])
	assert.Equal(t, []string{"m1"}, f.dedup.marked)

	p := f.patterns.get("acct", ScopeSenderEmail, "news@letters.example")
	require.NotNil(t, p)
	assert.Equal(t, 1, p.TotalOccurrences)
	assert.Equal(t, 0, p.DeletionCount)
}

func TestProcessBatch_ClassifierFailureAborts(t *testing.T) {
	f := newServiceFixture(t, defaultSettings())
	f.policy.blocked["spam.example"] = true
	f.classifier.err = errors.New("model unavailable")

	summary, err := f.service.ProcessBatch(context.Background(), "acct", f.transport, []*Email{
		email("m1", "x@spam.example", "first"),
		email("m2", "y@unknown.example", "second"),
		email("m3", "z@spam.example", "third"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClassifierFailed)

	assert.Equal(t, []string{"m1"}, f.dedup.marked)
	assert.NotContains(t, f.transport.deleted, "m3")
	assert.Equal(t, 1, summary.Processed)
	assert.NotEmpty(t, summary.Err)
	require.Len(t, f.sink.runs, 1)
}

func TestProcessBatch_ClassifierFailureContinues(t *testing.T) {
	settings := defaultSettings()
	settings.AbortOnClassifierError = false
	f := newServiceFixture(t, settings)
	f.policy.blocked["spam.example"] = true
	f.classifier.err = errors.New("model unavailable")

	summary, err := f.service.ProcessBatch(context.Background(), "acct", f.transport, []*Email{
		email("m1", "y@unknown.example", "first"),
		email("m2", "z@spam.example", "second"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, f.dedup.marked)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.ClassifierErrors)
	require.Len(t, f.sink.runs, 1)
	assert.Equal(t, 1, f.sink.runs[0].ClassifierErrors)
}

func TestProcessBatch_DuplicatesSkipped(t *testing.T) {
	f := newServiceFixture(t, defaultSettings())
	f.dedup.processed["acct:m1"] = true
	f.transport.bodies["m2"] = "body"

	summary, err := f.service.ProcessBatch(context.Background(), "acct", f.transport, []*Email{
		email("m1", "a@x.example", "old"),
		email("m2", "b@y.example", "new"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Duplicates)
	assert.Empty(t, f.transport.labels["m1"])
	assert.Len(t, f.classifier.calls, 1)
	assert.Equal(t, []string{"m2"}, f.dedup.marked)
}

func TestProcessBatch_DedupLookupFailsOpen(t *testing.T) {
	f := newServiceFixture(t, defaultSettings())
	f.dedup.lookupErr = errors.New("redis down")
	f.transport.bodies["m1"] = "body"

	summary, err := f.service.ProcessBatch(context.Background(), "acct", f.transport,
		[]*Email{email("m1", "a@x.example", "hello")})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Duplicates)
}

func TestProcessBatch_BodyFailureSkips(t *testing.T) {
	f := newServiceFixture(t, defaultSettings())
	f.transport.bodyErr = errors.New("fetch failed")

	summary, err := f.service.ProcessBatch(context.Background(), "acct", f.transport,
		[]*Email{email("m1", "a@x.example", "hello")})
	require.NoError(t, err)

	assert.Empty(t, f.classifier.calls)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, f.dedup.marked)
}

func TestProcessBatch_DryRunHasNoSideEffects(t *testing.T) {
	settings := defaultSettings()
	settings.DryRun = true
	f := newServiceFixture(t, settings)
	f.classifier.responses = []string{"Advertising"}
	f.transport.bodies["m1"] = "buy"

	summary, err := f.service.ProcessBatch(context.Background(), "acct", f.transport,
		[]*Email{email("m1", "a@x.example", "hello")})
	require.NoError(t, err)

	assert.Equal(t, CategoryStats{Total: 1, Deleted: 1}, summary.Categories["Advertising"])
	assert.Empty(t, f.transport.labels)
	assert.Empty(t, f.transport.deleted)
	assert.Empty(t, f.dedup.marked)
	assert.Empty(t, f.patterns.patterns)
}

func TestProcessBatch_CancelledContextStillFinishes(t *testing.T) {
	f := newServiceFixture(t, defaultSettings())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.service.ProcessBatch(ctx, "acct", f.transport,
		[]*Email{email("m1", "a@x.example", "hello")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Processed)
	require.Len(t, f.sink.runs, 1)
}

func TestDecide_SanitizesClassifierOutput(t *testing.T) {
	f := newServiceFixture(t, defaultSettings())
	f.classifier.responses = []string{"Definitely-Spam-Content-Marketing-Stuff"}

	dc, err := f.service.Decide(context.Background(), "acct",
		&Email{ID: "m1", From: "a@x.example", Subject: "hi there", Body: "already loaded"}, nil)
	require.NoError(t, err)

	assert.Equal(t, CategoryOther, dc.Verdict.Category)
	assert.Equal(t, OriginClassifier, dc.Origin)
	assert.False(t, dc.PreCategorized)
	assert.False(t, dc.Disposal)
	require.Len(t, f.classifier.calls, 1)
	assert.Contains(t, f.classifier.calls[0], "already loaded")
}
