package runner

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikey/llm-inbox-triage/internal/adapters/store"
	"github.com/mikey/llm-inbox-triage/internal/config"
	"github.com/mikey/llm-inbox-triage/internal/core"
	"github.com/mikey/llm-inbox-triage/internal/policy"
	"github.com/mikey/llm-inbox-triage/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticClassifier struct{ category string }

func (c staticClassifier) Categorize(context.Context, string) (string, error) {
	return c.category, nil
}

type mailbox struct {
	mu      sync.Mutex
	emails  []*core.Email
	fetchCh chan struct{}
	release chan struct{}
	deleted []string
}

func (m *mailbox) FetchRecent(ctx context.Context, limit int) ([]*core.Email, error) {
	if m.fetchCh != nil {
		m.fetchCh <- struct{}{}
	}
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if limit > 0 && len(m.emails) > limit {
		return m.emails[:limit], nil
	}
	return m.emails, nil
}

func (m *mailbox) GetBody(context.Context, *core.Email) (string, error) { return "body", nil }
func (m *mailbox) AddLabel(context.Context, string, string) error         { return nil }

func (m *mailbox) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

func newService(t *testing.T, s *store.MemoryStore) *core.TriageService {
	t.Helper()
	logger := zap.NewNop()
	engine := core.NewRepeatOffenderEngine(s, logger, core.DefaultPatternSettings())
	filter := policy.NewFilter([]string{"spam.example"}, nil, []string{"Advertising"}, false, logger)
	return core.NewTriageService(staticClassifier{"Other"}, engine, filter, s, s,
		utils.NewTextProcessor(logger), logger, core.TriageSettings{AbortOnClassifierError: true})
}

func openerFor(boxes map[string]*mailbox) TransportOpener {
	return func(_ context.Context, account config.AccountConfig) (core.MailTransport, error) {
		box, ok := boxes[account.ID]
		if !ok {
			return nil, errors.New("no token")
		}
		return box, nil
	}
}

func TestOnceRunner_PrintsPerAccountSummary(t *testing.T) {
	s := store.NewMemoryStore(zap.NewNop(), 0, 0)
	defer s.Stop()

	boxes := map[string]*mailbox{
		"personal": {emails: []*core.Email{
			{ID: "p1", From: "x@spam.example", Subject: "hello"},
			{ID: "p2", From: "friend@home.example", Subject: "dinner"},
		}},
	}
	accounts := []config.AccountConfig{{ID: "personal"}, {ID: "work"}}

	var out bytes.Buffer
	r := NewOnceRunner(newService(t, s), openerFor(boxes), accounts, 10, 2, &out, zap.NewNop())

	err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account work")

	printed := out.String()
	assert.Contains(t, printed, "=== personal ===")
	assert.Regexp(t, `Blocked_Domain\s+1\s+1\s+0`, printed)
	assert.Regexp(t, `Other\s+1\s+0\s+1`, printed)
	assert.Contains(t, printed, "Processed: 2")
	assert.Contains(t, printed, "=== work ===")
	assert.Contains(t, printed, "Error: open mailbox: no token")
	assert.Contains(t, printed, "Processing time:")

	assert.Equal(t, []string{"p1"}, boxes["personal"].deleted)
	require.Len(t, s.Runs(), 1)
	assert.Equal(t, "personal", s.Runs()[0].AccountID)

	assert.NoError(t, r.Stop())
}

func TestOnceRunner_SecondPassSkipsProcessed(t *testing.T) {
	s := store.NewMemoryStore(zap.NewNop(), 0, 0)
	defer s.Stop()

	boxes := map[string]*mailbox{"a": {emails: []*core.Email{{ID: "m1", From: "x@home.example", Subject: "hi"}}}}
	var out bytes.Buffer
	r := NewOnceRunner(newService(t, s), openerFor(boxes), []config.AccountConfig{{ID: "a"}}, 0, 1, &out, zap.NewNop()).
		WithHistory(s)

	require.NoError(t, r.RunOnce(context.Background()))
	assert.NotContains(t, out.String(), "Previous run:")
	out.Reset()
	require.NoError(t, r.RunOnce(context.Background()))
	assert.Contains(t, out.String(), "Duplicates: 1")
	assert.Contains(t, out.String(), "Previous run:")
	assert.Contains(t, out.String(), "Processed: 1  Classifier errors: 0")
}

func TestScheduler_RunsOnStartAndStops(t *testing.T) {
	s := store.NewMemoryStore(zap.NewNop(), 0, 0)
	defer s.Stop()

	boxes := map[string]*mailbox{"a": {emails: []*core.Email{{ID: "m1", From: "x@home.example", Subject: "hi"}}}}
	sched := NewScheduler(newService(t, s), openerFor(boxes), []config.AccountConfig{{ID: "a"}},
		SchedulerOptions{Interval: time.Hour, RunOnStart: true, Concurrency: 1}, zap.NewNop())

	require.NoError(t, sched.Start())
	assert.Eventually(t, func() bool { return len(s.Runs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop())
}

func TestScheduler_StopCancelsInFlightPass(t *testing.T) {
	s := store.NewMemoryStore(zap.NewNop(), 0, 0)
	defer s.Stop()

	box := &mailbox{fetchCh: make(chan struct{}, 1), release: make(chan struct{})}
	sched := NewScheduler(newService(t, s), openerFor(map[string]*mailbox{"a": box}), []config.AccountConfig{{ID: "a"}},
		SchedulerOptions{Interval: time.Hour, RunOnStart: true}, zap.NewNop())

	require.NoError(t, sched.Start())
	<-box.fetchCh

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_SkipsOverlappingPass(t *testing.T) {
	s := store.NewMemoryStore(zap.NewNop(), 0, 0)
	defer s.Stop()

	box := &mailbox{fetchCh: make(chan struct{}, 1), release: make(chan struct{})}
	var opened atomic.Int32
	open := func(ctx context.Context, account config.AccountConfig) (core.MailTransport, error) {
		opened.Add(1)
		return box, nil
	}
	sched := NewScheduler(newService(t, s), open, []config.AccountConfig{{ID: "a"}},
		SchedulerOptions{Interval: time.Hour}, zap.NewNop())

	first := make(chan error, 1)
	go func() { first <- sched.RunOnce(context.Background()) }()
	<-box.fetchCh

	assert.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, int32(1), opened.Load())

	close(box.release)
	require.NoError(t, <-first)
}
