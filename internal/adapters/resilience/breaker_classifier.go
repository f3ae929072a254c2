package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/mikey/llm-inbox-triage/internal/core"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings configures the classifier circuit breaker
type BreakerSettings struct {
	Name        string
	MaxFailures int
	OpenTimeout time.Duration
	Interval    time.Duration
}

// BreakerClassifier fails fast while the classifier backend keeps erroring
type BreakerClassifier struct {
	next   core.Classifier
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreakerClassifier wraps next with a circuit breaker that opens after
// MaxFailures consecutive failures
func NewBreakerClassifier(next core.Classifier, settings BreakerSettings, logger *zap.Logger) *BreakerClassifier {
	maxFailures := uint32(settings.MaxFailures)
	if maxFailures == 0 {
		maxFailures = 1
	}
	name := settings.Name
	if name == "" {
		name = "classifier"
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about backend health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Classifier circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &BreakerClassifier{next: next, cb: cb, logger: logger}
}

// Categorize forwards to the wrapped classifier unless the breaker is open
func (b *BreakerClassifier) Categorize(ctx context.Context, text string) (string, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Categorize(ctx, text)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// State returns the current breaker state name
func (b *BreakerClassifier) State() string {
	return b.cb.State().String()
}

// Close releases the wrapped classifier when it holds resources
func (b *BreakerClassifier) Close() error {
	if closer, ok := b.next.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
