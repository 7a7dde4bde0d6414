package synthesis

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerModel wraps a Model with a circuit breaker so a flapping provider is
// dropped from the chain quickly. An open breaker counts as a model failure
// and the pipeline falls through to the next tier.
type BreakerModel struct {
	inner   Model
	breaker *gobreaker.CircuitBreaker
}

type generation struct {
	text   string
	tokens int
}

// NewBreakerModel wraps inner with a per-model circuit breaker.
func NewBreakerModel(inner Model, logger *logrus.Logger) *BreakerModel {
	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Synthesis model circuit breaker state changed")
		},
	}
	return &BreakerModel{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Name reports the wrapped model's identifier.
func (b *BreakerModel) Name() string { return b.inner.Name() }

// Generate routes the call through the breaker.
func (b *BreakerModel) Generate(ctx context.Context, prompt string) (string, int, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		text, tokens, err := b.inner.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return generation{text: text, tokens: tokens}, nil
	})
	if err != nil {
		return "", 0, err
	}
	gen := result.(generation)
	return gen.text, gen.tokens, nil
}
