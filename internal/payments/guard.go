package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diamonddulceria/storefront/internal/circuitbreaker"
	"github.com/sirupsen/logrus"
)

const DefaultTimeout = 15 * time.Second

// Guarded bounds every processor call with a timeout and a circuit breaker.
type Guarded struct {
	next    Processor
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
}

func NewGuarded(next Processor, timeout time.Duration, logger *logrus.Logger) *Guarded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guarded{
		next: next,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:        "payment-processor",
			MaxFailures: 5,
			Cooldown:    30 * time.Second,
			MaxProbes:   1,
			Counts:      IsProcessorFault,
		}, logger),
		timeout: timeout,
	}
}

func (g *Guarded) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	var intent *Intent
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		intent, err = g.next.CreateIntent(ctx, req)
		return err
	})
	return intent, err
}

func (g *Guarded) GetIntent(ctx context.Context, id string) (*Intent, error) {
	var intent *Intent
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		intent, err = g.next.GetIntent(ctx, id)
		return err
	})
	return intent, err
}

func (g *Guarded) call(ctx context.Context, fn func(ctx context.Context) error) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(ctx)
	})
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timed out after %s", ErrUnavailable, g.timeout)
	}
	return err
}

func (g *Guarded) Metrics() circuitbreaker.Metrics {
	return g.breaker.Metrics()
}

// Reset closes the breaker, for operators who know the processor has recovered.
func (g *Guarded) Reset() {
	g.breaker.Reset()
}
