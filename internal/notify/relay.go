package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 5
	DefaultBatchSize   = 20
	InitialBackoff     = 30 * time.Second
	MaxBackoff         = 30 * time.Minute
)

// Relay drains the outbox into a Dispatcher. A failed send never touches the
// order that produced it; it is rescheduled until MaxAttempts is reached.
type Relay struct {
	outbox      Outbox
	dispatcher  Dispatcher
	logger      *logrus.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

func NewRelay(outbox Outbox, dispatcher Dispatcher, interval time.Duration, logger *logrus.Logger) *Relay {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Relay{
		outbox:      outbox,
		dispatcher:  dispatcher,
		logger:      logger,
		interval:    interval,
		batchSize:   DefaultBatchSize,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
}

func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.WithField("interval", r.interval).Info("Notification relay started")
	for {
		if _, err := r.ProcessDue(ctx); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Error("Notification relay pass failed")
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Notification relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessDue claims one batch and dispatches it, returning how many were sent.
func (r *Relay) ProcessDue(ctx context.Context) (int, error) {
	batch, err := r.outbox.Claim(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, n := range batch {
		entry := r.logger.WithFields(logrus.Fields{
			"notification_id": n.ID,
			"order_id":        n.OrderID,
			"kind":            n.Kind,
		})

		dispatchErr := r.dispatcher.Dispatch(ctx, n)
		if dispatchErr == nil {
			if err := r.outbox.MarkSent(ctx, n.ID); err != nil {
				entry.WithError(err).Error("Failed to mark notification sent")
				continue
			}
			sent++
			entry.Info("Notification dispatched")
			continue
		}

		attempts := n.Attempts + 1
		if attempts >= r.maxAttempts {
			entry.WithError(dispatchErr).WithField("attempts", attempts).Error("Notification abandoned after max attempts")
			if err := r.outbox.MarkFailed(ctx, n.ID, attempts, dispatchErr.Error()); err != nil {
				entry.WithError(err).Error("Failed to mark notification failed")
			}
			continue
		}

		next := r.now().UTC().Add(Backoff(attempts))
		entry.WithError(dispatchErr).WithFields(logrus.Fields{
			"attempts":   attempts,
			"next_retry": next,
		}).Warn("Notification dispatch failed, rescheduled")
		if err := r.outbox.MarkRetry(ctx, n.ID, attempts, next, dispatchErr.Error()); err != nil {
			entry.WithError(err).Error("Failed to reschedule notification")
		}
	}

	return sent, nil
}

// Backoff is the delay before retry number attempts (1-based).
func Backoff(attempts int) time.Duration {
	delay := InitialBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay > MaxBackoff {
			return MaxBackoff
		}
	}
	return delay
}
