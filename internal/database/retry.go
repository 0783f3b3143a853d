package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	MaxAttempts       = 5
	InitialRetryDelay = 100 * time.Millisecond
	MaxRetryDelay     = 2 * time.Second
)

// Retrier retries data-access calls that fail with transient connection errors.
type Retrier struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Logger       *logrus.Logger
}

func NewRetrier(logger *logrus.Logger) *Retrier {
	return &Retrier{
		MaxAttempts:  MaxAttempts,
		InitialDelay: InitialRetryDelay,
		MaxDelay:     MaxRetryDelay,
		Logger:       logger,
	}
}

func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	delay := r.InitialDelay
	var err error

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == r.MaxAttempts {
			break
		}

		if r.Logger != nil {
			r.Logger.WithError(err).WithFields(logrus.Fields{
				"operation": op,
				"attempt":   attempt,
				"delay":     delay.String(),
			}).Warn("Transient database error, retrying")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > r.MaxDelay {
			delay = r.MaxDelay
		}
	}

	return err
}

// IsTransient reports whether err looks like a dropped or refused connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		// connection_exception, admin/crash shutdown, cannot_connect_now
		return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P0")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset")
}

// IsUniqueViolation reports a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
