// Package retry runs privileged platform operations with a bounded retry
// schedule for transient failures.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"community-portal/verification-backend/internal/platform"
)

// DefaultDelays is the wait before each retry of a transient failure.
var DefaultDelays = []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond, 3500 * time.Millisecond}

// Func is a platform operation to perform.
type Func func(ctx context.Context) error

// Operation executes Funcs and reports final failures to a feedback channel.
type Operation struct {
	adapter platform.Adapter
	logger  *zap.Logger
	delays  []time.Duration
}

// New returns an Operation retrying with delays, or DefaultDelays when none
// are given.
func New(adapter platform.Adapter, logger *zap.Logger, delays ...time.Duration) *Operation {
	if len(delays) == 0 {
		delays = DefaultDelays
	}
	return &Operation{
		adapter: adapter,
		logger:  logger,
		delays:  delays,
	}
}

// scheduleBackOff yields a fixed list of delays, then stops.
type scheduleBackOff struct {
	delays []time.Duration
	next   int
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	if b.next >= len(b.delays) {
		return backoff.Stop
	}
	d := b.delays[b.next]
	b.next++
	return d
}

func (b *scheduleBackOff) Reset() { b.next = 0 }

// Perform runs op once and retries transient failures following the delay
// schedule. On a permanent failure or exhausted retries it posts a
// diagnostic to feedbackChannelID (when not empty) and returns false.
func (o *Operation) Perform(ctx context.Context, op Func, description, feedbackChannelID string) bool {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := o.call(ctx, op)
		if err == nil {
			return nil
		}
		if !platform.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(&scheduleBackOff{delays: o.delays}, ctx), func(err error, wait time.Duration) {
		o.logger.Warn("Transient failure, retrying",
			zap.String("operation", description),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err == nil {
		return true
	}

	o.logger.Error("Operation failed",
		zap.String("operation", description),
		zap.Int("attempts", attempt),
		zap.Error(err))

	if feedbackChannelID != "" {
		notice := fmt.Sprintf("⚠️ Error: could not %s. Details: %v", description, err)
		if _, sendErr := o.adapter.SendMessage(ctx, feedbackChannelID, notice); sendErr != nil {
			o.logger.Warn("Failed to post failure notice", zap.String("channel_id", feedbackChannelID), zap.Error(sendErr))
		}
	}
	return false
}

func (o *Operation) call(ctx context.Context, op Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return op(ctx)
}
