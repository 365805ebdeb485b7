package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"community-portal/verification-backend/internal/platform"
	"community-portal/verification-backend/internal/platform/fake"
)

func newOperation(adapter platform.Adapter) *Operation {
	return New(adapter, zap.NewNop(), time.Millisecond, time.Millisecond, time.Millisecond)
}

func feedbackChannel(adapter *fake.Adapter) string {
	adapter.AddChannel(platform.Channel{ID: "review", Kind: platform.ChannelKindText})
	return "review"
}

func TestPerformSucceedsFirstTry(t *testing.T) {
	adapter := fake.NewAdapter()
	calls := 0

	ok := newOperation(adapter).Perform(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, "add role", "")

	assert.True(t, ok)
	assert.Equal(t, 1, calls)
}

func TestPerformRetriesTransientFailures(t *testing.T) {
	adapter := fake.NewAdapter()
	calls := 0

	ok := newOperation(adapter).Perform(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &platform.RateLimitError{RetryAfter: time.Second}
		}
		return nil
	}, "add role", feedbackChannel(adapter))

	assert.True(t, ok)
	assert.Equal(t, 3, calls)
	assert.Empty(t, adapter.SentTo("review"))
}

func TestPerformGivesUpAfterThreeRetries(t *testing.T) {
	adapter := fake.NewAdapter()
	channel := feedbackChannel(adapter)
	calls := 0

	ok := newOperation(adapter).Perform(context.Background(), func(context.Context) error {
		calls++
		return errors.New("request timeout")
	}, "add role Peluche", channel)

	assert.False(t, ok)
	assert.Equal(t, 4, calls)
	sent := adapter.SentTo(channel)
	if assert.Len(t, sent, 1) {
		assert.True(t, strings.HasPrefix(sent[0], "⚠️ Error: could not add role Peluche."))
	}
}

func TestPerformStopsOnPermanentFailure(t *testing.T) {
	adapter := fake.NewAdapter()
	channel := feedbackChannel(adapter)
	calls := 0

	ok := newOperation(adapter).Perform(context.Background(), func(context.Context) error {
		calls++
		return platform.ErrForbidden
	}, "remove role", channel)

	assert.False(t, ok)
	assert.Equal(t, 1, calls)
	assert.Len(t, adapter.SentTo(channel), 1)
}

func TestPerformRecoversPanics(t *testing.T) {
	adapter := fake.NewAdapter()

	ok := newOperation(adapter).Perform(context.Background(), func(context.Context) error {
		panic("boom")
	}, "explode", "")

	assert.False(t, ok)
}

func TestDefaultDelays(t *testing.T) {
	op := New(fake.NewAdapter(), zap.NewNop())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond, 3500 * time.Millisecond}, op.delays)
}
