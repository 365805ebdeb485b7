package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSchedulerFlushesPeriodically(t *testing.T) {
	transport := &MockTransport{}
	transport.On("PostText", mock.Anything, "chat-1", mock.Anything).Return(nil)
	q := NewQueue(testConfig(t), transport, zap.NewNop())
	q.Enqueue("m1")

	s := NewScheduler(q, time.Second, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return q.Len() == 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestSchedulerDoubleStart(t *testing.T) {
	q := NewQueue(testConfig(t), &MockTransport{}, zap.NewNop())
	s := NewScheduler(q, time.Second, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
}
