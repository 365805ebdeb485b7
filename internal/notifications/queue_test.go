package notifications

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockTransport records posted texts.
type MockTransport struct {
	mock.Mock
	mu     sync.Mutex
	posted []string
}

func (m *MockTransport) PostText(ctx context.Context, target, text string) error {
	args := m.Called(ctx, target, text)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.posted = append(m.posted, text)
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *MockTransport) Posted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.posted...)
}

func testConfig(t *testing.T) QueueConfig {
	return QueueConfig{
		Enabled:        true,
		Target:         "chat-1",
		MaxMessageSize: DefaultMaxMessageSize,
		Path:           filepath.Join(t.TempDir(), "telegram-queue.json"),
	}
}

func TestEnqueueRejectsEmptyText(t *testing.T) {
	q := NewQueue(testConfig(t), &MockTransport{}, zap.NewNop())

	assert.False(t, q.Enqueue(""))
	assert.True(t, q.Enqueue("hello"))
	assert.Equal(t, []string{"hello"}, q.Snapshot())
}

func TestEnqueuePersists(t *testing.T) {
	config := testConfig(t)
	q := NewQueue(config, &MockTransport{}, zap.NewNop())
	q.Enqueue("m1")
	q.Enqueue("m2")

	data, err := os.ReadFile(config.Path)
	require.NoError(t, err)
	assert.JSONEq(t, `["m1","m2"]`, string(data))

	restored := NewQueue(config, &MockTransport{}, zap.NewNop())
	assert.Equal(t, []string{"m1", "m2"}, restored.Snapshot())
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	config := testConfig(t)
	require.NoError(t, os.WriteFile(config.Path, []byte("{not json"), 0o644))

	q := NewQueue(config, &MockTransport{}, zap.NewNop())
	assert.Empty(t, q.Snapshot())
}

func TestFlushFailureKeepsMessages(t *testing.T) {
	config := testConfig(t)
	transport := &MockTransport{}
	transport.On("PostText", mock.Anything, "chat-1", mock.Anything).Return(errors.New("telegram returned status 502")).Once()
	transport.On("PostText", mock.Anything, "chat-1", mock.Anything).Return(nil)

	q := NewQueue(config, transport, zap.NewNop())
	q.Enqueue("m1")
	q.Enqueue("m2")

	err := q.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"m1", "m2"}, q.Snapshot())

	data, readErr := os.ReadFile(config.Path)
	require.NoError(t, readErr)
	assert.JSONEq(t, `["m1","m2"]`, string(data))

	require.NoError(t, q.Flush(context.Background()))
	assert.Empty(t, q.Snapshot())
	assert.Equal(t, []string{"m1" + Separator + "m2"}, transport.Posted())

	data, readErr = os.ReadFile(config.Path)
	require.NoError(t, readErr)
	assert.JSONEq(t, `[]`, string(data))
}

func TestFlushPartialFailureResendsEverything(t *testing.T) {
	config := testConfig(t)
	config.MaxMessageSize = MinMaxMessageSize
	transport := &MockTransport{}
	transport.On("PostText", mock.Anything, "chat-1", mock.Anything).Return(nil).Once()
	transport.On("PostText", mock.Anything, "chat-1", mock.Anything).Return(errors.New("boom")).Once()
	transport.On("PostText", mock.Anything, "chat-1", mock.Anything).Return(nil)

	q := NewQueue(config, transport, zap.NewNop())
	first := strings.Repeat("a", 900)
	second := strings.Repeat("b", 900)
	q.Enqueue(first)
	q.Enqueue(second)

	require.Error(t, q.Flush(context.Background()))
	assert.Len(t, q.Snapshot(), 2)

	require.NoError(t, q.Flush(context.Background()))
	assert.Empty(t, q.Snapshot())
	// the first chunk went out twice
	posted := transport.Posted()
	require.Len(t, posted, 3)
	assert.Equal(t, posted[0], posted[1])
}

func TestFlushDisabledOnlyPersists(t *testing.T) {
	config := testConfig(t)
	config.Enabled = false
	transport := &MockTransport{}

	q := NewQueue(config, transport, zap.NewNop())
	q.Enqueue("m1")

	require.NoError(t, q.Flush(context.Background()))
	assert.Equal(t, []string{"m1"}, q.Snapshot())
	transport.AssertNotCalled(t, "PostText", mock.Anything, mock.Anything, mock.Anything)
}

func TestFlushEmptyQueueSendsNothing(t *testing.T) {
	transport := &MockTransport{}
	q := NewQueue(testConfig(t), transport, zap.NewNop())

	require.NoError(t, q.Flush(context.Background()))
	transport.AssertNotCalled(t, "PostText", mock.Anything, mock.Anything, mock.Anything)
}

func TestFlushKeepsMessagesEnqueuedDuringSend(t *testing.T) {
	transport := &MockTransport{}
	q := NewQueue(testConfig(t), transport, zap.NewNop())
	transport.On("PostText", mock.Anything, "chat-1", "m1").Run(func(mock.Arguments) {
		q.Enqueue("late")
	}).Return(nil)

	q.Enqueue("m1")
	require.NoError(t, q.Flush(context.Background()))
	assert.Equal(t, []string{"late"}, q.Snapshot())
}

func TestMaxMessageSizeFloor(t *testing.T) {
	config := testConfig(t)
	config.MaxMessageSize = 10
	q := NewQueue(config, &MockTransport{}, zap.NewNop())
	assert.Equal(t, MinMaxMessageSize, q.config.MaxMessageSize)
}

func TestSendImmediateBypassesQueue(t *testing.T) {
	transport := &MockTransport{}
	transport.On("PostText", mock.Anything, "chat-1", "urgent").Return(nil)
	q := NewQueue(testConfig(t), transport, zap.NewNop())
	q.Enqueue("queued")

	assert.True(t, q.SendImmediate(context.Background(), "urgent"))
	assert.Equal(t, []string{"queued"}, q.Snapshot())
	assert.Equal(t, []string{"urgent"}, transport.Posted())
}

func TestSendImmediateFailure(t *testing.T) {
	transport := &MockTransport{}
	transport.On("PostText", mock.Anything, "chat-1", mock.Anything).Return(errors.New("down"))
	q := NewQueue(testConfig(t), transport, zap.NewNop())

	assert.False(t, q.SendImmediate(context.Background(), "urgent"))
	assert.Empty(t, q.Snapshot())
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func TestFlushPublishesOutcome(t *testing.T) {
	transport := &MockTransport{}
	transport.On("PostText", mock.Anything, "chat-1", mock.Anything).Return(nil)
	publisher := &recordingPublisher{}
	q := NewQueue(testConfig(t), transport, zap.NewNop())
	q.SetPublisher(publisher)
	q.Enqueue("m1")

	require.NoError(t, q.Flush(context.Background()))
	require.Len(t, publisher.events, 1)
	assert.Equal(t, EventQueueFlushed, publisher.events[0].Type)
}
