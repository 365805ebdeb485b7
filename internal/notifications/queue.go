package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"community-portal/verification-backend/pkg/storage"
	"community-portal/verification-backend/pkg/textsplit"
)

const (
	// Separator joins queued messages into one flush payload.
	Separator = "\n\n---\n\n"

	DefaultMaxMessageSize = 3800
	MinMaxMessageSize     = 1000
)

// QueueConfig configures the outbound queue.
type QueueConfig struct {
	Enabled bool
	// Target is the transport destination (Telegram chat id, SNS topic ARN).
	Target         string
	MaxMessageSize int
	// Path of the JSON persistence file. Empty disables persistence.
	Path           string
	ChunkDelay     time.Duration
	ImmediateDelay time.Duration
}

// DefaultQueueConfig returns the production pacing.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxMessageSize: DefaultMaxMessageSize,
		ChunkDelay:     300 * time.Millisecond,
		ImmediateDelay: 250 * time.Millisecond,
	}
}

// Queue is a durable FIFO of outbound notification texts. Messages leave
// the queue only after every chunk of a flush was accepted by the
// transport, so a partial failure re-sends earlier chunks on the next
// flush.
type Queue struct {
	mu       sync.Mutex
	flushMu  sync.Mutex
	messages []string

	config    QueueConfig
	transport Transport
	publisher Publisher
	logger    *zap.Logger
}

// NewQueue builds a queue and restores its persisted content. A missing or
// unreadable file yields an empty queue.
func NewQueue(config QueueConfig, transport Transport, logger *zap.Logger) *Queue {
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.MaxMessageSize < MinMaxMessageSize {
		config.MaxMessageSize = MinMaxMessageSize
	}

	q := &Queue{
		config:    config,
		transport: transport,
		publisher: NopPublisher{},
		logger:    logger,
	}
	q.load()
	return q
}

// SetPublisher routes flush outcomes to publisher.
func (q *Queue) SetPublisher(publisher Publisher) {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	q.publisher = publisher
}

// Enabled reports whether flushes actually deliver.
func (q *Queue) Enabled() bool {
	return q.config.Enabled && q.transport != nil && q.config.Target != ""
}

func (q *Queue) load() {
	if q.config.Path == "" {
		return
	}
	data, err := os.ReadFile(q.config.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			q.logger.Warn("Failed to read notification queue", zap.String("path", q.config.Path), zap.Error(err))
		}
		return
	}

	var messages []string
	if err := json.Unmarshal(data, &messages); err != nil {
		q.logger.Warn("Ignoring corrupt notification queue", zap.String("path", q.config.Path), zap.Error(err))
		return
	}
	q.messages = messages
	q.logger.Info("Restored notification queue", zap.Int("pending", len(messages)))
}

// persistLocked writes the queue. Callers hold q.mu.
func (q *Queue) persistLocked() {
	if q.config.Path == "" {
		return
	}
	messages := q.messages
	if messages == nil {
		messages = []string{}
	}
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		q.logger.Error("Failed to encode notification queue", zap.Error(err))
		return
	}
	if err := storage.WriteFileAtomic(q.config.Path, data, 0o644); err != nil {
		q.logger.Error("Failed to persist notification queue", zap.String("path", q.config.Path), zap.Error(err))
	}
}

// Enqueue appends text and persists the queue. It returns false only for
// empty text.
func (q *Queue) Enqueue(text string) bool {
	if text == "" {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, text)
	q.persistLocked()
	return true
}

// Snapshot returns a copy of the pending messages in order.
func (q *Queue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string{}, q.messages...)
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Status returns a JSON-friendly view of the queue.
func (q *Queue) Status() QueueStatus {
	messages := q.Snapshot()
	return QueueStatus{
		Enabled:  q.Enabled(),
		Pending:  len(messages),
		Messages: messages,
	}
}

// Clear drops every pending message.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = nil
	q.persistLocked()
}

// Flush delivers every pending message. When delivery is disabled the queue
// is only persisted. On any send failure the queue is left untouched and
// the error returned.
func (q *Queue) Flush(ctx context.Context) error {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	q.mu.Lock()
	pending := append([]string{}, q.messages...)
	if !q.Enabled() {
		q.persistLocked()
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	chunks := textsplit.Split(strings.Join(pending, Separator), q.config.MaxMessageSize)
	for i, chunk := range chunks {
		if i > 0 {
			if err := sleep(ctx, q.config.ChunkDelay); err != nil {
				return q.flushFailed(fmt.Errorf("flush interrupted: %w", err), len(pending))
			}
		}
		if err := q.transport.PostText(ctx, q.config.Target, chunk); err != nil {
			return q.flushFailed(fmt.Errorf("failed to send chunk %d/%d: %w", i+1, len(chunks), err), len(pending))
		}
	}

	q.mu.Lock()
	// messages enqueued during the send stay queued
	if len(q.messages) >= len(pending) {
		q.messages = append([]string{}, q.messages[len(pending):]...)
	} else {
		q.messages = nil
	}
	q.persistLocked()
	q.mu.Unlock()

	q.logger.Info("Flushed notification queue",
		zap.Int("messages", len(pending)),
		zap.Int("chunks", len(chunks)))
	q.publisher.Publish(Event{
		Type:      EventQueueFlushed,
		Detail:    map[string]string{"messages": fmt.Sprint(len(pending)), "chunks": fmt.Sprint(len(chunks))},
		Timestamp: time.Now(),
	})
	return nil
}

func (q *Queue) flushFailed(err error, pending int) error {
	q.mu.Lock()
	q.persistLocked()
	q.mu.Unlock()

	q.logger.Warn("Notification flush failed, messages kept", zap.Int("pending", pending), zap.Error(err))
	q.publisher.Publish(Event{
		Type:      EventQueueFlushFailed,
		Detail:    map[string]string{"error": err.Error()},
		Timestamp: time.Now(),
	})
	return err
}

// SendImmediate delivers text right away without touching the queue. No
// retry is attempted.
func (q *Queue) SendImmediate(ctx context.Context, text string) bool {
	if text == "" || !q.Enabled() {
		return false
	}

	chunks := textsplit.Split(text, q.config.MaxMessageSize)
	for i, chunk := range chunks {
		if i > 0 {
			if err := sleep(ctx, q.config.ImmediateDelay); err != nil {
				return false
			}
		}
		if err := q.transport.PostText(ctx, q.config.Target, chunk); err != nil {
			q.logger.Warn("Immediate notification failed", zap.Int("chunk", i+1), zap.Error(err))
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
