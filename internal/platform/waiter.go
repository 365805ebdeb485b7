package platform

import (
	"context"
	"sync"
	"time"
)

const subscriptionBuffer = 32

// MessageFilter selects the messages a wait resolves on. Empty fields match
// anything.
type MessageFilter struct {
	AuthorID  string
	ChannelID string
	Match     func(Message) bool
}

func (f MessageFilter) matches(msg Message) bool {
	if f.AuthorID != "" && msg.AuthorID != f.AuthorID {
		return false
	}
	if f.ChannelID != "" && msg.ChannelID != f.ChannelID {
		return false
	}
	if f.Match != nil && !f.Match(msg) {
		return false
	}
	return true
}

// Waiter registers message waits and resumes them when Dispatch delivers
// a matching message. Only the waiting goroutine is suspended.
type Waiter struct {
	mu   sync.Mutex
	subs map[uint64]*Subscription
	next uint64
}

func NewWaiter() *Waiter {
	return &Waiter{subs: make(map[uint64]*Subscription)}
}

// Subscription buffers matching messages until closed.
type Subscription struct {
	id     uint64
	waiter *Waiter
	filter MessageFilter
	ch     chan Message
	once   sync.Once
}

// Subscribe registers filter. Matching messages are buffered from this
// point on, so nothing is lost between consecutive Next calls.
func (w *Waiter) Subscribe(filter MessageFilter) *Subscription {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.next++
	sub := &Subscription{
		id:     w.next,
		waiter: w,
		filter: filter,
		ch:     make(chan Message, subscriptionBuffer),
	}
	w.subs[sub.id] = sub
	return sub
}

// Next blocks until a matching message arrives, timeout elapses
// (ErrWaitTimeout) or ctx is done.
func (s *Subscription) Next(ctx context.Context, timeout time.Duration) (Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-s.ch:
		return msg, nil
	case <-timer.C:
		return Message{}, ErrWaitTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close removes the registration.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.waiter.mu.Lock()
		delete(s.waiter.subs, s.id)
		s.waiter.mu.Unlock()
	})
}

// WaitForMessage waits for a single message matching filter.
func (w *Waiter) WaitForMessage(ctx context.Context, filter MessageFilter, timeout time.Duration) (Message, error) {
	sub := w.Subscribe(filter)
	defer sub.Close()
	return sub.Next(ctx, timeout)
}

// Dispatch hands msg to every matching registration and returns how many
// received it. A registration whose buffer is full misses the message.
func (w *Waiter) Dispatch(msg Message) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	delivered := 0
	for _, sub := range w.subs {
		if !sub.filter.matches(msg) {
			continue
		}
		select {
		case sub.ch <- msg:
			delivered++
		default:
		}
	}
	return delivered
}

// Pending returns the number of open registrations.
func (w *Waiter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}
