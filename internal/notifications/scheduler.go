package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler flushes the queue on a fixed interval until stopped.
type Scheduler struct {
	cron     *cron.Cron
	queue    *Queue
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler returns a scheduler flushing queue every interval.
func NewScheduler(queue *Queue, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Scheduler{
		cron:     cron.New(),
		queue:    queue,
		interval: interval,
		timeout:  2 * time.Minute,
		logger:   logger,
	}
}

// Start registers the flush job and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("notification scheduler already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	schedule := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule queue flush: %w", err)
	}

	s.logger.Info("Starting notification scheduler", zap.Duration("interval", s.interval))
	s.cron.Start()
	s.running = true
	return nil
}

// Stop halts the cron runner and waits for a running flush to end.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.logger.Info("Stopping notification scheduler")
	s.cancel()
	done := s.cron.Stop()
	<-done.Done()
	s.running = false
}

func (s *Scheduler) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Queue flush panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	if err := s.queue.Flush(ctx); err != nil {
		s.logger.Warn("Scheduled queue flush failed", zap.Error(err))
	}
}
