package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Sweeper runs the recovery sweep on a cron schedule so that open
// breakers move to HALF_OPEN after their cooldown even when the policy
// receives no traffic.
type Sweeper struct {
	breaker  *Breaker
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewSweeper creates a scheduled recovery sweeper.
func NewSweeper(breaker *Breaker, schedule string) *Sweeper {
	return &Sweeper{
		breaker:  breaker,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "enforcement.breaker.sweeper"),
	}
}

// Start begins scheduled sweeping. If the schedule is empty the sweeper
// does nothing. Stops cleanly when the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("breaker sweep schedule not configured, skipping sweeper")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.breaker.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule breaker sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("breaker sweeper started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the tick loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("breaker sweeper stopped")
	}
}
