package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunPruner is the interface the sweeper uses to delete old run histories.
// Satisfied by eventlog.History (avoids import cycle in tests).
type RunPruner interface {
	PruneFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper prunes finished run histories on a cron schedule.
type Sweeper struct {
	pruner    RunPruner
	parser    cron.Parser
	logger    *slog.Logger
	schedule  string
	retention time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
	mu        sync.Mutex

	nextMu  sync.Mutex
	nextRun time.Time
}

// NewSweeper creates a Sweeper that runs per the given standard 5-field cron
// expression and removes finished runs older than the retention window.
func NewSweeper(pruner RunPruner, schedule string, retention time.Duration, logger *slog.Logger) (*Sweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", schedule, err)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	return &Sweeper{
		pruner:    pruner,
		parser:    parser,
		logger:    logger,
		schedule:  schedule,
		retention: retention,
	}, nil
}

// Start launches the background sweep loop with a 60s ticker.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("sweeper already started")
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	next, err := s.CalculateNextRun(s.schedule, time.Now().UTC())
	if err != nil {
		return err
	}
	s.setNextRun(next)

	go s.loop(sweepCtx)
	s.logger.Info("retention sweeper started",
		slog.String("schedule", s.schedule),
		slog.Duration("retention", s.retention),
	)
	return nil
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick sweeps once if the schedule is due and advances the next run time.
func (s *Sweeper) tick(ctx context.Context) {
	now := time.Now().UTC()
	s.nextMu.Lock()
	due := !s.nextRun.After(now)
	s.nextMu.Unlock()
	if !due {
		return
	}

	if err := s.Sweep(ctx, now); err != nil {
		s.logger.Error("retention sweep failed", slog.String("error", err.Error()))
	}

	next, err := s.CalculateNextRun(s.schedule, now)
	if err != nil {
		s.logger.Error("failed to compute next sweep time", slog.String("error", err.Error()))
		return
	}
	s.setNextRun(next)
}

// Sweep prunes finished runs whose creation time is older than the retention
// window, measured back from now.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.retention)
	pruned, err := s.pruner.PruneFinishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune finished runs: %w", err)
	}
	if pruned > 0 {
		s.logger.Info("pruned finished runs",
			slog.Int64("count", pruned),
			slog.Time("cutoff", cutoff),
		)
	}
	return nil
}

// CalculateNextRun computes the next sweep time for a cron expression.
func (s *Sweeper) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

func (s *Sweeper) setNextRun(t time.Time) {
	s.nextMu.Lock()
	s.nextRun = t
	s.nextMu.Unlock()
}

// Stop gracefully shuts down the sweeper.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("retention sweeper stopped")
	return nil
}
