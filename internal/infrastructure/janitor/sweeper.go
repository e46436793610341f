package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"orbnet/internal/core/ports"
)

// Guard serializes sweeps across relay nodes. pkg/distributed.Lock
// satisfies it; a nil guard means single-node and every sweep runs.
type Guard interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Sweeper periodically reclaims what clients leave behind: signal
// streams and chat of sessions ended longer than the retention ago,
// and roster entries whose owner stopped heartbeating.
type Sweeper struct {
	sessions ports.SessionStore
	signals  ports.SignalStore
	roster   ports.RosterStore
	guard    Guard
	logger   *zap.SugaredLogger

	interval  time.Duration
	retention time.Duration

	stop chan struct{}
	done chan struct{}
}

// Config holds sweeper configuration
type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

// NewSweeper creates a new sweeper. guard may be nil.
func NewSweeper(
	sessions ports.SessionStore,
	signals ports.SignalStore,
	roster ports.RosterStore,
	guard Guard,
	cfg Config,
	logger *zap.SugaredLogger,
) *Sweeper {
	return &Sweeper{
		sessions:  sessions,
		signals:   signals,
		roster:    roster,
		guard:     guard,
		logger:    logger,
		interval:  cfg.Interval,
		retention: cfg.Retention,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)

	s.logger.Infow("janitor started",
		"interval", s.interval,
		"retention", s.retention,
	)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepGuarded(ctx)
		}
	}
}

func (s *Sweeper) sweepGuarded(ctx context.Context) {
	if s.guard != nil {
		acquired, err := s.guard.TryAcquire(ctx)
		if err != nil {
			s.logger.Warnw("janitor lock acquisition failed", "error", err)
			return
		}
		if !acquired {
			// Another node is sweeping this round.
			return
		}
		defer func() {
			if err := s.guard.Release(ctx); err != nil {
				s.logger.Warnw("janitor lock release failed", "error", err)
			}
		}()
	}

	s.Sweep(ctx)
}

// Sweep runs one reclamation pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now()

	swept := s.sweepSessions(ctx, now.Add(-s.retention))

	pruned, err := s.roster.PruneStale(ctx, now.Add(-s.retention))
	if err != nil {
		s.logger.Warnw("roster prune failed", "error", err)
	}

	if swept > 0 || pruned > 0 {
		s.logger.Infow("janitor sweep complete",
			"sessions_swept", swept,
			"roster_pruned", pruned,
		)
	}
}

func (s *Sweeper) sweepSessions(ctx context.Context, cutoff time.Time) int {
	ended, err := s.sessions.ListEndedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warnw("janitor list ended sessions failed", "error", err)
		return 0
	}

	swept := 0
	for _, session := range ended {
		if err := s.signals.DeleteSession(ctx, session.ID); err != nil {
			s.logger.Warnw("janitor signal stream delete failed",
				"session_id", session.ID,
				"error", err,
			)
			continue
		}
		if err := s.sessions.Delete(ctx, session.ID); err != nil {
			s.logger.Warnw("janitor session delete failed",
				"session_id", session.ID,
				"error", err,
			)
			continue
		}
		swept++
	}

	return swept
}
