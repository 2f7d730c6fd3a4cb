// Package presence demotes sessions and machines that have stopped reporting
// liveness. Each row transition is a single compare-and-set against the
// store, so the sweep can race freely with activity refreshes and with other
// processes; losing a race just means skipping the row.
package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"syncplane/internal/events"
	"syncplane/internal/store"
)

const (
	// DefaultStaleThreshold is how long a resource may stay silent before the
	// sweep demotes it.
	DefaultStaleThreshold = 10 * time.Minute
	// DefaultInterval is the pause between sweep iterations.
	DefaultInterval = time.Minute
)

type Sweeper struct {
	store     store.Store
	router    *events.Router
	log       zerolog.Logger
	threshold time.Duration
	interval  time.Duration
	now       func() int64
}

func NewSweeper(st store.Store, router *events.Router, log zerolog.Logger, threshold, interval time.Duration) *Sweeper {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		store:     st,
		router:    router,
		log:       log.With().Str("component", "presence").Logger(),
		threshold: threshold,
		interval:  interval,
		now:       func() int64 { return time.Now().UnixMilli() },
	}
}

// Run sweeps until ctx is cancelled. A failed iteration is logged and retried
// on the next tick; the loop itself never dies on an error.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		if err := s.SweepOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Error().Err(err).Msg("sweep iteration failed")
		}
		if !sleep(ctx, s.interval) {
			return
		}
	}
}

// SweepOnce runs a single iteration: stale active sessions first, then stale
// active machines.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	cutoff := s.now() - s.threshold.Milliseconds()

	stale, err := s.store.FindStaleActiveSessions(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, sess := range stale {
		if err := s.demoteSession(ctx, sess.AccountID, sess.ID, sess.LastActiveAt); err != nil {
			return err
		}
	}

	staleMachines, err := s.store.FindStaleActiveMachines(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, m := range staleMachines {
		if err := s.demoteMachine(ctx, m.AccountID, m.ID, m.LastActiveAt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sweeper) demoteSession(ctx context.Context, accountID, id string, lastActiveAt int64) error {
	ok, err := s.store.DeactivateSession(ctx, accountID, id, s.now())
	if err != nil {
		return err
	}
	if !ok {
		// Another writer already transitioned the row; nothing to announce.
		return nil
	}
	// Re-read: lastActiveAt may have advanced between scan and CAS.
	if current, err := s.store.FindSession(ctx, accountID, id); err == nil {
		lastActiveAt = current.LastActiveAt
	}
	s.router.EmitEphemeral(accountID, events.SessionActivity(id, false, lastActiveAt), events.UserScoped())
	return nil
}

func (s *Sweeper) demoteMachine(ctx context.Context, accountID, id string, lastActiveAt int64) error {
	ok, err := s.store.DeactivateMachine(ctx, accountID, id, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if current, err := s.store.FindMachine(ctx, accountID, id); err == nil {
		lastActiveAt = current.LastActiveAt
	}
	s.router.EmitEphemeral(accountID, events.MachineActivity(id, false, lastActiveAt), events.UserScoped())
	return nil
}

// sleep waits for d, returning false when ctx is cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
