// Package machines implements idempotent registration of client-declared
// machine identities. Registration is read-idempotent: a repeat call for an
// existing (account, id) pair returns the stored record untouched, and a
// create that loses a concurrency race silently adopts the winner's record.
package machines

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"syncplane/internal/events"
	"syncplane/internal/model"
	"syncplane/internal/store"
)

// ErrInconsistentStore reports a create that failed on uniqueness while no
// winning row can be found. That is a data-layer anomaly, not a normal race,
// and is surfaced as fatal.
var ErrInconsistentStore = errors.New("machines: conflict but no existing row")

type Service struct {
	store  store.Store
	router *events.Router
	log    zerolog.Logger
	now    func() int64
}

func NewService(st store.Store, router *events.Router, log zerolog.Logger) *Service {
	return &Service{
		store:  st,
		router: router,
		log:    log.With().Str("component", "machines").Logger(),
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

type RegisterParams struct {
	ID          string
	Metadata    string
	DaemonState *string
	// DataEncryptionKey is accepted only at creation. A later call carrying a
	// different key is ignored; the stored value wins.
	DataEncryptionKey []byte
}

// RegisterOrFetch returns the machine for (accountID, p.ID), creating it on
// first registration. On a successful create it emits a new-machine update to
// the whole account followed by a metadata update scoped to the machine; both
// emissions are best-effort and never fail the call, because the row is
// already durable.
func (s *Service) RegisterOrFetch(ctx context.Context, accountID string, p RegisterParams) (model.Machine, error) {
	if p.ID == "" {
		return model.Machine{}, errors.New("machines: missing id")
	}

	existing, err := s.store.FindMachine(ctx, accountID, p.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Machine{}, fmt.Errorf("find machine: %w", err)
	}

	now := s.now()
	daemonStateVersion := 0
	if p.DaemonState != nil {
		daemonStateVersion = 1
	}
	m := model.Machine{
		ID:                 p.ID,
		AccountID:          accountID,
		Metadata:           p.Metadata,
		MetadataVersion:    1,
		DaemonState:        p.DaemonState,
		DaemonStateVersion: daemonStateVersion,
		DataEncryptionKey:  p.DataEncryptionKey,
		Active:             false,
		LastActiveAt:       now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.store.CreateMachine(ctx, m)
	if err == nil {
		s.emitCreated(ctx, accountID, m)
		return m, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return model.Machine{}, fmt.Errorf("create machine: %w", err)
	}

	// A concurrent caller won the race. Adopt its record without emitting;
	// the winner already did.
	winner, ferr := s.store.FindMachine(ctx, accountID, p.ID)
	if ferr == nil {
		return winner, nil
	}
	if errors.Is(ferr, store.ErrNotFound) {
		s.log.Error().Str("accountId", accountID).Str("machineId", p.ID).
			Msg("unique violation but machine not found afterwards")
		return model.Machine{}, ErrInconsistentStore
	}
	return model.Machine{}, fmt.Errorf("refetch after conflict: %w", ferr)
}

func (s *Service) emitCreated(ctx context.Context, accountID string, m model.Machine) {
	if _, err := s.router.EmitUpdate(ctx, accountID, events.NewMachineUpdate(m), events.UserScoped()); err != nil {
		s.log.Error().Err(err).Str("accountId", accountID).Str("machineId", m.ID).
			Msg("non-fatal: failed to emit new-machine update")
		return
	}
	payload := events.UpdateMachineMetadata(m.ID, m.MetadataVersion, m.Metadata)
	if _, err := s.router.EmitUpdate(ctx, accountID, payload, events.MachineScoped(m.ID)); err != nil {
		s.log.Error().Err(err).Str("accountId", accountID).Str("machineId", m.ID).
			Msg("non-fatal: failed to emit update-machine update")
	}
}

// Get returns one machine or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, accountID, id string) (model.Machine, error) {
	return s.store.FindMachine(ctx, accountID, id)
}

// List returns the account's machines, most recently active first.
func (s *Service) List(ctx context.Context, accountID string) ([]model.Machine, error) {
	return s.store.ListMachines(ctx, accountID)
}

// TouchActivity marks the machine alive and emits an ephemeral activity
// signal to the account's user-scoped connections.
func (s *Service) TouchActivity(ctx context.Context, accountID, id string, activeAt int64) error {
	ok, err := s.store.TouchMachineActivity(ctx, accountID, id, activeAt, s.now())
	if err != nil {
		return fmt.Errorf("touch machine activity: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}
	s.router.EmitEphemeral(accountID, events.MachineActivity(id, true, activeAt), events.UserScoped())
	return nil
}
