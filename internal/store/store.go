// Package store defines the narrow record-access contract the rest of the
// server is written against. Two backends implement it: memory (single
// process) and postgres (shared across processes). All race resolution lives
// behind this interface: creates are atomic on the uniqueness constraint and
// deactivation is a compare-and-set on the active flag, so callers never need
// an in-process lock around store calls.
package store

import (
	"context"
	"errors"

	"syncplane/internal/model"
)

var (
	// ErrConflict reports that an atomic create lost a uniqueness race.
	ErrConflict = errors.New("store: conflict")
	// ErrNotFound reports that the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
)

type AccountStore interface {
	// GetOrCreateAccount returns the account for publicKey, creating it on
	// first use.
	GetOrCreateAccount(ctx context.Context, publicKey string, now int64) (model.Account, error)
}

type MachineStore interface {
	FindMachine(ctx context.Context, accountID, id string) (model.Machine, error)
	ListMachines(ctx context.Context, accountID string) ([]model.Machine, error)
	// CreateMachine inserts the record as-is and returns ErrConflict when a
	// row with the same (accountID, id) already exists.
	CreateMachine(ctx context.Context, m model.Machine) error
	// FindStaleActiveMachines returns active machines whose lastActiveAt is
	// at or before cutoff.
	FindStaleActiveMachines(ctx context.Context, cutoff int64) ([]model.Machine, error)
	// DeactivateMachine flips active true->false. It reports false when no
	// row matched, meaning another writer got there first.
	DeactivateMachine(ctx context.Context, accountID, id string, now int64) (bool, error)
	// TouchMachineActivity marks the machine active and advances
	// lastActiveAt. Reports false when the machine does not exist.
	TouchMachineActivity(ctx context.Context, accountID, id string, activeAt, now int64) (bool, error)
}

type SessionStore interface {
	FindSession(ctx context.Context, accountID, id string) (model.Session, error)
	ListSessions(ctx context.Context, accountID string) ([]model.Session, error)
	// GetOrCreateSession returns the session with the given tag, creating it
	// when absent. The second result reports whether a row was created.
	GetOrCreateSession(ctx context.Context, s model.Session) (model.Session, bool, error)
	FindStaleActiveSessions(ctx context.Context, cutoff int64) ([]model.Session, error)
	DeactivateSession(ctx context.Context, accountID, id string, now int64) (bool, error)
	TouchSessionActivity(ctx context.Context, accountID, id string, activeAt, now int64) (bool, error)
}

type SeqAllocator interface {
	// AllocateSeq returns the next account-level sequence number: strictly
	// greater than every value previously returned for accountID, under
	// arbitrary concurrent callers.
	AllocateSeq(ctx context.Context, accountID string) (int64, error)
}

// Store is the full contract a backend provides.
type Store interface {
	AccountStore
	MachineStore
	SessionStore
	SeqAllocator
}
