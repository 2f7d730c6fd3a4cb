// Package events routes state-change events to connected clients. Durable
// updates are tagged with a per-account sequence number before fan-out;
// ephemeral signals are best-effort and unsequenced. Emission is a side
// channel: a failed emission never invalidates the store mutation it
// describes, so callers log the returned error and move on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"syncplane/internal/store"
)

// Recipients selects which of an account's connections receive an event.
type Recipients struct {
	machineID string
}

// UserScoped addresses every user-scoped connection of the account.
func UserScoped() Recipients { return Recipients{} }

// MachineScoped addresses only connections subscribed to one machine.
func MachineScoped(machineID string) Recipients { return Recipients{machineID: machineID} }

// Broadcaster is the live-connection fan-out surface (implemented by hub.Hub).
type Broadcaster interface {
	BroadcastAccount(accountID string, message []byte)
	BroadcastMachine(accountID, machineID string, message []byte)
}

type Router struct {
	seq store.SeqAllocator
	hub Broadcaster
	log zerolog.Logger

	mu      sync.Mutex
	perAcct map[string]*sync.Mutex
}

func NewRouter(seq store.SeqAllocator, hub Broadcaster, log zerolog.Logger) *Router {
	return &Router{
		seq:     seq,
		hub:     hub,
		log:     log.With().Str("component", "events").Logger(),
		perAcct: make(map[string]*sync.Mutex),
	}
}

type updateEnvelope struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	Body      any    `json:"body"`
	CreatedAt int64  `json:"createdAt"`
}

type ephemeralEnvelope struct {
	Type string `json:"type"`
	Body any    `json:"body"`
}

// EmitUpdate allocates the next account sequence number, tags the payload and
// delivers it to matching connections. Allocation and delivery happen under a
// per-account lock so a recipient never observes decreasing seq values even
// when emissions race. Returns the allocated seq.
func (r *Router) EmitUpdate(ctx context.Context, accountID string, payload any, rcpt Recipients) (int64, error) {
	mu := r.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	seq, err := r.seq.AllocateSeq(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("allocate seq: %w", err)
	}

	data, err := json.Marshal(updateEnvelope{
		Type:      "update",
		ID:        uuid.NewString(),
		Seq:       seq,
		Body:      payload,
		CreatedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		// The seq is burned; gaps are allowed.
		return seq, fmt.Errorf("marshal update: %w", err)
	}

	r.deliver(accountID, rcpt, data)
	return seq, nil
}

// EmitEphemeral delivers an unsequenced signal to connections matching the
// filter right now. Nothing is retried or replayed.
func (r *Router) EmitEphemeral(accountID string, payload any, rcpt Recipients) {
	data, err := json.Marshal(ephemeralEnvelope{Type: "ephemeral", Body: payload})
	if err != nil {
		r.log.Error().Err(err).Str("accountId", accountID).Msg("marshal ephemeral")
		return
	}
	r.deliver(accountID, rcpt, data)
}

func (r *Router) deliver(accountID string, rcpt Recipients, data []byte) {
	if rcpt.machineID != "" {
		r.hub.BroadcastMachine(accountID, rcpt.machineID, data)
		return
	}
	r.hub.BroadcastAccount(accountID, data)
}

func (r *Router) accountLock(accountID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	mu, ok := r.perAcct[accountID]
	if !ok {
		mu = &sync.Mutex{}
		r.perAcct[accountID] = mu
	}
	return mu
}
