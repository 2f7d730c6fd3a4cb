// Package sessions manages per-device activity sessions: get-or-create by
// client tag and liveness refresh. Session deactivation is owned by the
// presence sweeper.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"syncplane/internal/events"
	"syncplane/internal/model"
	"syncplane/internal/store"
)

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
		log:    log.With().Str("component", "sessions").Logger(),
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

type CreateParams struct {
	Tag        string
	Metadata   string
	AgentState *string
}

// GetOrCreate returns the session for (accountID, tag), creating an inactive
// one when absent. Duplicate calls return the existing row unchanged.
func (s *Service) GetOrCreate(ctx context.Context, accountID string, p CreateParams) (model.Session, bool, error) {
	if p.Tag == "" {
		return model.Session{}, false, errors.New("sessions: missing tag")
	}

	now := s.now()
	metadataVersion := 0
	if p.Metadata != "" {
		metadataVersion = 1
	}
	agentStateVersion := 0
	if p.AgentState != nil {
		agentStateVersion = 1
	}
	sess := model.Session{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Tag:               p.Tag,
		Metadata:          p.Metadata,
		MetadataVersion:   metadataVersion,
		AgentState:        p.AgentState,
		AgentStateVersion: agentStateVersion,
		Active:            false,
		LastActiveAt:      now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	current, created, err := s.store.GetOrCreateSession(ctx, sess)
	if err != nil {
		return model.Session{}, false, fmt.Errorf("get or create session: %w", err)
	}
	return current, created, nil
}

// List returns the account's sessions, most recently updated first.
func (s *Service) List(ctx context.Context, accountID string) ([]model.Session, error) {
	return s.store.ListSessions(ctx, accountID)
}

// TouchActivity marks the session alive and emits an ephemeral activity
// signal to the account's user-scoped connections.
func (s *Service) TouchActivity(ctx context.Context, accountID, id string, activeAt int64) error {
	ok, err := s.store.TouchSessionActivity(ctx, accountID, id, activeAt, s.now())
	if err != nil {
		return fmt.Errorf("touch session activity: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}
	s.router.EmitEphemeral(accountID, events.SessionActivity(id, true, activeAt), events.UserScoped())
	return nil
}
