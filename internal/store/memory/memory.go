// Package memory is the single-process store backend. It mirrors the
// contract of the postgres backend with maps guarded by one RWMutex, which
// makes every create and compare-and-set trivially atomic.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"syncplane/internal/model"
	"syncplane/internal/store"
)

type Store struct {
	mu sync.RWMutex

	accountsByPublicKey map[string]model.Account

	machinesByKey map[string]model.Machine // accountID + "|" + machineID

	sessionsByID      map[string]model.Session
	sessionIDByTagKey map[string]string // accountID + "|" + tag -> sessionID
	seqByAccount      map[string]int64
}

func New() *Store {
	return &Store{
		accountsByPublicKey: make(map[string]model.Account),
		machinesByKey:       make(map[string]model.Machine),
		sessionsByID:        make(map[string]model.Session),
		sessionIDByTagKey:   make(map[string]string),
		seqByAccount:        make(map[string]int64),
	}
}

func key(accountID, id string) string {
	return accountID + "|" + id
}

func (s *Store) GetOrCreateAccount(_ context.Context, publicKey string, now int64) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.accountsByPublicKey[publicKey]; ok {
		return existing, nil
	}
	acc := model.Account{
		ID:        uuid.NewString(),
		PublicKey: publicKey,
		CreatedAt: now,
	}
	s.accountsByPublicKey[publicKey] = acc
	return acc, nil
}

func (s *Store) AllocateSeq(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seqByAccount[accountID]++
	return s.seqByAccount[accountID], nil
}

func (s *Store) FindMachine(_ context.Context, accountID, id string) (model.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.machinesByKey[key(accountID, id)]
	if !ok {
		return model.Machine{}, store.ErrNotFound
	}
	return m, nil
}

func (s *Store) ListMachines(_ context.Context, accountID string) ([]model.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Machine, 0)
	for _, m := range s.machinesByKey {
		if m.AccountID == accountID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastActiveAt > result[j].LastActiveAt })
	return result, nil
}

func (s *Store) CreateMachine(_ context.Context, m model.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(m.AccountID, m.ID)
	if _, ok := s.machinesByKey[k]; ok {
		return store.ErrConflict
	}
	s.machinesByKey[k] = m
	return nil
}

func (s *Store) FindStaleActiveMachines(_ context.Context, cutoff int64) ([]model.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Machine, 0)
	for _, m := range s.machinesByKey {
		if m.Active && m.LastActiveAt <= cutoff {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *Store) DeactivateMachine(_ context.Context, accountID, id string, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(accountID, id)
	m, ok := s.machinesByKey[k]
	if !ok || !m.Active {
		return false, nil
	}
	m.Active = false
	m.UpdatedAt = now
	s.machinesByKey[k] = m
	return true, nil
}

func (s *Store) TouchMachineActivity(_ context.Context, accountID, id string, activeAt, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(accountID, id)
	m, ok := s.machinesByKey[k]
	if !ok {
		return false, nil
	}
	m.Active = true
	if activeAt > m.LastActiveAt {
		m.LastActiveAt = activeAt
	}
	m.UpdatedAt = now
	s.machinesByKey[k] = m
	return true, nil
}

func (s *Store) FindSession(_ context.Context, accountID, id string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessionsByID[id]
	if !ok || sess.AccountID != accountID {
		return model.Session{}, store.ErrNotFound
	}
	return sess, nil
}

func (s *Store) ListSessions(_ context.Context, accountID string) ([]model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Session, 0)
	for _, sess := range s.sessionsByID {
		if sess.AccountID == accountID {
			result = append(result, sess)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt > result[j].UpdatedAt })
	return result, nil
}

func (s *Store) GetOrCreateSession(_ context.Context, sess model.Session) (model.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tagKey := key(sess.AccountID, sess.Tag)
	if sid, ok := s.sessionIDByTagKey[tagKey]; ok {
		return s.sessionsByID[sid], false, nil
	}

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	s.sessionsByID[sess.ID] = sess
	s.sessionIDByTagKey[tagKey] = sess.ID
	return sess, true, nil
}

func (s *Store) FindStaleActiveSessions(_ context.Context, cutoff int64) ([]model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Session, 0)
	for _, sess := range s.sessionsByID {
		if sess.Active && sess.LastActiveAt <= cutoff {
			result = append(result, sess)
		}
	}
	return result, nil
}

func (s *Store) DeactivateSession(_ context.Context, accountID, id string, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessionsByID[id]
	if !ok || sess.AccountID != accountID || !sess.Active {
		return false, nil
	}
	sess.Active = false
	sess.UpdatedAt = now
	s.sessionsByID[id] = sess
	return true, nil
}

func (s *Store) TouchSessionActivity(_ context.Context, accountID, id string, activeAt, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessionsByID[id]
	if !ok || sess.AccountID != accountID {
		return false, nil
	}
	sess.Active = true
	if activeAt > sess.LastActiveAt {
		sess.LastActiveAt = activeAt
	}
	sess.UpdatedAt = now
	s.sessionsByID[id] = sess
	return true, nil
}

var _ store.Store = (*Store)(nil)
