package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"syncplane/internal/model"
	"syncplane/internal/store"
)

const sessionColumns = `id, account_id, tag, metadata, metadata_version, agent_state, agent_state_version,
	active, last_active_at, created_at, updated_at`

func (s *Store) FindSession(ctx context.Context, accountID, id string) (model.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions WHERE account_id=$1 AND id=$2
	`, accountID, id)
	return scanSession(row)
}

func (s *Store) ListSessions(ctx context.Context, accountID string) ([]model.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions WHERE account_id=$1
		ORDER BY updated_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (s *Store) GetOrCreateSession(ctx context.Context, sess model.Session) (model.Session, bool, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions
		(id, account_id, tag, metadata, metadata_version, agent_state, agent_state_version,
		 active, last_active_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (account_id, tag) DO NOTHING
	`, sess.ID, sess.AccountID, sess.Tag, sess.Metadata, sess.MetadataVersion, sess.AgentState,
		sess.AgentStateVersion, sess.Active, sess.LastActiveAt, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return model.Session{}, false, err
	}

	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions WHERE account_id=$1 AND tag=$2
	`, sess.AccountID, sess.Tag)
	current, err := scanSession(row)
	if err != nil {
		return model.Session{}, false, err
	}
	return current, current.ID == sess.ID, nil
}

func (s *Store) FindStaleActiveSessions(ctx context.Context, cutoff int64) ([]model.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions WHERE active AND last_active_at <= $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (s *Store) DeactivateSession(ctx context.Context, accountID, id string, now int64) (bool, error) {
	res, err := s.pool.Exec(ctx, `
		UPDATE sessions SET active=FALSE, updated_at=$3
		WHERE account_id=$1 AND id=$2 AND active
	`, accountID, id, now)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (s *Store) TouchSessionActivity(ctx context.Context, accountID, id string, activeAt, now int64) (bool, error) {
	res, err := s.pool.Exec(ctx, `
		UPDATE sessions SET active=TRUE, last_active_at=GREATEST(last_active_at, $3), updated_at=$4
		WHERE account_id=$1 AND id=$2
	`, accountID, id, activeAt, now)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func scanSession(row pgx.Row) (model.Session, error) {
	var sess model.Session
	err := row.Scan(&sess.ID, &sess.AccountID, &sess.Tag, &sess.Metadata, &sess.MetadataVersion,
		&sess.AgentState, &sess.AgentStateVersion, &sess.Active, &sess.LastActiveAt,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, store.ErrNotFound
		}
		return model.Session{}, err
	}
	return sess, nil
}

func collectSessions(rows pgx.Rows) ([]model.Session, error) {
	result := make([]model.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}
