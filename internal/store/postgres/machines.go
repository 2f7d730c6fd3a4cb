package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"syncplane/internal/model"
	"syncplane/internal/store"
)

const machineColumns = `account_id, id, metadata, metadata_version, daemon_state, daemon_state_version,
	data_encryption_key, seq, active, last_active_at, created_at, updated_at`

func (s *Store) FindMachine(ctx context.Context, accountID, id string) (model.Machine, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+machineColumns+`
		FROM machines WHERE account_id=$1 AND id=$2
	`, accountID, id)
	return scanMachine(row)
}

func (s *Store) ListMachines(ctx context.Context, accountID string) ([]model.Machine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+machineColumns+`
		FROM machines WHERE account_id=$1
		ORDER BY last_active_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMachines(rows)
}

func (s *Store) CreateMachine(ctx context.Context, m model.Machine) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO machines
		(account_id, id, metadata, metadata_version, daemon_state, daemon_state_version,
		 data_encryption_key, seq, active, last_active_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, m.AccountID, m.ID, m.Metadata, m.MetadataVersion, m.DaemonState, m.DaemonStateVersion,
		m.DataEncryptionKey, m.Seq, m.Active, m.LastActiveAt, m.CreatedAt, m.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) FindStaleActiveMachines(ctx context.Context, cutoff int64) ([]model.Machine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+machineColumns+`
		FROM machines WHERE active AND last_active_at <= $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMachines(rows)
}

func (s *Store) DeactivateMachine(ctx context.Context, accountID, id string, now int64) (bool, error) {
	res, err := s.pool.Exec(ctx, `
		UPDATE machines SET active=FALSE, updated_at=$3
		WHERE account_id=$1 AND id=$2 AND active
	`, accountID, id, now)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (s *Store) TouchMachineActivity(ctx context.Context, accountID, id string, activeAt, now int64) (bool, error) {
	res, err := s.pool.Exec(ctx, `
		UPDATE machines SET active=TRUE, last_active_at=GREATEST(last_active_at, $3), updated_at=$4
		WHERE account_id=$1 AND id=$2
	`, accountID, id, activeAt, now)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func scanMachine(row pgx.Row) (model.Machine, error) {
	var m model.Machine
	err := row.Scan(&m.AccountID, &m.ID, &m.Metadata, &m.MetadataVersion, &m.DaemonState,
		&m.DaemonStateVersion, &m.DataEncryptionKey, &m.Seq, &m.Active, &m.LastActiveAt,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Machine{}, store.ErrNotFound
		}
		return model.Machine{}, err
	}
	return m, nil
}

func collectMachines(rows pgx.Rows) ([]model.Machine, error) {
	result := make([]model.Machine, 0)
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
