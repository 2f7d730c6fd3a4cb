package postgres

import (
	"context"

	"github.com/google/uuid"

	"syncplane/internal/model"
)

func (s *Store) GetOrCreateAccount(ctx context.Context, publicKey string, now int64) (model.Account, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, public_key, created_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (public_key) DO NOTHING
	`, uuid.NewString(), publicKey, now)
	if err != nil {
		return model.Account{}, err
	}

	var acc model.Account
	row := s.pool.QueryRow(ctx, `
		SELECT id, public_key, created_at FROM accounts WHERE public_key=$1
	`, publicKey)
	if err := row.Scan(&acc.ID, &acc.PublicKey, &acc.CreatedAt); err != nil {
		return model.Account{}, err
	}
	return acc, nil
}

// AllocateSeq atomically advances and returns the per-account counter. The
// single upsert statement is the serializing primitive, so allocation is safe
// across processes.
func (s *Store) AllocateSeq(ctx context.Context, accountID string) (int64, error) {
	var seq int64
	row := s.pool.QueryRow(ctx, `
		INSERT INTO account_seq (account_id, seq) VALUES ($1, 1)
		ON CONFLICT (account_id) DO UPDATE SET seq = account_seq.seq + 1
		RETURNING seq
	`, accountID)
	if err := row.Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}
