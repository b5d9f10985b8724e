package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examflow/internal/model"
)

// PasswordResetRepository stores pending reset codes, one per account.
type PasswordResetRepository struct {
	pool *pgxpool.Pool
}

// NewPasswordResetRepository creates a new PasswordResetRepository.
func NewPasswordResetRepository(pool *pgxpool.Pool) *PasswordResetRepository {
	return &PasswordResetRepository{pool: pool}
}

// Get returns the pending reset of a user, or pgx.ErrNoRows.
func (r *PasswordResetRepository) Get(ctx context.Context, userID int64) (*model.PasswordReset, error) {
	pr := &model.PasswordReset{}
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, code_hash, attempts, nonce, sent_at, expires_at
		 FROM password_resets WHERE user_id = $1`, userID,
	).Scan(&pr.UserID, &pr.CodeHash, &pr.Attempts, &pr.Nonce, &pr.SentAt, &pr.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return pr, nil
}

// Save inserts or replaces the pending reset of pr.UserID.
func (r *PasswordResetRepository) Save(ctx context.Context, pr *model.PasswordReset) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO password_resets (user_id, code_hash, attempts, nonce, sent_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE
		 SET code_hash = EXCLUDED.code_hash, attempts = EXCLUDED.attempts, nonce = EXCLUDED.nonce,
		     sent_at = EXCLUDED.sent_at, expires_at = EXCLUDED.expires_at`,
		pr.UserID, pr.CodeHash, pr.Attempts, pr.Nonce, pr.SentAt, pr.ExpiresAt,
	)
	return err
}

// Delete drops the pending reset of a user. Missing rows are not an error.
func (r *PasswordResetRepository) Delete(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM password_resets WHERE user_id = $1`, userID)
	return err
}
