package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examflow/internal/model"
)

var (
	ErrDuplicateUsername = errors.New("user with this username already exists")
	ErrDuplicateEmail    = errors.New("user with this email already exists")
)

const userColumns = `id, username, password_hash, role, full_name, email, date_of_birth, created_at`

// UserRepository handles account data access.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	var dob *time.Time
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.FullName, &u.Email, &dob, &u.CreatedAt); err != nil {
		return nil, err
	}
	if dob != nil {
		u.DateOfBirth = dob.Format(model.DateLayout)
	}
	return u, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByUsername retrieves a user by their unique username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// GetByEmail retrieves a user by their (lowercased) email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// Create inserts a user and fills in its ID and creation time.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, role, full_name, email)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		u.Username, u.PasswordHash, u.Role, u.FullName, u.Email,
	).Scan(&u.ID, &u.CreatedAt)
	return uniqueViolation(err)
}

// UpdateProfile overwrites the editable profile fields and returns the
// stored account.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, fullName string, email *string, dob *time.Time) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET full_name = $2, email = $3, date_of_birth = $4
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, fullName, email, dob,
	))
	if err != nil {
		return nil, uniqueViolation(err)
	}
	return u, nil
}

// UpdatePassword stores a new password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// uniqueViolation maps the users unique constraints to their sentinel errors.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == "users_email_key" {
			return ErrDuplicateEmail
		}
		return ErrDuplicateUsername
	}
	return err
}
