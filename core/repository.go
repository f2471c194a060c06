package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRecord represents the credential row stored in persistence layer.
type UserRecord struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserListItem is a projection for user listing (no password hash).
type UserListItem struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
	FindByID(ctx context.Context, id int64) (*UserRecord, error)
	Create(ctx context.Context, email, passwordHash string) (*UserRecord, error)
	Update(ctx context.Context, id int64, email, passwordHash *string) (*UserRecord, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, page, perPage int) ([]UserListItem, int, error)
	HasAny(ctx context.Context) (bool, error)
}

// PgUserRepository implements UserRepository using pgxpool.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

// FindByEmail compares emails exactly as stored (case-sensitive).
func (r *PgUserRepository) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	const q = `SELECT id, email, password_hash, created_at FROM users WHERE email=$1`
	var u UserRecord
	if err := r.db.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) FindByID(ctx context.Context, id int64) (*UserRecord, error) {
	const q = `SELECT id, email, password_hash, created_at FROM users WHERE id=$1`
	var u UserRecord
	if err := r.db.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user. The unique index on email decides the winner
// when two registrations race; the loser surfaces the constraint error.
func (r *PgUserRepository) Create(ctx context.Context, email, passwordHash string) (*UserRecord, error) {
	const q = `INSERT INTO users (email, password_hash) VALUES ($1,$2) RETURNING id, created_at`
	u := UserRecord{Email: email, PasswordHash: passwordHash}
	if err := r.db.QueryRow(ctx, q, email, passwordHash).Scan(&u.ID, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Update applies a partial update; nil fields keep their current value.
func (r *PgUserRepository) Update(ctx context.Context, id int64, email, passwordHash *string) (*UserRecord, error) {
	const q = `
UPDATE users
SET email = COALESCE($2, email), password_hash = COALESCE($3, password_hash)
WHERE id=$1
RETURNING id, email, password_hash, created_at`
	var u UserRecord
	if err := r.db.QueryRow(ctx, q, id, email, passwordHash).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM users WHERE id=$1`
	_, err := r.db.Exec(ctx, q, id)
	return err
}

// List returns paginated users without password hash.
func (r *PgUserRepository) List(ctx context.Context, page, perPage int) ([]UserListItem, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	const countQ = `SELECT COUNT(*) FROM users`
	var total int
	if err := r.db.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, email, created_at FROM users ORDER BY id LIMIT $1 OFFSET $2`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]UserListItem, 0, perPage)
	for rows.Next() {
		var u UserListItem
		if err := rows.Scan(&u.ID, &u.Email, &u.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}

func (r *PgUserRepository) HasAny(ctx context.Context) (bool, error) {
	const q = `SELECT 1 FROM users LIMIT 1`
	var one int
	if err := r.db.QueryRow(ctx, q).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// isUniqueViolation detects unique-constraint errors across drivers without
// depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}

// isNoRows reports whether the repository found nothing for the lookup.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
