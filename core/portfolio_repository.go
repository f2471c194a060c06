package core

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PortfolioRecord is the bare portfolio row; nested experience/education
// collections are assembled by the handler from their own repositories.
type PortfolioRecord struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"userId"`
}

// PortfolioRepository defines persistence operations for portfolios.
type PortfolioRepository interface {
	Create(ctx context.Context, userID int64) (*PortfolioRecord, error)
	Get(ctx context.Context, id int64) (*PortfolioRecord, error)
	ListByUser(ctx context.Context, userID int64) ([]PortfolioRecord, error)
	List(ctx context.Context, page, perPage int) ([]PortfolioRecord, int, error)
	UpdateOwner(ctx context.Context, id, userID int64) (*PortfolioRecord, error)
	Delete(ctx context.Context, id int64) error
}

// PgPortfolioRepository implements PortfolioRepository using pgxpool.
type PgPortfolioRepository struct {
	db *pgxpool.Pool
}

func NewPgPortfolioRepository(db *pgxpool.Pool) *PgPortfolioRepository {
	return &PgPortfolioRepository{db: db}
}

func (r *PgPortfolioRepository) Create(ctx context.Context, userID int64) (*PortfolioRecord, error) {
	const q = `INSERT INTO portfolios (user_id) VALUES ($1) RETURNING id`
	p := PortfolioRecord{UserID: userID}
	if err := r.db.QueryRow(ctx, q, userID).Scan(&p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PgPortfolioRepository) Get(ctx context.Context, id int64) (*PortfolioRecord, error) {
	const q = `SELECT id, user_id FROM portfolios WHERE id=$1`
	var p PortfolioRecord
	if err := r.db.QueryRow(ctx, q, id).Scan(&p.ID, &p.UserID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PgPortfolioRepository) ListByUser(ctx context.Context, userID int64) ([]PortfolioRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id FROM portfolios WHERE user_id=$1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PortfolioRecord
	for rows.Next() {
		var p PortfolioRecord
		if err := rows.Scan(&p.ID, &p.UserID); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *PgPortfolioRepository) List(ctx context.Context, page, perPage int) ([]PortfolioRecord, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM portfolios`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, user_id FROM portfolios ORDER BY id LIMIT $1 OFFSET $2`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]PortfolioRecord, 0, perPage)
	for rows.Next() {
		var p PortfolioRecord
		if err := rows.Scan(&p.ID, &p.UserID); err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *PgPortfolioRepository) UpdateOwner(ctx context.Context, id, userID int64) (*PortfolioRecord, error) {
	const q = `UPDATE portfolios SET user_id=$2 WHERE id=$1 RETURNING id, user_id`
	var p PortfolioRecord
	if err := r.db.QueryRow(ctx, q, id, userID).Scan(&p.ID, &p.UserID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PgPortfolioRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM portfolios WHERE id=$1`, id)
	return err
}
