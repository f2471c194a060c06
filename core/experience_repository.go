package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Experience is a work history entry owned by a portfolio.
type Experience struct {
	ID               int64  `json:"id"`
	Position         string `json:"position"`
	Employer         string `json:"employer"`
	City             string `json:"city"`
	Country          string `json:"country"`
	StartDate        *Date  `json:"startDate"`
	EndDate          *Date  `json:"endDate"`
	Responsibilities string `json:"responsibilities"`
	Ongoing          bool   `json:"ongoing"`
	PortfolioID      int64  `json:"portfolioId"`
}

// ExperienceInput carries create/update fields; nil pointers mean "keep
// current value" on update and "empty" on create.
type ExperienceInput struct {
	Position         *string `json:"position"`
	Employer         *string `json:"employer"`
	City             *string `json:"city"`
	Country          *string `json:"country"`
	StartDate        *Date   `json:"startDate"`
	EndDate          *Date   `json:"endDate"`
	Responsibilities *string `json:"responsibilities"`
	Ongoing          *bool   `json:"ongoing"`
}

// ExperienceRepository defines persistence operations for experiences.
type ExperienceRepository interface {
	Create(ctx context.Context, portfolioID int64, in ExperienceInput) (*Experience, error)
	Get(ctx context.Context, id int64) (*Experience, error)
	ListByPortfolio(ctx context.Context, portfolioID int64) ([]Experience, error)
	ListAll(ctx context.Context) ([]Experience, error)
	Update(ctx context.Context, id int64, in ExperienceInput) (*Experience, error)
	Delete(ctx context.Context, id int64) error
}

// PgExperienceRepository implements ExperienceRepository using pgxpool.
type PgExperienceRepository struct {
	db *pgxpool.Pool
}

func NewPgExperienceRepository(db *pgxpool.Pool) *PgExperienceRepository {
	return &PgExperienceRepository{db: db}
}

const experienceColumns = `id, position_, employer, city, country, start_date, end_date, responsibilities, ongoing, portfolio_id`

func scanExperience(row interface{ Scan(...any) error }) (*Experience, error) {
	var e Experience
	var start, end *time.Time
	if err := row.Scan(&e.ID, &e.Position, &e.Employer, &e.City, &e.Country, &start, &end, &e.Responsibilities, &e.Ongoing, &e.PortfolioID); err != nil {
		return nil, err
	}
	e.StartDate = dateOrNil(start)
	e.EndDate = dateOrNil(end)
	return &e, nil
}

func (r *PgExperienceRepository) Create(ctx context.Context, portfolioID int64, in ExperienceInput) (*Experience, error) {
	// An ongoing position has no end date.
	if in.Ongoing != nil && *in.Ongoing {
		in.EndDate = nil
	}
	const q = `
INSERT INTO experiences (portfolio_id, position_, employer, city, country, start_date, end_date, responsibilities, ongoing)
VALUES ($1, COALESCE($2,''), COALESCE($3,''), COALESCE($4,''), COALESCE($5,''), $6, $7, COALESCE($8,''), COALESCE($9,false))
RETURNING ` + experienceColumns
	row := r.db.QueryRow(ctx, q, portfolioID, in.Position, in.Employer, in.City, in.Country,
		timeOrNil(in.StartDate), timeOrNil(in.EndDate), in.Responsibilities, in.Ongoing)
	return scanExperience(row)
}

func (r *PgExperienceRepository) Get(ctx context.Context, id int64) (*Experience, error) {
	row := r.db.QueryRow(ctx, `SELECT `+experienceColumns+` FROM experiences WHERE id=$1`, id)
	return scanExperience(row)
}

func (r *PgExperienceRepository) ListByPortfolio(ctx context.Context, portfolioID int64) ([]Experience, error) {
	rows, err := r.db.Query(ctx, `SELECT `+experienceColumns+` FROM experiences WHERE portfolio_id=$1 ORDER BY id`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Experience
	for rows.Next() {
		e, err := scanExperience(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *e)
	}
	return items, rows.Err()
}

func (r *PgExperienceRepository) ListAll(ctx context.Context) ([]Experience, error) {
	rows, err := r.db.Query(ctx, `SELECT `+experienceColumns+` FROM experiences ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Experience
	for rows.Next() {
		e, err := scanExperience(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *e)
	}
	return items, rows.Err()
}

// Update applies a partial update; nil fields keep their current value.
// Setting ongoing clears the end date in the same statement.
func (r *PgExperienceRepository) Update(ctx context.Context, id int64, in ExperienceInput) (*Experience, error) {
	if in.Ongoing != nil && *in.Ongoing {
		in.EndDate = nil
	}
	const q = `
UPDATE experiences SET
  position_        = COALESCE($2, position_),
  employer         = COALESCE($3, employer),
  city             = COALESCE($4, city),
  country          = COALESCE($5, country),
  start_date       = COALESCE($6, start_date),
  end_date         = CASE WHEN COALESCE($9, ongoing) THEN NULL ELSE COALESCE($7, end_date) END,
  responsibilities = COALESCE($8, responsibilities),
  ongoing          = COALESCE($9, ongoing)
WHERE id=$1
RETURNING ` + experienceColumns
	row := r.db.QueryRow(ctx, q, id, in.Position, in.Employer, in.City, in.Country,
		timeOrNil(in.StartDate), timeOrNil(in.EndDate), in.Responsibilities, in.Ongoing)
	return scanExperience(row)
}

func (r *PgExperienceRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM experiences WHERE id=$1`, id)
	return err
}
