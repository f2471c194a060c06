package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Education is a qualification entry owned by a portfolio.
type Education struct {
	ID                   int64  `json:"id"`
	TitleOfQualification string `json:"titleOfQualification"`
	Training             string `json:"training"`
	City                 string `json:"city"`
	Country              string `json:"country"`
	StartDate            *Date  `json:"startDate"`
	EndDate              *Date  `json:"endDate"`
	Ongoing              bool   `json:"ongoing"`
	PortfolioID          int64  `json:"portfolioId"`
}

// EducationInput carries create/update fields; nil pointers mean "keep
// current value" on update and "empty" on create.
type EducationInput struct {
	TitleOfQualification *string `json:"titleOfQualification"`
	Training             *string `json:"training"`
	City                 *string `json:"city"`
	Country              *string `json:"country"`
	StartDate            *Date   `json:"startDate"`
	EndDate              *Date   `json:"endDate"`
	Ongoing              *bool   `json:"ongoing"`
}

// EducationRepository defines persistence operations for educations.
type EducationRepository interface {
	Create(ctx context.Context, portfolioID int64, in EducationInput) (*Education, error)
	Get(ctx context.Context, id int64) (*Education, error)
	ListByPortfolio(ctx context.Context, portfolioID int64) ([]Education, error)
	ListAll(ctx context.Context) ([]Education, error)
	Update(ctx context.Context, id int64, in EducationInput) (*Education, error)
	Delete(ctx context.Context, id int64) error
}

// PgEducationRepository implements EducationRepository using pgxpool.
type PgEducationRepository struct {
	db *pgxpool.Pool
}

func NewPgEducationRepository(db *pgxpool.Pool) *PgEducationRepository {
	return &PgEducationRepository{db: db}
}

const educationColumns = `id, title_of_qualification, training, city, country, start_date, end_date, ongoing, portfolio_id`

func scanEducation(row interface{ Scan(...any) error }) (*Education, error) {
	var e Education
	var start, end *time.Time
	if err := row.Scan(&e.ID, &e.TitleOfQualification, &e.Training, &e.City, &e.Country, &start, &end, &e.Ongoing, &e.PortfolioID); err != nil {
		return nil, err
	}
	e.StartDate = dateOrNil(start)
	e.EndDate = dateOrNil(end)
	return &e, nil
}

func (r *PgEducationRepository) Create(ctx context.Context, portfolioID int64, in EducationInput) (*Education, error) {
	// An ongoing qualification has no end date.
	if in.Ongoing != nil && *in.Ongoing {
		in.EndDate = nil
	}
	const q = `
INSERT INTO educations (portfolio_id, title_of_qualification, training, city, country, start_date, end_date, ongoing)
VALUES ($1, COALESCE($2,''), COALESCE($3,''), COALESCE($4,''), COALESCE($5,''), $6, $7, COALESCE($8,false))
RETURNING ` + educationColumns
	row := r.db.QueryRow(ctx, q, portfolioID, in.TitleOfQualification, in.Training, in.City, in.Country,
		timeOrNil(in.StartDate), timeOrNil(in.EndDate), in.Ongoing)
	return scanEducation(row)
}

func (r *PgEducationRepository) Get(ctx context.Context, id int64) (*Education, error) {
	row := r.db.QueryRow(ctx, `SELECT `+educationColumns+` FROM educations WHERE id=$1`, id)
	return scanEducation(row)
}

func (r *PgEducationRepository) ListByPortfolio(ctx context.Context, portfolioID int64) ([]Education, error) {
	rows, err := r.db.Query(ctx, `SELECT `+educationColumns+` FROM educations WHERE portfolio_id=$1 ORDER BY id`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Education
	for rows.Next() {
		e, err := scanEducation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *e)
	}
	return items, rows.Err()
}

func (r *PgEducationRepository) ListAll(ctx context.Context) ([]Education, error) {
	rows, err := r.db.Query(ctx, `SELECT `+educationColumns+` FROM educations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Education
	for rows.Next() {
		e, err := scanEducation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *e)
	}
	return items, rows.Err()
}

// Update applies a partial update; nil fields keep their current value.
func (r *PgEducationRepository) Update(ctx context.Context, id int64, in EducationInput) (*Education, error) {
	if in.Ongoing != nil && *in.Ongoing {
		in.EndDate = nil
	}
	const q = `
UPDATE educations SET
  title_of_qualification = COALESCE($2, title_of_qualification),
  training               = COALESCE($3, training),
  city                   = COALESCE($4, city),
  country                = COALESCE($5, country),
  start_date             = COALESCE($6, start_date),
  end_date               = CASE WHEN COALESCE($8, ongoing) THEN NULL ELSE COALESCE($7, end_date) END,
  ongoing                = COALESCE($8, ongoing)
WHERE id=$1
RETURNING ` + educationColumns
	row := r.db.QueryRow(ctx, q, id, in.TitleOfQualification, in.Training, in.City, in.Country,
		timeOrNil(in.StartDate), timeOrNil(in.EndDate), in.Ongoing)
	return scanEducation(row)
}

func (r *PgEducationRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM educations WHERE id=$1`, id)
	return err
}
