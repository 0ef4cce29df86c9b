package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/hpetrik/styletransfer-be/internal/api/domain"
	"github.com/hpetrik/styletransfer-be/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// Storage is the durable result store: the external collaborator the
// client fallback chain hands completed results to.
type Storage struct {
	db *sqlx.DB
}

type resultRow struct {
	ResultID  string    `db:"result_id"`
	JobID     string    `db:"job_id"`
	ImageURL  string    `db:"image_url"`
	Seed      int64     `db:"seed"`
	Strength  float64   `db:"strength"`
	CfgScale  float64   `db:"cfg_scale"`
	Steps     int       `db:"steps"`
	Sampler   string    `db:"sampler"`
	Degraded  bool      `db:"degraded"`
	CreatedAt time.Time `db:"created_at"`
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// Migrate creates the results table when it does not exist yet.
func (s *Storage) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS results (
			result_id  TEXT PRIMARY KEY,
			job_id     TEXT NOT NULL,
			image_url  TEXT NOT NULL,
			seed       BIGINT NOT NULL,
			strength   DOUBLE PRECISION NOT NULL,
			cfg_scale  DOUBLE PRECISION NOT NULL,
			steps      INTEGER NOT NULL,
			sampler    TEXT NOT NULL,
			degraded   BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate results table: %w", err)
	}

	return nil
}

// SaveResults persists the result list of one completed job.
func (s *Storage) SaveResults(ctx context.Context, jobID string, results []domain.Result) error {
	query := `
		INSERT INTO results (
			result_id, job_id, image_url, seed,
			strength, cfg_scale, steps, sampler,
			degraded, created_at
		) VALUES (
			:result_id, :job_id, :image_url, :seed,
			:strength, :cfg_scale, :steps, :sampler,
			:degraded, :created_at
		)
		ON CONFLICT (result_id) DO NOTHING
	`

	for _, r := range results {
		row := resultRow{
			ResultID:  r.ID,
			JobID:     jobID,
			ImageURL:  r.ImageURL,
			Seed:      r.Seed,
			Strength:  r.Parameters.Strength,
			CfgScale:  r.Parameters.CfgScale,
			Steps:     r.Parameters.Steps,
			Sampler:   r.Parameters.Sampler,
			Degraded:  r.Degraded,
			CreatedAt: r.CreatedAt,
		}

		if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("failed to save result %s: %w", r.ID, err)
		}
	}

	return nil
}

// ResultFilter narrows ListResults.
type ResultFilter struct {
	JobID string
	Limit int
}

// ListResults returns persisted results, most recent first.
func (s *Storage) ListResults(ctx context.Context, filter ResultFilter) ([]domain.Result, error) {
	query := `
		SELECT
			result_id, job_id, image_url, seed,
			strength, cfg_scale, steps, sampler,
			degraded, created_at
		FROM results
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.JobID != "" {
		query += fmt.Sprintf(" AND job_id = $%d", argIdx)
		args = append(args, filter.JobID)
		argIdx++
	}

	query += " ORDER BY created_at DESC, result_id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	var rows []resultRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	results := make([]domain.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, domain.Result{
			ID:       row.ResultID,
			ImageURL: row.ImageURL,
			Seed:     row.Seed,
			Parameters: domain.Parameters{
				Strength: row.Strength,
				CfgScale: row.CfgScale,
				Steps:    row.Steps,
				Sampler:  row.Sampler,
			},
			CreatedAt: row.CreatedAt,
			Degraded:  row.Degraded,
		})
	}

	return results, nil
}
