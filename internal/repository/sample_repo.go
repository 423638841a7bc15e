package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// SampleRepository manages the samples table.
type SampleRepository struct {
	db *sql.DB
}

// NewSampleRepository returns repository.
func NewSampleRepository(db *sql.DB) *SampleRepository {
	return &SampleRepository{db: db}
}

// GetOrCreate looks up a sample by name, inserting it when missing, and
// returns its id.
func (r *SampleRepository) GetOrCreate(ctx context.Context, sampleName string) (int64, error) {
	sampleName = strings.TrimSpace(sampleName)
	if sampleName == "" {
		return 0, errors.New("repository: sample name is empty")
	}

	const query = `
		INSERT INTO samples (sample_name, created_at)
		VALUES ($1, NOW())
		ON CONFLICT (sample_name) DO UPDATE SET sample_name = EXCLUDED.sample_name
		RETURNING id
	`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, sampleName).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Names returns the distinct sample names, sorted.
func (r *SampleRepository) Names(ctx context.Context) ([]string, error) {
	const query = `
		SELECT DISTINCT sample_name
		FROM samples
		WHERE TRIM(sample_name) <> ''
		ORDER BY sample_name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
