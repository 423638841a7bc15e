package repository

import (
	"context"
	"database/sql"
	"fmt"

	"lcrbench/internal/models"
)

// MeasurementRepository persists Ls-Rs results.
type MeasurementRepository struct {
	db *sql.DB
}

// NewMeasurementRepository returns repository.
func NewMeasurementRepository(db *sql.DB) *MeasurementRepository {
	return &MeasurementRepository{db: db}
}

// Insert stores one measurement row.
func (r *MeasurementRepository) Insert(ctx context.Context, m *models.Measurement) error {
	const query = `
		INSERT INTO measurements (created_at, sample_id, test_type, inductance, resistance, tester, app_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		m.CreatedAt,
		m.SampleID,
		m.TestType,
		m.Inductance,
		m.Resistance,
		m.Tester,
		m.AppVersion,
	).Scan(&m.ID)
}

// Recent returns measurements joined with sample names, newest first.
// days <= 0 disables the date filter.
func (r *MeasurementRepository) Recent(ctx context.Context, days, limit int) ([]models.RecentResult, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT m.id, m.created_at, s.sample_name, m.test_type, m.inductance, m.resistance, m.tester, m.app_version
		FROM measurements m
		JOIN samples s ON s.id = m.sample_id
	`
	args := []interface{}{}
	if days > 0 {
		query += ` WHERE m.created_at >= NOW() - ($1 * INTERVAL '1 day')`
		args = append(args, days)
	}
	query += fmt.Sprintf(` ORDER BY m.created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.RecentResult
	for rows.Next() {
		var res models.RecentResult
		if err := rows.Scan(
			&res.ID,
			&res.CreatedAt,
			&res.SampleName,
			&res.TestType,
			&res.Inductance,
			&res.Resistance,
			&res.Tester,
			&res.AppVersion,
		); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
