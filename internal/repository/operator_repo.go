package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"lcrbench/internal/models"
)

// ErrOperatorNotFound represents missing operator rows.
var ErrOperatorNotFound = errors.New("operator not found")

// OperatorRepository handles CRUD for the operators table.
type OperatorRepository struct {
	db *sql.DB
}

// NewOperatorRepository returns repository instance.
func NewOperatorRepository(db *sql.DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

// Create inserts a new operator.
func (r *OperatorRepository) Create(ctx context.Context, operator *models.Operator) error {
	operator.Username = strings.ToLower(strings.TrimSpace(operator.Username))
	const query = `
		INSERT INTO operators (username, password_hash, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query, operator.Username, operator.PasswordHash).
		Scan(&operator.ID, &operator.CreatedAt)
}

// GetByUsername fetches an operator by username.
func (r *OperatorRepository) GetByUsername(ctx context.Context, username string) (*models.Operator, error) {
	const query = `
		SELECT id, username, password_hash, created_at
		FROM operators
		WHERE username = $1
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(username)))
	var operator models.Operator
	if err := row.Scan(&operator.ID, &operator.Username, &operator.PasswordHash, &operator.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOperatorNotFound
		}
		return nil, err
	}
	return &operator, nil
}
