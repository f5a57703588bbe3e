// Package auth handles username and password authentication.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownUser is returned when no account matches the username.
var ErrUnknownUser = errors.New("unknown user")

// Repository reads stored credentials.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new auth Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetCredentials returns the id and bcrypt hash stored for username.
func (r *Repository) GetCredentials(ctx context.Context, username string) (int64, string, error) {
	var (
		id   int64
		hash string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, password_hash FROM users WHERE username = $1`,
		username,
	).Scan(&id, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", ErrUnknownUser
	}
	if err != nil {
		return 0, "", fmt.Errorf("get credentials: %w", err)
	}
	return id, hash, nil
}
