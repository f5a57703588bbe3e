// Package user manages user accounts and their persistence.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User represents a registered member. PhotoURL is the URL of the main photo.
type User struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	KnownAs    *string   `json:"knownAs,omitempty"`
	PhotoURL   *string   `json:"photoUrl,omitempty"`
	CreatedAt  time.Time `json:"created"`
	LastActive time.Time `json:"lastActive"`
}

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// ErrAlreadyExists is returned when a username is already registered.
var ErrAlreadyExists = errors.New("user already exists")

const selectUser = `SELECT u.id, u.username, u.known_as, p.url, u.created_at, u.last_active
	FROM users u
	LEFT JOIN photos p ON p.user_id = u.id AND p.is_main`

// Repository handles all user database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user and returns the created record.
func (r *Repository) Create(ctx context.Context, username, passwordHash string) (*User, error) {
	u := &User{Username: username}
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (username, password_hash)
		 VALUES ($1, $2)
		 RETURNING id, known_as, created_at, last_active`,
		username, passwordHash,
	).Scan(&u.ID, &u.KnownAs, &u.CreatedAt, &u.LastActive)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetByID fetches a user by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, selectUser+` WHERE u.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetByUsername fetches a user by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, selectUser+` WHERE u.username = $1`, username))
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// List returns users ordered by most recently active.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]*User, error) {
	rows, err := r.db.Query(ctx,
		selectUser+` ORDER BY u.last_active DESC, u.id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Touch records that the user was active now.
func (r *Repository) Touch(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_active = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Username, &u.KnownAs, &u.PhotoURL, &u.CreatedAt, &u.LastActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
