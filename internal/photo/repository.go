package photo

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const photoColumns = `id, user_id, url, public_id, description, is_main, date_added`

// PostgresRepository stores photos in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewRepository creates a PostgresRepository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// UserExists returns true if a user with the given id exists.
func (r *PostgresRepository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

// GetPhoto fetches a photo by id.
func (r *PostgresRepository) GetPhoto(ctx context.Context, photoID int64) (*Photo, error) {
	p, err := scanPhoto(r.db.QueryRow(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = $1`, photoID))
	if err != nil {
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return p, nil
}

// ListByUser returns the photos of a user, oldest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]*Photo, error) {
	return listByUser(ctx, r.db, userID)
}

// Begin starts a transaction-backed session.
func (r *PostgresRepository) Begin(ctx context.Context) (Session, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return newSession(tx), nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func listByUser(ctx context.Context, q querier, userID int64) ([]*Photo, error) {
	rows, err := q.Query(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE user_id = $1 ORDER BY date_added, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var result []*Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	return result, nil
}

func scanPhoto(row pgx.Row) (*Photo, error) {
	p := &Photo{}
	err := row.Scan(&p.ID, &p.UserID, &p.URL, &p.PublicID, &p.Description, &p.IsMain, &p.DateAdded)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan photo: %w", err)
	}
	p.DateAdded = p.DateAdded.UTC()
	return p, nil
}

// session tracks every photo it hands out and diffs them on Commit.
type session struct {
	tx      pgx.Tx
	tracked map[int64]*trackedPhoto
	added   []*Photo
	removed map[int64]*Photo
}

type trackedPhoto struct {
	photo   *Photo
	wasMain bool
}

func newSession(tx pgx.Tx) *session {
	return &session{
		tx:      tx,
		tracked: make(map[int64]*trackedPhoto),
		removed: make(map[int64]*Photo),
	}
}

// LoadUser locks the user row for the rest of the transaction.
func (s *session) LoadUser(ctx context.Context, userID int64) (*User, error) {
	u := &User{}
	err := s.tx.QueryRow(ctx,
		`SELECT id, username FROM users WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&u.ID, &u.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}

	photos, err := listByUser(ctx, s.tx, userID)
	if err != nil {
		return nil, err
	}
	for _, p := range photos {
		u.Photos = append(u.Photos, s.track(p))
	}
	return u, nil
}

func (s *session) LoadPhoto(ctx context.Context, photoID int64) (*Photo, error) {
	if t, ok := s.tracked[photoID]; ok {
		return t.photo, nil
	}
	p, err := scanPhoto(s.tx.QueryRow(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = $1`, photoID))
	if err != nil {
		return nil, err
	}
	return s.track(p), nil
}

func (s *session) track(p *Photo) *Photo {
	if t, ok := s.tracked[p.ID]; ok {
		return t.photo
	}
	s.tracked[p.ID] = &trackedPhoto{photo: p, wasMain: p.IsMain}
	return p
}

func (s *session) Add(p *Photo) { s.added = append(s.added, p) }

func (s *session) Remove(p *Photo) { s.removed[p.ID] = p }

func (s *session) Commit(ctx context.Context) error {
	c := s.changes()

	for _, id := range c.deletes {
		if _, err := s.tx.Exec(ctx, `DELETE FROM photos WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete photo %d: %w", id, err)
		}
	}
	// Demotions run before promotions so the one-main-per-user index holds
	// after every statement.
	for _, id := range c.demotes {
		if _, err := s.tx.Exec(ctx, `UPDATE photos SET is_main = FALSE WHERE id = $1`, id); err != nil {
			return fmt.Errorf("demote photo %d: %w", id, err)
		}
	}
	for _, id := range c.promotes {
		if _, err := s.tx.Exec(ctx, `UPDATE photos SET is_main = TRUE WHERE id = $1`, id); err != nil {
			return fmt.Errorf("promote photo %d: %w", id, err)
		}
	}
	for _, p := range c.inserts {
		err := s.tx.QueryRow(ctx,
			`INSERT INTO photos (user_id, url, public_id, description, is_main, date_added)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, date_added`,
			p.UserID, p.URL, p.PublicID, p.Description, p.IsMain, p.DateAdded,
		).Scan(&p.ID, &p.DateAdded)
		if err != nil {
			return fmt.Errorf("insert photo: %w", err)
		}
		p.DateAdded = p.DateAdded.UTC()
	}

	if err := s.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *session) Rollback(ctx context.Context) error {
	err := s.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// changeSet is the ordered list of statements a Commit will run.
type changeSet struct {
	deletes  []int64
	demotes  []int64
	promotes []int64
	inserts  []*Photo
}

func (s *session) changes() changeSet {
	var c changeSet
	for id := range s.removed {
		c.deletes = append(c.deletes, id)
	}
	for id, t := range s.tracked {
		if _, gone := s.removed[id]; gone {
			continue
		}
		switch {
		case t.wasMain && !t.photo.IsMain:
			c.demotes = append(c.demotes, id)
		case !t.wasMain && t.photo.IsMain:
			c.promotes = append(c.promotes, id)
		}
	}
	c.inserts = append(c.inserts, s.added...)
	slices.Sort(c.deletes)
	slices.Sort(c.demotes)
	slices.Sort(c.promotes)
	return c
}
