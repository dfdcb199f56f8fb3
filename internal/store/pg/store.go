package pg

import (
	"context"
	"errors"
	"time"

	"github.com/baluarte/authgate/internal/store/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implementa core.UserRepository sobre Postgres (pgxpool).
type Store struct{ pool *pgxpool.Pool }

// Tuning opcional del pool.
type Tuning struct {
	MaxOpenConns    int
	MinIdleConns    int
	ConnMaxLifetime string
}

func New(ctx context.Context, dsn string, t Tuning) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	if t.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(t.MaxOpenConns)
	}
	if t.MinIdleConns > 0 {
		pcfg.MinConns = int32(t.MinIdleConns)
	}
	if t.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(t.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
			pcfg.MaxConnIdleTime = d
		}
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 5
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Pool expone el pool interno (metrics/migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*core.User, error) {
	const q = `SELECT id, username, password_hash, COALESCE(duo_user_id, ''), created_at
	             FROM app_user WHERE LOWER(username) = LOWER($1) LIMIT 1`
	var u core.User
	err := s.pool.QueryRow(ctx, q, username).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.DuoUserID, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) Create(ctx context.Context, u *core.User) (*core.User, error) {
	id := u.ID
	if id == "" {
		id = uuid.NewString()
	}
	const q = `INSERT INTO app_user (id, username, password_hash, duo_user_id)
	           VALUES ($1, $2, $3, NULLIF($4, ''))
	           RETURNING id, username, password_hash, COALESCE(duo_user_id, ''), created_at`
	var out core.User
	err := s.pool.QueryRow(ctx, q, id, u.Username, u.PasswordHash, u.DuoUserID).Scan(
		&out.ID, &out.Username, &out.PasswordHash, &out.DuoUserID, &out.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, core.ErrConflict
		}
		return nil, err
	}
	return &out, nil
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	const q = `DELETE FROM app_user WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateDuoUserID(ctx context.Context, userID, duoUserID string) error {
	const q = `UPDATE app_user SET duo_user_id = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, userID, duoUserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
