package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps records in the portal_sessions table.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresStore builds a store over pool.
func NewPostgresStore(pool *pgxpool.Pool, ttl time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, ttl: ttl}
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (Record, error) {
	const q = `
UPDATE portal_sessions
SET expires_at = now() + make_interval(secs => $2), updated_at = now()
WHERE session_id = $1 AND expires_at > now()
RETURNING worker_token, worker_profile`

	var (
		rec     Record
		profile []byte
	)
	err := s.pool.QueryRow(ctx, q, sessionID, s.ttl.Seconds()).Scan(&rec.Token, &profile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("load session: %w", err)
	}
	if err := json.Unmarshal(profile, &rec.Profile); err != nil {
		return Record{}, fmt.Errorf("decode session profile: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Save(ctx context.Context, sessionID string, rec Record) error {
	const q = `
INSERT INTO portal_sessions (session_id, worker_token, worker_profile, expires_at, updated_at)
VALUES ($1, $2, $3, now() + make_interval(secs => $4), now())
ON CONFLICT (session_id) DO UPDATE
SET worker_token = EXCLUDED.worker_token,
    worker_profile = EXCLUDED.worker_profile,
    expires_at = EXCLUDED.expires_at,
    updated_at = now()`

	profile, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("encode session profile: %w", err)
	}
	if _, err := s.pool.Exec(ctx, q, sessionID, rec.Token, profile, s.ttl.Seconds()); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM portal_sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PurgeExpired removes records past their expiry and reports how many.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM portal_sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
