package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-tms/vantage-tms/internal/shared"
)

// Repository defines persistence operations for the session module.
type Repository interface {
	CreateSession(ctx context.Context, sess Session) error
	// FindValidByToken returns the session only while its expiry is still
	// in the future; expired rows are reported as shared.ErrNotFound.
	FindValidByToken(ctx context.Context, token string) (*Session, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	FindCredentialsByEmail(ctx context.Context, email string) (*Credentials, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateSession persists a new login session.
func (r *PGRepository) CreateSession(ctx context.Context, sess Session) error {
	const query = `
		INSERT INTO sessions (token, principal_id, expires_at, created_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		sess.Token, sess.PrincipalID, sess.ExpiresAt.UTC(), sess.CreatedAt.UTC(), sess.IP, sess.UserAgent)
	if err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

// FindValidByToken fetches the unexpired session for token.
func (r *PGRepository) FindValidByToken(ctx context.Context, token string) (*Session, error) {
	const query = `
		SELECT token, principal_id, expires_at, created_at
		FROM sessions
		WHERE token = $1 AND expires_at > now()
	`
	var sess Session
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&sess.Token, &sess.PrincipalID, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("session: find by token: %w", err)
	}
	return &sess, nil
}

// DeleteByToken removes a session. Deleting an absent token is a no-op.
func (r *PGRepository) DeleteByToken(ctx context.Context, token string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions that expired before the given time and
// reports how many rows went away. Used by the background sweep.
func (r *PGRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("session: delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FindCredentialsByEmail fetches the login credentials for a principal.
func (r *PGRepository) FindCredentialsByEmail(ctx context.Context, email string) (*Credentials, error) {
	const query = `
		SELECT id, password_hash, is_active
		FROM principals
		WHERE email = $1
	`
	var creds Credentials
	err := r.pool.QueryRow(ctx, query, email).Scan(&creds.PrincipalID, &creds.PasswordHash, &creds.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("session: find credentials: %w", err)
	}
	return &creds, nil
}
