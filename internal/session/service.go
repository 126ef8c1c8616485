package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vantage-tms/vantage-tms/internal/cache"
	"github.com/vantage-tms/vantage-tms/internal/shared"
)

// Service validates bearer tokens and owns the login/logout flows.
//
// Resolve is deliberately uncached: a token check is one indexed lookup,
// and caching it would keep access alive after logout. Call sites that
// want fewer round trips cache the downstream permission document under
// a token-derived key instead (see the authz resolver).
type Service struct {
	repo        Repository
	invalidator *cache.Coordinator
	logger      *slog.Logger
	ttl         time.Duration
	now         func() time.Time
}

// NewService constructs a session Service.
func NewService(repo Repository, invalidator *cache.Coordinator, logger *slog.Logger, ttl time.Duration) *Service {
	return &Service{
		repo:        repo,
		invalidator: invalidator,
		logger:      logger,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Resolve maps a bearer token to its principal id. An empty token is
// rejected without touching the store. Unknown and expired tokens are
// indistinguishable to the caller.
func (s *Service) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", shared.ErrUnauthenticated
	}
	sess, err := s.repo.FindValidByToken(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", shared.ErrUnauthenticated
		}
		s.logger.Error("session lookup failed", slog.Any("error", err))
		return "", fmt.Errorf("%w: session store: %v", shared.ErrUnavailable, err)
	}
	return sess.PrincipalID, nil
}

// Login validates email/password credentials and issues a fresh session.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*Session, error) {
	creds, err := s.repo.FindCredentialsByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		s.logger.Error("credential lookup failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: principal store: %v", shared.ErrUnavailable, err)
	}
	if !creds.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}

	now := s.now().UTC()
	sess := Session{
		Token:       s.generateToken(),
		PrincipalID: creds.PrincipalID,
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
		IP:          ip,
		UserAgent:   userAgent,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		s.logger.Error("session create failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: session store: %v", shared.ErrUnavailable, err)
	}
	return &sess, nil
}

// Logout deletes the session and drops any permission document cached
// under the token. The principal-keyed cache entry survives; the document
// itself did not change.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return shared.ErrUnauthenticated
	}
	if err := s.repo.DeleteByToken(ctx, token); err != nil {
		s.logger.Error("session delete failed", slog.Any("error", err))
		return fmt.Errorf("%w: session store: %v", shared.ErrUnavailable, err)
	}
	_ = s.invalidator.InvalidateToken(ctx, token)
	return nil
}

// SweepExpired removes expired session rows. Expiry already makes them
// invisible to Resolve, so this only reclaims storage.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: session store: %v", shared.ErrUnavailable, err)
	}
	return removed, nil
}

// TTL exposes the configured session lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

func (s *Service) generateToken() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
