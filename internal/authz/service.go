package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vantage-tms/vantage-tms/internal/cache"
	"github.com/vantage-tms/vantage-tms/internal/shared"
)

// TokenResolver maps a bearer token to a principal id. Implemented by the
// session service.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// Resolver loads, merges and caches effective permission documents.
//
// Documents are cached under token-derived keys (the hot path: one cache
// hit replaces a session lookup plus a principal lookup) and under
// principal-derived keys for callers that address by id. The TTL bounds
// how long a revoked permission can linger, and every explicit change
// goes through the invalidation coordinator so a revocation never has to
// wait out the TTL.
type Resolver struct {
	repo        Repository
	sessions    TokenResolver
	store       cache.Store
	invalidator *cache.Coordinator
	logger      *slog.Logger
	observer    CacheObserver
	ttl         time.Duration
	group       singleflight.Group
}

// CacheObserver counts cache lookup outcomes. Implemented by
// observability.Metrics.
type CacheObserver interface {
	ObserveCache(family, outcome string)
}

// SetCacheObserver attaches a hit/miss counter to the resolver's cached
// paths. Safe to leave unset.
func (r *Resolver) SetCacheObserver(observer CacheObserver) {
	r.observer = observer
}

func (r *Resolver) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveCache("authz", outcome)
	}
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository, sessions TokenResolver, store cache.Store, invalidator *cache.Coordinator, logger *slog.Logger, ttl time.Duration) *Resolver {
	return &Resolver{
		repo:        repo,
		sessions:    sessions,
		store:       store,
		invalidator: invalidator,
		logger:      logger,
		ttl:         ttl,
	}
}

// LoadByToken resolves the session token and returns the effective
// permission snapshot for its principal, served from cache when possible.
func (r *Resolver) LoadByToken(ctx context.Context, token string) (*Effective, error) {
	if token == "" {
		return nil, shared.ErrUnauthenticated
	}
	if eff, ok := r.cached(ctx, cache.TokenKey(token)); ok {
		return eff, nil
	}

	result, err, _ := r.group.Do("token:"+token, func() (any, error) {
		principalID, err := r.sessions.Resolve(ctx, token)
		if err != nil {
			return nil, err
		}
		eff, err := r.loadEffective(ctx, principalID)
		if err != nil {
			return nil, err
		}
		r.fill(ctx, cache.TokenKey(token), eff)
		r.invalidator.TrackToken(principalID, token)
		return eff, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Effective), nil
}

// LoadByPrincipal returns the effective snapshot for a principal id,
// served from cache when possible.
func (r *Resolver) LoadByPrincipal(ctx context.Context, principalID string) (*Effective, error) {
	if principalID == "" {
		return nil, shared.ErrUnauthenticated
	}
	if eff, ok := r.cached(ctx, cache.PrincipalKey(principalID)); ok {
		return eff, nil
	}

	result, err, _ := r.group.Do("principal:"+principalID, func() (any, error) {
		eff, err := r.loadEffective(ctx, principalID)
		if err != nil {
			return nil, err
		}
		r.fill(ctx, cache.PrincipalKey(principalID), eff)
		return eff, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Effective), nil
}

// EffectiveFromContext loads the snapshot for the request's authenticated
// principal, preferring the token-keyed cache path.
func (r *Resolver) EffectiveFromContext(ctx context.Context) (*Effective, error) {
	if token := shared.TokenFromContext(ctx); token != "" {
		return r.LoadByToken(ctx, token)
	}
	if principalID := shared.PrincipalFromContext(ctx); principalID != "" {
		return r.LoadByPrincipal(ctx, principalID)
	}
	return nil, shared.ErrUnauthenticated
}

// UpdatePermission sets one leaf of the target's override document. Only
// administrators may call it; the admin check reads the store directly
// rather than the cache so a freshly demoted actor cannot ride a cached
// snapshot.
func (r *Resolver) UpdatePermission(ctx context.Context, actorID, targetID, section, key string, value bool) error {
	actor, err := r.repo.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrForbidden
		}
		r.logger.Error("actor lookup failed", slog.Any("error", err))
		return fmt.Errorf("%w: principal store: %v", shared.ErrUnavailable, err)
	}
	if !actor.Admin() {
		return shared.ErrForbidden
	}

	target, err := r.repo.FindByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrNotFound
		}
		r.logger.Error("target lookup failed", slog.Any("error", err))
		return fmt.Errorf("%w: principal store: %v", shared.ErrUnavailable, err)
	}

	override := r.parseOverride(target.ID, target.PermissionsBlob)
	if override[section] == nil {
		override[section] = make(map[string]bool)
	}
	override[section][key] = value

	blob, err := json.Marshal(override)
	if err != nil {
		return fmt.Errorf("authz: marshal override: %w", err)
	}
	if err := r.repo.UpdatePermissionsBlob(ctx, targetID, blob); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrNotFound
		}
		r.logger.Error("override persist failed", slog.Any("error", err))
		return fmt.Errorf("%w: principal store: %v", shared.ErrUnavailable, err)
	}

	// The stored document changed; every cached copy for the target is now
	// stale and must not outlive this call. The coordinator logs and
	// schedules a retry if the delete fails; the persisted change stands.
	_ = r.invalidator.InvalidatePrincipal(ctx, targetID)
	return nil
}

func (r *Resolver) loadEffective(ctx context.Context, principalID string) (*Effective, error) {
	p, err := r.repo.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		r.logger.Error("principal lookup failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: principal store: %v", shared.ErrUnavailable, err)
	}
	override := r.parseOverride(p.ID, p.PermissionsBlob)
	return &Effective{
		PrincipalID: p.ID,
		Role:        p.Role,
		IsAdmin:     p.Admin(),
		Permissions: Merge(Defaults(p.Role), override),
	}, nil
}

// parseOverride decodes the stored override blob. A malformed blob is
// recovered locally: log and continue with an empty override, so one bad
// row degrades to role defaults instead of failing every request.
func (r *Resolver) parseOverride(principalID string, blob []byte) Document {
	if len(blob) == 0 {
		return Document{}
	}
	var override Document
	if err := json.Unmarshal(blob, &override); err != nil {
		r.logger.Warn("malformed permissions override, using role defaults",
			slog.String("principal", principalID), slog.Any("error", err))
		return Document{}
	}
	if override == nil {
		return Document{}
	}
	return override
}

func (r *Resolver) cached(ctx context.Context, key string) (*Effective, bool) {
	payload, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			r.logger.Warn("permission cache read failed", slog.Any("error", err))
		}
		r.observe("miss")
		return nil, false
	}
	var eff Effective
	if err := json.Unmarshal(payload, &eff); err != nil {
		r.logger.Warn("corrupt permission cache entry", slog.String("key", key), slog.Any("error", err))
		_ = r.store.Delete(ctx, key)
		r.observe("miss")
		return nil, false
	}
	r.observe("hit")
	return &eff, true
}

func (r *Resolver) fill(ctx context.Context, key string, eff *Effective) {
	payload, err := json.Marshal(eff)
	if err != nil {
		return
	}
	if err := r.store.Set(ctx, key, payload, r.ttl); err != nil {
		r.logger.Warn("permission cache write failed", slog.Any("error", err))
	}
}
