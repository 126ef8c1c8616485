package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
)

// Key builders shared by everything that populates or invalidates the cache.
// Permission documents are cached under both token- and principal-derived
// keys, so a permission change must clear both families (a logout clears
// only the token family).
func TokenKey(token string) string {
	return "authz:token:" + token
}

func PrincipalKey(principalID string) string {
	return "authz:principal:" + principalID
}

func LinkageKey(transportID int64) string {
	return "transport:linkage:" + strconv.FormatInt(transportID, 10)
}

// Retrier re-runs an invalidation out-of-band after a direct attempt
// failed. Invalidation is idempotent so re-running is always safe.
type Retrier interface {
	RetryInvalidation(ctx context.Context, keys []string) error
}

// Coordinator maps invalidation scopes to the concrete cache keys they
// govern and deletes them. It is constructed before the services that
// mutate state and handed to them as a collaborator, so there is no
// ambient global to reach for.
//
// The coordinator keeps an in-process registry of which token-derived keys
// belong to which principal; a permission change addressed by principal id
// must also clear every live token-keyed copy of that principal's document.
type Coordinator struct {
	store   Store
	logger  *slog.Logger
	retrier Retrier

	mu            sync.Mutex
	tokensByOwner map[string]map[string]struct{}
	linkageKeys   map[string]struct{}
}

// NewCoordinator constructs a Coordinator over the given store.
func NewCoordinator(store Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:         store,
		logger:        logger,
		tokensByOwner: make(map[string]map[string]struct{}),
		linkageKeys:   make(map[string]struct{}),
	}
}

// SetRetrier installs an out-of-band retry hook for failed invalidations.
func (c *Coordinator) SetRetrier(r Retrier) {
	c.retrier = r
}

// TrackToken records that a permission document for principalID has been
// cached under the given token. Called on every token-keyed cache fill.
func (c *Coordinator) TrackToken(principalID, token string) {
	c.mu.Lock()
	owned, ok := c.tokensByOwner[principalID]
	if !ok {
		owned = make(map[string]struct{})
		c.tokensByOwner[principalID] = owned
	}
	owned[token] = struct{}{}
	c.mu.Unlock()
}

// TrackLinkage records a cached linkage view key.
func (c *Coordinator) TrackLinkage(key string) {
	c.mu.Lock()
	c.linkageKeys[key] = struct{}{}
	c.mu.Unlock()
}

// InvalidatePrincipal removes every cache entry holding principalID's
// permission document: the principal-keyed entry and all token-keyed
// copies recorded for it.
func (c *Coordinator) InvalidatePrincipal(ctx context.Context, principalID string) error {
	keys := []string{PrincipalKey(principalID)}
	c.mu.Lock()
	for token := range c.tokensByOwner[principalID] {
		keys = append(keys, TokenKey(token))
	}
	delete(c.tokensByOwner, principalID)
	c.mu.Unlock()
	return c.drop(ctx, keys)
}

// InvalidateToken removes the token-keyed permission entry. Used on logout;
// the principal-keyed entry stays valid because the document itself did
// not change.
func (c *Coordinator) InvalidateToken(ctx context.Context, token string) error {
	c.mu.Lock()
	for owner, owned := range c.tokensByOwner {
		if _, ok := owned[token]; ok {
			delete(owned, token)
			if len(owned) == 0 {
				delete(c.tokensByOwner, owner)
			}
			break
		}
	}
	c.mu.Unlock()
	return c.drop(ctx, []string{TokenKey(token)})
}

// InvalidateLinkage removes every cached linkage view. Linkage mutations
// affect both endpoints and any transport pointing at them, so the whole
// family is dropped rather than chasing the affected subset.
func (c *Coordinator) InvalidateLinkage(ctx context.Context) error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.linkageKeys))
	for key := range c.linkageKeys {
		keys = append(keys, key)
	}
	c.linkageKeys = make(map[string]struct{})
	c.mu.Unlock()
	return c.drop(ctx, keys)
}

func (c *Coordinator) drop(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	err := c.store.Delete(ctx, keys...)
	if err == nil {
		return nil
	}
	// The mutation this invalidation follows has already been persisted and
	// must not be reverted. Deletion is idempotent, so hand the keys to the
	// retrier and surface a correctness warning.
	if c.logger != nil {
		c.logger.Warn("cache invalidation failed, stale-read window until retry",
			slog.Int("keys", len(keys)), slog.Any("error", err))
	}
	if c.retrier != nil {
		if rerr := c.retrier.RetryInvalidation(ctx, keys); rerr != nil && c.logger != nil {
			c.logger.Error("cache invalidation retry enqueue failed", slog.Any("error", rerr))
		}
	}
	return err
}
