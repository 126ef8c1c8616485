package authz_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vantage-tms/vantage-tms/internal/authz"
	"github.com/vantage-tms/vantage-tms/internal/cache"
	"github.com/vantage-tms/vantage-tms/internal/shared"
)

type stubPrincipals struct {
	mu        sync.Mutex
	rows      map[string]authz.Principal
	findCalls int
}

func (s *stubPrincipals) FindByID(ctx context.Context, principalID string) (*authz.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	row, ok := s.rows[principalID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &row, nil
}

func (s *stubPrincipals) UpdatePermissionsBlob(ctx context.Context, principalID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[principalID]
	if !ok {
		return shared.ErrNotFound
	}
	row.PermissionsBlob = blob
	s.rows[principalID] = row
	return nil
}

type stubSessions struct {
	byToken map[string]string
}

func (s *stubSessions) Resolve(ctx context.Context, token string) (string, error) {
	principalID, ok := s.byToken[token]
	if !ok {
		return "", shared.ErrUnauthenticated
	}
	return principalID, nil
}

func newResolver(t *testing.T, repo *stubPrincipals, sessions *stubSessions) (*authz.Resolver, cache.Store, *cache.Coordinator) {
	t.Helper()
	store := cache.NewMemory()
	coord := cache.NewCoordinator(store, slog.Default())
	resolver := authz.NewResolver(repo, sessions, store, coord, slog.Default(), 5*time.Minute)
	return resolver, store, coord
}

func warehousePrincipal(id string) authz.Principal {
	return authz.Principal{ID: id, Email: id, Role: authz.RoleWarehouse}
}

func adminPrincipal(id string) authz.Principal {
	return authz.Principal{ID: id, Email: id, Role: authz.RoleAdmin, IsAdmin: true}
}

func TestLoadByPrincipalMergesOverride(t *testing.T) {
	override, _ := json.Marshal(authz.Document{authz.SectionCalendar: {authz.PermEdit: false}})
	repo := &stubPrincipals{rows: map[string]authz.Principal{
		"wh@example.test": {ID: "wh@example.test", Role: authz.RoleWarehouse, PermissionsBlob: override},
	}}
	resolver, _, _ := newResolver(t, repo, &stubSessions{})

	eff, err := resolver.LoadByPrincipal(context.Background(), "wh@example.test")
	require.NoError(t, err)
	require.False(t, eff.Allows(authz.SectionCalendar, authz.PermEdit))
	require.True(t, eff.Allows(authz.SectionCalendar, authz.PermView))
}

func TestLoadByPrincipalCachesDocument(t *testing.T) {
	repo := &stubPrincipals{rows: map[string]authz.Principal{
		"wh@example.test": warehousePrincipal("wh@example.test"),
	}}
	resolver, _, _ := newResolver(t, repo, &stubSessions{})

	for i := 0; i < 3; i++ {
		_, err := resolver.LoadByPrincipal(context.Background(), "wh@example.test")
		require.NoError(t, err)
	}
	require.Equal(t, 1, repo.findCalls)
}

func TestLoadByTokenResolvesAndCaches(t *testing.T) {
	repo := &stubPrincipals{rows: map[string]authz.Principal{
		"wh@example.test": warehousePrincipal("wh@example.test"),
	}}
	sessions := &stubSessions{byToken: map[string]string{"tok-1": "wh@example.test"}}
	resolver, store, _ := newResolver(t, repo, sessions)

	eff, err := resolver.LoadByToken(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Equal(t, "wh@example.test", eff.PrincipalID)

	_, err = store.Get(context.Background(), cache.TokenKey("tok-1"))
	require.NoError(t, err)

	_, err = resolver.LoadByToken(context.Background(), "bogus")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = resolver.LoadByToken(context.Background(), "")
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestMalformedOverrideFallsBackToDefaults(t *testing.T) {
	repo := &stubPrincipals{rows: map[string]authz.Principal{
		"wh@example.test": {ID: "wh@example.test", Role: authz.RoleWarehouse, PermissionsBlob: []byte("{not json")},
	}}
	resolver, _, _ := newResolver(t, repo, &stubSessions{})

	eff, err := resolver.LoadByPrincipal(context.Background(), "wh@example.test")
	require.NoError(t, err)
	require.True(t, eff.Allows(authz.SectionCalendar, authz.PermEdit))
}

func TestUpdatePermissionRequiresAdmin(t *testing.T) {
	repo := &stubPrincipals{rows: map[string]authz.Principal{
		"wh@example.test":    warehousePrincipal("wh@example.test"),
		"other@example.test": warehousePrincipal("other@example.test"),
	}}
	resolver, _, _ := newResolver(t, repo, &stubSessions{})

	err := resolver.UpdatePermission(context.Background(), "wh@example.test", "other@example.test", authz.SectionCalendar, authz.PermEdit, false)
	require.ErrorIs(t, err, shared.ErrForbidden)

	err = resolver.UpdatePermission(context.Background(), "ghost@example.test", "other@example.test", authz.SectionCalendar, authz.PermEdit, false)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestUpdatePermissionUnknownTarget(t *testing.T) {
	repo := &stubPrincipals{rows: map[string]authz.Principal{
		"admin@example.test": adminPrincipal("admin@example.test"),
	}}
	resolver, _, _ := newResolver(t, repo, &stubSessions{})

	err := resolver.UpdatePermission(context.Background(), "admin@example.test", "ghost@example.test", authz.SectionCalendar, authz.PermEdit, false)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

// A permission revocation must be visible on the very next read, even
// through the cached token path that was populated before the change.
func TestUpdatePermissionInvalidatesCachedPaths(t *testing.T) {
	repo := &stubPrincipals{rows: map[string]authz.Principal{
		"admin@example.test": adminPrincipal("admin@example.test"),
		"wh@example.test":    warehousePrincipal("wh@example.test"),
	}}
	sessions := &stubSessions{byToken: map[string]string{"tok-wh": "wh@example.test"}}
	resolver, _, _ := newResolver(t, repo, sessions)
	ctx := context.Background()

	// Warm both cache families.
	eff, err := resolver.LoadByToken(ctx, "tok-wh")
	require.NoError(t, err)
	require.True(t, eff.Allows(authz.SectionCalendar, authz.PermEdit))
	eff, err = resolver.LoadByPrincipal(ctx, "wh@example.test")
	require.NoError(t, err)
	require.True(t, eff.Allows(authz.SectionCalendar, authz.PermEdit))

	err = resolver.UpdatePermission(ctx, "admin@example.test", "wh@example.test", authz.SectionCalendar, authz.PermEdit, false)
	require.NoError(t, err)

	eff, err = resolver.LoadByToken(ctx, "tok-wh")
	require.NoError(t, err)
	require.False(t, eff.Allows(authz.SectionCalendar, authz.PermEdit), "stale grant served through token path")

	eff, err = resolver.LoadByPrincipal(ctx, "wh@example.test")
	require.NoError(t, err)
	require.False(t, eff.Allows(authz.SectionCalendar, authz.PermEdit), "stale grant served through principal path")
}

func TestUpdatePermissionPreservesOtherOverrides(t *testing.T) {
	override, _ := json.Marshal(authz.Document{authz.SectionReports: {authz.PermView: false}})
	repo := &stubPrincipals{rows: map[string]authz.Principal{
		"admin@example.test": adminPrincipal("admin@example.test"),
		"wh@example.test":    {ID: "wh@example.test", Role: authz.RoleWarehouse, PermissionsBlob: override},
	}}
	resolver, _, _ := newResolver(t, repo, &stubSessions{})
	ctx := context.Background()

	err := resolver.UpdatePermission(ctx, "admin@example.test", "wh@example.test", authz.SectionCalendar, authz.PermEdit, false)
	require.NoError(t, err)

	eff, err := resolver.LoadByPrincipal(ctx, "wh@example.test")
	require.NoError(t, err)
	require.False(t, eff.Allows(authz.SectionCalendar, authz.PermEdit))
	require.False(t, eff.Allows(authz.SectionReports, authz.PermView))
}

func TestConcurrentLoadsCollapse(t *testing.T) {
	repo := &stubPrincipals{rows: map[string]authz.Principal{
		"wh@example.test": warehousePrincipal("wh@example.test"),
	}}
	resolver, _, _ := newResolver(t, repo, &stubSessions{})

	errs := make(chan error, 16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := resolver.LoadByPrincipal(context.Background(), "wh@example.test")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	repo.mu.Lock()
	calls := repo.findCalls
	repo.mu.Unlock()
	require.LessOrEqual(t, calls, 3, "concurrent loads should collapse via singleflight")
}
