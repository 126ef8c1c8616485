package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoordinatorInvalidatePrincipalClearsBothKeyFamilies(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	coord := NewCoordinator(store, nil)

	require.NoError(t, store.Set(ctx, PrincipalKey("p1"), []byte("doc"), time.Minute))
	require.NoError(t, store.Set(ctx, TokenKey("tok-a"), []byte("doc"), time.Minute))
	require.NoError(t, store.Set(ctx, TokenKey("tok-b"), []byte("doc"), time.Minute))
	coord.TrackToken("p1", "tok-a")
	coord.TrackToken("p1", "tok-b")

	require.NoError(t, coord.InvalidatePrincipal(ctx, "p1"))

	for _, key := range []string{PrincipalKey("p1"), TokenKey("tok-a"), TokenKey("tok-b")} {
		_, err := store.Get(ctx, key)
		require.ErrorIs(t, err, ErrMiss, key)
	}
}

func TestCoordinatorInvalidateTokenLeavesPrincipalEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	coord := NewCoordinator(store, nil)

	require.NoError(t, store.Set(ctx, PrincipalKey("p1"), []byte("doc"), time.Minute))
	require.NoError(t, store.Set(ctx, TokenKey("tok-a"), []byte("doc"), time.Minute))
	coord.TrackToken("p1", "tok-a")

	require.NoError(t, coord.InvalidateToken(ctx, "tok-a"))

	_, err := store.Get(ctx, TokenKey("tok-a"))
	require.ErrorIs(t, err, ErrMiss)
	_, err = store.Get(ctx, PrincipalKey("p1"))
	require.NoError(t, err)
}

func TestCoordinatorInvalidateLinkageDropsTrackedViews(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	coord := NewCoordinator(store, nil)

	require.NoError(t, store.Set(ctx, LinkageKey(7), []byte("view"), time.Minute))
	require.NoError(t, store.Set(ctx, LinkageKey(9), []byte("view"), time.Minute))
	coord.TrackLinkage(LinkageKey(7))
	coord.TrackLinkage(LinkageKey(9))

	require.NoError(t, coord.InvalidateLinkage(ctx))

	_, err := store.Get(ctx, LinkageKey(7))
	require.ErrorIs(t, err, ErrMiss)
	_, err = store.Get(ctx, LinkageKey(9))
	require.ErrorIs(t, err, ErrMiss)
}

type failingStore struct {
	Store
	failDeletes bool
}

func (f *failingStore) Delete(ctx context.Context, keys ...string) error {
	if f.failDeletes {
		return errors.New("store down")
	}
	return f.Store.Delete(ctx, keys...)
}

type recordingRetrier struct {
	keys []string
}

func (r *recordingRetrier) RetryInvalidation(ctx context.Context, keys []string) error {
	r.keys = append(r.keys, keys...)
	return nil
}

func TestCoordinatorHandsFailedInvalidationToRetrier(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: NewMemory(), failDeletes: true}
	coord := NewCoordinator(store, nil)
	retrier := &recordingRetrier{}
	coord.SetRetrier(retrier)

	coord.TrackToken("p1", "tok-a")
	err := coord.InvalidatePrincipal(ctx, "p1")
	require.Error(t, err)
	require.ElementsMatch(t, []string{PrincipalKey("p1"), TokenKey("tok-a")}, retrier.keys)
}
