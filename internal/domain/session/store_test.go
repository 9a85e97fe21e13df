package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory returns a fresh store and a function creating users it accepts
type storeFactory func(t *testing.T) (Store, func(t *testing.T) string)

func testSession(userID string, createdAt time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(ttl),
	}
}

// runStoreContract exercises the behaviour every Store must share
func runStoreContract(t *testing.T, factory storeFactory) {
	base := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("get scoped to owner", func(t *testing.T) {
		ctx := context.Background()
		store, newUser := factory(t)
		u1, u2 := newUser(t), newUser(t)

		sess := testSession(u1, base, time.Hour)
		require.NoError(t, store.Create(ctx, sess))

		got, err := store.Get(ctx, sess.ID, u1)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)
		assert.False(t, got.Revoked)

		_, err = store.Get(ctx, sess.ID, u2)
		assert.ErrorIs(t, err, ErrSessionNotFound)

		_, err = store.Get(ctx, uuid.NewString(), u1)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("rotate links and revokes", func(t *testing.T) {
		ctx := context.Background()
		store, newUser := factory(t)
		u := newUser(t)

		old := testSession(u, base, time.Hour)
		require.NoError(t, store.Create(ctx, old))

		next := testSession(u, base.Add(time.Second), time.Hour)
		ok, err := store.Rotate(ctx, old.ID, u, next, base.Add(time.Second))
		require.NoError(t, err)
		require.True(t, ok)

		got, err := store.Get(ctx, old.ID, u)
		require.NoError(t, err)
		assert.True(t, got.Revoked)
		require.NotNil(t, got.ReplacedBy)
		assert.Equal(t, next.ID, *got.ReplacedBy)
		require.NotNil(t, got.LastUsedAt)

		// second rotation of the same session loses and leaves no new row
		loser := testSession(u, base.Add(2*time.Second), time.Hour)
		ok, err = store.Rotate(ctx, old.ID, u, loser, base.Add(2*time.Second))
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.Get(ctx, loser.ID, u)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("concurrent rotate has one winner", func(t *testing.T) {
		ctx := context.Background()
		store, newUser := factory(t)
		u := newUser(t)

		old := testSession(u, base, time.Hour)
		require.NoError(t, store.Create(ctx, old))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 6 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.Rotate(ctx, old.ID, u, testSession(u, base, time.Hour), base)
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())

		active, err := store.ListActive(ctx, u)
		require.NoError(t, err)
		assert.Len(t, active, 1, "no fork")
	})

	t.Run("revoke is conditional", func(t *testing.T) {
		ctx := context.Background()
		store, newUser := factory(t)
		u1, u2 := newUser(t), newUser(t)

		sess := testSession(u1, base, time.Hour)
		require.NoError(t, store.Create(ctx, sess))

		ok, err := store.Revoke(ctx, sess.ID, u2, base)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.Revoke(ctx, sess.ID, u1, base)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Revoke(ctx, sess.ID, u1, base.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := store.Get(ctx, sess.ID, u1)
		require.NoError(t, err)
		require.NotNil(t, got.LastUsedAt)
		assert.True(t, got.LastUsedAt.Equal(base), "last_used_at is only set once")
	})

	t.Run("malformed ids are unknown", func(t *testing.T) {
		ctx := context.Background()
		store, newUser := factory(t)
		u := newUser(t)

		sess := testSession(u, base, time.Hour)
		require.NoError(t, store.Create(ctx, sess))

		_, err := store.Get(ctx, "not-a-uuid", u)
		assert.ErrorIs(t, err, ErrSessionNotFound)

		ok, err := store.Revoke(ctx, "not-a-uuid", u, base)
		require.NoError(t, err)
		assert.False(t, ok)

		next := testSession(u, base, time.Hour)
		ok, err = store.Rotate(ctx, "not-a-uuid", u, next, base)
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = store.Get(ctx, next.ID, u)
		assert.ErrorIs(t, err, ErrSessionNotFound)

		revoked, err := store.RevokeIDs(ctx, u, []string{"not-a-uuid", sess.ID}, base)
		require.NoError(t, err)
		assert.Equal(t, []string{sess.ID}, revoked)
	})

	t.Run("bulk revokes return ids", func(t *testing.T) {
		ctx := context.Background()
		store, newUser := factory(t)
		u, other := newUser(t), newUser(t)

		var ids []string
		for i := range 3 {
			s := testSession(u, base.Add(time.Duration(i)*time.Second), time.Hour)
			require.NoError(t, store.Create(ctx, s))
			ids = append(ids, s.ID)
		}
		foreign := testSession(other, base, time.Hour)
		require.NoError(t, store.Create(ctx, foreign))

		revoked, err := store.RevokeIDs(ctx, u, []string{ids[0], foreign.ID}, base)
		require.NoError(t, err)
		assert.Equal(t, []string{ids[0]}, revoked)

		revoked, err = store.RevokeAll(ctx, u, base)
		require.NoError(t, err)
		assert.ElementsMatch(t, ids[1:], revoked)

		active, err := store.ListActive(ctx, u)
		require.NoError(t, err)
		assert.Empty(t, active)

		active, err = store.ListActive(ctx, other)
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})

	t.Run("list active newest first", func(t *testing.T) {
		ctx := context.Background()
		store, newUser := factory(t)
		u := newUser(t)

		var ids []string
		for i := range 4 {
			s := testSession(u, base.Add(time.Duration(i)*time.Minute), time.Hour)
			require.NoError(t, store.Create(ctx, s))
			ids = append(ids, s.ID)
		}
		_, err := store.Revoke(ctx, ids[1], u, base)
		require.NoError(t, err)

		active, err := store.ListActive(ctx, u)
		require.NoError(t, err)
		require.Len(t, active, 3)
		assert.Equal(t, ids[3], active[0].ID)
		assert.Equal(t, ids[2], active[1].ID)
		assert.Equal(t, ids[0], active[2].ID)
	})

	t.Run("deletes match predicates only", func(t *testing.T) {
		ctx := context.Background()
		store, newUser := factory(t)
		u := newUser(t)
		now := base

		expired := testSession(u, now.Add(-2*time.Hour), time.Hour)
		live := testSession(u, now, time.Hour)
		oldRevoked := testSession(u, now.Add(-40*24*time.Hour), 60*24*time.Hour)
		newRevoked := testSession(u, now, time.Hour)
		for _, s := range []*Session{expired, live, oldRevoked, newRevoked} {
			require.NoError(t, store.Create(ctx, s))
		}
		_, err := store.Revoke(ctx, oldRevoked.ID, u, now.Add(-35*24*time.Hour))
		require.NoError(t, err)
		_, err = store.Revoke(ctx, newRevoked.ID, u, now)
		require.NoError(t, err)

		cutoff := now.Add(-30 * 24 * time.Hour)
		st, err := store.Stats(ctx, now, cutoff)
		require.NoError(t, err)
		assert.Equal(t, Stats{Total: 4, Active: 1, Revoked: 2, Expired: 1, Obsolete: 1}, st)

		n, err := store.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = store.DeleteRevokedBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = store.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = store.Get(ctx, live.ID, u)
		assert.NoError(t, err)
		_, err = store.Get(ctx, newRevoked.ID, u)
		assert.NoError(t, err)
	})
}
