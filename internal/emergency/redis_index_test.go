package emergency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) (*RedisIndex, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisIndex(client, "access", time.Hour), mr
}

func TestRedisIndexPutGet(t *testing.T) {
	idx, mr := newTestIndex(t)
	ctx := context.Background()
	pair := Pair{PatientID: uuid.New(), DoctorID: uuid.New()}

	_, ok, err := idx.Get(ctx, pair)
	require.NoError(t, err)
	assert.False(t, ok)

	grantedAt := time.Now().UTC().Truncate(time.Microsecond)
	expires := grantedAt.Add(2 * time.Hour).Truncate(time.Millisecond)
	entry := IndexEntry{GrantID: uuid.New(), GrantedAt: grantedAt, IsActive: true, ExpiresAt: &expires}
	applied, err := idx.Put(ctx, pair, entry)
	require.NoError(t, err)
	assert.True(t, applied)

	got, ok, err := idx.Get(ctx, pair)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.GrantID, got.GrantID)
	assert.True(t, grantedAt.Equal(got.GrantedAt))
	assert.True(t, got.IsActive)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))

	key := "access:" + pair.PatientID.String() + ":" + pair.DoctorID.String()
	assert.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key), 2*time.Hour)

	// an indefinite replacement clears the TTL
	indefinite := IndexEntry{GrantID: uuid.New(), GrantedAt: grantedAt.Add(time.Second), IsActive: true}
	applied, err = idx.Put(ctx, pair, indefinite)
	require.NoError(t, err)
	assert.True(t, applied)
	got, _, err = idx.Get(ctx, pair)
	require.NoError(t, err)
	assert.Equal(t, indefinite.GrantID, got.GrantID)
	assert.Nil(t, got.ExpiresAt)
	assert.Equal(t, time.Duration(0), mr.TTL(key))
}

func TestRedisIndexDeleteComparesGrant(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	pair := Pair{PatientID: uuid.New(), DoctorID: uuid.New()}
	current := uuid.New()
	_, err := idx.Put(ctx, pair, IndexEntry{GrantID: current, IsActive: true})
	require.NoError(t, err)

	removed, err := idx.Delete(ctx, pair, uuid.New())
	require.NoError(t, err)
	assert.False(t, removed)
	_, ok, _ := idx.Get(ctx, pair)
	assert.True(t, ok)

	removed, err = idx.Delete(ctx, pair, current)
	require.NoError(t, err)
	assert.True(t, removed)
	_, ok, _ = idx.Get(ctx, pair)
	assert.False(t, ok)

	removed, err = idx.Delete(ctx, pair, current)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRedisIndexPutKeepsNewerEntry(t *testing.T) {
	idx, mr := newTestIndex(t)
	ctx := context.Background()
	pair := Pair{PatientID: uuid.New(), DoctorID: uuid.New()}
	key := "access:" + pair.PatientID.String() + ":" + pair.DoctorID.String()

	at := time.Now().UTC().Truncate(time.Microsecond)
	expires := at.Add(8 * time.Hour).Truncate(time.Millisecond)
	newer := IndexEntry{GrantID: uuid.New(), GrantedAt: at, IsActive: true, ExpiresAt: &expires}
	applied, err := idx.Put(ctx, pair, newer)
	require.NoError(t, err)
	require.True(t, applied)
	ttl := mr.TTL(key)

	older := IndexEntry{GrantID: uuid.New(), GrantedAt: at.Add(-time.Minute), IsActive: true}
	applied, err = idx.Put(ctx, pair, older)
	require.NoError(t, err)
	assert.False(t, applied)

	got, ok, err := idx.Get(ctx, pair)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newer.GrantID, got.GrantID)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))
	assert.Equal(t, ttl, mr.TTL(key), "a refused write leaves the TTL alone")

	// same instant: the larger id wins, the same id rewrites in place
	tied := newer
	tied.GrantID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	applied, err = idx.Put(ctx, pair, tied)
	require.NoError(t, err)
	assert.False(t, applied)

	newer.IsActive = false
	applied, err = idx.Put(ctx, pair, newer)
	require.NoError(t, err)
	assert.True(t, applied)
	got, _, err = idx.Get(ctx, pair)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestRedisIndexScanSkipsForeignKeys(t *testing.T) {
	idx, mr := newTestIndex(t)
	ctx := context.Background()

	pairs := map[Pair]bool{}
	for i := 0; i < 3; i++ {
		p := Pair{PatientID: uuid.New(), DoctorID: uuid.New()}
		pairs[p] = true
		_, err := idx.Put(ctx, p, IndexEntry{GrantID: uuid.New(), IsActive: true})
		require.NoError(t, err)
	}
	require.NoError(t, mr.Set("access:not-a-pair", "x"))
	mr.HSet("access:"+uuid.NewString()+":"+uuid.NewString(), "grant_id", "garbage")

	seen := map[Pair]bool{}
	err := idx.Scan(ctx, func(p Pair, e IndexEntry) error {
		seen[p] = true
		assert.True(t, e.IsActive)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, pairs, seen)
}

func TestIndexEntryEffectiveAt(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Minute)

	assert.True(t, IndexEntry{IsActive: true}.EffectiveAt(now))
	assert.True(t, IndexEntry{IsActive: true, ExpiresAt: &later}.EffectiveAt(now))
	assert.False(t, IndexEntry{IsActive: true, ExpiresAt: &now}.EffectiveAt(now))
	assert.False(t, IndexEntry{IsActive: false}.EffectiveAt(now))
}
