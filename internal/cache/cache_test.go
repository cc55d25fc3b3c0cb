package cache

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/online_catalog/internal/logging"
	"github.com/Skotchmaster/online_catalog/internal/testutil"
)

type item struct {
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

func TestRedisStore_GetSetDelete(t *testing.T) {
	t.Parallel()
	rdb, mr := testutil.InitTestRedis(t)
	s := NewRedisStore(rdb, time.Second)
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Set(ctx, "k2", []byte("v2"), time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, s.Delete(ctx, "k", "k2", "absent"))
	assert.Empty(t, mr.Keys())
	require.NoError(t, s.Delete(ctx))
}

func TestFetch_MissLoadsAndFills(t *testing.T) {
	t.Parallel()
	rdb, mr := testutil.InitTestRedis(t)
	s := NewRedisStore(rdb, time.Second)
	ctx := context.Background()

	var calls int32
	load := func(context.Context) (item, error) {
		atomic.AddInt32(&calls, 1)
		return item{Name: "lamp", Stock: 10}, nil
	}

	v, err := Fetch(ctx, s, "product:1", time.Hour, load)
	require.NoError(t, err)
	assert.Equal(t, item{Name: "lamp", Stock: 10}, v)

	v, err = Fetch(ctx, s, "product:1", time.Hour, load)
	require.NoError(t, err)
	assert.Equal(t, 10, v.Stock)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "second read is served from cache")
	assert.Equal(t, time.Hour, mr.TTL("product:1"))
}

func TestFetch_LoaderErrorIsNotCached(t *testing.T) {
	t.Parallel()
	rdb, mr := testutil.InitTestRedis(t)
	s := NewRedisStore(rdb, time.Second)

	notFound := errors.New("not found")
	_, err := Fetch(context.Background(), s, "product:x", time.Hour, func(context.Context) (item, error) {
		return item{}, notFound
	})
	require.ErrorIs(t, err, notFound)
	assert.False(t, mr.Exists("product:x"))
}

func TestFetch_StoreDownFallsBackToLoader(t *testing.T) {
	t.Parallel()
	rdb, mr := testutil.InitTestRedis(t)
	s := NewRedisStore(rdb, 200*time.Millisecond)
	mr.Close()

	var buf bytes.Buffer
	ctx := logging.IntoContext(context.Background(), logging.NewWithWriter(&buf, "info"))

	v, err := Fetch(ctx, s, "k", time.Hour, func(context.Context) (item, error) {
		return item{Name: "db"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "db", v.Name)
	assert.Contains(t, buf.String(), "cache_get_failed")
	assert.Contains(t, buf.String(), "cache_set_failed")
}

func TestFetch_CorruptEntryIsReloaded(t *testing.T) {
	t.Parallel()
	rdb, mr := testutil.InitTestRedis(t)
	s := NewRedisStore(rdb, time.Second)
	require.NoError(t, mr.Set("k", "{not json"))

	v, err := Fetch(context.Background(), s, "k", time.Hour, func(context.Context) (item, error) {
		return item{Name: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v.Name)

	raw, err := mr.Get("k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"fresh","stock":0}`, raw)
}

func TestKeysFor_PolicyTable(t *testing.T) {
	t.Parallel()
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	tests := []struct {
		m    Mutation
		want []string
	}{
		{ProductCreated, []string{"products:all"}},
		{ProductUpdated, []string{"product:" + id.String(), "products:all"}},
		{ProductDeleted, []string{"product:" + id.String(), "products:all"}},
		{UserCreated, []string{"all:users"}},
		{UserUpdated, []string{"user:profile:" + id.String(), "all:users"}},
		{UserDeleted, []string{"user:profile:" + id.String(), "all:users"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.m.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, KeysFor(tt.m, id))
		})
	}
}

func TestInvalidate_DropsKeysAndIgnoresCancellation(t *testing.T) {
	t.Parallel()
	rdb, mr := testutil.InitTestRedis(t)
	s := NewRedisStore(rdb, time.Second)
	inv := NewInvalidator(s, time.Second)
	id := uuid.New()

	require.NoError(t, mr.Set(ProductKey(id), "{}"))
	require.NoError(t, mr.Set(AllProductsKey, "[]"))
	require.NoError(t, mr.Set("product:other", "{}"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inv.Invalidate(ctx, ProductUpdated, id)

	assert.False(t, mr.Exists(ProductKey(id)))
	assert.False(t, mr.Exists(AllProductsKey))
	assert.True(t, mr.Exists("product:other"))
}

func TestInvalidate_FailureIsLogged(t *testing.T) {
	t.Parallel()
	rdb, mr := testutil.InitTestRedis(t)
	inv := NewInvalidator(NewRedisStore(rdb, 200*time.Millisecond), time.Second)
	mr.Close()

	var buf bytes.Buffer
	ctx := logging.IntoContext(context.Background(), logging.NewWithWriter(&buf, "info"))
	inv.Invalidate(ctx, UserDeleted, uuid.New())

	assert.Contains(t, buf.String(), "cache_invalidate_failed")
	assert.Contains(t, buf.String(), "all:users")
}

func TestFetch_RacingInvalidationIsBoundedByTTL(t *testing.T) {
	t.Parallel()
	rdb, mr := testutil.InitTestRedis(t)
	s := NewRedisStore(rdb, time.Second)
	inv := NewInvalidator(s, time.Second)
	ctx := context.Background()
	id := uuid.New()
	key := ProductKey(id)

	stock := 10
	// The mutation commits and invalidates while this loader still holds the
	// old row, so the old snapshot lands in the cache after the delete.
	stale := func(context.Context) (item, error) {
		old := item{Name: "lamp", Stock: stock}
		stock = 3
		inv.Invalidate(ctx, ProductUpdated, id)
		return old, nil
	}
	fresh := func(context.Context) (item, error) {
		return item{Name: "lamp", Stock: stock}, nil
	}

	v, err := Fetch(ctx, s, key, time.Minute, stale)
	require.NoError(t, err)
	assert.Equal(t, 10, v.Stock)

	v, err = Fetch(ctx, s, key, time.Minute, fresh)
	require.NoError(t, err)
	assert.Equal(t, 10, v.Stock, "stale entry is served inside the TTL")

	mr.FastForward(time.Minute)
	v, err = Fetch(ctx, s, key, time.Minute, fresh)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Stock, "stale entry is gone once the TTL elapses")
}
