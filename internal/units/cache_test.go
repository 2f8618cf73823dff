package units_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/units"
)

type countingDirectory struct {
	units   map[uuid.UUID]*billing.Unit
	calls   atomic.Int32
	release chan struct{}
}

func (d *countingDirectory) GetUnit(_ context.Context, id uuid.UUID) (*billing.Unit, error) {
	d.calls.Add(1)

	if d.release != nil {
		<-d.release
	}

	u, ok := d.units[id]
	if !ok {
		return nil, billing.ErrNotFound
	}

	return u, nil
}

func newCache(t *testing.T, dir *countingDirectory) (*units.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return units.NewCache(dir, client, time.Minute, logger), mr
}

func TestCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	u := &billing.Unit{ID: uuid.New(), CondominiumID: uuid.New(), Code: "A-101"}
	dir := &countingDirectory{units: map[uuid.UUID]*billing.Unit{u.ID: u}}
	cache, mr := newCache(t, dir)

	got, err := cache.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	got, err = cache.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)
	assert.Equal(t, int32(1), dir.calls.Load())

	assert.True(t, mr.Exists("billing:unit:"+u.ID.String()))

	mr.FastForward(2 * time.Minute)

	_, err = cache.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), dir.calls.Load(), "expired entries are reloaded")

	require.NoError(t, cache.Invalidate(ctx, u.ID))
	assert.False(t, mr.Exists("billing:unit:"+u.ID.String()))
}

func TestCache_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	dir := &countingDirectory{units: map[uuid.UUID]*billing.Unit{}}
	cache, mr := newCache(t, dir)
	id := uuid.New()

	_, err := cache.GetUnit(ctx, id)
	assert.ErrorIs(t, err, billing.ErrNotFound)
	assert.False(t, mr.Exists("billing:unit:"+id.String()))
}

func TestCache_ConcurrentMissesShareOneLookup(t *testing.T) {
	ctx := context.Background()
	u := &billing.Unit{ID: uuid.New(), CondominiumID: uuid.New(), Code: "B-7"}
	dir := &countingDirectory{
		units:   map[uuid.UUID]*billing.Unit{u.ID: u},
		release: make(chan struct{}),
	}
	cache, _ := newCache(t, dir)

	const callers = 8

	var wg sync.WaitGroup

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			got, err := cache.GetUnit(ctx, u.ID)
			assert.NoError(t, err)
			assert.Equal(t, "B-7", got.Code)
		}()
	}

	require.Eventually(t, func() bool { return dir.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(dir.release)
	wg.Wait()

	assert.Equal(t, int32(1), dir.calls.Load())
}

func TestCache_RedisDownFallsBackToSource(t *testing.T) {
	ctx := context.Background()
	u := &billing.Unit{ID: uuid.New(), CondominiumID: uuid.New(), Code: "C-3"}
	dir := &countingDirectory{units: map[uuid.UUID]*billing.Unit{u.ID: u}}
	cache, mr := newCache(t, dir)

	mr.Close()

	got, err := cache.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

type blockingDirectory struct {
	unit    *billing.Unit
	started chan struct{}
	release chan struct{}
}

func (d *blockingDirectory) GetUnit(ctx context.Context, _ uuid.UUID) (*billing.Unit, error) {
	d.started <- struct{}{}

	select {
	case <-d.release:
		return d.unit, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	u := &billing.Unit{ID: uuid.New(), CondominiumID: uuid.New(), Code: "C-303"}
	dir := &blockingDirectory{unit: u, started: make(chan struct{}, 2), release: make(chan struct{})}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := units.NewCache(dir, client, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	firstCtx, cancel := context.WithCancel(context.Background())

	firstErr := make(chan error, 1)

	go func() {
		_, err := cache.GetUnit(firstCtx, u.ID)
		firstErr <- err
	}()

	<-dir.started

	type result struct {
		unit *billing.Unit
		err  error
	}

	second := make(chan result, 1)

	go func() {
		got, err := cache.GetUnit(context.Background(), u.ID)
		second <- result{got, err}
	}()

	// Let the second caller join the in-flight lookup.
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(dir.release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, u.Code, res.unit.Code)
	assert.True(t, mr.Exists("billing:unit:"+u.ID.String()), "the shared lookup still fills the cache")
}
