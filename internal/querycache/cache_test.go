package querycache

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/commongroundz/backend/internal/events"
	"github.com/commongroundz/backend/internal/logger"
	"github.com/commongroundz/backend/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Initialize("error", os.DevNull)
	os.Exit(m.Run())
}

// fakeClock lets tests drive staleness without sleeping
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(clk *fakeClock) *Cache {
	c := New(Options{
		DefaultStale:     time.Minute,
		DefaultRetention: 10 * time.Minute,
		DebounceWindow:   10 * time.Millisecond,
		Namespaces: map[string]NamespaceConfig{
			NamespaceEntity: {StaleAfter: time.Minute, Retention: 10 * time.Minute, NoEagerRefetch: true},
		},
	})
	if clk != nil {
		c.clock = clk.Now
	}
	return c
}

func TestGetOrFetchCachesFreshValues(t *testing.T) {
	c := newTestCache(nil)
	key := Key{Namespace: NamespaceEntity, ID: "e1"}

	var calls int32
	fetch := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrFetch(context.Background(), key, fetch)
		require.NoError(t, err)
		assert.Equal(t, "value", got)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	state, ok := c.State(key)
	require.True(t, ok)
	assert.Equal(t, StateFresh, state)
}

func TestStaleEntryServedWhileRevalidating(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(clk)
	key := Key{Namespace: NamespaceEntityStats, ID: "e1"}

	var value atomic.Value
	value.Store("v1")
	fetch := func(ctx context.Context) (interface{}, error) {
		return value.Load(), nil
	}

	got, err := c.GetOrFetch(context.Background(), key, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	// Time-driven fresh -> stale
	clk.Advance(2 * time.Minute)
	value.Store("v2")

	// The stale read still serves v1 and kicks a background refetch
	got, err = c.GetOrFetch(context.Background(), key, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	require.Eventually(t, func() bool {
		state, ok := c.State(key)
		return ok && state == StateFresh
	}, time.Second, 5*time.Millisecond)

	data, ok := c.Peek(key)
	require.True(t, ok)
	assert.Equal(t, "v2", data)
}

func TestExplicitInvalidationMarksStale(t *testing.T) {
	c := newTestCache(nil)
	key := Key{Namespace: NamespaceEntityReviews, ID: "e1"}

	_, err := c.GetOrFetch(context.Background(), key, func(ctx context.Context) (interface{}, error) {
		return 1, nil
	})
	require.NoError(t, err)

	c.Invalidate(key)

	state, ok := c.State(key)
	require.True(t, ok)
	assert.Equal(t, StateStale, state)
}

func TestRefetchFailureKeepsServingStaleData(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(clk)
	key := Key{Namespace: NamespaceEntityStats, ID: "e1"}

	var fail atomic.Bool
	fetch := func(ctx context.Context) (interface{}, error) {
		if fail.Load() {
			return nil, assert.AnError
		}
		return "good", nil
	}

	_, err := c.GetOrFetch(context.Background(), key, fetch)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	fail.Store(true)

	got, err := c.GetOrFetch(context.Background(), key, fetch)
	require.NoError(t, err)
	assert.Equal(t, "good", got)

	// Refetch fails; the entry stays stale with its old data
	require.Eventually(t, func() bool {
		state, ok := c.State(key)
		return ok && state == StateStale
	}, time.Second, 5*time.Millisecond)

	data, _ := c.Peek(key)
	assert.Equal(t, "good", data)
}

func TestMidFlightInvalidationDiscardsRefetchResult(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(clk)
	key := Key{Namespace: NamespaceEntityStats, ID: "e1"}

	release := make(chan struct{})
	var inRefetch atomic.Bool
	var calls int32
	fetch := func(ctx context.Context) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) > 1 {
			inRefetch.Store(true)
			<-release
			return "pre-mutation", nil
		}
		return "original", nil
	}

	_, err := c.GetOrFetch(context.Background(), key, fetch)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = c.GetOrFetch(context.Background(), key, fetch) // kicks refetch
	require.NoError(t, err)

	require.Eventually(t, func() bool { return inRefetch.Load() }, time.Second, time.Millisecond)

	// Invalidated again while the refetch is in flight: its result is
	// for a state that no longer exists and must not be committed.
	c.Invalidate(key)
	close(release)

	require.Eventually(t, func() bool {
		state, ok := c.State(key)
		return ok && state == StateStale
	}, time.Second, 5*time.Millisecond)

	data, _ := c.Peek(key)
	assert.Equal(t, "original", data)
}

func TestInvalidateEntityDebounces(t *testing.T) {
	c := newTestCache(nil)

	for _, ns := range EntityNamespaces {
		c.Put(Key{Namespace: ns, ID: "e1"}, ns)
	}

	// Rapid successive invalidations coalesce into one pending timer
	for i := 0; i < 5; i++ {
		c.InvalidateEntity("e1")
	}
	c.mu.Lock()
	pending := len(c.debounce)
	c.mu.Unlock()
	assert.Equal(t, 1, pending)

	require.Eventually(t, func() bool {
		for _, ns := range EntityNamespaces {
			state, ok := c.State(Key{Namespace: ns, ID: "e1"})
			if !ok || state != StateStale {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
}

func TestSweepEvictsOnlyExpiredStaleEntries(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(clk)

	fresh := Key{Namespace: NamespaceEntityStats, ID: "fresh"}
	recent := Key{Namespace: NamespaceEntityStats, ID: "recently-stale"}
	old := Key{Namespace: NamespaceEntityStats, ID: "long-stale"}

	c.Put(old, 1)
	clk.Advance(15 * time.Minute) // old is stale and past retention
	c.Put(recent, 2)
	clk.Advance(2 * time.Minute) // recent is stale, within retention
	c.Put(fresh, 3)

	evicted := c.Sweep()
	assert.Equal(t, 1, evicted)

	_, ok := c.Peek(old)
	assert.False(t, ok)
	_, ok = c.Peek(recent)
	assert.True(t, ok)
	_, ok = c.Peek(fresh)
	assert.True(t, ok)
}

func TestRefetchStaleSkipsProtectedNamespaces(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(clk)

	protected := Key{Namespace: NamespaceEntity, ID: "e1"}
	normal := Key{Namespace: NamespaceEntityStats, ID: "e1"}

	fetch := func(ctx context.Context) (interface{}, error) { return "refreshed", nil }
	_, err := c.GetOrFetch(context.Background(), protected, fetch)
	require.NoError(t, err)
	_, err = c.GetOrFetch(context.Background(), normal, fetch)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	c.RefetchStale()

	require.Eventually(t, func() bool {
		state, ok := c.State(normal)
		return ok && state == StateFresh
	}, time.Second, 5*time.Millisecond)

	// Entity detail pages are left alone mid-read
	state, ok := c.State(protected)
	require.True(t, ok)
	assert.Equal(t, StateStale, state)
}

func TestRefetchStaleCountsOnlyWhenRefetchKicked(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(clk)
	counter := metrics.Get().CacheInvalidations.WithLabelValues("visibility")
	before := testutil.ToFloat64(counter)

	// Nothing cached, nothing to refetch
	c.RefetchStale()
	assert.Equal(t, before, testutil.ToFloat64(counter))

	key := Key{Namespace: NamespaceEntityStats, ID: "e1"}
	_, err := c.GetOrFetch(context.Background(), key, func(ctx context.Context) (interface{}, error) {
		return "stats", nil
	})
	require.NoError(t, err)

	// Still fresh, still nothing to refetch
	c.RefetchStale()
	assert.Equal(t, before, testutil.ToFloat64(counter))

	clk.Advance(2 * time.Minute)
	c.RefetchStale()
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestDefaultOptionsProtectEntityDetail(t *testing.T) {
	clk := newFakeClock()
	c := New(DefaultOptions())
	c.clock = clk.Now

	detail := Key{Namespace: NamespaceEntity, ID: "e1"}
	stats := Key{Namespace: NamespaceEntityStats, ID: "e1"}

	var detailFetches int32
	_, err := c.GetOrFetch(context.Background(), detail, func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&detailFetches, 1)
		return "detail", nil
	})
	require.NoError(t, err)
	_, err = c.GetOrFetch(context.Background(), stats, func(ctx context.Context) (interface{}, error) {
		return "stats", nil
	})
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	c.RefetchStale()

	require.Eventually(t, func() bool {
		state, ok := c.State(stats)
		return ok && state == StateFresh
	}, time.Second, 5*time.Millisecond)

	state, ok := c.State(detail)
	require.True(t, ok)
	assert.Equal(t, StateStale, state)
	assert.Equal(t, int32(1), atomic.LoadInt32(&detailFetches))
}

func TestPutProvisionalTriggersAuthoritativeReplace(t *testing.T) {
	c := newTestCache(nil)
	key := Key{Namespace: NamespaceFollowCounts, ID: "u1"}

	c.PutProvisional(key, 41)

	state, ok := c.State(key)
	require.True(t, ok)
	assert.Equal(t, StateStale, state)

	// The provisional value serves immediately; the read kicks an
	// authoritative refetch that replaces it wholesale.
	got, err := c.GetOrFetch(context.Background(), key, func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 41, got)

	require.Eventually(t, func() bool {
		data, ok := c.Peek(key)
		return ok && data == 42
	}, time.Second, 5*time.Millisecond)
}

func TestConcurrentMissesCollapseToOneFetch(t *testing.T) {
	c := newTestCache(nil)
	key := Key{Namespace: NamespaceEntity, ID: "e1"}

	var calls int32
	fetch := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return "value", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.GetOrFetch(context.Background(), key, fetch)
			assert.NoError(t, err)
			assert.Equal(t, "value", got)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBindBusAppliesInvalidationRules(t *testing.T) {
	c := newTestCache(nil)
	bus := events.NewBus()
	unbind := c.BindBus(bus)
	defer unbind()

	c.Put(Key{Namespace: NamespaceFollowCounts, ID: "alice"}, 10)
	c.Put(Key{Namespace: NamespaceFollowCounts, ID: "bob"}, 20)

	bus.Publish(events.FollowChanged{FollowerID: "alice", FolloweeID: "bob", Following: true})

	for _, id := range []string{"alice", "bob"} {
		state, ok := c.State(Key{Namespace: NamespaceFollowCounts, ID: id})
		require.True(t, ok)
		assert.Equal(t, StateStale, state, "follow-counts:%s", id)
	}

	// Entity mutation invalidates all entity namespaces (debounced)
	for _, ns := range EntityNamespaces {
		c.Put(Key{Namespace: ns, ID: "e9"}, ns)
	}
	bus.Publish(events.EntityUpdated{EntityID: "e9"})

	require.Eventually(t, func() bool {
		for _, ns := range EntityNamespaces {
			state, ok := c.State(Key{Namespace: ns, ID: "e9"})
			if !ok || state != StateStale {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
}
