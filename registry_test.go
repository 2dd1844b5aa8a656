package holocrypt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRegistryAcquireReusesClient(t *testing.T) {
	r := NewRegistry(newFakeBackend().factory(), WithRegistryLogger(NopLogger{}))
	defer r.Close()

	a, err := r.Acquire("c1")
	require.NoError(t, err)
	b, err := r.Acquire("c1")
	require.NoError(t, err)
	other, err := r.Acquire("c2")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
	assert.NotSame(t, a.Throttle, other.Throttle)
	assert.Equal(t, 2, r.Len())

	found, ok := r.Lookup("c2")
	assert.True(t, ok)
	assert.Same(t, other, found)
}

func TestRegistryClientsAreIsolated(t *testing.T) {
	r := NewRegistry(newFakeBackend().factory(), WithRegistryLogger(NopLogger{}))
	defer r.Close()

	a, _ := r.Acquire("c1")
	b, _ := r.Acquire("c2")
	waitLoaded(t, a.Auth)
	waitLoaded(t, b.Auth)

	_, err := a.Auth.SignIn(context.Background(), "neo@example.com", "secret1")
	require.NoError(t, err)

	assert.True(t, a.Auth.State().Authenticated())
	assert.False(t, b.Auth.State().Authenticated())

	a.Throttle.Fail()
	assert.Equal(t, 0, b.Throttle.Attempts())
}

func TestRegistryFactoryError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry(StoreFactoryFunc(func(string) (SessionStore, error) { return nil, boom }))
	defer r.Close()

	_, err := r.Acquire("c1")
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, r.Len())
}

func TestRegistrySweepEvictsIdleClients(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	r := NewRegistry(newFakeBackend().factory(),
		WithRegistryLogger(NopLogger{}),
		WithRegistryMetrics(metrics),
		WithRegistryClock(clock.Now),
		WithClientTTL(10*time.Minute),
	)
	defer r.Close()

	idle, _ := r.Acquire("idle")
	_, _ = r.Acquire("busy")
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ClientScopes))

	clock.Advance(8 * time.Minute)
	_, _ = r.Acquire("busy")
	clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, r.Sweep(clock.Now()))
	assert.True(t, idle.Auth.Closed())

	_, ok := r.Lookup("idle")
	assert.False(t, ok)
	_, ok = r.Lookup("busy")
	assert.True(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ClientScopes))
}

func TestRegistryReleaseAndClose(t *testing.T) {
	r := NewRegistry(newFakeBackend().factory(), WithRegistryLogger(NopLogger{}))

	c, _ := r.Acquire("c1")
	r.Release("c1")
	r.Release("c1")
	assert.True(t, c.Auth.Closed())
	assert.Zero(t, r.Len())

	kept, _ := r.Acquire("c2")
	r.Close()
	r.Close()
	assert.True(t, kept.Auth.Closed())

	_, err := r.Acquire("c3")
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestRegistryRunStopsOnCancel(t *testing.T) {
	r := NewRegistry(newFakeBackend().factory(),
		WithRegistryLogger(NopLogger{}),
		WithSweepInterval(time.Millisecond),
	)
	c, _ := r.Acquire("c1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, c.Auth.Closed())
}

func TestRegistryStateChangeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	r := NewRegistry(newFakeBackend().factory(), WithRegistryLogger(NopLogger{}), WithRegistryMetrics(metrics))
	defer r.Close()

	c, _ := r.Acquire("c1")
	waitLoaded(t, c.Auth)

	_, err := c.Auth.SignIn(context.Background(), "neo@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, c.Auth.SignOut(context.Background()))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StateChanges.WithLabelValues("signed_in")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.StateChanges.WithLabelValues("signed_out")), float64(1))
}

func TestRegistryEvictsLeastRecentWhenFull(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(newFakeBackend().factory(),
		WithRegistryLogger(NopLogger{}),
		WithRegistryClock(clock.Now),
		WithMaxClients(2),
	)
	defer r.Close()

	first, err := r.Acquire("c1")
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := r.Acquire("c2")
	require.NoError(t, err)
	clock.Advance(time.Second)

	// c1 is used again, c2 becomes the oldest
	_, err = r.Acquire("c1")
	require.NoError(t, err)
	clock.Advance(time.Second)

	_, err = r.Acquire("c3")
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
	_, ok := r.Lookup("c2")
	assert.False(t, ok)
	_, ok = r.Lookup("c1")
	assert.True(t, ok)
	assert.False(t, first.Auth.Closed())
	assert.True(t, second.Auth.Closed())
}
