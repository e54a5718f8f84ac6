package limiter_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coocood/freecache"
	gostats "github.com/lyft/gostats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqgate/reqgate/src/config"
	"github.com/reqgate/reqgate/src/limiter"
	"github.com/reqgate/reqgate/src/settings"
	"github.com/reqgate/reqgate/src/stats"
	"github.com/reqgate/reqgate/src/utils"
)

type fakeTimeSource struct {
	mu  sync.Mutex
	now int64
}

func (f *fakeTimeSource) UnixNow() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTimeSource) set(now int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func newTestConfig(t *testing.T, policies map[string]config.YamlPolicy) config.GateConfig {
	t.Helper()
	sm := stats.NewStatManager(gostats.NewStore(gostats.NewNullSink(), false), settings.Settings{})
	return config.NewGateConfigImpl(
		config.GateConfigToLoad{Name: "test.yaml", ConfigYaml: &config.YamlRoot{Policies: policies}}, sm)
}

func TestAdmitConsumesPermitsUntilExhausted(t *testing.T) {
	assert := assert.New(t)
	ts := &fakeTimeSource{now: 1000}
	cfg := newTestConfig(t, map[string]config.YamlPolicy{
		"api": {PermitLimit: 2, WindowSeconds: 10},
	})
	rl := limiter.NewFixedWindowLimiter(cfg, ts, nil, 0.8, time.Second)

	d, err := rl.Admit(context.Background(), "api")
	assert.NoError(err)
	assert.True(d.Allowed)
	assert.Equal("api", d.Policy)
	assert.Equal(uint32(2), d.Limit)
	assert.Equal(uint32(1), d.Remaining)
	assert.Equal(int64(10), d.RetryAfterSeconds)
	assert.False(d.Queued)

	d, err = rl.Admit(context.Background(), "api")
	assert.NoError(err)
	assert.True(d.Allowed)
	assert.Equal(uint32(0), d.Remaining)

	d, err = rl.Admit(context.Background(), "api")
	assert.NoError(err)
	assert.False(d.Allowed)
	assert.Equal(uint32(0), d.Remaining)
	assert.Equal(int64(10), d.RetryAfterSeconds)

	ts.set(1009)
	d, _ = rl.Admit(context.Background(), "api")
	assert.False(d.Allowed)
	assert.Equal(int64(1), d.RetryAfterSeconds)
}

// A fresh window opens at the first admission check past the window end,
// not on a wall-clock grid.
func TestWindowOpensAtAdmissionTime(t *testing.T) {
	assert := assert.New(t)
	ts := &fakeTimeSource{now: 1000}
	cfg := newTestConfig(t, map[string]config.YamlPolicy{
		"api": {PermitLimit: 2, WindowSeconds: 10},
	})
	rl := limiter.NewFixedWindowLimiter(cfg, ts, nil, 0.8, time.Second)

	for i := 0; i < 2; i++ {
		d, err := rl.Admit(context.Background(), "api")
		assert.NoError(err)
		assert.True(d.Allowed)
	}

	// Boundary instant belongs to the next window.
	ts.set(1010)
	d, _ := rl.Admit(context.Background(), "api")
	assert.True(d.Allowed)
	assert.Equal(uint32(1), d.Remaining)
	assert.Equal(int64(10), d.RetryAfterSeconds)

	// A long idle gap anchors the window at the next check, so a permit
	// consumed at 1025 is still counted at 1034.
	ts.set(1025)
	d, _ = rl.Admit(context.Background(), "api")
	assert.True(d.Allowed)

	ts.set(1034)
	d, _ = rl.Admit(context.Background(), "api")
	assert.True(d.Allowed)
	assert.Equal(uint32(0), d.Remaining)

	d, _ = rl.Admit(context.Background(), "api")
	assert.False(d.Allowed)
	assert.Equal(int64(1), d.RetryAfterSeconds)
}

func TestConcurrentAdmissionExactness(t *testing.T) {
	assert := assert.New(t)
	cfg := newTestConfig(t, map[string]config.YamlPolicy{
		"api": {PermitLimit: 10, WindowSeconds: 60},
	})
	rl := limiter.NewFixedWindowLimiter(cfg, utils.NewTimeSourceImpl(), nil, 0.8, time.Second)

	const callers = 50
	var admitted, denied int64
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			d, err := rl.Admit(context.Background(), "api")
			if err != nil {
				t.Error(err)
				return
			}
			if d.Allowed {
				atomic.AddInt64(&admitted, 1)
			} else {
				atomic.AddInt64(&denied, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(int64(10), admitted)
	assert.Equal(int64(40), denied)
}

func TestQueuedCallersReleaseInOrder(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	cfg := newTestConfig(t, map[string]config.YamlPolicy{
		"api": {PermitLimit: 1, WindowSeconds: 1, QueueLimit: 2},
	})
	rl := limiter.NewFixedWindowLimiter(cfg, utils.NewTimeSourceImpl(), nil, 0.8, 10*time.Second)
	policy := cfg.GetPolicy(context.Background(), "api")

	d, err := rl.Admit(context.Background(), "api")
	require.NoError(err)
	require.True(d.Allowed)

	order := make(chan string, 2)
	admitQueued := func(name string) {
		d, err := rl.Admit(context.Background(), "api")
		assert.NoError(err)
		assert.True(d.Allowed)
		assert.True(d.Queued)
		order <- name
	}

	go admitQueued("first")
	assert.Eventually(func() bool { return policy.Stats.Queued.Value() == 1 }, 2*time.Second, 5*time.Millisecond)
	go admitQueued("second")
	assert.Eventually(func() bool { return policy.Stats.Queued.Value() == 2 }, 2*time.Second, 5*time.Millisecond)

	// One permit per window: the first rollover admits "first", the next
	// admits "second".
	assert.Equal("first", <-order)
	assert.Equal("second", <-order)
}

func TestQueueWaitBoundExpires(t *testing.T) {
	assert := assert.New(t)
	cfg := newTestConfig(t, map[string]config.YamlPolicy{
		"api": {PermitLimit: 1, WindowSeconds: 60, QueueLimit: 1},
	})
	rl := limiter.NewFixedWindowLimiter(cfg, utils.NewTimeSourceImpl(), nil, 0.8, 50*time.Millisecond)
	policy := cfg.GetPolicy(context.Background(), "api")

	d, err := rl.Admit(context.Background(), "api")
	assert.NoError(err)
	assert.True(d.Allowed)

	begin := time.Now()
	d, err = rl.Admit(context.Background(), "api")
	assert.NoError(err)
	assert.False(d.Allowed)
	assert.GreaterOrEqual(d.RetryAfterSeconds, int64(1))
	assert.GreaterOrEqual(time.Since(begin), 50*time.Millisecond)
	assert.Equal(uint64(1), policy.Stats.QueueTimeout.Value())
	assert.Equal(uint64(1), policy.Stats.OverLimit.Value())
}

func TestQueueOverflowDeniesImmediately(t *testing.T) {
	assert := assert.New(t)
	cfg := newTestConfig(t, map[string]config.YamlPolicy{
		"api": {PermitLimit: 1, WindowSeconds: 60, QueueLimit: 1},
	})
	rl := limiter.NewFixedWindowLimiter(cfg, utils.NewTimeSourceImpl(), nil, 0.8, 10*time.Second)
	policy := cfg.GetPolicy(context.Background(), "api")

	d, _ := rl.Admit(context.Background(), "api")
	assert.True(d.Allowed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_, _ = rl.Admit(ctx, "api")
	}()
	assert.Eventually(func() bool { return policy.Stats.Queued.Value() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Queue full: the next caller is denied without waiting.
	begin := time.Now()
	d, err := rl.Admit(context.Background(), "api")
	assert.NoError(err)
	assert.False(d.Allowed)
	assert.Less(time.Since(begin), time.Second)
}

func TestAbandoningQueueFreesTheSlot(t *testing.T) {
	assert := assert.New(t)
	cfg := newTestConfig(t, map[string]config.YamlPolicy{
		"api": {PermitLimit: 1, WindowSeconds: 60, QueueLimit: 1},
	})
	rl := limiter.NewFixedWindowLimiter(cfg, utils.NewTimeSourceImpl(), nil, 0.8, 10*time.Second)
	policy := cfg.GetPolicy(context.Background(), "api")

	d, _ := rl.Admit(context.Background(), "api")
	assert.True(d.Allowed)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := rl.Admit(ctx, "api")
		errs <- err
	}()
	assert.Eventually(func() bool { return policy.Stats.Queued.Value() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(<-errs, context.Canceled)
	assert.Equal(uint64(1), policy.Stats.QueueAbandoned.Value())

	// The abandoned slot is free again, so another caller can queue
	// instead of being denied for queue overflow.
	ctx2, cancel2 := context.WithCancel(context.Background())
	go func() {
		_, err := rl.Admit(ctx2, "api")
		errs <- err
	}()
	assert.Eventually(func() bool { return policy.Stats.Queued.Value() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel2()
	assert.ErrorIs(<-errs, context.Canceled)

	// No permit was consumed by either abandoned waiter.
	assert.Equal(uint64(1), policy.Stats.WithinLimit.Value())
}

func TestZeroPermitPolicy(t *testing.T) {
	assert := assert.New(t)
	ts := &fakeTimeSource{now: 1000}
	cfg := newTestConfig(t, map[string]config.YamlPolicy{
		"blocked": {PermitLimit: 0, WindowSeconds: 5},
	})
	rl := limiter.NewFixedWindowLimiter(cfg, ts, nil, 0.8, time.Second)

	for _, now := range []int64{1000, 1001, 1005, 1100} {
		ts.set(now)
		d, err := rl.Admit(context.Background(), "blocked")
		assert.NoError(err)
		assert.False(d.Allowed)
	}
}

func TestZeroPermitPolicyWithQueueWaitsThenDenies(t *testing.T) {
	assert := assert.New(t)
	cfg := newTestConfig(t, map[string]config.YamlPolicy{
		"blocked": {PermitLimit: 0, WindowSeconds: 60, QueueLimit: 1},
	})
	rl := limiter.NewFixedWindowLimiter(cfg, utils.NewTimeSourceImpl(), nil, 0.8, 50*time.Millisecond)
	policy := cfg.GetPolicy(context.Background(), "blocked")

	begin := time.Now()
	d, err := rl.Admit(context.Background(), "blocked")
	assert.NoError(err)
	assert.False(d.Allowed)
	assert.GreaterOrEqual(time.Since(begin), 50*time.Millisecond)
	assert.Equal(uint64(1), policy.Stats.Queued.Value())
	assert.Equal(uint64(1), policy.Stats.QueueTimeout.Value())
}

func TestUnknownPolicy(t *testing.T) {
	assert := assert.New(t)
	cfg := newTestConfig(t, map[string]config.YamlPolicy{})
	rl := limiter.NewFixedWindowLimiter(cfg, utils.NewTimeSourceImpl(), nil, 0.8, time.Second)

	_, err := rl.Admit(context.Background(), "nope")
	assert.ErrorIs(err, limiter.ErrUnknownPolicy)
}

func TestOverLimitMemoizedInLocalCache(t *testing.T) {
	assert := assert.New(t)
	ts := &fakeTimeSource{now: 1000}
	cfg := newTestConfig(t, map[string]config.YamlPolicy{
		"api": {PermitLimit: 1, WindowSeconds: 10},
	})
	localCache := freecache.NewCache(4096)
	rl := limiter.NewFixedWindowLimiter(cfg, ts, localCache, 0.8, time.Second)
	policy := cfg.GetPolicy(context.Background(), "api")

	d, _ := rl.Admit(context.Background(), "api")
	assert.True(d.Allowed)

	// First denial takes the window lock and memoizes the exhausted window.
	d, _ = rl.Admit(context.Background(), "api")
	assert.False(d.Allowed)
	assert.Equal(uint64(0), policy.Stats.OverLimitWithLocalCache.Value())

	// Subsequent denials are served from the cache with the same horizon.
	ts.set(1003)
	d, _ = rl.Admit(context.Background(), "api")
	assert.False(d.Allowed)
	assert.Equal(int64(7), d.RetryAfterSeconds)
	assert.Equal(uint64(1), policy.Stats.OverLimitWithLocalCache.Value())
	assert.Equal(uint64(2), policy.Stats.OverLimit.Value())
}

func TestNearLimitAccounting(t *testing.T) {
	assert := assert.New(t)
	ts := &fakeTimeSource{now: 1000}
	cfg := newTestConfig(t, map[string]config.YamlPolicy{
		"api": {PermitLimit: 10, WindowSeconds: 60},
	})
	rl := limiter.NewFixedWindowLimiter(cfg, ts, nil, 0.8, time.Second)
	policy := cfg.GetPolicy(context.Background(), "api")

	for i := 0; i < 11; i++ {
		_, err := rl.Admit(context.Background(), "api")
		assert.NoError(err)
	}

	// Threshold is 8 of 10: admissions 9 and 10 count as near limit.
	assert.Equal(uint64(11), policy.Stats.TotalHits.Value())
	assert.Equal(uint64(10), policy.Stats.WithinLimit.Value())
	assert.Equal(uint64(2), policy.Stats.NearLimit.Value())
	assert.Equal(uint64(1), policy.Stats.OverLimit.Value())
}
