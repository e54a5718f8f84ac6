package limiter

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/coocood/freecache"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/reqgate/reqgate/src/config"
	"github.com/reqgate/reqgate/src/settings"
	"github.com/reqgate/reqgate/src/utils"
)

type queueWaiter struct {
	// result is buffered so a rollover can hand off a decision without
	// blocking on a waiter that is concurrently timing out.
	result chan Decision
}

// policyWindow is the mutable admission state for one policy. All fields
// are guarded by mu.
type policyWindow struct {
	mu     sync.Mutex
	policy *config.Policy

	// windowStart is the unix second the current window opened, or 0 before
	// the first admission check.
	windowStart int64
	permitsUsed uint32

	// queue holds callers waiting for the next window, oldest first.
	queue []*queueWaiter
	// releaseTimer is armed only while the queue is non-empty, so idle
	// policies cost nothing. timerGen invalidates callbacks of stopped
	// timers that were already in flight.
	releaseTimer *time.Timer
	timerGen     uint64
}

type fixedWindowLimiter struct {
	config         config.GateConfig
	timeSource     utils.TimeSource
	localCache     *freecache.Cache
	nearLimitRatio float32
	queueMaxWait   time.Duration

	mu      sync.Mutex
	windows map[string]*policyWindow
}

func NewFixedWindowLimiter(gateConfig config.GateConfig, timeSource utils.TimeSource, localCache *freecache.Cache,
	nearLimitRatio float32, queueMaxWait time.Duration,
) RateLimiter {
	return &fixedWindowLimiter{
		config:         gateConfig,
		timeSource:     timeSource,
		localCache:     localCache,
		nearLimitRatio: nearLimitRatio,
		queueMaxWait:   queueMaxWait,
		windows:        map[string]*policyWindow{},
	}
}

func NewFixedWindowLimiterFromSettings(s settings.Settings, gateConfig config.GateConfig,
	timeSource utils.TimeSource, localCache *freecache.Cache,
) RateLimiter {
	return NewFixedWindowLimiter(gateConfig, timeSource, localCache, s.NearLimitRatio, s.QueueMaxWait)
}

func (this *fixedWindowLimiter) Admit(ctx context.Context, policyName string) (Decision, error) {
	policy := this.config.GetPolicy(ctx, policyName)
	if policy == nil {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownPolicy, policyName)
	}

	policy.Stats.TotalHits.Inc()

	// Memoized denial fast path. Only unqueued policies take it: queued
	// policies must reach the queue so callers can wait.
	if decision, ok := this.overLimitFromLocalCache(policy); ok {
		policy.Stats.OverLimit.Inc()
		policy.Stats.OverLimitWithLocalCache.Inc()
		return decision, nil
	}

	w := this.getWindow(policy)
	now := this.timeSource.UnixNow()

	w.mu.Lock()
	if w.windowStart == 0 || now >= w.windowStart+policy.WindowSeconds {
		this.rollover(w, now)
	}

	if w.permitsUsed < policy.PermitLimit {
		w.permitsUsed++
		decision := this.admittedLocked(w, false)
		w.mu.Unlock()
		return decision, nil
	}

	if uint32(len(w.queue)) < policy.QueueLimit {
		waiter := &queueWaiter{result: make(chan Decision, 1)}
		w.queue = append(w.queue, waiter)
		if w.releaseTimer == nil {
			this.armReleaseTimer(w)
		}
		w.mu.Unlock()
		policy.Stats.Queued.Inc()
		return this.waitForRelease(ctx, w, waiter)
	}

	decision := this.deniedLocked(w)
	this.memoizeOverLimit(policy, w.windowStart+policy.WindowSeconds)
	w.mu.Unlock()
	policy.Stats.OverLimit.Inc()
	return decision, nil
}

// waitForRelease blocks a queued caller until a rollover hands it a permit,
// the queue wait bound expires, or its context is done.
func (this *fixedWindowLimiter) waitForRelease(ctx context.Context, w *policyWindow, waiter *queueWaiter) (Decision, error) {
	timer := time.NewTimer(this.queueMaxWait)
	defer timer.Stop()

	select {
	case decision := <-waiter.result:
		return decision, nil

	case <-ctx.Done():
		w.mu.Lock()
		if this.removeWaiterLocked(w, waiter) {
			w.mu.Unlock()
			w.policy.Stats.QueueAbandoned.Inc()
			return Decision{}, ctx.Err()
		}
		w.mu.Unlock()
		// A rollover released this waiter concurrently; the permit is
		// consumed, so report the admission.
		return <-waiter.result, nil

	case <-timer.C:
		w.mu.Lock()
		if this.removeWaiterLocked(w, waiter) {
			decision := this.deniedLocked(w)
			w.mu.Unlock()
			w.policy.Stats.QueueTimeout.Inc()
			w.policy.Stats.OverLimit.Inc()
			return decision, nil
		}
		w.mu.Unlock()
		return <-waiter.result, nil
	}
}

// rollover opens a fresh window at now and releases queued callers FIFO into
// it. Called with w.mu held.
func (this *fixedWindowLimiter) rollover(w *policyWindow, now int64) {
	w.windowStart = now
	w.permitsUsed = 0
	w.timerGen++
	if w.releaseTimer != nil {
		w.releaseTimer.Stop()
		w.releaseTimer = nil
	}

	for len(w.queue) > 0 && w.permitsUsed < w.policy.PermitLimit {
		waiter := w.queue[0]
		w.queue = w.queue[1:]
		w.permitsUsed++
		waiter.result <- this.admittedLocked(w, true)
	}
	if len(w.queue) > 0 {
		this.armReleaseTimer(w)
	}
}

// armReleaseTimer schedules the queued-caller release for the end of the
// current window. Called with w.mu held.
func (this *fixedWindowLimiter) armReleaseTimer(w *policyWindow) {
	w.timerGen++
	gen := w.timerGen
	delay := time.Duration(w.windowStart+w.policy.WindowSeconds-this.timeSource.UnixNow()) * time.Second
	if delay < 0 {
		delay = 0
	}
	w.releaseTimer = time.AfterFunc(delay, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if gen != w.timerGen {
			// A newer timer owns the release now.
			return
		}
		w.releaseTimer = nil
		now := this.timeSource.UnixNow()
		if now < w.windowStart+w.policy.WindowSeconds {
			// An admission check already rolled the window; wait for the
			// new end if anyone is still queued.
			if len(w.queue) > 0 {
				this.armReleaseTimer(w)
			}
			return
		}
		// Rollover stays lazy for untracked traffic: with nobody queued the
		// next admission check opens the fresh window.
		if len(w.queue) == 0 {
			return
		}
		this.rollover(w, now)
	})
}

// admittedLocked builds the decision for a freshly consumed permit and
// keeps the near/within limit accounting. Called with w.mu held.
func (this *fixedWindowLimiter) admittedLocked(w *policyWindow, queued bool) Decision {
	policy := w.policy

	nearLimitThreshold := uint32(math.Floor(float64(this.nearLimitRatio * float32(policy.PermitLimit))))
	policy.Stats.WithinLimit.Inc()
	if w.permitsUsed > nearLimitThreshold {
		policy.Stats.NearLimit.Inc()
	}

	return Decision{
		Allowed:           true,
		Policy:            policy.Name,
		Limit:             policy.PermitLimit,
		Remaining:         policy.PermitLimit - w.permitsUsed,
		RetryAfterSeconds: utils.CalculateReset(w.windowStart, policy.WindowSeconds, this.timeSource),
		Queued:            queued,
	}
}

// deniedLocked builds the denial for an exhausted window. Called with w.mu
// held.
func (this *fixedWindowLimiter) deniedLocked(w *policyWindow) Decision {
	return Decision{
		Allowed:           false,
		Policy:            w.policy.Name,
		Limit:             w.policy.PermitLimit,
		Remaining:         0,
		RetryAfterSeconds: utils.CalculateReset(w.windowStart, w.policy.WindowSeconds, this.timeSource),
	}
}

// removeWaiterLocked drops a waiter from the queue. A false return means a
// rollover already popped it and its decision is in flight. Called with
// w.mu held.
func (this *fixedWindowLimiter) removeWaiterLocked(w *policyWindow, waiter *queueWaiter) bool {
	for i, queued := range w.queue {
		if queued == waiter {
			w.queue = append(w.queue[:i], w.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (this *fixedWindowLimiter) getWindow(policy *config.Policy) *policyWindow {
	this.mu.Lock()
	defer this.mu.Unlock()
	w := this.windows[policy.Name]
	if w == nil {
		w = &policyWindow{policy: policy}
		this.windows[policy.Name] = w
	}
	return w
}

// memoizeOverLimit records an exhausted unqueued policy in the local cache
// until its window closes, so repeat denials skip the window lock.
func (this *fixedWindowLimiter) memoizeOverLimit(policy *config.Policy, windowEnd int64) {
	if this.localCache == nil || policy.QueueLimit != 0 {
		return
	}
	ttl := windowEnd - this.timeSource.UnixNow()
	if ttl < 1 {
		ttl = 1
	}
	err := this.localCache.Set([]byte(policy.Name), strconv.AppendInt(nil, windowEnd, 10), int(ttl))
	if err != nil {
		logger.Errorf("failed to set local cache key: %s", policy.Name)
	}
}

// overLimitFromLocalCache rebuilds a denial from a memoized window end.
func (this *fixedWindowLimiter) overLimitFromLocalCache(policy *config.Policy) (Decision, bool) {
	if this.localCache == nil || policy.QueueLimit != 0 {
		return Decision{}, false
	}
	value, err := this.localCache.Get([]byte(policy.Name))
	if err != nil {
		return Decision{}, false
	}
	windowEnd, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return Decision{}, false
	}
	retryAfter := windowEnd - this.timeSource.UnixNow()
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Decision{
		Allowed:           false,
		Policy:            policy.Name,
		Limit:             policy.PermitLimit,
		Remaining:         0,
		RetryAfterSeconds: retryAfter,
	}, true
}
