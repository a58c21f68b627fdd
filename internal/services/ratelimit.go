package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	"github.com/digvijay2003/contract-intelligence-api/internal/observability/metrics"
)

// CounterStore is the shared-counter backend for quota enforcement.
// CheckAndIncr admits only when every counter is below its limit and
// increments all of them atomically with the admission decision; it
// returns the index of the first exceeded counter, or -1 on admission.
// The redis-backed implementation lives in clients/redis.
type CounterStore interface {
	CheckAndIncr(ctx context.Context, keys []string, limits []int64, ttls []time.Duration) (int, error)
}

// Limits are the four quota ceilings: both identity dimensions, each
// with a minute and a day window.
type Limits struct {
	IPPerMinute      int64
	IPPerDay         int64
	SessionPerMinute int64
	SessionPerDay    int64
}

func DefaultLimits() Limits {
	return Limits{
		IPPerMinute:      10,
		IPPerDay:         500,
		SessionPerMinute: 20,
		SessionPerDay:    1000,
	}
}

// Rejection says which quota dimension and window turned the request
// away and when that window resets.
type Rejection struct {
	Dimension  string
	Window     string
	RetryAfter time.Duration
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s per %s, retry after %s", r.Dimension, r.Window, r.RetryAfter)
}

type RateLimiter struct {
	log     *logger.Logger
	metrics metrics.Recorder
	store   CounterStore
	limits  Limits
	now     func() time.Time
}

func NewRateLimiter(baseLog *logger.Logger, recorder metrics.Recorder, store CounterStore, limits Limits) *RateLimiter {
	return &RateLimiter{
		log:     baseLog.With("service", "RateLimiter"),
		metrics: recorder,
		store:   store,
		limits:  limits,
		now:     time.Now,
	}
}

const (
	dimensionIP      = "ip"
	dimensionSession = "session"
	windowMinute     = "minute"
	windowDay        = "day"
)

type quotaDim struct {
	dimension string
	window    string
	identity  string
	limit     int64
	span      time.Duration
}

// Check admits or rejects one request. Admission increments all four
// fixed-window counters; a rejected request increments nothing.
func (rl *RateLimiter) Check(ctx context.Context, ip, sessionID string) (*Rejection, error) {
	ip = strings.TrimSpace(ip)
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = "anonymous"
	}

	now := rl.now()
	dims := []quotaDim{
		{dimensionIP, windowMinute, ip, rl.limits.IPPerMinute, time.Minute},
		{dimensionIP, windowDay, ip, rl.limits.IPPerDay, 24 * time.Hour},
		{dimensionSession, windowMinute, sessionID, rl.limits.SessionPerMinute, time.Minute},
		{dimensionSession, windowDay, sessionID, rl.limits.SessionPerDay, 24 * time.Hour},
	}

	keys := make([]string, len(dims))
	limits := make([]int64, len(dims))
	ttls := make([]time.Duration, len(dims))
	for i, d := range dims {
		bucket := now.Truncate(d.span)
		keys[i] = fmt.Sprintf("rl:%s:%s:%s:%d", d.dimension, d.window, d.identity, bucket.Unix())
		limits[i] = d.limit
		ttls[i] = d.span
	}

	exceeded, err := rl.store.CheckAndIncr(ctx, keys, limits, ttls)
	if err != nil {
		return nil, err
	}
	if exceeded < 0 {
		return nil, nil
	}

	d := dims[exceeded]
	reset := now.Truncate(d.span).Add(d.span).Sub(now)
	rl.metrics.RateLimitRejected(d.dimension, d.window)
	rl.log.Debug("Request rejected by rate limiter",
		"dimension", d.dimension,
		"window", d.window,
		"client_ip", ip,
		"session_id", sessionID,
	)
	return &Rejection{Dimension: d.dimension, Window: d.window, RetryAfter: reset}, nil
}

// MemoryCounterStore is a process-local CounterStore. It backs tests
// and single-instance deployments without redis; counters expire at
// their window boundary like the redis variant.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryCounterStore) CheckAndIncr(_ context.Context, keys []string, limits []int64, ttls []time.Duration) (int, error) {
	if len(keys) != len(limits) || len(keys) != len(ttls) {
		return -1, fmt.Errorf("keys/limits/ttls length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, key)
		}
	}

	for i, key := range keys {
		if e, ok := s.entries[key]; ok && e.count >= limits[i] {
			return i, nil
		}
	}
	for i, key := range keys {
		e, ok := s.entries[key]
		if !ok {
			e = memoryEntry{expiresAt: now.Add(ttls[i])}
		}
		e.count++
		s.entries[key] = e
	}
	return -1, nil
}
