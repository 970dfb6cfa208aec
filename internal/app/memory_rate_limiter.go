package app

import (
	"context"
	"math"
	"sync"
	"time"
)

// memoryLimiterMaxKeys caps the tracked key set so a scan of unique subjects
// cannot grow the map without bound.
const memoryLimiterMaxKeys = 100000

type memoryWindow struct {
	count      int
	windowEnds time.Time
}

// MemoryRateLimiter is an in-process RateLimiter used when Redis is not
// configured. Expired windows are evicted opportunistically on every call,
// and when the key set still hits its cap the whole map is reset rather than
// allowing unbounded growth.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

func (m *MemoryRateLimiter) ConsumeRateLimit(
	ctx context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (count int, retryAfterSeconds int, err error) {
	if m == nil || limit <= 0 || window <= 0 || scope == "" || subject == "" {
		return 0, 0, nil
	}

	key := scope + ":" + subject
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictStale(now)

	w, ok := m.windows[key]
	if !ok || !w.windowEnds.After(now) {
		if len(m.windows) >= memoryLimiterMaxKeys {
			m.windows = make(map[string]*memoryWindow)
		}
		w = &memoryWindow{windowEnds: now.Add(window)}
		m.windows[key] = w
	}
	w.count++

	retryAfter := int(math.Ceil(w.windowEnds.Sub(now).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return w.count, retryAfter, nil
}

// evictStale drops expired windows. Caller holds the lock.
func (m *MemoryRateLimiter) evictStale(now time.Time) {
	if len(m.windows) < memoryLimiterMaxKeys/2 {
		return
	}
	for key, w := range m.windows {
		if !w.windowEnds.After(now) {
			delete(m.windows, key)
		}
	}
}
