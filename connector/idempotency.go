package connector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// IdempotencyWindow is how long a cached Response is replayed for a repeated
// (tenant_id, key) pair. The spec calls for "a short in-memory window"
// without naming a duration; chosen to comfortably outlast the retry
// policy's worst case (5 attempts, cap 10s each) plus typical client
// retry delay.
const IdempotencyWindow = 5 * time.Minute

// idempotencyManager dedupes connector calls the provider itself doesn't
// support an idempotency key for, adapted from llm/idempotency.memoryManager:
// same Get/Set/cleanup-loop shape, specialized to cache a Response value
// directly rather than a json.RawMessage, since this cache never crosses a
// process boundary.
type idempotencyManager struct {
	mu     sync.Mutex
	cache  map[string]idempotencyEntry
	logger *zap.Logger
	stopCh chan struct{}
}

type idempotencyEntry struct {
	resp      Response
	err       error
	expiresAt time.Time
}

func newIdempotencyManager(logger *zap.Logger) *idempotencyManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &idempotencyManager{
		cache:  make(map[string]idempotencyEntry),
		logger: logger,
		stopCh: make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

func idempotencyCacheKey(tenantID, key string) string {
	return tenantID + ":" + key
}

func (m *idempotencyManager) get(tenantID, key string) (Response, error, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.cache[idempotencyCacheKey(tenantID, key)]
	if !ok || time.Now().After(entry.expiresAt) {
		return Response{}, nil, false
	}
	return entry.resp, entry.err, true
}

func (m *idempotencyManager) set(tenantID, key string, resp Response, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache[idempotencyCacheKey(tenantID, key)] = idempotencyEntry{
		resp:      resp,
		err:       err,
		expiresAt: time.Now().Add(IdempotencyWindow),
	}
}

func (m *idempotencyManager) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopCh:
			return
		}
	}
}

func (m *idempotencyManager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	expired := 0
	for k, entry := range m.cache {
		if now.After(entry.expiresAt) {
			delete(m.cache, k)
			expired++
		}
	}
	if expired > 0 {
		m.logger.Debug("cleaned up expired idempotency entries",
			zap.Int("expired", expired),
			zap.Int("remaining", len(m.cache)))
	}
}

func (m *idempotencyManager) close() {
	close(m.stopCh)
}

// withIdempotency replays a cached result for (tenantID, key) if one exists
// within IdempotencyWindow, otherwise calls fn and caches its outcome. It is
// a no-op passthrough when key is empty: callers that don't provide one get
// no deduping.
func (m *idempotencyManager) withIdempotency(_ context.Context, tenantID, key string, fn func() (Response, error)) (Response, error) {
	if key == "" {
		return fn()
	}
	if resp, err, ok := m.get(tenantID, key); ok {
		return resp, err
	}
	resp, err := fn()
	m.set(tenantID, key, resp, err)
	return resp, err
}
