package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmmcquay/katago-web/internal/config"
	"github.com/dmmcquay/katago-web/internal/logging"
)

// Recorder receives cache metrics.
type Recorder interface {
	RecordCacheHit()
	RecordCacheMiss()
	SetCacheStats(items, sizeBytes float64)
}

// Manager caches analysis results keyed by the normalized request.
// A disabled Manager misses on every Get and drops every Put.
type Manager[V any] struct {
	cache    *LRU[V]
	logger   logging.ContextLogger
	recorder Recorder
	ttl      time.Duration
}

func NewManager[V any](cfg *config.CacheConfig, logger logging.ContextLogger, recorder Recorder) *Manager[V] {
	m := &Manager[V]{logger: logger, recorder: recorder}
	if cfg == nil || !cfg.Enabled {
		return m
	}
	m.cache = NewLRU[V](cfg.MaxItems, cfg.MaxSizeBytes)
	m.ttl = config.Seconds(cfg.TTLSeconds)
	return m
}

// Key hashes the JSON encoding of request. Struct fields encode in
// declaration order, so equal requests give equal keys.
func Key(request interface{}) (string, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache key: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

func (m *Manager[V]) Get(key string) (V, bool) {
	if m.cache == nil {
		var zero V
		return zero, false
	}

	v, ok := m.cache.Get(key)
	if m.recorder != nil {
		if ok {
			m.recorder.RecordCacheHit()
		} else {
			m.recorder.RecordCacheMiss()
		}
	}
	return v, ok
}

func (m *Manager[V]) Put(key string, value V) {
	if m.cache == nil {
		return
	}

	size := EstimateSize(value)
	m.cache.Put(key, value, size, m.ttl)
	m.logger.Debug("Cached analysis result", "key", key, "size", size)
	m.publish()
}

func (m *Manager[V]) Stats() Stats {
	if m.cache == nil {
		return Stats{}
	}
	return m.cache.Stats()
}

func (m *Manager[V]) Clear() {
	if m.cache != nil {
		m.cache.Clear()
		m.publish()
	}
}

func (m *Manager[V]) IsEnabled() bool {
	return m.cache != nil
}

func (m *Manager[V]) publish() {
	if m.recorder == nil {
		return
	}
	s := m.cache.Stats()
	m.recorder.SetCacheStats(float64(s.Items), float64(s.Size))
}

// EstimateSize approximates the memory held by v from its JSON length.
func EstimateSize(v interface{}) int64 {
	data, err := json.Marshal(v)
	if err != nil {
		return 1024
	}
	return int64(len(data))
}
