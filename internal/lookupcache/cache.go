// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lookupcache deduplicates and time-bounds external lookups. Results
// are cached per key with a retention ceiling (30 days by default); entries
// older than the ceiling are treated as misses and refreshed. Concurrent
// requests for the same key share a single in-flight fetch, and all fetches
// pass through a token-bucket rate guard.
package lookupcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// keyPrefix namespaces lookup keys in Redis.
const keyPrefix = "analysis:lookup:"

// Backend is the storage behind the cache. The production backend is Redis;
// tests use the in-memory one.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache is the shared lookup cache and rate guard.
type Cache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	limiter *rate.Limiter
	now     func() time.Time
}

// New creates a Redis-backed cache with the given retention in days and a
// token-bucket rate guard over external fetches.
func New(rdb *redis.Client, ttlDays int, ratePerSec float64, burst int) *Cache {
	return NewWithBackend(&redisBackend{rdb: rdb}, time.Duration(ttlDays)*24*time.Hour, ratePerSec, burst)
}

// NewWithBackend creates a cache over an arbitrary backend.
func NewWithBackend(b Backend, ttl time.Duration, ratePerSec float64, burst int) *Cache {
	return &Cache{
		backend: b,
		ttl:     ttl,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		now:     time.Now,
	}
}

// Key derives a namespaced cache key. Values (URLs in particular) can be
// arbitrarily long, so the value is hashed rather than embedded.
func Key(kind, value string) string {
	return fmt.Sprintf("%s%s:%016x", keyPrefix, kind, xxhash.Sum64String(value))
}

// envelope wraps a cached value with its fetch time so staleness is judged
// by the cache, independent of backend eviction.
type envelope struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Data      json.RawMessage `json:"data"`
}

// GetOrFetch returns the cached value for key if one exists and is younger
// than the retention ceiling. Otherwise it invokes fetch — at most once per
// key across concurrent callers — caches the result, and returns it. The
// second return value reports whether the value came from cache.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, fetch func(context.Context) (T, error)) (T, bool, error) {
	var zero T

	if raw, ok, err := c.backend.Get(ctx, key); err == nil && ok {
		var env envelope
		if json.Unmarshal(raw, &env) == nil && c.now().Sub(env.FetchedAt) < c.ttl {
			var v T
			if json.Unmarshal(env.Data, &v) == nil {
				return v, true, nil
			}
		}
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight lock: a concurrent caller may have
		// just populated the entry.
		if raw, ok, err := c.backend.Get(ctx, key); err == nil && ok {
			var env envelope
			if json.Unmarshal(raw, &env) == nil && c.now().Sub(env.FetchedAt) < c.ttl {
				var v T
				if json.Unmarshal(env.Data, &v) == nil {
					return v, nil
				}
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal cached value: %w", err)
		}
		env, err := json.Marshal(envelope{FetchedAt: c.now(), Data: data})
		if err != nil {
			return nil, fmt.Errorf("marshal cache envelope: %w", err)
		}
		// A failed write only costs a future re-fetch.
		_ = c.backend.Set(ctx, key, env, c.ttl)

		return v, nil
	})
	if err != nil {
		return zero, false, err
	}
	return res.(T), false, nil
}

// redisBackend stores entries in Redis with the TTL enforced server-side as
// well as via the envelope timestamp.
type redisBackend struct {
	rdb *redis.Client
}

func (r *redisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache GET: %w", err)
	}
	return raw, true, nil
}

func (r *redisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache SET: %w", err)
	}
	return nil
}

// MemoryBackend is an in-process Backend used by tests and single-node
// deployments without Redis.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.entries[key]
	return raw, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}
