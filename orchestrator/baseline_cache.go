// Copyright 2025 QuantumGrid
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

package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"quantumgrid/platform/orchestrator/problem"
)

// BaselineCache remembers the elapsed time of classical baseline runs, keyed
// by instance shape, so a later non-classical run over an equivalent shape can
// compute an advantage ratio without rerunning the classical solver. A cache
// miss is never an error for the caller; the ratio is simply left uncomputed.
type BaselineCache interface {
	// Get returns the cached baseline elapsed milliseconds for the shape key,
	// with found=false on a miss.
	Get(ctx context.Context, key string) (elapsedMs int64, found bool, err error)

	// Put records a baseline run for the shape key.
	Put(ctx context.Context, key string, elapsedMs int64) error
}

// BaselineKey derives the shape key for an instance. Two instances with the
// same key are treated as comparable for advantage purposes.
func BaselineKey(inst *problem.Instance) string {
	return fmt.Sprintf("%s/%s/%d", inst.SourcePod, inst.SizeClass(), inst.VariableCount)
}

const baselineKeyPrefix = "quantumgrid:baseline:"

// RedisBaselineCache stores baseline timings in Redis with a TTL so stale
// baselines age out as backends change.
type RedisBaselineCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBaselineCache creates a cache over an existing Redis client.
// A non-positive ttl defaults to 24h.
func NewRedisBaselineCache(client *redis.Client, ttl time.Duration) *RedisBaselineCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisBaselineCache{client: client, ttl: ttl}
}

// Get implements BaselineCache.
func (c *RedisBaselineCache) Get(ctx context.Context, key string) (int64, bool, error) {
	val, err := c.client.Get(ctx, baselineKeyPrefix+key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read baseline cache: %w", err)
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt baseline cache entry %q: %w", key, err)
	}
	return ms, true, nil
}

// Put implements BaselineCache.
func (c *RedisBaselineCache) Put(ctx context.Context, key string, elapsedMs int64) error {
	if err := c.client.Set(ctx, baselineKeyPrefix+key, strconv.FormatInt(elapsedMs, 10), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write baseline cache: %w", err)
	}
	return nil
}

// MemoryBaselineCache is the in-process cache used when Redis is not
// configured, and in tests.
type MemoryBaselineCache struct {
	mu      sync.RWMutex
	entries map[string]int64
}

// NewMemoryBaselineCache creates an empty in-memory cache.
func NewMemoryBaselineCache() *MemoryBaselineCache {
	return &MemoryBaselineCache{entries: make(map[string]int64)}
}

// Get implements BaselineCache.
func (c *MemoryBaselineCache) Get(ctx context.Context, key string) (int64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ms, ok := c.entries[key]
	return ms, ok, nil
}

// Put implements BaselineCache.
func (c *MemoryBaselineCache) Put(ctx context.Context, key string, elapsedMs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = elapsedMs
	return nil
}
