// Copyright 2025 TenantGrid
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

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrRateLimited is returned when a caller exceeds the login attempt
// budget inside the current window.
var ErrRateLimited = errors.New("rate limit exceeded")

// rateLimitEntry tracks attempt counts for the in-memory fallback.
// The window is fixed: when it expires the counter resets.
type rateLimitEntry struct {
	count     int
	resetTime time.Time
}

// LoginLimiter throttles login attempts per key (email + client IP).
// When a Redis URL is configured it uses a sliding-window sorted set so
// the limit holds across server replicas; otherwise it falls back to a
// per-process fixed window.
type LoginLimiter struct {
	limit  int
	window time.Duration

	redis *redis.Client

	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

// NewLoginLimiter creates a limiter allowing limit attempts per minute.
// redisURL may be empty; a Redis that cannot be reached at startup is
// logged and the limiter degrades to in-memory.
func NewLoginLimiter(limit int, redisURL string) *LoginLimiter {
	l := &LoginLimiter{
		limit:   limit,
		window:  time.Minute,
		entries: make(map[string]*rateLimitEntry),
	}

	if redisURL == "" {
		return l
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("⚠️  Invalid Redis URL, login rate limiting is in-memory only: %v", err)
		return l
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  Redis unreachable, login rate limiting is in-memory only: %v", err)
		return l
	}

	log.Printf("✅ Redis connected for distributed login rate limiting")
	l.redis = client
	return l
}

// Allow records one attempt for key and returns ErrRateLimited when the
// budget is exhausted.
func (l *LoginLimiter) Allow(ctx context.Context, key string) error {
	if l.redis == nil {
		return l.allowMemory(key)
	}
	return l.allowRedis(ctx, key)
}

func (l *LoginLimiter) allowMemory(key string) error {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.entries[key]
	if !exists || now.After(entry.resetTime) {
		l.entries[key] = &rateLimitEntry{count: 1, resetTime: now.Add(l.window)}
		return nil
	}

	entry.count++
	if entry.count > l.limit {
		return fmt.Errorf("%w: %d attempts/minute (limit: %d)", ErrRateLimited, entry.count, l.limit)
	}
	return nil
}

func (l *LoginLimiter) allowRedis(ctx context.Context, key string) error {
	now := time.Now()
	redisKey := fmt.Sprintf("loginlimit:%s", key)

	pipe := l.redis.Pipeline()

	// Drop timestamps that fell out of the sliding window
	minScore := now.Add(-l.window).Unix()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", minScore))
	pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, &redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, redisKey, 2*l.window)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		// On Redis error fail open so an outage never locks everyone out
		log.Printf("Warning: Redis rate limit check failed for %s: %v (failing open)", key, err)
		return nil
	}

	count := cmds[1].(*redis.IntCmd).Val()
	if count >= int64(l.limit) {
		return fmt.Errorf("%w: %d attempts/minute (limit: %d)", ErrRateLimited, count+1, l.limit)
	}
	return nil
}

// Close releases the Redis connection if one is open.
func (l *LoginLimiter) Close() error {
	if l.redis != nil {
		return l.redis.Close()
	}
	return nil
}
