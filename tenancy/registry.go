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

package tenancy

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// registryEntry is a cached directory row with expiration.
type registryEntry struct {
	descriptor *TenantDescriptor
	expiresAt  time.Time
}

// IsExpired checks if the cached entry has expired.
func (e *registryEntry) IsExpired() bool {
	return time.Now().After(e.expiresAt)
}

// Registry resolves tenant ids to descriptors through the master directory,
// caching results for a short TTL so that status transitions (suspension,
// reactivation) are observed within the TTL without a directory round trip
// on every request.
//
// The TTL must stay small: it bounds how long a suspended tenant can keep
// acquiring pools. Anything over a few seconds is a policy bug.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry

	store DirectoryStore
	ttl   time.Duration

	stats RegistryStats
}

// RegistryStats tracks directory cache performance.
type RegistryStats struct {
	mu     sync.Mutex
	Hits   int64
	Misses int64
}

// DefaultRegistryTTL bounds staleness of cached tenant status.
const DefaultRegistryTTL = 2 * time.Second

// NewRegistry creates a Registry backed by the given directory store.
// ttl <= 0 selects DefaultRegistryTTL.
func NewRegistry(store DirectoryStore, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultRegistryTTL
	}
	return &Registry{
		entries: make(map[string]*registryEntry),
		store:   store,
		ttl:     ttl,
	}
}

// Resolve returns the current descriptor for tenantID, reading through the
// cache. Returns ErrTenantNotFound when the directory has no such tenant.
func (r *Registry) Resolve(ctx context.Context, tenantID string) (*TenantDescriptor, error) {
	r.mu.RLock()
	entry, exists := r.entries[tenantID]
	if exists && !entry.IsExpired() {
		desc := entry.descriptor
		r.mu.RUnlock()
		r.recordHit()
		return desc, nil
	}
	r.mu.RUnlock()

	r.recordMiss()

	desc, err := r.store.LookupTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant '%s': %w", tenantID, err)
	}

	r.mu.Lock()
	r.entries[tenantID] = &registryEntry{
		descriptor: desc,
		expiresAt:  time.Now().Add(r.ttl),
	}
	r.mu.Unlock()

	return desc, nil
}

// Invalidate drops the cached entry for a tenant so the next Resolve reads
// the directory. Called after tenant mutations (create, suspend).
func (r *Registry) Invalidate(tenantID string) {
	r.mu.Lock()
	delete(r.entries, tenantID)
	r.mu.Unlock()
}

// Stats returns a copy of the cache counters.
func (r *Registry) Stats() (hits, misses int64) {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()
	return r.stats.Hits, r.stats.Misses
}

func (r *Registry) recordHit() {
	r.stats.mu.Lock()
	r.stats.Hits++
	r.stats.mu.Unlock()
}

func (r *Registry) recordMiss() {
	r.stats.mu.Lock()
	r.stats.Misses++
	r.stats.mu.Unlock()
}
