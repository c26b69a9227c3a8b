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
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver for mysql:// tenant DSNs
	_ "github.com/lib/pq"              // PostgreSQL driver
)

// Opener establishes the connection pool for one tenant database.
// The default opener dials the real database; tests inject their own.
type Opener func(ctx context.Context, desc *TenantDescriptor) (*sql.DB, error)

// tenantPool owns the live connections to one tenant's database.
//
// Lifecycle: created once per tenant on first Acquire, reused until evicted.
// refs counts in-flight borrowers; the pool is only closed during eviction,
// and only when refs is zero. ready is closed when creation completes so
// concurrent first-access callers coalesce onto a single creation instead
// of opening duplicate pools.
type tenantPool struct {
	tenantID   string
	db         *sql.DB
	lastAccess time.Time
	refs       int

	ready chan struct{}
	err   error // creation failure, set before ready is closed
}

// created reports whether creation has completed (successfully or not).
// Callers must not touch db or err until this returns true.
func (p *tenantPool) created() bool {
	select {
	case <-p.ready:
		return true
	default:
		return false
	}
}

// PoolHandle is a borrowed reference to a tenant's pool, valid for the
// duration of one request. Release returns the borrow; it never closes the
// underlying pool. Release is idempotent.
type PoolHandle struct {
	manager *PoolManager
	pool    *tenantPool
	once    sync.Once
}

// DB returns the shared connection pool for the tenant's database.
// Callers check out and return individual connections per query through
// database/sql's own discipline; the handle must not outlive the request.
func (h *PoolHandle) DB() *sql.DB {
	return h.pool.db
}

// TenantID returns the tenant this handle is scoped to.
func (h *PoolHandle) TenantID() string {
	return h.pool.tenantID
}

// Release returns the borrowed pool. Safe to call more than once.
func (h *PoolHandle) Release() {
	h.once.Do(func() {
		h.manager.mu.Lock()
		h.pool.refs--
		h.manager.mu.Unlock()
	})
}

// PoolManagerOptions holds options for creating a PoolManager.
type PoolManagerOptions struct {
	Registry       *Registry
	Opener         Opener // nil selects the default database opener
	MaxPools       int    // pool cache bound, default 10
	PoolSize       int    // max open connections per tenant pool, default 5
	ConnectTimeout time.Duration
	Logger         *log.Logger
}

// PoolStats tracks pool cache behavior.
type PoolStats struct {
	mu           sync.Mutex
	Hits         int64
	Misses       int64
	Creations    int64
	Evictions    int64
	Exhaustions  int64
	OpenFailures int64
	LastEviction time.Time
}

// PoolManager owns the bounded cache of live per-tenant connection pools.
//
// Invariants:
//   - at most one tenantPool per tenant id exists at any time, even under
//     a burst of simultaneous first-access requests;
//   - the cache never holds more than MaxPools entries after a completed
//     insert;
//   - a pool with in-flight borrowers is never evicted. When the cache is
//     full and every pool is busy, Acquire fails with ErrPoolExhausted
//     instead of dropping a pool mid-use.
//
// Eviction picks the single entry with the oldest last-access time among
// idle entries. The cache map is the only shared mutable state; the mutex
// guards map structure and refcounts only, never network I/O — pool
// creation runs outside the lock with waiters parked on the entry's ready
// channel.
type PoolManager struct {
	mu    sync.Mutex
	pools map[string]*tenantPool

	registry       *Registry
	opener         Opener
	maxPools       int
	poolSize       int
	connectTimeout time.Duration
	logger         *log.Logger

	stats PoolStats
}

const (
	// DefaultMaxPools bounds the number of simultaneously open tenant pools.
	DefaultMaxPools = 10

	// DefaultPoolSize is the per-tenant cap on open connections.
	DefaultPoolSize = 5

	// DefaultConnectTimeout bounds tenant database dialing.
	DefaultConnectTimeout = 10 * time.Second
)

// NewPoolManager creates a PoolManager. Construct one instance at startup
// and pass it to every request-handling path; there is no package-level
// singleton so tests can build isolated instances.
func NewPoolManager(opts PoolManagerOptions) *PoolManager {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[POOL_MANAGER] ", log.LstdFlags)
	}

	maxPools := opts.MaxPools
	if maxPools <= 0 {
		maxPools = DefaultMaxPools
	}

	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	m := &PoolManager{
		pools:          make(map[string]*tenantPool),
		registry:       opts.Registry,
		opener:         opts.Opener,
		maxPools:       maxPools,
		poolSize:       poolSize,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
	if m.opener == nil {
		m.opener = m.openTenantDB
	}
	return m
}

// Acquire resolves the tenant, then returns a borrowed handle to its pool,
// creating the pool on first access. Fails with ErrTenantNotFound,
// ErrTenantSuspended, or ErrPoolExhausted; connection failures come back
// wrapped and leave no entry in the cache.
func (m *PoolManager) Acquire(ctx context.Context, tenantID string) (*PoolHandle, error) {
	desc, err := m.registry.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !desc.Active() {
		return nil, fmt.Errorf("tenant '%s' is %s: %w", tenantID, desc.Status, ErrTenantSuspended)
	}

	for {
		m.mu.Lock()
		pool, exists := m.pools[tenantID]

		if exists && pool.created() {
			pool.lastAccess = time.Now()
			pool.refs++
			m.mu.Unlock()
			m.recordHit()
			return &PoolHandle{manager: m, pool: pool}, nil
		}

		if exists {
			// Another caller is opening this tenant's pool. Wait on that
			// creation instead of starting a duplicate.
			m.mu.Unlock()
			select {
			case <-pool.ready:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if pool.err != nil {
				return nil, fmt.Errorf("connect tenant '%s' database: %w", tenantID, pool.err)
			}
			// Creation succeeded; loop to take the hit path. The pool may
			// have been evicted between ready and re-lock, in which case
			// the loop recreates it.
			continue
		}

		m.recordMiss()

		var victim *tenantPool
		if len(m.pools) >= m.maxPools {
			victim = m.evictionVictimLocked()
			if victim == nil {
				m.mu.Unlock()
				m.recordExhaustion()
				m.logger.Printf("Pool cache full (%d) with all pools busy; rejecting tenant '%s'", m.maxPools, tenantID)
				return nil, fmt.Errorf("no idle pool to evict for tenant '%s': %w", tenantID, ErrPoolExhausted)
			}
			delete(m.pools, victim.tenantID)
		}

		pool = &tenantPool{
			tenantID: tenantID,
			ready:    make(chan struct{}),
		}
		m.pools[tenantID] = pool
		m.mu.Unlock()

		if victim != nil {
			m.closePool(victim, "evicted")
		}

		return m.createPool(ctx, desc, pool)
	}
}

// evictionVictimLocked returns the idle pool with the oldest last access,
// or nil when every pool is busy or still being created. Caller holds mu.
func (m *PoolManager) evictionVictimLocked() *tenantPool {
	var victim *tenantPool
	for _, p := range m.pools {
		if p.refs > 0 || !p.created() || p.err != nil {
			continue
		}
		if victim == nil || p.lastAccess.Before(victim.lastAccess) {
			victim = p
		}
	}
	return victim
}

// createPool opens the tenant database and publishes the result to the
// in-flight entry. On failure the entry is removed before waiters are
// released, so no half-initialized pool is ever observable in the cache.
func (m *PoolManager) createPool(ctx context.Context, desc *TenantDescriptor, pool *tenantPool) (*PoolHandle, error) {
	connectCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	db, err := m.opener(connectCtx, desc)
	if err != nil {
		m.mu.Lock()
		delete(m.pools, pool.tenantID)
		m.mu.Unlock()
		pool.err = err
		close(pool.ready)
		m.recordOpenFailure()
		m.logger.Printf("Failed to open pool for tenant '%s': %v", pool.tenantID, err)
		return nil, fmt.Errorf("connect tenant '%s' database: %w", pool.tenantID, err)
	}

	m.mu.Lock()
	pool.db = db
	pool.lastAccess = time.Now()
	pool.refs = 1
	m.mu.Unlock()
	close(pool.ready)

	m.recordCreation()
	m.logger.Printf("Opened pool for tenant '%s' (max_conns=%d)", pool.tenantID, m.poolSize)

	return &PoolHandle{manager: m, pool: pool}, nil
}

// closePool releases a pool's underlying connections. Only called for
// entries already removed from the cache with a zero refcount.
func (m *PoolManager) closePool(pool *tenantPool, reason string) {
	if pool.db == nil {
		return
	}
	if err := pool.db.Close(); err != nil {
		m.logger.Printf("Warning: failed to close pool for tenant '%s': %v", pool.tenantID, err)
	}
	m.recordEviction()
	m.logger.Printf("Closed pool for tenant '%s' (%s)", pool.tenantID, reason)
}

// openTenantDB is the default Opener: it opens a database/sql pool against
// the descriptor's DSN, applies the per-tenant connection limits, and
// verifies reachability within the connect timeout. DSNs default to the
// postgres driver; a mysql:// prefix selects the MySQL driver with the
// remainder passed through in that driver's native format.
func (m *PoolManager) openTenantDB(ctx context.Context, desc *TenantDescriptor) (*sql.DB, error) {
	driver := "postgres"
	dsn := desc.DSN
	if strings.HasPrefix(dsn, "mysql://") {
		driver = "mysql"
		dsn = strings.TrimPrefix(dsn, "mysql://")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s pool: %w", driver, err)
	}

	db.SetMaxOpenConns(m.poolSize)
	db.SetMaxIdleConns(m.poolSize)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping tenant database: %w", err)
	}

	return db, nil
}

// Len returns the number of cached pools, including in-flight creations.
func (m *PoolManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pools)
}

// Close shuts down every cached pool. Used during graceful shutdown; any
// outstanding handles are invalidated because the process is exiting.
func (m *PoolManager) Close(ctx context.Context) {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*tenantPool)
	m.mu.Unlock()

	m.logger.Printf("Closing all tenant pools (%d)...", len(pools))
	for _, p := range pools {
		if !p.created() || p.err != nil {
			continue
		}
		if err := p.db.Close(); err != nil {
			m.logger.Printf("Warning: failed to close pool for tenant '%s': %v", p.tenantID, err)
		}
	}
}

// Stats returns a copy of the cache counters.
func (m *PoolManager) Stats() PoolStats {
	m.stats.mu.Lock()
	defer m.stats.mu.Unlock()
	return PoolStats{
		Hits:         m.stats.Hits,
		Misses:       m.stats.Misses,
		Creations:    m.stats.Creations,
		Evictions:    m.stats.Evictions,
		Exhaustions:  m.stats.Exhaustions,
		OpenFailures: m.stats.OpenFailures,
		LastEviction: m.stats.LastEviction,
	}
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (m *PoolManager) HitRate() float64 {
	m.stats.mu.Lock()
	defer m.stats.mu.Unlock()
	total := m.stats.Hits + m.stats.Misses
	if total == 0 {
		return 0
	}
	return float64(m.stats.Hits) / float64(total) * 100
}

func (m *PoolManager) recordHit() {
	m.stats.mu.Lock()
	m.stats.Hits++
	m.stats.mu.Unlock()
	poolAcquireTotal.WithLabelValues("hit").Inc()
}

func (m *PoolManager) recordMiss() {
	m.stats.mu.Lock()
	m.stats.Misses++
	m.stats.mu.Unlock()
	poolAcquireTotal.WithLabelValues("miss").Inc()
}

func (m *PoolManager) recordCreation() {
	m.stats.mu.Lock()
	m.stats.Creations++
	m.stats.mu.Unlock()
	poolCreationsTotal.Inc()
	poolsOpen.Inc()
}

func (m *PoolManager) recordEviction() {
	m.stats.mu.Lock()
	m.stats.Evictions++
	m.stats.LastEviction = time.Now()
	m.stats.mu.Unlock()
	poolEvictionsTotal.Inc()
	poolsOpen.Dec()
}

func (m *PoolManager) recordExhaustion() {
	m.stats.mu.Lock()
	m.stats.Exhaustions++
	m.stats.mu.Unlock()
	poolExhaustionsTotal.Inc()
}

func (m *PoolManager) recordOpenFailure() {
	m.stats.mu.Lock()
	m.stats.OpenFailures++
	m.stats.mu.Unlock()
	poolOpenFailuresTotal.Inc()
}
