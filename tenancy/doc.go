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

/*
Package tenancy routes requests to per-tenant databases.

Every tenant's data lives in a physically separate database. This package
owns the two pieces that make that safe under concurrency:

  - Registry: resolves a tenant id to its connection descriptor and
    lifecycle status through the master directory, with a short-TTL cache
    so suspensions take effect without a process restart.

  - PoolManager: a bounded cache of live per-tenant connection pools.
    Pools are created lazily on first access, shared across concurrent
    requests for the same tenant, and evicted by recency when the cache
    is full. Handles are reference counted: a pool with in-flight
    borrowers is never closed, and when no idle victim exists the acquire
    fails with ErrPoolExhausted instead of dropping anything mid-use.

Construct one Registry and one PoolManager at startup and hand them to the
request path; neither is a process-wide singleton, so tests build isolated
instances.

Usage:

	reg := tenancy.NewRegistry(store, 2*time.Second)
	pools := tenancy.NewPoolManager(tenancy.PoolManagerOptions{
	    Registry: reg,
	    MaxPools: 10,
	})

	handle, err := pools.Acquire(ctx, tenantID)
	if err != nil { ... }
	defer handle.Release()
	rows, err := handle.DB().QueryContext(ctx, ...)
*/
package tenancy
