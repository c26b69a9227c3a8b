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

// Package main is the entry point for the TenantGrid server.
//
// The server is a multi-tenant backend that:
// - Routes each authenticated request to its tenant's dedicated database
// - Caches tenant connection pools with a bounded LRU cache
// - Issues and verifies tenant-scoped JWT tokens
// - Provisions new tenant databases on demand
//
// Usage:
//
//	./server
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	MASTER_DATABASE_URL - PostgreSQL connection string for the master directory
//	ADMIN_DATABASE_URL - connection string for CREATE DATABASE (defaults to master)
//	JWT_SECRET - Secret for JWT token signing and validation
//	MAX_TENANT_POOLS - Bound on cached tenant pools (default: 10)
//	REDIS_URL - Optional Redis for distributed login rate limiting
package main

import (
	"tenantgrid/platform/server"
)

func main() {
	server.Run()
}
