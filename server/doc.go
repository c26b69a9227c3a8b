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
Package server is the HTTP surface of the TenantGrid backend.

Every protected route runs behind the auth middleware, which verifies
the bearer token, borrows the tenant's connection pool from the bounded
cache in package tenancy, and attaches both the identity and the pool
handle to the request context. Handlers never resolve tenants
themselves; the token is the single source of tenant identity.

Public routes:

	POST /auth/login      authenticate, mint tenant-scoped JWT
	POST /auth/register   create a user in the master directory
	POST /tenants         register and provision a tenant
	GET  /health          readiness plus pool cache stats
	GET  /prometheus      metrics exposition

Protected routes (Authorization: Bearer <token>):

	GET/POST/PATCH/DELETE /api/users        tenant user profiles
	GET                   /api/users/count  permission-gated count
	GET/POST              /api/products     tenant catalog
*/
package server
