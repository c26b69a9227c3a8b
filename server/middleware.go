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
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"tenantgrid/platform/auth"
	"tenantgrid/platform/tenancy"
)

// withRequestTracking assigns a correlation id to each request. An
// incoming X-Request-ID is honored so upstream proxies can trace calls
// end to end.
func withRequestTracking(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		next(w, r.WithContext(withRequestID(r.Context(), requestID)))
	}
}

// requireAuth verifies the bearer token, borrows the tenant's connection
// pool, and attaches both to the request context. The pool handle is
// released when the handler returns, so an in-flight request can never
// have its pool evicted underneath it.
func (a *App) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := RequestIDFromContext(r.Context())

		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, codeInvalidToken, "Missing or malformed Authorization header")
			return
		}

		identity, err := a.codec.Verify(token)
		if err != nil {
			a.logger.Warn("", requestID, "Token verification failed", map[string]interface{}{
				"error": err.Error(),
			})
			writeError(w, http.StatusUnauthorized, codeInvalidToken, "Invalid or expired token")
			return
		}

		start := time.Now()
		handle, err := a.pools.Acquire(r.Context(), identity.TenantID)
		if err != nil {
			a.writeAcquireError(w, requestID, identity.TenantID, err)
			return
		}
		defer handle.Release()

		a.logger.Debug(identity.TenantID, requestID, "Tenant pool acquired", map[string]interface{}{
			"acquire_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"user_id":    identity.UserID,
		})

		ctx := withIdentity(r.Context(), identity)
		ctx = withHandle(ctx, handle)
		next(w, r.WithContext(ctx))
	}
}

// writeAcquireError maps pool acquisition failures onto the uniform
// error body. Suspended and missing tenants are authorization problems;
// exhaustion and connect failures are capacity problems.
func (a *App) writeAcquireError(w http.ResponseWriter, requestID, tenantID string, err error) {
	switch {
	case errors.Is(err, tenancy.ErrTenantSuspended):
		a.logger.Warn(tenantID, requestID, "Request rejected: tenant suspended", nil)
		writeError(w, http.StatusForbidden, codeTenantSuspended, "Tenant account is suspended")
	case errors.Is(err, tenancy.ErrTenantNotFound):
		a.logger.Warn(tenantID, requestID, "Request rejected: tenant not found", nil)
		writeError(w, http.StatusForbidden, codeTenantNotFound, "Tenant not found")
	case errors.Is(err, tenancy.ErrPoolExhausted):
		a.logger.ErrorWithCode(tenantID, requestID, "Tenant pool cache exhausted", http.StatusServiceUnavailable, err, nil)
		writeError(w, http.StatusServiceUnavailable, codePoolExhausted, "Service temporarily at capacity, please retry")
	default:
		a.logger.ErrorWithCode(tenantID, requestID, "Tenant database unavailable", http.StatusServiceUnavailable, err, nil)
		writeError(w, http.StatusServiceUnavailable, codeConnectionFailure, "Tenant database temporarily unavailable")
	}
}

// requirePermission gates a handler on a permission claim from the
// verified token. It must run inside requireAuth.
func (a *App) requirePermission(permission string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeInvalidToken, "Authentication required")
			return
		}
		if !identity.HasPermission(permission) {
			a.logger.Warn(identity.TenantID, RequestIDFromContext(r.Context()), "Permission denied", map[string]interface{}{
				"user_id":    identity.UserID,
				"permission": permission,
			})
			writeError(w, http.StatusForbidden, codeForbidden, "Insufficient permissions")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// mustIdentity and mustHandle fetch context values that requireAuth
// guarantees; reaching the fallback means a route was wired without the
// middleware.
func mustIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeInvalidToken, "Authentication required")
	}
	return identity, ok
}

func mustHandle(w http.ResponseWriter, r *http.Request) (*tenancy.PoolHandle, bool) {
	handle, ok := HandleFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "Tenant connection unavailable")
	}
	return handle, ok
}
