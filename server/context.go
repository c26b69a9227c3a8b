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

	"tenantgrid/platform/auth"
	"tenantgrid/platform/tenancy"
)

type contextKey string

const (
	identityContextKey  contextKey = "tenantgrid.identity"
	handleContextKey    contextKey = "tenantgrid.poolHandle"
	requestIDContextKey contextKey = "tenantgrid.requestID"
)

func withIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the verified caller identity attached by
// the auth middleware.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*auth.Identity)
	return id, ok
}

func withHandle(ctx context.Context, h *tenancy.PoolHandle) context.Context {
	return context.WithValue(ctx, handleContextKey, h)
}

// HandleFromContext returns the borrowed tenant pool handle attached by
// the auth middleware. The handle stays valid for the lifetime of the
// request; the middleware releases it after the handler returns.
func HandleFromContext(ctx context.Context) (*tenancy.PoolHandle, bool) {
	h, ok := ctx.Value(handleContextKey).(*tenancy.PoolHandle)
	return h, ok
}

func withRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// RequestIDFromContext returns the correlation id for the request.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}
