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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgrid/platform/tenancy"
)

func TestRequireAuthMissingToken(t *testing.T) {
	ta := newTestApp(t)

	rec := ta.do(t, http.MethodGet, "/api/users", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, codeInvalidToken, body.Error)
	assert.Equal(t, http.StatusUnauthorized, body.StatusCode)
}

func TestRequireAuthMalformedHeader(t *testing.T) {
	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	ta.app.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, codeInvalidToken, decodeError(t, rec).Error)
}

func TestRequireAuthGarbageToken(t *testing.T) {
	ta := newTestApp(t)

	rec := ta.do(t, http.MethodGet, "/api/users", "not.a.jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, codeInvalidToken, decodeError(t, rec).Error)
}

func TestRequireAuthSuspendedTenant(t *testing.T) {
	ta := newTestApp(t)
	ta.expectTenantRow("acme", "suspended")

	token := ta.token(t, "user-1", "acme", []string{"users:read"})
	rec := ta.do(t, http.MethodGet, "/api/users", token, nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, codeTenantSuspended, body.Error)
	assert.Equal(t, http.StatusForbidden, body.StatusCode)
}

func TestRequireAuthUnknownTenant(t *testing.T) {
	ta := newTestApp(t)
	// No tenant row queued: the lookup returns no rows
	ta.masterMock.ExpectQuery("SELECT id, name, status, created_at, updated_at FROM tenants").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "created_at", "updated_at"}))

	token := ta.token(t, "user-1", "ghost", []string{"users:read"})
	rec := ta.do(t, http.MethodGet, "/api/users", token, nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, codeTenantNotFound, decodeError(t, rec).Error)
}

func TestAcquireErrorMapping(t *testing.T) {
	ta := newTestApp(t)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"exhausted", tenancy.ErrPoolExhausted, http.StatusServiceUnavailable, codePoolExhausted},
		{"suspended", tenancy.ErrTenantSuspended, http.StatusForbidden, codeTenantSuspended},
		{"not found", tenancy.ErrTenantNotFound, http.StatusForbidden, codeTenantNotFound},
		{"connect failure", assert.AnError, http.StatusServiceUnavailable, codeConnectionFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ta.app.writeAcquireError(rec, "req-1", "acme", tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestRequirePermissionDenied(t *testing.T) {
	ta := newTestApp(t)
	ta.expectTenantRow("acme", "active")

	// Token carries read but the POST route demands users:write
	token := ta.token(t, "user-1", "acme", []string{"users:read"})
	rec := ta.do(t, http.MethodPost, "/api/users", token, map[string]string{
		"email": "a@b.com", "first_name": "A", "last_name": "B",
	})

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, codeForbidden, decodeError(t, rec).Error)
}

func TestRequestIDEchoed(t *testing.T) {
	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("X-Request-ID", "req-trace-42")
	rec := httptest.NewRecorder()
	ta.app.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-trace-42", rec.Header().Get("X-Request-ID"))
}

func TestRequestIDGenerated(t *testing.T) {
	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rec := httptest.NewRecorder()
	ta.app.Handler().ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"valid", "Bearer abc123", "abc123", true},
		{"lowercase scheme", "bearer abc123", "abc123", true},
		{"missing", "", "", false},
		{"wrong scheme", "Basic abc123", "", false},
		{"no token", "Bearer ", "", false},
		{"scheme only", "Bearer", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := bearerToken(r)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
