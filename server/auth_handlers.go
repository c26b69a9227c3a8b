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
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"tenantgrid/platform/auth"
	"tenantgrid/platform/masterdb"
	"tenantgrid/platform/tenancy"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string              `json:"token"`
	User  *masterdb.UserRecord `json:"user"`
}

type registerRequest struct {
	TenantID  string `json:"tenant_id"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type createTenantRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// handleLogin authenticates a user and issues a tenant-scoped token.
// Unknown email and wrong password produce identical responses so the
// endpoint cannot be used to enumerate accounts.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "email and password are required")
		return
	}

	limitKey := fmt.Sprintf("%s|%s", req.Email, clientIP(r))
	if err := a.limiter.Allow(r.Context(), limitKey); err != nil {
		a.logger.Warn("", requestID, "Login rate limited", map[string]interface{}{
			"email": req.Email,
		})
		writeError(w, http.StatusTooManyRequests, codeRateLimited, "Too many login attempts, please retry later")
		return
	}

	user, err := a.store.LookupUser(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, masterdb.ErrUserNotFound) {
			a.logger.ErrorWithCode("", requestID, "User lookup failed", http.StatusInternalServerError, err, nil)
			writeError(w, http.StatusInternalServerError, codeInternalError, "Login failed")
			return
		}
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials, "Invalid email or password")
		return
	}

	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials, "Invalid email or password")
		return
	}

	// Suspended tenants cannot mint new tokens; existing tokens are
	// already rejected at the pool middleware.
	desc, err := a.registry.Resolve(r.Context(), user.TenantID)
	if err != nil {
		a.logger.ErrorWithCode(user.TenantID, requestID, "Tenant resolution failed during login", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Login failed")
		return
	}
	if !desc.Active() {
		writeError(w, http.StatusForbidden, codeTenantSuspended, "Tenant account is suspended")
		return
	}

	token, err := a.codec.Issue(user.ID, user.TenantID, user.Permissions)
	if err != nil {
		a.logger.ErrorWithCode(user.TenantID, requestID, "Token issuance failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Login failed")
		return
	}

	a.logger.Info(user.TenantID, requestID, "User logged in", map[string]interface{}{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

// handleRegister creates a user in the master directory. The target
// tenant is an explicit, required field; the tenant must already exist
// and be active.
func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "tenant_id is required")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "email and password are required")
		return
	}
	if !masterdb.ValidTenantID(req.TenantID) {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "tenant_id must match [a-z0-9_]{1,32}")
		return
	}

	desc, err := a.store.LookupTenant(r.Context(), req.TenantID)
	if err != nil {
		if errors.Is(err, tenancy.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, codeTenantNotFound, "Tenant not found")
			return
		}
		a.logger.ErrorWithCode(req.TenantID, requestID, "Tenant lookup failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Registration failed")
		return
	}
	if !desc.Active() {
		writeError(w, http.StatusForbidden, codeTenantSuspended, "Tenant account is suspended")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrShortPassword) {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
			return
		}
		a.logger.ErrorWithCode(req.TenantID, requestID, "Password hashing failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Registration failed")
		return
	}

	user, err := a.store.CreateUser(r.Context(), req.TenantID, req.Email, hash, req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, masterdb.ErrDuplicate) {
			writeError(w, http.StatusConflict, codeConflict, "A user with this email already exists")
			return
		}
		a.logger.ErrorWithCode(req.TenantID, requestID, "User creation failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Registration failed")
		return
	}

	a.logger.Info(req.TenantID, requestID, "User registered", map[string]interface{}{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusCreated, user)
}

// handleCreateTenant registers a tenant in the master directory and
// provisions its dedicated database. Provisioning runs outside the pool
// cache; the first authenticated request creates the pool on demand.
func (a *App) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())

	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "id and name are required")
		return
	}
	if !masterdb.ValidTenantID(req.ID) {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "id must match [a-z0-9_]{1,32}")
		return
	}

	desc, err := a.store.CreateTenant(r.Context(), req.ID, req.Name)
	if err != nil {
		if errors.Is(err, masterdb.ErrDuplicate) {
			writeError(w, http.StatusConflict, codeConflict, "Tenant already exists")
			return
		}
		a.logger.ErrorWithCode(req.ID, requestID, "Tenant creation failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Tenant creation failed")
		return
	}

	if a.provisioner != nil {
		if err := a.provisioner.CreateTenantDatabase(r.Context(), req.ID); err != nil {
			a.logger.ErrorWithCode(req.ID, requestID, "Tenant database provisioning failed", http.StatusInternalServerError, err, nil)
			writeError(w, http.StatusInternalServerError, codeInternalError, "Tenant database provisioning failed")
			return
		}
	}

	a.logger.Info(req.ID, requestID, "Tenant provisioned", map[string]interface{}{
		"name": req.Name,
	})
	writeJSON(w, http.StatusCreated, desc)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
