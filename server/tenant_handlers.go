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
	"net/http"

	"github.com/gorilla/mux"

	"tenantgrid/platform/tenancy"
)

type tenantStatusRequest struct {
	Status string `json:"status"`
}

// handleGetTenant returns the directory record for a tenant. The DSN
// never serializes.
func (a *App) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["id"]

	desc, err := a.store.LookupTenant(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, tenancy.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, codeTenantNotFound, "Tenant not found")
			return
		}
		a.logger.ErrorWithCode(tenantID, RequestIDFromContext(r.Context()), "Tenant lookup failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Tenant lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, desc)
}

// handleSetTenantStatus transitions a tenant between active and
// suspended. The registry entry is invalidated so routing observes the
// change on the next request instead of waiting out the cache TTL.
func (a *App) handleSetTenantStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["id"]
	requestID := RequestIDFromContext(r.Context())

	var req tenantStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid JSON body")
		return
	}

	var status tenancy.TenantStatus
	switch tenancy.TenantStatus(req.Status) {
	case tenancy.StatusActive:
		status = tenancy.StatusActive
	case tenancy.StatusSuspended:
		status = tenancy.StatusSuspended
	default:
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "status must be 'active' or 'suspended'")
		return
	}

	if err := a.store.SetTenantStatus(r.Context(), tenantID, status); err != nil {
		if errors.Is(err, tenancy.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, codeTenantNotFound, "Tenant not found")
			return
		}
		a.logger.ErrorWithCode(tenantID, requestID, "Tenant status update failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Tenant status update failed")
		return
	}

	a.registry.Invalidate(tenantID)

	a.logger.Info(tenantID, requestID, "Tenant status updated", map[string]interface{}{
		"status": string(status),
	})
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     tenantID,
		"status": string(status),
	})
}
