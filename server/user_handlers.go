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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// TenantUser is a user profile row in a tenant database. Credentials
// live only in the master directory; tenant rows carry profile data.
type TenantUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type tenantUserRequest struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type paginatedUsers struct {
	Users      []TenantUser `json:"users"`
	TotalCount int64        `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
}

const defaultPageSize = 25

// userFilters collects the optional substring filters shared by the
// list and count endpoints.
type userFilters struct {
	email     string
	firstName string
	lastName  string
}

func filtersFromQuery(r *http.Request) userFilters {
	q := r.URL.Query()
	return userFilters{
		email:     q.Get("email"),
		firstName: q.Get("first_name"),
		lastName:  q.Get("last_name"),
	}
}

// whereClause builds the filter SQL starting at placeholder $1.
func (f userFilters) whereClause() (string, []interface{}) {
	clause := ""
	args := []interface{}{}
	add := func(column, value string) {
		if value == "" {
			return
		}
		if clause == "" {
			clause = " WHERE "
		} else {
			clause += " AND "
		}
		args = append(args, "%"+value+"%")
		clause += fmt.Sprintf("%s ILIKE $%d", column, len(args))
	}
	add("email", f.email)
	add("first_name", f.firstName)
	add("last_name", f.lastName)
	return clause, args
}

// handleGetUsers serves the single-endpoint read path: ?id= returns one
// user, page/page_size paginate, otherwise all rows are returned.
func (a *App) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	identity, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	handle, ok := mustHandle(w, r)
	if !ok {
		return
	}
	requestID := RequestIDFromContext(r.Context())

	if id := r.URL.Query().Get("id"); id != "" {
		user, err := a.fetchTenantUser(r, handle.DB(), identity.TenantID, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("User with ID %s not found", id))
				return
			}
			a.logger.ErrorWithCode(identity.TenantID, requestID, "User fetch failed", http.StatusInternalServerError, err, nil)
			writeError(w, http.StatusInternalServerError, codeInternalError, "Database error")
			return
		}
		writeJSON(w, http.StatusOK, user)
		return
	}

	filters := filtersFromQuery(r)
	where, args := filters.whereClause()

	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "page must be a positive integer")
			return
		}
		page = n
	}

	query := "SELECT id, email, first_name, last_name, created_at, updated_at FROM users" + where + " ORDER BY id DESC"
	if page > 0 {
		pageSize := defaultPageSize
		if raw := r.URL.Query().Get("page_size"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, codeInvalidRequest, "page_size must be a positive integer")
				return
			}
			pageSize = n
		}

		var total int64
		countQuery := "SELECT COUNT(*) FROM users" + where
		if err := handle.DB().QueryRowContext(r.Context(), countQuery, args...).Scan(&total); err != nil {
			a.logger.ErrorWithCode(identity.TenantID, requestID, "User count failed", http.StatusInternalServerError, err, nil)
			writeError(w, http.StatusInternalServerError, codeInternalError, "Database error")
			return
		}

		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, pageSize, (page-1)*pageSize)

		users, err := a.scanTenantUsers(r, handle.DB(), identity.TenantID, query, args)
		if err != nil {
			a.logger.ErrorWithCode(identity.TenantID, requestID, "Paginated user fetch failed", http.StatusInternalServerError, err, nil)
			writeError(w, http.StatusInternalServerError, codeInternalError, "Database error")
			return
		}

		writeJSON(w, http.StatusOK, paginatedUsers{
			Users:      users,
			TotalCount: total,
			Page:       page,
			PageSize:   pageSize,
		})
		return
	}

	users, err := a.scanTenantUsers(r, handle.DB(), identity.TenantID, query, args)
	if err != nil {
		a.logger.ErrorWithCode(identity.TenantID, requestID, "User list failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handleCountUsers returns the number of users matching the filters.
func (a *App) handleCountUsers(w http.ResponseWriter, r *http.Request) {
	identity, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	handle, ok := mustHandle(w, r)
	if !ok {
		return
	}

	where, args := filtersFromQuery(r).whereClause()

	var count int64
	query := "SELECT COUNT(*) FROM users" + where
	if err := handle.DB().QueryRowContext(r.Context(), query, args...).Scan(&count); err != nil {
		a.logger.ErrorWithCode(identity.TenantID, RequestIDFromContext(r.Context()), "User count failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// handleCreateUserProfile inserts a user profile row in the tenant
// database. Credentials are not accepted here; registration against the
// master directory handles passwords.
func (a *App) handleCreateUserProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	handle, ok := mustHandle(w, r)
	if !ok {
		return
	}
	requestID := RequestIDFromContext(r.Context())

	var req tenantUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Email is required")
		return
	}
	if req.FirstName == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "First name is required")
		return
	}
	if req.LastName == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Last name is required")
		return
	}

	user := TenantUser{
		ID:        uuid.New().String(),
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		TenantID:  identity.TenantID,
	}

	err := handle.DB().QueryRowContext(r.Context(),
		`INSERT INTO users (id, email, first_name, last_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		user.ID, user.Email, user.FirstName, user.LastName,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		a.logger.ErrorWithCode(identity.TenantID, requestID, "User profile creation failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Database error")
		return
	}

	a.logger.Info(identity.TenantID, requestID, "User profile created", map[string]interface{}{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusCreated, user)
}

// handleUpdateUserProfile applies a partial update; only fields present
// in the body change.
func (a *App) handleUpdateUserProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	handle, ok := mustHandle(w, r)
	if !ok {
		return
	}
	requestID := RequestIDFromContext(r.Context())

	var req tenantUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "User ID is required")
		return
	}

	user, err := a.fetchTenantUser(r, handle.DB(), identity.TenantID, req.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("User with ID %s not found", req.ID))
			return
		}
		a.logger.ErrorWithCode(identity.TenantID, requestID, "User fetch for update failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Database error")
		return
	}

	if req.Email != "" {
		user.Email = req.Email
	}
	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}

	err = handle.DB().QueryRowContext(r.Context(),
		`UPDATE users SET email = $1, first_name = $2, last_name = $3, updated_at = NOW()
		 WHERE id = $4
		 RETURNING updated_at`,
		user.Email, user.FirstName, user.LastName, user.ID,
	).Scan(&user.UpdatedAt)
	if err != nil {
		a.logger.ErrorWithCode(identity.TenantID, requestID, "User update failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Database error")
		return
	}

	a.logger.Info(identity.TenantID, requestID, "User profile updated", map[string]interface{}{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUserProfile removes a user profile row by ?id=.
func (a *App) handleDeleteUserProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	handle, ok := mustHandle(w, r)
	if !ok {
		return
	}
	requestID := RequestIDFromContext(r.Context())

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "User ID is required")
		return
	}

	result, err := handle.DB().ExecContext(r.Context(), "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		a.logger.ErrorWithCode(identity.TenantID, requestID, "User delete failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Database error")
		return
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("User with ID %s not found", id))
		return
	}

	a.logger.Info(identity.TenantID, requestID, "User profile deleted", map[string]interface{}{
		"user_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) fetchTenantUser(r *http.Request, db *sql.DB, tenantID, id string) (*TenantUser, error) {
	user := TenantUser{TenantID: tenantID}
	err := db.QueryRowContext(r.Context(),
		"SELECT id, email, first_name, last_name, created_at, updated_at FROM users WHERE id = $1",
		id,
	).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *App) scanTenantUsers(r *http.Request, db *sql.DB, tenantID, query string, args []interface{}) ([]TenantUser, error) {
	rows, err := db.QueryContext(r.Context(), query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	users := make([]TenantUser, 0)
	for rows.Next() {
		user := TenantUser{TenantID: tenantID}
		if err := rows.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
