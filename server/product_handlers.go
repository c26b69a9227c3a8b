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
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Product is a catalog row in a tenant database.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type productRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// handleGetProducts lists the tenant's catalog, newest first.
func (a *App) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	identity, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	handle, ok := mustHandle(w, r)
	if !ok {
		return
	}
	requestID := RequestIDFromContext(r.Context())

	rows, err := handle.DB().QueryContext(r.Context(),
		"SELECT id, name, description, price, created_at, updated_at FROM products ORDER BY created_at DESC")
	if err != nil {
		a.logger.ErrorWithCode(identity.TenantID, requestID, "Product list failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Database error")
		return
	}
	defer func() { _ = rows.Close() }()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		var description sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &description, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
			a.logger.ErrorWithCode(identity.TenantID, requestID, "Product scan failed", http.StatusInternalServerError, err, nil)
			writeError(w, http.StatusInternalServerError, codeInternalError, "Database error")
			return
		}
		p.Description = description.String
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		a.logger.ErrorWithCode(identity.TenantID, requestID, "Product iteration failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Database error")
		return
	}

	writeJSON(w, http.StatusOK, products)
}

// handleCreateProduct inserts a catalog row for the tenant.
func (a *App) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	identity, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	handle, ok := mustHandle(w, r)
	if !ok {
		return
	}
	requestID := RequestIDFromContext(r.Context())

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Name is required")
		return
	}
	if req.Price < 0 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Price must not be negative")
		return
	}

	product := Product{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
	}

	err := handle.DB().QueryRowContext(r.Context(),
		`INSERT INTO products (id, name, description, price, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		product.ID, product.Name, product.Description, product.Price,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		a.logger.ErrorWithCode(identity.TenantID, requestID, "Product creation failed", http.StatusInternalServerError, err, nil)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Database error")
		return
	}

	a.logger.Info(identity.TenantID, requestID, "Product created", map[string]interface{}{
		"product_id": product.ID,
	})
	writeJSON(w, http.StatusCreated, product)
}
