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

package tenancy

import (
	"context"
	"errors"
	"time"
)

// TenantStatus is the lifecycle state of a tenant in the master directory.
type TenantStatus string

const (
	StatusActive    TenantStatus = "active"
	StatusSuspended TenantStatus = "suspended"
	StatusUnknown   TenantStatus = "unknown"
)

// TenantDescriptor maps a tenant id to its backing database and lifecycle
// status. Descriptors are read from the master directory and are never
// mutated in place; status changes produce a fresh descriptor on the next
// directory read.
type TenantDescriptor struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	DSN       string       `json:"-"` // connection string, never serialized
	Status    TenantStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Active reports whether the tenant may serve traffic.
func (d *TenantDescriptor) Active() bool {
	return d.Status == StatusActive
}

// Core error taxonomy. Handlers translate these to HTTP status codes at the
// boundary; nothing below the boundary knows about HTTP.
var (
	// ErrTenantNotFound indicates the tenant id has no directory entry.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantSuspended indicates the tenant exists but is not active.
	ErrTenantSuspended = errors.New("tenant suspended")

	// ErrPoolExhausted indicates the pool cache is full and every cached
	// pool has in-flight borrowers, so no eviction victim exists.
	ErrPoolExhausted = errors.New("tenant pool cache exhausted")
)

// DirectoryStore is the slice of the master directory the tenancy layer
// needs. masterdb.Store implements it; tests supply fakes.
type DirectoryStore interface {
	// LookupTenant returns the descriptor for a tenant id, or
	// ErrTenantNotFound.
	LookupTenant(ctx context.Context, tenantID string) (*TenantDescriptor, error)
}
