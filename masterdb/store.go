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

package masterdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"tenantgrid/platform/tenancy"
)

// ErrDuplicate indicates a unique constraint was violated (tenant id or
// user email already taken).
var ErrDuplicate = errors.New("already exists")

// ErrUserNotFound indicates no directory row matched the email. Handlers
// must collapse this with a failed password check into one uniform
// "invalid credentials" response.
var ErrUserNotFound = errors.New("user not found")

// DefaultPermissions are granted to users created through registration.
var DefaultPermissions = []string{"users:read", "users:write"}

// tenantIDPattern constrains tenant ids: they become database names.
var tenantIDPattern = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// ValidTenantID reports whether id is acceptable as a tenant identifier.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// UserRecord is a row from the master directory's users table.
type UserRecord struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Permissions  []string  `json:"permissions"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is the client for the master directory: the single database
// holding tenant metadata and user credentials, shared across all tenants.
// It implements tenancy.DirectoryStore.
type Store struct {
	db     *sql.DB
	logger *log.Logger

	// masterURL is the template for per-tenant DSNs: same host and
	// credentials, database swapped for tenant_<id>.
	masterURL string
}

// Open connects to the master directory and verifies reachability.
func Open(ctx context.Context, masterURL string) (*Store, error) {
	db, err := sql.Open("postgres", masterURL)
	if err != nil {
		return nil, fmt.Errorf("open master database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping master database: %w", err)
	}

	return &Store{
		db:        db,
		logger:    log.New(os.Stdout, "[MASTER_DB] ", log.LstdFlags),
		masterURL: masterURL,
	}, nil
}

// NewStoreWithDB wraps an existing connection. Used by tests with sqlmock.
func NewStoreWithDB(db *sql.DB, masterURL string) *Store {
	return &Store{
		db:        db,
		logger:    log.New(os.Stdout, "[MASTER_DB] ", log.LstdFlags),
		masterURL: masterURL,
	}
}

// DB exposes the underlying pool for migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the master directory connections.
func (s *Store) Close() error {
	return s.db.Close()
}

// TenantDSN builds the connection string for a tenant's database from the
// master URL template, swapping the database name for tenant_<id>.
func (s *Store) TenantDSN(tenantID string) (string, error) {
	u, err := url.Parse(s.masterURL)
	if err != nil {
		return "", fmt.Errorf("parse master URL: %w", err)
	}
	u.Path = "/tenant_" + tenantID
	return u.String(), nil
}

// LookupTenant returns the descriptor for a tenant id, or
// tenancy.ErrTenantNotFound. Implements tenancy.DirectoryStore.
func (s *Store) LookupTenant(ctx context.Context, tenantID string) (*tenancy.TenantDescriptor, error) {
	var desc tenancy.TenantDescriptor
	var status string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, status, created_at, updated_at FROM tenants WHERE id = $1",
		tenantID,
	).Scan(&desc.ID, &desc.Name, &status, &desc.CreatedAt, &desc.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, tenancy.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant '%s': %w", tenantID, err)
	}

	switch tenancy.TenantStatus(status) {
	case tenancy.StatusActive:
		desc.Status = tenancy.StatusActive
	case tenancy.StatusSuspended:
		desc.Status = tenancy.StatusSuspended
	default:
		desc.Status = tenancy.StatusUnknown
	}

	dsn, err := s.TenantDSN(tenantID)
	if err != nil {
		return nil, err
	}
	desc.DSN = dsn

	return &desc, nil
}

// CreateTenant inserts the directory row for a new tenant with status
// active. Provisioning the backing database is the Provisioner's job.
func (s *Store) CreateTenant(ctx context.Context, tenantID, name string) (*tenancy.TenantDescriptor, error) {
	if !ValidTenantID(tenantID) {
		return nil, fmt.Errorf("invalid tenant id '%s': must match %s", tenantID, tenantIDPattern)
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO tenants (id, name, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		tenantID, name, string(tenancy.StatusActive), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("tenant '%s': %w", tenantID, ErrDuplicate)
		}
		return nil, fmt.Errorf("insert tenant '%s': %w", tenantID, err)
	}

	s.logger.Printf("Created tenant '%s' (%s)", tenantID, name)

	dsn, err := s.TenantDSN(tenantID)
	if err != nil {
		return nil, err
	}

	return &tenancy.TenantDescriptor{
		ID:        tenantID,
		Name:      name,
		DSN:       dsn,
		Status:    tenancy.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SetTenantStatus transitions a tenant's lifecycle status.
func (s *Store) SetTenantStatus(ctx context.Context, tenantID string, status tenancy.TenantStatus) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE tenants SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), time.Now().UTC(), tenantID,
	)
	if err != nil {
		return fmt.Errorf("update tenant '%s' status: %w", tenantID, err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return tenancy.ErrTenantNotFound
	}
	return nil
}

// LookupUser finds a user in the master directory by email. The caller
// verifies the password hash; this method never does.
func (s *Store) LookupUser(ctx context.Context, email string) (*UserRecord, error) {
	var user UserRecord
	var permissionsJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, password_hash, first_name, last_name, permissions, created_at, updated_at
		FROM users
		WHERE email = $1`,
		email,
	).Scan(
		&user.ID,
		&user.TenantID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&permissionsJSON,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	if len(permissionsJSON) > 0 {
		if err := json.Unmarshal(permissionsJSON, &user.Permissions); err != nil {
			return nil, fmt.Errorf("parse permissions for user '%s': %w", user.ID, err)
		}
	}

	return &user, nil
}

// CreateUser inserts a directory row for a new user with the default
// permission set. passwordHash must already be a bcrypt hash.
func (s *Store) CreateUser(ctx context.Context, tenantID, email, passwordHash, firstName, lastName string) (*UserRecord, error) {
	userID := uuid.New().String()
	now := time.Now().UTC()

	permissionsJSON, err := json.Marshal(DefaultPermissions)
	if err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, email, password_hash, first_name, last_name, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		userID, tenantID, email, passwordHash, firstName, lastName, permissionsJSON, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user '%s': %w", email, ErrDuplicate)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	s.logger.Printf("Created user '%s' in tenant '%s'", userID, tenantID)

	return &UserRecord{
		ID:          userID,
		TenantID:    tenantID,
		Email:       email,
		FirstName:   firstName,
		LastName:    lastName,
		Permissions: DefaultPermissions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// isUniqueViolation recognizes postgres unique-constraint violations
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
