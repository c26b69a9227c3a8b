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
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lib/pq"
)

// Provisioner creates the physical backing database for a new tenant and
// applies the tenant schema. It is an administrative collaborator: it runs
// outside the pool cache, with its own privileged connection.
type Provisioner struct {
	// adminURL connects to the database server with CREATEDB privilege.
	adminURL string

	// tenantDSN builds the DSN for a freshly created tenant database.
	tenantDSN func(tenantID string) (string, error)

	// migrationsDir holds the tenant schema .sql files.
	migrationsDir string

	logger *log.Logger
}

// NewProvisioner builds a Provisioner that creates databases through the
// admin connection and applies the schema under migrationsDir.
func NewProvisioner(adminURL string, store *Store, migrationsDir string) *Provisioner {
	return &Provisioner{
		adminURL:      adminURL,
		tenantDSN:     store.TenantDSN,
		migrationsDir: migrationsDir,
		logger:        log.New(os.Stdout, "[PROVISIONER] ", log.LstdFlags),
	}
}

// CreateTenantDatabase creates tenant_<id> and runs the tenant migrations
// against it. The tenant id must already have passed ValidTenantID; the
// database name is still quoted as an identifier before interpolation.
func (p *Provisioner) CreateTenantDatabase(ctx context.Context, tenantID string) error {
	if !ValidTenantID(tenantID) {
		return fmt.Errorf("invalid tenant id '%s'", tenantID)
	}

	admin, err := sql.Open("postgres", p.adminURL)
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer func() { _ = admin.Close() }()

	dbName := "tenant_" + tenantID
	// CREATE DATABASE cannot take bind parameters; the identifier is
	// validated and quoted instead.
	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName)); err != nil {
		if isUniqueViolation(err) || isDuplicateDatabase(err) {
			return fmt.Errorf("database '%s': %w", dbName, ErrDuplicate)
		}
		return fmt.Errorf("create database '%s': %w", dbName, err)
	}
	p.logger.Printf("Created database '%s'", dbName)

	dsn, err := p.tenantDSN(tenantID)
	if err != nil {
		return err
	}

	tenantDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open tenant database '%s': %w", dbName, err)
	}
	defer func() { _ = tenantDB.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := tenantDB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping tenant database '%s': %w", dbName, err)
	}

	if err := RunMigrations(ctx, tenantDB, p.migrationsDir); err != nil {
		return fmt.Errorf("migrate tenant database '%s': %w", dbName, err)
	}

	p.logger.Printf("Provisioned tenant database '%s'", dbName)
	return nil
}

// isDuplicateDatabase recognizes postgres duplicate-database errors
// (SQLSTATE 42P04) from CREATE DATABASE.
func isDuplicateDatabase(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P04"
	}
	return false
}
