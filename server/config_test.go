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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("MASTER_DATABASE_URL", testMasterURL)
	t.Setenv("JWT_SECRET", "test-secret-that-is-long-enough-0000")
	t.Setenv("SERVER_CONFIG_FILE", "")
	t.Setenv("PORT", "")
	t.Setenv("ADMIN_DATABASE_URL", "")
	t.Setenv("MAX_TENANT_POOLS", "")
	t.Setenv("TENANT_CACHE_TTL", "")
	t.Setenv("TENANT_CONNECT_TIMEOUT", "")
	t.Setenv("JWT_EXPIRATION", "")
	t.Setenv("LOGIN_RATE_LIMIT", "")
	t.Setenv("CORS_ORIGINS", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10, cfg.MaxTenantPools)
	assert.Equal(t, 5, cfg.TenantPoolSize)
	assert.Equal(t, 10*time.Second, cfg.TenantConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.TenantCacheTTL)
	assert.Equal(t, time.Hour, cfg.JWTExpiration)
	assert.Equal(t, DefaultLoginRateLimit, cfg.LoginRateLimit)
	// Admin URL defaults to the master URL
	assert.Equal(t, testMasterURL, cfg.AdminDatabaseURL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
}

func TestLoadConfigRequiredSettings(t *testing.T) {
	t.Setenv("MASTER_DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SERVER_CONFIG_FILE", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MASTER_DATABASE_URL")

	t.Setenv("MASTER_DATABASE_URL", testMasterURL)
	t.Setenv("JWT_SECRET", "")

	_, err = LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("MASTER_DATABASE_URL", testMasterURL)
	t.Setenv("JWT_SECRET", "test-secret-that-is-long-enough-0000")
	t.Setenv("SERVER_CONFIG_FILE", "")
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_TENANT_POOLS", "3")
	t.Setenv("TENANT_CACHE_TTL", "5s")
	t.Setenv("JWT_EXPIRATION", "7200")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3, cfg.MaxTenantPools)
	assert.Equal(t, 5*time.Second, cfg.TenantCacheTTL)
	assert.Equal(t, 2*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
}

func TestLoadConfigBareSecondsDuration(t *testing.T) {
	t.Setenv("MASTER_DATABASE_URL", testMasterURL)
	t.Setenv("JWT_SECRET", "test-secret-that-is-long-enough-0000")
	t.Setenv("SERVER_CONFIG_FILE", "")
	t.Setenv("TENANT_CONNECT_TIMEOUT", "30")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.TenantConnectTimeout)
}

func TestLoadConfigFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	yaml := `
port: "7070"
max_tenant_pools: 6
tenant_cache_ttl: 250ms
cors_origins: "https://app.example.com"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("MASTER_DATABASE_URL", testMasterURL)
	t.Setenv("JWT_SECRET", "test-secret-that-is-long-enough-0000")
	t.Setenv("SERVER_CONFIG_FILE", path)
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// File beats env for keys it sets
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, 6, cfg.MaxTenantPools)
	assert.Equal(t, 250*time.Millisecond, cfg.TenantCacheTTL)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSOrigins)
}

func TestLoadConfigBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [not: closed"), 0o600))

	t.Setenv("MASTER_DATABASE_URL", testMasterURL)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SERVER_CONFIG_FILE", path)

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitOrigins("a, b"))
	assert.Equal(t, []string{"a"}, splitOrigins("a,,"))
	assert.Empty(t, splitOrigins(""))
}
