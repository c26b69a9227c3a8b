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
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server settings. Values come from environment
// variables, optionally overridden by a YAML file named in
// SERVER_CONFIG_FILE (12-Factor App methodology, env first).
type Config struct {
	Port             string
	MasterDatabaseURL string
	AdminDatabaseURL string
	JWTSecret        string
	JWTExpiration    time.Duration

	MaxTenantPools       int
	TenantPoolSize       int
	TenantConnectTimeout time.Duration
	TenantCacheTTL       time.Duration

	RedisURL       string
	LoginRateLimit int

	CORSOrigins []string

	MasterMigrationsDir string
	TenantMigrationsDir string
}

// fileConfig is the YAML shape of SERVER_CONFIG_FILE. Only keys that are
// present override the environment.
type fileConfig struct {
	Port                 string `yaml:"port"`
	MasterDatabaseURL    string `yaml:"master_database_url"`
	AdminDatabaseURL     string `yaml:"admin_database_url"`
	JWTSecret            string `yaml:"jwt_secret"`
	JWTExpirationSeconds int    `yaml:"jwt_expiration_seconds"`
	MaxTenantPools       int    `yaml:"max_tenant_pools"`
	TenantPoolSize       int    `yaml:"tenant_pool_size"`
	TenantConnectTimeout string `yaml:"tenant_connect_timeout"`
	TenantCacheTTL       string `yaml:"tenant_cache_ttl"`
	RedisURL             string `yaml:"redis_url"`
	LoginRateLimit       int    `yaml:"login_rate_limit"`
	CORSOrigins          string `yaml:"cors_origins"`
	MasterMigrationsDir  string `yaml:"master_migrations_dir"`
	TenantMigrationsDir  string `yaml:"tenant_migrations_dir"`
}

// DefaultLoginRateLimit is login attempts allowed per minute per
// email+IP pair.
const DefaultLoginRateLimit = 30

// LoadConfig builds a Config from the environment and the optional
// config file. It fails fast on missing required settings so
// misconfigured deployments never start serving.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		MasterDatabaseURL:   os.Getenv("MASTER_DATABASE_URL"),
		AdminDatabaseURL:    os.Getenv("ADMIN_DATABASE_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTExpiration:       time.Duration(getEnvInt("JWT_EXPIRATION", 3600)) * time.Second,
		MaxTenantPools:      getEnvInt("MAX_TENANT_POOLS", 10),
		TenantPoolSize:      getEnvInt("TENANT_POOL_SIZE", 5),
		TenantConnectTimeout: getEnvDuration("TENANT_CONNECT_TIMEOUT", 10*time.Second),
		TenantCacheTTL:      getEnvDuration("TENANT_CACHE_TTL", 2*time.Second),
		RedisURL:            os.Getenv("REDIS_URL"),
		LoginRateLimit:      getEnvInt("LOGIN_RATE_LIMIT", DefaultLoginRateLimit),
		CORSOrigins:         splitOrigins(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		MasterMigrationsDir: getEnv("MIGRATIONS_PATH", "migrations") + "/master",
		TenantMigrationsDir: getEnv("MIGRATIONS_PATH", "migrations") + "/tenant",
	}

	if path := os.Getenv("SERVER_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if cfg.MasterDatabaseURL == "" {
		return nil, fmt.Errorf("MASTER_DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AdminDatabaseURL == "" {
		cfg.AdminDatabaseURL = cfg.MasterDatabaseURL
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.MasterDatabaseURL != "" {
		c.MasterDatabaseURL = fc.MasterDatabaseURL
	}
	if fc.AdminDatabaseURL != "" {
		c.AdminDatabaseURL = fc.AdminDatabaseURL
	}
	if fc.JWTSecret != "" {
		c.JWTSecret = fc.JWTSecret
	}
	if fc.JWTExpirationSeconds > 0 {
		c.JWTExpiration = time.Duration(fc.JWTExpirationSeconds) * time.Second
	}
	if fc.MaxTenantPools > 0 {
		c.MaxTenantPools = fc.MaxTenantPools
	}
	if fc.TenantPoolSize > 0 {
		c.TenantPoolSize = fc.TenantPoolSize
	}
	if fc.TenantConnectTimeout != "" {
		d, err := time.ParseDuration(fc.TenantConnectTimeout)
		if err != nil {
			return fmt.Errorf("invalid tenant_connect_timeout: %w", err)
		}
		c.TenantConnectTimeout = d
	}
	if fc.TenantCacheTTL != "" {
		d, err := time.ParseDuration(fc.TenantCacheTTL)
		if err != nil {
			return fmt.Errorf("invalid tenant_cache_ttl: %w", err)
		}
		c.TenantCacheTTL = d
	}
	if fc.RedisURL != "" {
		c.RedisURL = fc.RedisURL
	}
	if fc.LoginRateLimit > 0 {
		c.LoginRateLimit = fc.LoginRateLimit
	}
	if fc.CORSOrigins != "" {
		c.CORSOrigins = splitOrigins(fc.CORSOrigins)
	}
	if fc.MasterMigrationsDir != "" {
		c.MasterMigrationsDir = fc.MasterMigrationsDir
	}
	if fc.TenantMigrationsDir != "" {
		c.TenantMigrationsDir = fc.TenantMigrationsDir
	}

	return nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Bare numbers are treated as seconds for container env ergonomics
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return defaultValue
}
