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
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"tenantgrid/platform/auth"
	"tenantgrid/platform/masterdb"
	"tenantgrid/platform/shared/logger"
	"tenantgrid/platform/tenancy"
)

// App wires the master directory, the tenant pool cache, and the HTTP
// surface together. Construct it with New so every route sees fully
// initialized dependencies.
type App struct {
	config *Config

	store       *masterdb.Store
	registry    *tenancy.Registry
	pools       *tenancy.PoolManager
	codec       *auth.Codec
	limiter     *LoginLimiter
	provisioner *masterdb.Provisioner
	logger      *logger.Logger

	router *mux.Router
	cors   *cors.Cors
	ready  atomic.Bool
}

// New builds an App from an opened master store. A nil opener selects
// the default driver-based opener; tests inject their own.
func New(cfg *Config, store *masterdb.Store, opener tenancy.Opener) *App {
	registry := tenancy.NewRegistry(store, cfg.TenantCacheTTL)
	pools := tenancy.NewPoolManager(tenancy.PoolManagerOptions{
		Registry:       registry,
		Opener:         opener,
		MaxPools:       cfg.MaxTenantPools,
		PoolSize:       cfg.TenantPoolSize,
		ConnectTimeout: cfg.TenantConnectTimeout,
	})

	a := &App{
		config:      cfg,
		store:       store,
		registry:    registry,
		pools:       pools,
		codec:       auth.NewCodec([]byte(cfg.JWTSecret), cfg.JWTExpiration),
		limiter:     NewLoginLimiter(cfg.LoginRateLimit, cfg.RedisURL),
		provisioner: masterdb.NewProvisioner(cfg.AdminDatabaseURL, store, cfg.TenantMigrationsDir),
		logger:      logger.New("server"),
		router:      mux.NewRouter(),
	}

	a.cors = cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	a.registerRoutes()
	return a
}

// Handler returns the full middleware-wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	return a.cors.Handler(a.router)
}

// SetReady flips the /health response from "starting" to "healthy".
func (a *App) SetReady() {
	a.ready.Store(true)
}

// Close releases the pool cache, the master store, and the rate
// limiter's Redis connection.
func (a *App) Close(ctx context.Context) {
	a.pools.Close(ctx)
	if err := a.limiter.Close(); err != nil {
		log.Printf("Error closing rate limiter: %v", err)
	}
	if err := a.store.Close(); err != nil {
		log.Printf("Error closing master store: %v", err)
	}
}

func (a *App) registerRoutes() {
	a.router.HandleFunc("/health", a.healthHandler).Methods("GET")
	a.router.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	public := func(route string, h http.HandlerFunc) http.HandlerFunc {
		return instrument(route, withRequestTracking(h))
	}
	protected := func(route string, h http.HandlerFunc) http.HandlerFunc {
		return instrument(route, withRequestTracking(a.requireAuth(h)))
	}

	a.router.HandleFunc("/auth/login", public("/auth/login", a.handleLogin)).Methods("POST")
	a.router.HandleFunc("/auth/register", public("/auth/register", a.handleRegister)).Methods("POST")
	a.router.HandleFunc("/tenants", public("/tenants", a.handleCreateTenant)).Methods("POST")
	a.router.HandleFunc("/tenants/{id}", public("/tenants/{id}", a.handleGetTenant)).Methods("GET")
	a.router.HandleFunc("/tenants/{id}/status", public("/tenants/{id}/status", a.handleSetTenantStatus)).Methods("PATCH")

	a.router.HandleFunc("/api/users/count",
		protected("/api/users/count", a.requirePermission("users:read", a.handleCountUsers))).Methods("GET")
	a.router.HandleFunc("/api/users",
		protected("/api/users", a.requirePermission("users:read", a.handleGetUsers))).Methods("GET")
	a.router.HandleFunc("/api/users",
		protected("/api/users", a.requirePermission("users:write", a.handleCreateUserProfile))).Methods("POST")
	a.router.HandleFunc("/api/users",
		protected("/api/users", a.requirePermission("users:write", a.handleUpdateUserProfile))).Methods("PATCH")
	a.router.HandleFunc("/api/users",
		protected("/api/users", a.requirePermission("users:write", a.handleDeleteUserProfile))).Methods("DELETE")

	a.router.HandleFunc("/api/products",
		protected("/api/products", a.handleGetProducts)).Methods("GET")
	a.router.HandleFunc("/api/products",
		protected("/api/products", a.handleCreateProduct)).Methods("POST")
}

// healthHandler reports "starting" until initialization completes so
// load balancer health checks pass during slow startups without routing
// real traffic expectations onto a half-initialized process.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := "starting"
	if a.ready.Load() {
		status = "healthy"
	}

	stats := a.pools.Stats()
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"service":   "tenantgrid-server",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
		"pools": map[string]interface{}{
			"open":     a.pools.Len(),
			"max":      a.config.MaxTenantPools,
			"hit_rate": a.pools.HitRate(),
			"hits":     stats.Hits,
			"misses":   stats.Misses,
		},
	}); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}

// Run is the exported entry point for the server binary. It opens the
// master database, applies master migrations, and serves until the
// process is terminated.
func Run() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, err := masterdb.Open(ctx, cfg.MasterDatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open master database: %v", err)
	}

	if err := masterdb.RunMigrations(ctx, store.DB(), cfg.MasterMigrationsDir); err != nil {
		log.Fatalf("Master migrations failed: %v", err)
	}

	app := New(cfg, store, nil)
	app.SetReady()

	log.Printf("🚀 TenantGrid server starting on port %s", cfg.Port)
	log.Printf("   Max tenant pools: %d, pool size: %d", cfg.MaxTenantPools, cfg.TenantPoolSize)
	if err := http.ListenAndServe(":"+cfg.Port, app.Handler()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
