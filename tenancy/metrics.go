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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Pool cache Prometheus metrics
var (
	poolAcquireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgrid_pool_acquire_total",
			Help: "Total pool acquire attempts by cache outcome",
		},
		[]string{"outcome"},
	)
	poolCreationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgrid_pool_creations_total",
			Help: "Total tenant connection pools opened",
		},
	)
	poolEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgrid_pool_evictions_total",
			Help: "Total tenant connection pools evicted from the cache",
		},
	)
	poolExhaustionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgrid_pool_exhaustions_total",
			Help: "Total acquires rejected because every cached pool was busy",
		},
	)
	poolOpenFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgrid_pool_open_failures_total",
			Help: "Total failed tenant pool creations",
		},
	)
	poolsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenantgrid_pools_open",
			Help: "Currently open tenant connection pools",
		},
	)
)

// poolMetricsOnce ensures metrics are registered only once
var poolMetricsOnce sync.Once

func init() {
	registerPoolMetrics()
}

// registerPoolMetrics registers pool metrics once (safe for multiple calls)
func registerPoolMetrics() {
	poolMetricsOnce.Do(func() {
		_ = prometheus.Register(poolAcquireTotal)
		_ = prometheus.Register(poolCreationsTotal)
		_ = prometheus.Register(poolEvictionsTotal)
		_ = prometheus.Register(poolExhaustionsTotal)
		_ = prometheus.Register(poolOpenFailuresTotal)
		_ = prometheus.Register(poolsOpen)
	})
}
