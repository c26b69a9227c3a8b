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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolveCaches(t *testing.T) {
	dir := newFakeDirectory("acme")
	reg := NewRegistry(dir, 500*time.Millisecond)

	for i := 0; i < 5; i++ {
		desc, err := reg.Resolve(context.Background(), "acme")
		require.NoError(t, err)
		assert.Equal(t, "acme", desc.ID)
		assert.Equal(t, StatusActive, desc.Status)
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&dir.lookups), "within the TTL only one directory read happens")

	hits, misses := reg.Stats()
	assert.Equal(t, int64(4), hits)
	assert.Equal(t, int64(1), misses)
}

func TestRegistryResolveNotFound(t *testing.T) {
	reg := NewRegistry(newFakeDirectory(), time.Second)

	_, err := reg.Resolve(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestRegistryStatusChangeObservedAfterTTL(t *testing.T) {
	dir := newFakeDirectory("acme")
	reg := NewRegistry(dir, 30*time.Millisecond)

	desc, err := reg.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.True(t, desc.Active())

	dir.setStatus("acme", StatusSuspended)

	// Still within the TTL: the cached active descriptor may be served.
	desc, err = reg.Resolve(context.Background(), "acme")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	desc, err = reg.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, desc.Status, "status change must be visible once the TTL lapses")
}

func TestRegistryInvalidate(t *testing.T) {
	dir := newFakeDirectory("acme")
	reg := NewRegistry(dir, time.Hour)

	_, err := reg.Resolve(context.Background(), "acme")
	require.NoError(t, err)

	dir.setStatus("acme", StatusSuspended)
	reg.Invalidate("acme")

	desc, err := reg.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, desc.Status)
	assert.Equal(t, int64(2), atomic.LoadInt64(&dir.lookups))
}

func TestRegistryDefaultTTL(t *testing.T) {
	reg := NewRegistry(newFakeDirectory(), 0)
	assert.Equal(t, DefaultRegistryTTL, reg.ttl)
}
