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

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestIssueAndVerify(t *testing.T) {
	codec := NewCodec(testSecret, time.Hour)

	token, err := codec.Issue("user-1", "acme", []string{"users:read", "users:write"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := codec.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, "user-1", identity.UserID)
	assert.Equal(t, "acme", identity.TenantID)
	assert.Equal(t, []string{"users:read", "users:write"}, identity.Permissions)
	assert.WithinDuration(t, time.Now(), identity.IssuedAt, 5*time.Second)
	assert.WithinDuration(t, time.Now().Add(time.Hour), identity.ExpiresAt, 5*time.Second)
}

func TestVerifyExpiredToken(t *testing.T) {
	// Expired the moment it is issued, but correctly signed: expiry alone
	// must fail verification.
	codec := &Codec{secret: testSecret, ttl: -time.Minute}

	token, err := codec.Issue("user-1", "acme", nil)
	require.NoError(t, err)

	_, err = codec.Verify(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTamperedToken(t *testing.T) {
	codec := NewCodec(testSecret, time.Hour)

	token, err := codec.Issue("user-1", "acme", nil)
	require.NoError(t, err)

	_, err = codec.Verify(token[:len(token)-2] + "xx")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewCodec(testSecret, time.Hour)
	verifier := NewCodec([]byte("another-secret-another-secret-xx"), time.Hour)

	token, err := issuer.Issue("user-1", "acme", nil)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsUnsignedAlgorithm(t *testing.T) {
	codec := NewCodec(testSecret, time.Hour)

	// alg=none token with plausible claims.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, tokenClaims{
		TenantID: "acme",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMalformed(t *testing.T) {
	codec := NewCodec(testSecret, time.Hour)

	for _, garbage := range []string{"", "not-a-jwt", "a.b", "a.b.c.d"} {
		_, err := codec.Verify(garbage)
		assert.ErrorIs(t, err, ErrInvalidToken, "input %q", garbage)
	}
}

func TestHasPermission(t *testing.T) {
	identity := &Identity{Permissions: []string{"users:read"}}

	assert.True(t, identity.HasPermission("users:read"))
	assert.False(t, identity.HasPermission("users:write"))
	assert.False(t, (&Identity{}).HasPermission("users:read"))
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", hash)

	assert.True(t, VerifyPassword("correct horse battery", hash))
	assert.False(t, VerifyPassword("wrong password", hash))
	assert.False(t, VerifyPassword("correct horse battery", "not-a-bcrypt-hash"))
}

func TestHashPasswordTooShort(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrShortPassword)
}
