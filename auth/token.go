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
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every verification failure: bad signature,
// malformed structure, wrong signing method, or expiry. Callers get no
// finer detail; the distinction is logged server-side only.
var ErrInvalidToken = errors.New("invalid token")

// RecommendedSecretLength is the minimum signing secret size that does not
// draw a startup warning.
const RecommendedSecretLength = 32

// Identity is the verified content of a token: who the user is, which
// tenant their data lives in, and what they may do. Immutable once issued.
type Identity struct {
	UserID      string    `json:"user_id"`
	TenantID    string    `json:"tenant_id"`
	Permissions []string  `json:"permissions"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// HasPermission reports whether the identity carries the given permission.
func (id *Identity) HasPermission(permission string) bool {
	for _, p := range id.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// tokenClaims is the JWT claim set: registered claims plus tenant identity
// and permissions.
type tokenClaims struct {
	TenantID    string   `json:"tenant_id"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// Codec signs and verifies identity tokens with an HS256 shared secret.
// The secret is set once at startup and never mutated, so a single Codec
// is safe for arbitrarily many concurrent requests.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec creates a Codec. ttl <= 0 defaults to one hour. Secrets shorter
// than RecommendedSecretLength are accepted but logged, since a short HMAC
// secret undermines every token the process issues.
func NewCodec(secret []byte, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if len(secret) < RecommendedSecretLength {
		log.Printf("⚠️  JWT secret is %d bytes; %d+ recommended", len(secret), RecommendedSecretLength)
	}
	return &Codec{secret: secret, ttl: ttl}
}

// Issue mints a signed, time-limited token for the user within a tenant.
func (c *Codec) Issue(userID, tenantID string, permissions []string) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		TenantID:    tenantID,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, structure, and expiry of a token and
// returns the identity it carries. Any failure maps to ErrInvalidToken.
func (c *Codec) Verify(tokenString string) (*Identity, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	identity := &Identity{
		UserID:      claims.Subject,
		TenantID:    claims.TenantID,
		Permissions: claims.Permissions,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}
