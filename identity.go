// Copyright 2025 The Rivaas Authors
//
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

package hosting

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Identity is the authenticated caller attached to the request scope by
// the identity stage.
type Identity struct {
	Subject string
	Roles   []string
	Claims  map[string]any
}

// HasRole reports whether the identity carries a role.
func (id *Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}

	return false
}

// Policy decides whether an identity may reach an endpoint. A nil
// identity is never passed in; absence is already a 401 before the
// policy runs.
type Policy func(*Identity) bool

// RequireRole is a policy allowing only identities with the role.
func RequireRole(role string) Policy {
	return func(id *Identity) bool { return id.HasRole(role) }
}

// TokenManager turns a bearer token into an identity.
type TokenManager interface {
	Validate(token string) (*Identity, error)
}

// ErrInvalidToken reports a token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// JWTManager validates HMAC-signed JWTs. Roles come from a "roles" claim
// holding a list of strings.
type JWTManager struct {
	key []byte
}

// NewJWTManager creates a JWTManager around a shared HMAC key.
func NewJWTManager(key []byte) *JWTManager {
	return &JWTManager{key: key}
}

// Validate parses and verifies a token and maps its claims.
func (m *JWTManager) Validate(token string) (*Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %s", ErrInvalidToken, t.Method.Alg())
		}
		return m.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	id := &Identity{Claims: claims}
	if sub, ok := claims["sub"].(string); ok {
		id.Subject = sub
	}
	if raw, ok := claims["roles"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				id.Roles = append(id.Roles, s)
			}
		}
	}

	return id, nil
}

// bearerToken extracts the token of a Bearer Authorization header.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(header[len(prefix):]), true
}
