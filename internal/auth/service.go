// ABOUTME: Static service token verification for non-interactive callers
// ABOUTME: Compares bcrypt hashes with constant-time dummy comparisons

package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when no service token is configured, so the
// response timing does not reveal whether the feature is enabled.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// ServiceTokens verifies static, bcrypt-hashed operator tokens. They map to
// an admin identity and exist for tooling that cannot hold a short-lived JWT.
type ServiceTokens struct {
	hash string
}

// NewServiceTokens creates a verifier for the given bcrypt hash. An empty
// hash disables service token auth.
func NewServiceTokens(hash string) *ServiceTokens {
	return &ServiceTokens{hash: hash}
}

// Verify checks the presented token against the configured hash. Returns the
// admin identity on success, nil otherwise.
func (s *ServiceTokens) Verify(token string) *Identity {
	if s.hash == "" {
		// Dummy comparison to maintain constant timing
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(token))
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.hash), []byte(token)); err != nil {
		return nil
	}
	return &Identity{ID: "service", Role: RoleAdmin}
}

// HashServiceToken produces a bcrypt hash suitable for the auth
// configuration.
func HashServiceToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
