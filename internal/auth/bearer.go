package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerTokenAuth guards the MCP endpoint with a single shared token
type BearerTokenAuth struct {
	token []byte
}

// NewBearerTokenAuth creates a new Bearer token authenticator
func NewBearerTokenAuth(token string) *BearerTokenAuth {
	return &BearerTokenAuth{token: []byte(token)}
}

// IsAuthorized validates the Bearer token from the Authorization header.
// The scheme is case-insensitive, the token is compared in constant time and
// an empty configured token authorizes nobody.
func (b *BearerTokenAuth) IsAuthorized(r *http.Request) bool {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}

	token = strings.TrimSpace(token)
	if token == "" || len(b.token) == 0 {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(token), b.token) == 1
}

// SetUnauthorizedHeaders sets the WWW-Authenticate challenge for Bearer auth
func (b *BearerTokenAuth) SetUnauthorizedHeaders(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="nutrient-engine"`)
}
