package middleware

import (
	"crypto/sha256"
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// maxVerifiedKeys bounds the cache of keys that already passed bcrypt.
const maxVerifiedKeys = 64

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":                 true,
	"/.well-known/agent.json": true,
}

// APIKeyAuth verifies a shared API key against a bcrypt hash.
// A zero-value hash disables verification.
type APIKeyAuth struct {
	hash []byte

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]struct{}
}

// NewAPIKeyAuth creates an APIKeyAuth for the given bcrypt hash.
func NewAPIKeyAuth(hash string) *APIKeyAuth {
	return &APIKeyAuth{
		hash:     []byte(hash),
		verified: make(map[[sha256.Size]byte]struct{}),
	}
}

// HashAPIKey returns the bcrypt hash to store in auth.api_key_hash.
func HashAPIKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("api key must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Enabled reports whether a hash is configured.
func (a *APIKeyAuth) Enabled() bool { return len(a.hash) > 0 }

// Verify reports whether key matches the configured hash.
func (a *APIKeyAuth) Verify(key string) bool {
	if !a.Enabled() {
		return true
	}
	if key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))

	a.mu.RLock()
	_, ok := a.verified[sum]
	a.mu.RUnlock()
	if ok {
		return true
	}

	if bcrypt.CompareHashAndPassword(a.hash, []byte(key)) != nil {
		return false
	}
	a.mu.Lock()
	if len(a.verified) < maxVerifiedKeys {
		a.verified[sum] = struct{}{}
	}
	a.mu.Unlock()
	return true
}

// Handler returns middleware that rejects requests without a valid key.
// The key is read from X-API-Key, then Authorization: Bearer, then the
// ?token= query parameter on /ws where browsers cannot set headers.
func (a *APIKeyAuth) Handler(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		key := credential(r)
		if key == "" {
			unauthorized(w, "authorization required")
			return
		}
		if !a.Verify(key) {
			unauthorized(w, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func credential(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if r.URL.Path == "/ws" {
		return r.URL.Query().Get("token")
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
