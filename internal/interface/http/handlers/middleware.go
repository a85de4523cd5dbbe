// Package handlers contains HTTP middleware and health-check plumbing
// shared by the REST interface.
package handlers

import (
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// APIKeyAuth authenticates admin requests against bcrypt hashes of the
// valid keys. Plaintext keys are never held in memory or config; the
// deployment carries only the hashes.
type APIKeyAuth struct {
	headerName string
	keyHashes  [][]byte
	mu         sync.RWMutex
}

// NewAPIKeyAuth creates an authenticator from bcrypt key hashes.
// Malformed entries are dropped silently; with no usable hashes every
// request is rejected.
func NewAPIKeyAuth(headerName string, hashes []string) *APIKeyAuth {
	if headerName == "" {
		headerName = "X-API-Key"
	}

	keyHashes := make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		if h != "" {
			keyHashes = append(keyHashes, []byte(h))
		}
	}

	return &APIKeyAuth{
		headerName: headerName,
		keyHashes:  keyHashes,
	}
}

// AddKeyHash registers another valid key hash at runtime.
func (a *APIKeyAuth) AddKeyHash(hash string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keyHashes = append(a.keyHashes, []byte(hash))
}

// IsValid reports whether the presented key matches any registered hash.
func (a *APIKeyAuth) IsValid(key string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, hash := range a.keyHashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil {
			return true
		}
	}
	return false
}

// Middleware rejects requests that do not carry a valid admin key in
// the configured header or as a Bearer token.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(a.headerName)

		if key == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if key == "" {
			writeAuthError(w, "missing_api_key", "API key is required")
			return
		}

		if !a.IsValid(key) {
			writeAuthError(w, "invalid_api_key", "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"error":{"code":"` + code + `","message":"` + message + `"}}`))
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SIZE LIMIT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, `{"error":"payload_too_large","message":"Request body too large"}`,
					http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SECURITY HEADERS MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// MiddlewareFunc is a function that wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain chains multiple middleware functions.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
