package auth

import (
	"context"
	"net/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// IdentityContextKey is the key for storing the caller identity in context
	IdentityContextKey contextKey = "identity"

	// HeaderAccountID carries the authenticated account ID set by the edge gateway
	HeaderAccountID = "X-Account-ID"
	// HeaderAccountEmail carries the authenticated account email set by the edge gateway
	HeaderAccountEmail = "X-Account-Email"
)

// Identity is the authenticated caller forwarded by the edge gateway. Session
// establishment happens upstream; this service only trusts the gateway headers
// because the gateway strips them from external traffic.
type Identity struct {
	AccountID string
	Email     string
}

// RequireIdentity rejects requests without gateway identity headers and
// injects the identity into the request context.
func RequireIdentity() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := r.Header.Get(HeaderAccountID)
			if accountID == "" {
				http.Error(w, "missing identity", http.StatusUnauthorized)
				return
			}

			identity := &Identity{
				AccountID: accountID,
				Email:     r.Header.Get(HeaderAccountEmail),
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentityFromContext extracts the caller identity from request context
func GetIdentityFromContext(r *http.Request) *Identity {
	identity, ok := r.Context().Value(IdentityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}
