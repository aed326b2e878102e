package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mercatohq/bastion/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireIdentity_MissingHeaderRejected(t *testing.T) {
	handler := auth.RequireIdentity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/2fa/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireIdentity_InjectsIdentity(t *testing.T) {
	var got *auth.Identity
	handler := auth.RequireIdentity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.GetIdentityFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/2fa/status", nil)
	req.Header.Set(auth.HeaderAccountID, "user-123")
	req.Header.Set(auth.HeaderAccountEmail, "user@example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "user-123", got.AccountID)
	assert.Equal(t, "user@example.com", got.Email)
}

func TestGetIdentityFromContext_AbsentReturnsNil(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, auth.GetIdentityFromContext(req))
}
