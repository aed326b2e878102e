package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mercatohq/bastion/internal/auth"
	"github.com/mercatohq/bastion/internal/models"
	pkghttp "github.com/mercatohq/bastion/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithIdentityContext adds a gateway identity to request context for testing
// identity-guarded endpoints
func WithIdentityContext(req *http.Request, accountID, email string) *http.Request {
	identity := &auth.Identity{
		AccountID: accountID,
		Email:     email,
	}
	ctx := context.WithValue(req.Context(), auth.IdentityContextKey, identity)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	LoginFunc           func(ctx context.Context, email, password string) (*models.LoginResult, error)
	VerifyTwoFactorFunc func(ctx context.Context, challengeToken, code string, useBackup bool) (*models.LoginResult, error)
}

func (m *MockLoginService) Login(ctx context.Context, email, password string) (*models.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password)
}

func (m *MockLoginService) VerifyTwoFactor(ctx context.Context, challengeToken, code string, useBackup bool) (*models.LoginResult, error) {
	if m.VerifyTwoFactorFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.VerifyTwoFactorFunc(ctx, challengeToken, code, useBackup)
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	BeginSetupFunc            func(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error)
	ConfirmSetupFunc          func(ctx context.Context, userID, code string) ([]string, error)
	RegenerateBackupCodesFunc func(ctx context.Context, userID string) ([]string, error)
	DisableFunc               func(ctx context.Context, userID, password string) error
	StatusFunc                func(ctx context.Context, userID string) (*models.TwoFactorStatus, error)
}

func (m *MockTwoFactorService) BeginSetup(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error) {
	if m.BeginSetupFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.BeginSetupFunc(ctx, userID, email)
}

func (m *MockTwoFactorService) ConfirmSetup(ctx context.Context, userID, code string) ([]string, error) {
	if m.ConfirmSetupFunc == nil {
		return nil, models.ErrSetupNotFound
	}
	return m.ConfirmSetupFunc(ctx, userID, code)
}

func (m *MockTwoFactorService) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if m.RegenerateBackupCodesFunc == nil {
		return nil, models.ErrTwoFactorNotEnabled
	}
	return m.RegenerateBackupCodesFunc(ctx, userID)
}

func (m *MockTwoFactorService) Disable(ctx context.Context, userID, password string) error {
	if m.DisableFunc == nil {
		return models.ErrTwoFactorNotEnabled
	}
	return m.DisableFunc(ctx, userID, password)
}

func (m *MockTwoFactorService) Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
	if m.StatusFunc == nil {
		return &models.TwoFactorStatus{}, nil
	}
	return m.StatusFunc(ctx, userID)
}
