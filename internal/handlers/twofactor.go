package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mercatohq/bastion/internal/auth"
	"github.com/mercatohq/bastion/internal/models"
	pkghttp "github.com/mercatohq/bastion/pkg/http"
)

// TwoFactorServiceInterface defines the interface for two-factor enrollment
// and management
type TwoFactorServiceInterface interface {
	BeginSetup(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error)
	ConfirmSetup(ctx context.Context, userID, code string) ([]string, error)
	RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error)
	Disable(ctx context.Context, userID, password string) error
	Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error)
}

// TwoFactorHandler handles two-factor management HTTP requests. All routes
// require gateway identity headers.
type TwoFactorHandler struct {
	service  TwoFactorServiceInterface
	setupTTL time.Duration
}

// NewTwoFactorHandler creates a new TwoFactorHandler
func NewTwoFactorHandler(service TwoFactorServiceInterface, setupTTL time.Duration) *TwoFactorHandler {
	return &TwoFactorHandler{service: service, setupTTL: setupTTL}
}

// BeginSetup provisions a new TOTP secret. The plaintext secret and QR code
// are returned exactly once; the pending setup expires if not confirmed.
func (h *TwoFactorHandler) BeginSetup(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	setup, err := h.service.BeginSetup(r.Context(), identity.AccountID, identity.Email)
	if err != nil {
		h.respondError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, BeginSetupResponse{
		Secret:     setup.Secret,
		OTPAuthURL: setup.OTPAuthURL,
		QRCode:     setup.QRCode,
		ExpiresAt:  time.Now().Add(h.setupTTL),
	})
}

// ConfirmSetup verifies the first authenticator code and enables two-factor.
// The response carries the backup codes, shown exactly once.
func (h *TwoFactorHandler) ConfirmSetup(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ConfirmSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	codes, err := h.service.ConfirmSetup(r.Context(), identity.AccountID, strings.TrimSpace(req.Code))
	if err != nil {
		h.respondError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, BackupCodesResponse{
		BackupCodes: codes,
		Message:     "Two-factor authentication enabled. Store these backup codes somewhere safe; they will not be shown again.",
	})
}

// RegenerateBackupCodes replaces the full backup code set
func (h *TwoFactorHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	codes, err := h.service.RegenerateBackupCodes(r.Context(), identity.AccountID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, BackupCodesResponse{
		BackupCodes: codes,
		Message:     "Backup codes regenerated. Previous codes are no longer valid.",
	})
}

// Disable turns off two-factor authentication after re-verifying the password
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req DisableTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Disable(r.Context(), identity.AccountID, req.Password); err != nil {
		h.respondError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TwoFactorActionResponse{
		Success: true,
		Message: "Two-factor authentication disabled",
	})
}

// Status reports the caller's two-factor enrollment state
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	status, err := h.service.Status(r.Context(), identity.AccountID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// respondError maps management failures onto HTTP statuses. Verification
// failures during login go through the classifier instead; these routes only
// surface enrollment state conflicts.
func (h *TwoFactorHandler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrTwoFactorEnabled):
		pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
	case errors.Is(err, models.ErrTwoFactorNotEnabled):
		pkghttp.WriteConflict(w, "Two-factor authentication is not enabled")
	case errors.Is(err, models.ErrSetupNotFound):
		pkghttp.WriteNotFound(w, "No pending setup found; it may have expired")
	case errors.Is(err, models.ErrInvalidTwoFactor):
		pkghttp.WriteBadRequest(w, "Invalid verification code")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Password verification failed")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	default:
		respondClassified(w, err)
	}
}
