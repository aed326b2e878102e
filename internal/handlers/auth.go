package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mercatohq/bastion/internal/models"
	pkghttp "github.com/mercatohq/bastion/pkg/http"
)

// LoginServiceInterface defines the interface for the login pipeline
type LoginServiceInterface interface {
	Login(ctx context.Context, email, password string) (*models.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, challengeToken, code string, useBackup bool) (*models.LoginResult, error)
}

// AuthHandler handles login HTTP requests
type AuthHandler struct {
	service LoginServiceInterface
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service LoginServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// Login handles the email/password step of login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondClassified(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// VerifyTwoFactor handles the second-factor step of login
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req VerifyTwoFactorRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.VerifyTwoFactor(r.Context(), req.ChallengeToken, strings.TrimSpace(req.Code), req.UseBackupCode)
	if err != nil {
		respondClassified(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}
