package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mercatohq/bastion/internal/security"
	pkghttp "github.com/mercatohq/bastion/pkg/http"
)

// PasswordHandler serves live password strength assessments
type PasswordHandler struct {
	policy *security.PasswordPolicy
}

// NewPasswordHandler creates a new PasswordHandler
func NewPasswordHandler(policy *security.PasswordPolicy) *PasswordHandler {
	return &PasswordHandler{policy: policy}
}

// Assess scores a candidate password. The same policy engine gates
// registration, so the feedback here matches what registration will accept.
func (h *PasswordHandler) Assess(w http.ResponseWriter, r *http.Request) {
	var req AssessPasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, h.policy.Assess(req.Password))
}
