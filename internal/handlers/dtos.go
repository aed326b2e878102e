package handlers

import "time"

// Login DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// VerifyTwoFactorRequest completes a login that stopped at the two-factor gate
type VerifyTwoFactorRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code" validate:"required,max=20"` // TOTP (6 digits) or backup code (8 chars)
	UseBackupCode  bool   `json:"use_backup_code"`
}

// Password DTOs

// AssessPasswordRequest asks for a strength assessment of a candidate password
type AssessPasswordRequest struct {
	Password string `json:"password" validate:"required,max=256"`
}

// Two-factor setup DTOs

// BeginSetupResponse contains the provisioning material shown exactly once
type BeginSetupResponse struct {
	Secret     string    `json:"secret"`      // Base32-encoded secret (for manual entry)
	OTPAuthURL string    `json:"otpauth_url"` // otpauth:// provisioning URI
	QRCode     string    `json:"qr_code"`     // Data URL for QR code
	ExpiresAt  time.Time `json:"expires_at"`  // Setup window expiry
}

// ConfirmSetupRequest verifies the first code and enables two-factor
type ConfirmSetupRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// BackupCodesResponse carries freshly minted single-use backup codes
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
	Message     string   `json:"message"`
}

// DisableTwoFactorRequest requests two-factor disablement (requires password)
type DisableTwoFactorRequest struct {
	Password string `json:"password" validate:"required"`
}

// TwoFactorActionResponse confirms a two-factor management action
type TwoFactorActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
