package models

import "time"

// TwoFactorCredential is an enabled TOTP credential for one user. The shared
// secret is AES-256-GCM encrypted at rest and never leaves the core after
// the initial setup response. Backup codes are stored as bcrypt hashes and
// removed individually on use.
type TwoFactorCredential struct {
	ID               string
	UserID           string
	SecretEncrypted  []byte
	SecretNonce      []byte
	Enabled          bool
	BackupCodeHashes []string
	LastUsedStep     *int64 // last accepted TOTP time step, for replay prevention
	CreatedAt        time.Time
	ConfirmedAt      *time.Time
}

// PendingTwoFactorSetup is a provisioned-but-unconfirmed secret. It lives in
// the key-value store under a short TTL and is discarded on confirmation.
type PendingTwoFactorSetup struct {
	UserID          string    `json:"user_id"`
	SecretEncrypted []byte    `json:"secret_encrypted"`
	SecretNonce     []byte    `json:"secret_nonce"`
	CreatedAt       time.Time `json:"created_at"`
}

// TwoFactorSetup is the one-time response from beginning setup. The plaintext
// secret and QR payload are shown to the user exactly once.
type TwoFactorSetup struct {
	Secret     string `json:"secret"`      // base32, for manual authenticator entry
	OTPAuthURL string `json:"otpauth_url"` // otpauth:// provisioning URI
	QRCode     string `json:"qr_code"`     // PNG data URL of the provisioning URI
}

// TwoFactorStatus summarizes a user's two-factor state.
type TwoFactorStatus struct {
	Enabled              bool       `json:"enabled"`
	ConfirmedAt          *time.Time `json:"confirmed_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
}
