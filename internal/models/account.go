package models

import "time"

// Account is the slice of the external account record the security core
// needs. The account service owns the full record; this core only reads
// identity, verification state, and the password hash for re-auth checks.
type Account struct {
	ID               string
	Email            string
	PasswordHash     string
	EmailVerified    bool
	TwoFactorEnabled bool
	CreatedAt        time.Time
}

// LoginResult is the outcome of a successful credential check. When the
// account has two-factor enabled the login is not complete: the caller must
// present the challenge token together with a code.
type LoginResult struct {
	AccountID         string `json:"account_id"`
	Email             string `json:"email"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	ChallengeToken    string `json:"challenge_token,omitempty"`
}
