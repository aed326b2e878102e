package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod     = 30 // seconds per time step
	totpSecretSize = 32
	totpSkew       = 1 // accepted drift in steps on either side
)

// TOTPManager generates, encrypts, and validates TOTP secrets and codes.
type TOTPManager struct {
	encryptionKey []byte // 32-byte AES-256 key
	issuer        string // issuer shown in authenticator apps
}

// NewTOTPManager creates a new TOTP manager.
// encryptionKey must be exactly 32 bytes for AES-256.
func NewTOTPManager(encryptionKey []byte, issuer string) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}

	return &TOTPManager{
		encryptionKey: encryptionKey,
		issuer:        issuer,
	}, nil
}

// GenerateSecret creates a new shared secret for the given account.
// Returns the base32 secret and the otpauth:// provisioning URL.
func (tm *TOTPManager) GenerateSecret(accountEmail string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountEmail,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return key.Secret(), key.URL(), nil
}

// ProvisioningQR renders the otpauth URL as a scannable PNG data URL.
func (tm *TOTPManager) ProvisioningQR(otpauthURL string) (string, error) {
	qr, err := qrcode.New(otpauthURL, qrcode.Highest)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(200)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// EncryptSecret encrypts a TOTP secret using AES-256-GCM.
// Returns: (ciphertext, nonce, error)
func (tm *TOTPManager) EncryptSecret(secret string) ([]byte, []byte, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(secret), nil)
	return ciphertext, nonce, nil
}

// DecryptSecret decrypts an encrypted TOTP secret.
func (tm *TOTPManager) DecryptSecret(ciphertext, nonce []byte) (string, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return string(plaintext), nil
}

// ValidateCode checks a 6-digit code against the secret at the given time,
// tolerating ±1 step of clock drift. On success it returns the time step the
// code belongs to, so callers can enforce no-replay within a step. All
// candidate comparisons run in constant time.
func (tm *TOTPManager) ValidateCode(secret, code string, at time.Time) (int64, bool, error) {
	if len(code) != 6 {
		return 0, false, nil
	}

	baseStep := at.Unix() / totpPeriod
	matchedStep := int64(0)
	matched := 0

	for offset := int64(-totpSkew); offset <= totpSkew; offset++ {
		step := baseStep + offset
		stepTime := time.Unix(step*totpPeriod, 0)

		expected, err := totp.GenerateCodeCustom(secret, stepTime, totp.ValidateOpts{
			Period:    totpPeriod,
			Skew:      0,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil {
			return 0, false, fmt.Errorf("failed to compute TOTP code: %w", err)
		}

		// Every candidate is compared; no early exit on match
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			matchedStep = step
			matched = 1
		}
	}

	return matchedStep, matched == 1, nil
}

// Step returns the TOTP time step for a given time.
func Step(at time.Time) int64 {
	return at.Unix() / totpPeriod
}

// GenerateBackupCodes generates n single-use backup codes.
// Format: 8 characters from an unambiguous charset (no 0/O, 1/I/L).
func (tm *TOTPManager) GenerateBackupCodes(n int) ([]string, error) {
	const charset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	const codeLen = 8

	codes := make([]string, n)
	for i := 0; i < n; i++ {
		raw := make([]byte, codeLen)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}

		code := make([]byte, codeLen)
		for j, b := range raw {
			code[j] = charset[int(b)%len(charset)]
		}
		codes[i] = string(code)
	}

	return codes, nil
}
