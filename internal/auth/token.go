package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mercatohq/bastion/internal/models"
)

const challengeTokenType = "2fa_challenge"

// ChallengeClaims are the claims carried by a two-factor challenge token.
type ChallengeClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// ChallengeTokenManager issues and validates the short-lived tokens handed
// out after a correct password when the account still owes a 2FA code. The
// token proves the password step happened without creating a session.
type ChallengeTokenManager struct {
	secret string
	expiry time.Duration
}

// NewChallengeTokenManager creates a new ChallengeTokenManager
func NewChallengeTokenManager(secret string, expiry time.Duration) *ChallengeTokenManager {
	return &ChallengeTokenManager{
		secret: secret,
		expiry: expiry,
	}
}

// GenerateChallenge creates a challenge token for the given account with JTI
func (cm *ChallengeTokenManager) GenerateChallenge(userID, email string) (string, error) {
	now := time.Now()
	claims := &ChallengeClaims{
		Type:   challengeTokenType,
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(cm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(cm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge token: %w", err)
	}

	return tokenString, nil
}

// ValidateChallenge verifies a challenge token and returns its claims
func (cm *ChallengeTokenManager) ValidateChallenge(tokenString string) (*ChallengeClaims, error) {
	claims := &ChallengeClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cm.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse challenge token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type != challengeTokenType {
		return nil, models.ErrUnauthorized
	}

	return claims, nil
}
