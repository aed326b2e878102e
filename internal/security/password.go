package security

import (
	"strings"
	"unicode"

	"github.com/mercatohq/bastion/internal/models"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
)

// Weak-pattern reason codes surfaced in the assessment.
const (
	WeakPatternCommonPrefix = "common_prefix"
	WeakPatternSequential   = "sequential_characters"
)

// Common weak prefixes rejected regardless of score (checked case-insensitively)
var weakPrefixes = []string{
	"123456",
	"password",
	"qwerty",
	"abc123",
	"111111",
	"admin",
	"letmein",
	"welcome",
	"monkey",
	"dragon",
}

// PasswordPolicy scores candidate passwords. It is a pure function of its
// input: the same engine backs the registration gate and the live-feedback
// endpoint so the two can never disagree.
type PasswordPolicy struct{}

// NewPasswordPolicy creates the policy engine.
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{}
}

// Assess scores a candidate password against the platform policy.
// Score counts the independent strength checks passed (0-5). Acceptance
// requires both length bounds, a score of at least 3, and no match against
// the weak-pattern layer.
func (p *PasswordPolicy) Assess(candidate string) *models.PasswordAssessment {
	hasMinLength := len(candidate) >= minPasswordLen
	withinMaxLength := len(candidate) <= maxPasswordLen
	hasUpper := false
	hasLower := false
	hasDigit := false
	hasSymbol := false

	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}

	requirements := map[string]bool{
		models.RequirementMinLength: hasMinLength,
		models.RequirementMaxLength: withinMaxLength,
		models.RequirementUppercase: hasUpper,
		models.RequirementLowercase: hasLower,
		models.RequirementDigit:     hasDigit,
		models.RequirementSymbol:    hasSymbol,
	}

	// The max-length cap gates acceptance but does not count toward the
	// score; the score stays 0-5 over the five strength checks.
	score := 0
	for _, met := range []bool{hasMinLength, hasUpper, hasLower, hasDigit, hasSymbol} {
		if met {
			score++
		}
	}

	assessment := &models.PasswordAssessment{
		Score:        score,
		Label:        strengthLabel(score),
		Requirements: requirements,
		IsAcceptable: hasMinLength && withinMaxLength && score >= 3,
	}

	// Weak patterns override an otherwise passing score
	if assessment.IsAcceptable {
		if pattern := weakPattern(candidate); pattern != "" {
			assessment.IsAcceptable = false
			assessment.WeakPattern = pattern
		}
	}

	return assessment
}

func strengthLabel(score int) string {
	switch {
	case score <= 1:
		return models.StrengthWeak
	case score == 2:
		return models.StrengthFair
	case score == 3:
		return models.StrengthGood
	case score == 4:
		return models.StrengthStrong
	default:
		return models.StrengthVeryStrong
	}
}

// weakPattern returns a reason code when the candidate starts with a known
// weak prefix or contains a 3-character ascending run of letters or digits.
func weakPattern(candidate string) string {
	lowered := strings.ToLower(candidate)

	for _, prefix := range weakPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return WeakPatternCommonPrefix
		}
	}

	if hasAscendingRun(lowered) {
		return WeakPatternSequential
	}

	return ""
}

func hasAscendingRun(lowered string) bool {
	for i := 0; i+2 < len(lowered); i++ {
		a, b, c := lowered[i], lowered[i+1], lowered[i+2]
		if b != a+1 || c != b+1 {
			continue
		}
		if a >= 'a' && c <= 'z' {
			return true
		}
		if a >= '0' && c <= '9' {
			return true
		}
	}
	return false
}
