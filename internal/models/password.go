package models

// Password requirement names, stable keys rendered by the UI checklist.
const (
	RequirementMinLength = "min_length"
	RequirementMaxLength = "max_length"
	RequirementUppercase = "uppercase"
	RequirementLowercase = "lowercase"
	RequirementDigit     = "digit"
	RequirementSymbol    = "symbol"
)

// Strength labels derived from the assessment score.
const (
	StrengthWeak       = "Weak"
	StrengthFair       = "Fair"
	StrengthGood       = "Good"
	StrengthStrong     = "Strong"
	StrengthVeryStrong = "Very Strong"
)

// PasswordAssessment is the derived (never persisted) result of scoring a
// candidate password. The same struct backs server-side enforcement and the
// live-feedback endpoint so the two can never drift.
type PasswordAssessment struct {
	Score        int             `json:"score"` // 0-5, count of scored checks met (max_length is a gate, not scored)
	Label        string          `json:"label"`
	Requirements map[string]bool `json:"requirements"`
	IsAcceptable bool            `json:"is_acceptable"`
	WeakPattern  string          `json:"weak_pattern,omitempty"` // reason code when a weak pattern forced rejection
}
