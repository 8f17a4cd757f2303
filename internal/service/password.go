package service

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// PasswordRule identifies a single password composition rule.
type PasswordRule string

const (
	RuleMinLength PasswordRule = "min_length"
	RuleMaxLength PasswordRule = "max_length"
	RuleUppercase PasswordRule = "uppercase"
	RuleLowercase PasswordRule = "lowercase"
	RuleDigit     PasswordRule = "digit"
	RuleNoSpaces  PasswordRule = "no_spaces"
)

// PasswordViolation is one broken rule and its user-facing message.
type PasswordViolation struct {
	Rule    PasswordRule
	Message string
}

// PasswordPolicy holds the configurable length bounds. Lengths are counted
// in characters, not bytes.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

// DefaultPasswordPolicy accepts passwords of 7 to 30 characters.
var DefaultPasswordPolicy = PasswordPolicy{MinLength: 7, MaxLength: 30}

// Validate returns every rule password violates, in rule order. An empty
// result means the password is acceptable.
func (p PasswordPolicy) Validate(password string) []PasswordViolation {
	var violations []PasswordViolation

	n := utf8.RuneCountInString(password)
	if n < p.MinLength {
		violations = append(violations, PasswordViolation{RuleMinLength,
			fmt.Sprintf("Password should be at least %d characters long.", p.MinLength)})
	}
	if n > p.MaxLength {
		violations = append(violations, PasswordViolation{RuleMaxLength,
			fmt.Sprintf("Password should be at most %d characters long.", p.MaxLength)})
	}

	var upper, lower, digit, space bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsSpace(r):
			space = true
		}
	}

	if !upper {
		violations = append(violations, PasswordViolation{RuleUppercase,
			"Password should contain at least one uppercase letter."})
	}
	if !lower {
		violations = append(violations, PasswordViolation{RuleLowercase,
			"Password should contain at least one lowercase letter."})
	}
	if !digit {
		violations = append(violations, PasswordViolation{RuleDigit,
			"Password should contain at least one digit."})
	}
	if space {
		violations = append(violations, PasswordViolation{RuleNoSpaces,
			"Password should not contain spaces."})
	}

	return violations
}

// ValidatePassword checks password against DefaultPasswordPolicy.
func ValidatePassword(password string) []PasswordViolation {
	return DefaultPasswordPolicy.Validate(password)
}
