package enrollment

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// Validator checks the format of human-entered registration fields.
// Fields are already trimmed and non-empty when it is called.
type Validator interface {
	Validate(req RegisterRequest) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(req RegisterRequest) error

// Validate calls f(req).
func (f ValidatorFunc) Validate(req RegisterRequest) error {
	return f(req)
}

// FieldValidator enforces minimum lengths and an optional identifier pattern.
type FieldValidator struct {
	IdentityPattern *regexp.Regexp
	MinNameLength   int
	MinGroupLength  int
}

// NewFieldValidator builds a FieldValidator from configuration.
// An empty pattern disables the identifier format check.
func NewFieldValidator(cfg config.ValidationConfig) (*FieldValidator, error) {
	v := &FieldValidator{
		MinNameLength:  cfg.MinNameLength,
		MinGroupLength: cfg.MinGroupLength,
	}
	if cfg.IdentityPattern != "" {
		re, err := regexp.Compile(cfg.IdentityPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid identity pattern %q: %w", cfg.IdentityPattern, err)
		}
		v.IdentityPattern = re
	}
	return v, nil
}

// Validate implements Validator.
func (v *FieldValidator) Validate(req RegisterRequest) error {
	if utf8.RuneCountInString(req.Name) < v.MinNameLength {
		return fmt.Errorf("%w: name must be at least %d characters", database.ErrInvalidInput, v.MinNameLength)
	}
	if utf8.RuneCountInString(req.Group) < v.MinGroupLength {
		return fmt.Errorf("%w: group must be at least %d characters", database.ErrInvalidInput, v.MinGroupLength)
	}
	if v.IdentityPattern != nil && !v.IdentityPattern.MatchString(req.IdentityID) {
		return fmt.Errorf("%w: identity %q does not match %s", database.ErrInvalidInput, req.IdentityID, v.IdentityPattern)
	}
	return nil
}
