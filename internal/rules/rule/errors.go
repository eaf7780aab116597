package rule

import (
	"errors"
	"fmt"
)

// Errors returned by rule construction and validation.
var (
	// ErrInvalidValue matches every *InvalidValueError.
	ErrInvalidValue = errors.New("invalid rule value")

	// ErrInvalidDefault indicates a rule whose default fails its own validator.
	ErrInvalidDefault = errors.New("invalid default value")

	// ErrInvalidName indicates an empty or malformed rule name.
	ErrInvalidName = errors.New("invalid rule name")
)

// InvalidValueError describes a raw input that a rule's validator rejected.
type InvalidValueError struct {
	// Rule is the rule name. Empty when raised by a bare validator.
	Rule string
	// Input is the raw user input.
	Input string
	// Reason is a user-presentable explanation.
	Reason string
}

// Invalid returns a validation failure carrying only a reason. The rule
// fills in its name and the input when the failure leaves Validate.
func Invalid(reason string) error {
	return &InvalidValueError{Reason: reason}
}

// Error implements the error interface.
func (e *InvalidValueError) Error() string {
	if e.Rule == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid value %q for %s: %s", e.Input, e.Rule, e.Reason)
}

// Is implements error matching for InvalidValueError.
func (e *InvalidValueError) Is(target error) bool {
	return target == ErrInvalidValue
}

// Reason extracts the presentable reason from a validation error. Other
// errors are returned as their message.
func Reason(err error) string {
	var ive *InvalidValueError
	if errors.As(err, &ive) {
		return ive.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
