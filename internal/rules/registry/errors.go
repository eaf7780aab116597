package registry

import (
	"errors"

	"github.com/dshills/rulebook/internal/rules/rule"
)

// Errors returned by registry operations.
var (
	// ErrUnknownRule indicates the requested rule name is not registered.
	ErrUnknownRule = errors.New("unknown rule")

	// ErrLocked indicates a mutation attempt while the registry is locked.
	ErrLocked = errors.New("registry locked")

	// ErrDuplicateRule indicates two descriptors with the same name.
	ErrDuplicateRule = errors.New("rule already registered")

	// ErrFrozen indicates registration after mutation traffic started.
	ErrFrozen = errors.New("registry no longer accepts registrations")

	// ErrInvalidValue matches validation failures.
	ErrInvalidValue = rule.ErrInvalidValue
)

// Outcome classifies a mutation result.
type Outcome uint8

const (
	// OutcomeApplied means the value was changed and observers notified.
	OutcomeApplied Outcome = iota
	// OutcomeUnknownRule means the name did not resolve.
	OutcomeUnknownRule
	// OutcomeLocked means the registry rejected all mutations.
	OutcomeLocked
	// OutcomeInvalidValue means the validator rejected the input.
	OutcomeInvalidValue
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeUnknownRule:
		return "unknown_rule"
	case OutcomeLocked:
		return "locked"
	case OutcomeInvalidValue:
		return "invalid_value"
	default:
		return "unknown"
	}
}

// Result is the outcome of Apply.
type Result struct {
	// Rule is the resolved rule; nil when the name did not resolve.
	Rule *rule.Rule
	// Input is the raw input that was submitted.
	Input string
	// Previous is the value before the attempt.
	Previous rule.Value
	// Value is the committed value on success, else the unchanged value.
	Value rule.Value
	// Err is nil on success.
	Err error
}

// OK reports whether the mutation was applied.
func (r Result) OK() bool {
	return r.Err == nil
}

// Outcome classifies the result.
func (r Result) Outcome() Outcome {
	switch {
	case r.Err == nil:
		return OutcomeApplied
	case errors.Is(r.Err, ErrUnknownRule):
		return OutcomeUnknownRule
	case errors.Is(r.Err, ErrLocked):
		return OutcomeLocked
	default:
		return OutcomeInvalidValue
	}
}

// Reason returns the presentable failure reason, or "".
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return rule.Reason(r.Err)
}
