package rule

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validator maps raw input to a typed value, or fails with a reason.
// Validators must be pure.
type Validator func(raw string) (Value, error)

// Constraint checks, and may normalize, an already parsed value.
type Constraint func(v Value) (Value, error)

// NewValidator builds a validator that parses raw input as kind and then
// runs each constraint in order.
func NewValidator(kind Kind, constraints ...Constraint) Validator {
	return func(raw string) (Value, error) {
		v, err := Parse(kind, raw)
		if err != nil {
			return Value{}, err
		}
		for _, c := range constraints {
			if c == nil {
				continue
			}
			v, err = c(v)
			if err != nil {
				return Value{}, err
			}
		}
		return v, nil
	}
}

// Range limits integers to [min, max].
func Range(min, max int64) Constraint {
	return func(v Value) (Value, error) {
		if v.kind == KindInt && (v.i < min || v.i > max) {
			return Value{}, Invalid(fmt.Sprintf("expected an integer between %d and %d", min, max))
		}
		return v, nil
	}
}

// AtLeast limits integers to values >= min.
func AtLeast(min int64) Constraint {
	return func(v Value) (Value, error) {
		if v.kind == KindInt && v.i < min {
			return Value{}, Invalid(fmt.Sprintf("expected an integer of at least %d", min))
		}
		return v, nil
	}
}

// AtMost limits integers to values <= max.
func AtMost(max int64) Constraint {
	return func(v Value) (Value, error) {
		if v.kind == KindInt && v.i > max {
			return Value{}, Invalid(fmt.Sprintf("expected an integer of at most %d", max))
		}
		return v, nil
	}
}

// OneOf closes the domain over options. Matching is case-insensitive and
// the stored value takes the option's spelling.
func OneOf(options ...string) Constraint {
	opts := append([]string(nil), options...)
	return func(v Value) (Value, error) {
		s := v.String()
		for _, o := range opts {
			if strings.EqualFold(o, s) {
				if v.kind == KindBool || v.kind == KindInt {
					return v, nil
				}
				return Value{kind: v.kind, s: o}, nil
			}
		}
		return Value{}, Invalid("expected one of: " + strings.Join(opts, ", "))
	}
}

// Pattern requires string values to match re.
func Pattern(re *regexp.Regexp) Constraint {
	return func(v Value) (Value, error) {
		if !re.MatchString(v.String()) {
			return Value{}, Invalid(fmt.Sprintf("expected a value matching %s", re.String()))
		}
		return v, nil
	}
}

// MaxLength limits the canonical form to n characters.
func MaxLength(n int) Constraint {
	return func(v Value) (Value, error) {
		if utf8.RuneCountInString(v.String()) > n {
			return Value{}, Invalid(fmt.Sprintf("expected at most %d characters", n))
		}
		return v, nil
	}
}

// Check adapts a reason-returning predicate into a Constraint. An empty
// reason means the value is accepted.
func Check(fn func(v Value) string) Constraint {
	return func(v Value) (Value, error) {
		if reason := fn(v); reason != "" {
			return Value{}, Invalid(reason)
		}
		return v, nil
	}
}
