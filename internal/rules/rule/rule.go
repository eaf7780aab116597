package rule

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Config holds everything needed to build a Rule.
type Config struct {
	Name        string
	Description string
	Kind        Kind
	Default     Value
	Suggestions []string
	Categories  []string
	ExtraInfo   []string
	Validator   Validator
}

// Rule is a single named, typed configuration entry.
//
// Name, default, suggestions and categories never change after New. The
// current value is replaced atomically; concurrent Set calls on the same
// rule are serialized.
type Rule struct {
	name        string
	description string
	kind        Kind
	def         Value
	suggestions []string
	categories  []string
	extraInfo   []string
	validator   Validator

	// writeMu serializes mutations.
	writeMu sync.Mutex

	mu    sync.RWMutex
	value Value
}

// New builds a rule whose current value is its default. The default is
// run through the validator and must be accepted.
func New(cfg Config) (*Rule, error) {
	if strings.TrimSpace(cfg.Name) == "" || strings.ContainsAny(cfg.Name, " \t\n") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, cfg.Name)
	}
	if cfg.Validator == nil {
		cfg.Validator = NewValidator(cfg.Kind)
	}
	if cfg.Default.kind != cfg.Kind {
		return nil, fmt.Errorf("%w: %s has a %s default for a %s rule", ErrInvalidDefault, cfg.Name, cfg.Default.kind, cfg.Kind)
	}

	def, err := cfg.Validator(cfg.Default.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidDefault, cfg.Name, Reason(err))
	}

	return &Rule{
		name:        cfg.Name,
		description: cfg.Description,
		kind:        cfg.Kind,
		def:         def,
		value:       def,
		suggestions: append([]string(nil), cfg.Suggestions...),
		categories:  dedupe(cfg.Categories),
		extraInfo:   append([]string(nil), cfg.ExtraInfo...),
		validator:   cfg.Validator,
	}, nil
}

// Name returns the rule's unique name.
func (r *Rule) Name() string { return r.name }

// Description returns the untranslated description.
func (r *Rule) Description() string { return r.description }

// Kind returns the rule's value domain.
func (r *Rule) Kind() Kind { return r.kind }

// Default returns the registration-time value.
func (r *Rule) Default() Value { return r.def }

// Value returns the current value.
func (r *Rule) Value() Value {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

// Suggestions returns the recommended canonical values.
func (r *Rule) Suggestions() []string {
	return append([]string(nil), r.suggestions...)
}

// Categories returns the rule's category tags.
func (r *Rule) Categories() []string {
	return append([]string(nil), r.categories...)
}

// ExtraInfo returns additional help lines shown in the rule menu.
func (r *Rule) ExtraInfo() []string {
	return append([]string(nil), r.extraInfo...)
}

// HasCategory reports whether tag is one of the rule's categories.
// The comparison is exact.
func (r *Rule) HasCategory(tag string) bool {
	for _, c := range r.categories {
		if c == tag {
			return true
		}
	}
	return false
}

// IsDefault reports whether the current value equals the default.
func (r *Rule) IsDefault() bool {
	return r.Value().Equal(r.def)
}

// AtSuggestedOption reports whether the current value is one of the
// suggestions.
func (r *Rule) AtSuggestedOption() bool {
	current := r.Value().String()
	for _, s := range r.suggestions {
		if s == current {
			return true
		}
	}
	return false
}

// Validate runs the validator without changing the rule.
func (r *Rule) Validate(raw string) (Value, error) {
	v, err := r.validator(raw)
	if err != nil {
		var ive *InvalidValueError
		if errors.As(err, &ive) {
			return Value{}, &InvalidValueError{Rule: r.name, Input: raw, Reason: ive.Reason}
		}
		return Value{}, &InvalidValueError{Rule: r.name, Input: raw, Reason: err.Error()}
	}
	return v, nil
}

// Set validates raw and replaces the current value. gate, when non-nil,
// runs first under the rule's write lock; a gate error aborts the change.
// commit, when non-nil, runs after the swap while the write lock is still
// held, so the next Set on this rule waits for it. On failure the current
// value is returned unchanged as prev.
func (r *Rule) Set(raw string, gate func() error, commit func(prev, next Value)) (prev, next Value, err error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if gate != nil {
		if err := gate(); err != nil {
			return r.Value(), Value{}, err
		}
	}

	next, err = r.Validate(raw)
	if err != nil {
		return r.Value(), Value{}, err
	}

	r.mu.Lock()
	prev = r.value
	r.value = next
	r.mu.Unlock()

	if commit != nil {
		commit(prev, next)
	}
	return prev, next, nil
}

// String returns "name: value".
func (r *Rule) String() string {
	return r.name + ": " + r.Value().String()
}

func dedupe(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
