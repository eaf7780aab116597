// Package schema declares rules as plain descriptor records.
//
// A Descriptor carries everything the registry needs to build a rule:
// name, kind, default, metadata and the constraints that make up its
// validator. Descriptors come from Go code (Builtin) or from YAML files.
package schema

import (
	"fmt"
	"regexp"

	"github.com/dshills/rulebook/internal/rules/rule"
)

// Descriptor declares one rule.
type Descriptor struct {
	// Name is the unique rule name.
	Name string
	// Kind is the value domain.
	Kind rule.Kind
	// Default is the canonical string of the default value.
	Default string
	// Description is the untranslated description.
	Description string
	// Categories are the rule's tags.
	Categories []string
	// Options are the suggested values, in display order.
	Options []string
	// Strict closes the domain over Options. Enums are always strict.
	Strict bool
	// Min and Max bound integer rules when set.
	Min *int64
	Max *int64
	// Pattern constrains string rules.
	Pattern string
	// MaxLength constrains string rules when positive.
	MaxLength int
	// ExtraInfo lines are shown in the rule menu.
	ExtraInfo []string
	// Validators run after the built-in constraints.
	Validators []rule.Constraint
}

// Int returns a pointer to v, for Min and Max.
func Int(v int64) *int64 {
	return &v
}

// Suggestions returns the options, defaulting to true/false for booleans.
func (d Descriptor) Suggestions() []string {
	if len(d.Options) == 0 && d.Kind == rule.KindBool {
		return []string{"true", "false"}
	}
	return append([]string(nil), d.Options...)
}

// Validator composes the kind parser with the declared constraints.
func (d Descriptor) Validator() (rule.Validator, error) {
	var cs []rule.Constraint

	switch {
	case d.Kind == rule.KindEnum:
		if len(d.Options) == 0 {
			return nil, fmt.Errorf("%s: enum rule needs options", d.Name)
		}
		cs = append(cs, rule.OneOf(d.Options...))
	case d.Strict && len(d.Options) > 0:
		cs = append(cs, rule.OneOf(d.Options...))
	}

	if d.Kind == rule.KindInt {
		switch {
		case d.Min != nil && d.Max != nil:
			if *d.Min > *d.Max {
				return nil, fmt.Errorf("%s: min %d exceeds max %d", d.Name, *d.Min, *d.Max)
			}
			cs = append(cs, rule.Range(*d.Min, *d.Max))
		case d.Min != nil:
			cs = append(cs, rule.AtLeast(*d.Min))
		case d.Max != nil:
			cs = append(cs, rule.AtMost(*d.Max))
		}
	}

	if d.Pattern != "" {
		re, err := regexp.Compile(d.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid pattern: %w", d.Name, err)
		}
		cs = append(cs, rule.Pattern(re))
	}
	if d.MaxLength > 0 {
		cs = append(cs, rule.MaxLength(d.MaxLength))
	}

	cs = append(cs, d.Validators...)
	return rule.NewValidator(d.Kind, cs...), nil
}

// Build constructs the rule described by d.
func (d Descriptor) Build() (*rule.Rule, error) {
	v, err := d.Validator()
	if err != nil {
		return nil, err
	}

	def, err := rule.Parse(d.Kind, d.Default)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", rule.ErrInvalidDefault, d.Name, rule.Reason(err))
	}

	return rule.New(rule.Config{
		Name:        d.Name,
		Description: d.Description,
		Kind:        d.Kind,
		Default:     def,
		Suggestions: d.Suggestions(),
		Categories:  d.Categories,
		ExtraInfo:   d.ExtraInfo,
		Validator:   v,
	})
}
