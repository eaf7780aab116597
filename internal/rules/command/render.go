package command

import (
	"strings"

	"github.com/dshills/rulebook/internal/rules/i18n"
	"github.com/dshills/rulebook/internal/rules/rule"
)

// listAll renders the non-default rules, the version and the category
// browser.
func (h *Handler) listAll() Output {
	out := h.list(h.tr.Text(i18n.KeyCurrentSettings, h.reg.Title()), h.reg.NonDefault())

	if v := h.reg.Version(); v != "" {
		out.add("%s %s: %s", h.reg.Title(), h.tr.Text(i18n.KeyVersion), v)
	}

	tags := make([]string, 0, len(h.reg.Categories()))
	for _, t := range h.reg.Categories() {
		tags = append(tags, "["+h.tr.Category(h.Name(), t)+"]")
	}
	out.add("%s:", h.tr.Text(i18n.KeyBrowseCategories))
	out.add("%s", strings.Join(tags, " "))
	return out
}

func (h *Handler) listSorted() Output {
	return h.list(h.tr.Text(i18n.KeyAllSettings, h.reg.Title()), h.reg.Sorted())
}

func (h *Handler) listMatching(tag string) Output {
	title := h.tr.Text(i18n.KeySearchResults, h.reg.Title(), h.tr.Category(h.Name(), tag))
	return h.list(title, h.reg.Search(tag))
}

func (h *Handler) list(title string, rules []*rule.Rule) Output {
	out := Output{Count: len(rules)}
	out.add("%s:", title)
	for _, r := range rules {
		out.add("%s", h.ruleLine(r))
	}
	return out
}

// ruleLine renders " - name [opt] [opt]" with the current value marked
// by a trailing asterisk and appended when it is not a suggestion.
func (h *Handler) ruleLine(r *rule.Rule) string {
	var b strings.Builder
	b.WriteString(" - ")
	b.WriteString(h.tr.RuleName(h.Name(), r))

	current := r.Value().String()
	for _, opt := range r.Suggestions() {
		b.WriteString(" ")
		b.WriteString(option(opt, current))
	}
	if !r.AtSuggestedOption() {
		b.WriteString(" ")
		b.WriteString(option(current, current))
	}
	return b.String()
}

func option(opt, current string) string {
	if strings.EqualFold(opt, current) {
		return "[" + opt + "]*"
	}
	return "[" + opt + "]"
}

// ruleMenu renders the detail view of one rule.
func (h *Handler) ruleMenu(name string) (Output, error) {
	r, err := h.reg.Rule(name)
	if err != nil {
		return h.unknown(name)
	}

	out := Output{Count: 1}
	out.add("%s", h.tr.RuleName(h.Name(), r))
	out.add("%s", h.tr.RuleDescription(h.Name(), r))
	for _, info := range r.ExtraInfo() {
		out.add("%s", info)
	}

	tags := make([]string, 0, len(r.Categories()))
	for _, t := range r.Categories() {
		tags = append(tags, "["+h.tr.Category(h.Name(), t)+"]")
	}
	out.add("%s: %s", h.tr.Text(i18n.KeyTags), strings.Join(tags, ", "))

	state := h.tr.Text(i18n.KeyModifiedValue)
	if r.IsDefault() {
		state = h.tr.Text(i18n.KeyDefaultValue)
	}
	out.add("%s: %s (%s)", h.tr.Text(i18n.KeyCurrentValue), r.Value(), state)

	opts := make([]string, 0, len(r.Suggestions()))
	for _, o := range r.Suggestions() {
		opts = append(opts, option(o, r.Value().String()))
	}
	out.add("%s: [ %s ]", h.tr.Text(i18n.KeyOptions), strings.Join(opts, " "))
	return out, nil
}
