package command

import (
	"github.com/dshills/rulebook/internal/rules/notify"
	"github.com/dshills/rulebook/internal/rules/search"
)

// Complete returns suggestions for the last element of args. The last
// element is the partial word being typed; pass "" to list everything at
// a position. Nothing is suggested when the command is unavailable.
func (h *Handler) Complete(actor notify.Actor, args []string) []string {
	if !h.Available(actor) {
		return nil
	}
	if len(args) == 0 {
		args = []string{""}
	}
	partial := args[len(args)-1]

	switch len(args) {
	case 1:
		candidates := append([]string{CmdList, CmdSetDefault, CmdRemoveDefault}, h.reg.Names()...)
		return search.Suggest(partial, candidates)

	case 2:
		switch args[0] {
		case CmdList:
			return search.SuggestAnchored(partial, h.reg.Categories())
		case CmdSetDefault, CmdRemoveDefault:
			return search.Suggest(partial, h.reg.Names())
		}
		return h.valueSuggestions(args[0], partial)

	case 3:
		if args[0] == CmdSetDefault {
			return h.valueSuggestions(args[1], partial)
		}
	}
	return nil
}

func (h *Handler) valueSuggestions(name, partial string) []string {
	r, err := h.reg.Rule(name)
	if err != nil {
		return nil
	}
	return search.SuggestAnchored(partial, r.Suggestions())
}
