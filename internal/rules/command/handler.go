// Package command implements the text command surface of a registry.
//
// The command tree mirrors a server rules command:
//
//	<ns>                          non-default rules, version, categories
//	<ns> list                     every rule
//	<ns> list <tag>               rules matching tag
//	<ns> <rule>                   rule menu
//	<ns> <rule> <value...>        set a rule
//	<ns> setDefault <rule> <value...>
//	<ns> removeDefault <rule>
//
// The whole command is unavailable while the registry is locked or when
// the actor lacks permission.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/rulebook/internal/logging"
	"github.com/dshills/rulebook/internal/rules/i18n"
	"github.com/dshills/rulebook/internal/rules/notify"
	"github.com/dshills/rulebook/internal/rules/registry"
	"github.com/dshills/rulebook/internal/rules/store"
)

// Subcommand literals.
const (
	CmdList          = "list"
	CmdSetDefault    = "setDefault"
	CmdRemoveDefault = "removeDefault"
)

// Errors returned by Execute in addition to the registry errors.
var (
	// ErrPermissionDenied indicates the actor may not use the command.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUsage indicates malformed arguments.
	ErrUsage = errors.New("invalid command usage")

	// ErrNoStore indicates a persistence command with no store configured.
	ErrNoStore = errors.New("no store configured")
)

// Output is the rendered result of a command.
type Output struct {
	// Lines are the user-facing text lines.
	Lines []string
	// Count is the number of rules listed or changed.
	Count int
}

func (o *Output) add(format string, args ...any) {
	o.Lines = append(o.Lines, fmt.Sprintf(format, args...))
}

// String joins the lines with newlines.
func (o Output) String() string {
	return strings.Join(o.Lines, "\n")
}

// Handler executes rules commands against one registry.
type Handler struct {
	reg    *registry.Registry
	tr     i18n.Translator
	store  *store.Store
	perm   Permission
	logger *logging.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithTranslator sets the translator. The default renders untranslated
// English text.
func WithTranslator(tr i18n.Translator) Option {
	return func(h *Handler) {
		if tr != nil {
			h.tr = tr
		}
	}
}

// WithStore enables setDefault and removeDefault.
func WithStore(s *store.Store) Option {
	return func(h *Handler) {
		h.store = s
	}
}

// WithPermission sets the permission check. Defaults to AllowAll.
func WithPermission(p Permission) Option {
	return func(h *Handler) {
		if p != nil {
			h.perm = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates a handler for reg.
func New(reg *registry.Registry, opts ...Option) (*Handler, error) {
	h := &Handler{
		reg:    reg,
		perm:   AllowAll,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.tr == nil {
		cat, err := i18n.New()
		if err != nil {
			return nil, err
		}
		h.tr = cat
	}
	h.logger = h.logger.WithComponent("command")
	return h, nil
}

// Name returns the command literal, the registry namespace.
func (h *Handler) Name() string {
	return h.reg.Namespace()
}

// Available reports whether actor may use the command at all.
func (h *Handler) Available(actor notify.Actor) bool {
	return !h.reg.Locked() && h.perm.CanMutate(actor)
}

// Execute runs the command given by args. On failure the returned Output
// still carries a user-facing message.
func (h *Handler) Execute(ctx context.Context, actor notify.Actor, args []string) (Output, error) {
	var out Output

	if h.reg.Locked() {
		out.add("%s", h.tr.Text(i18n.KeyLocked))
		return out, registry.ErrLocked
	}
	if !h.perm.CanMutate(actor) {
		out.add("%s", h.tr.Text(i18n.KeyPermissionDenied))
		return out, ErrPermissionDenied
	}

	if len(args) == 0 {
		return h.listAll(), nil
	}

	switch args[0] {
	case CmdList:
		switch len(args) {
		case 1:
			return h.listSorted(), nil
		case 2:
			return h.listMatching(args[1]), nil
		}
		return h.usage("%s %s [tag]", h.Name(), CmdList)

	case CmdSetDefault:
		if len(args) < 3 {
			return h.usage("%s %s <rule> <value>", h.Name(), CmdSetDefault)
		}
		return h.setDefault(ctx, actor, args[1], strings.Join(args[2:], " "))

	case CmdRemoveDefault:
		if len(args) != 2 {
			return h.usage("%s %s <rule>", h.Name(), CmdRemoveDefault)
		}
		return h.removeDefault(ctx, actor, args[1])
	}

	if len(args) == 1 {
		return h.ruleMenu(args[0])
	}
	return h.set(ctx, actor, args[0], strings.Join(args[1:], " "))
}

func (h *Handler) usage(format string, args ...any) (Output, error) {
	var out Output
	out.add("usage: "+format, args...)
	return out, ErrUsage
}

func (h *Handler) unknown(name string) (Output, error) {
	var out Output
	out.add("%s: %s", h.tr.Text(i18n.KeyUnknownRule), name)
	return out, fmt.Errorf("%w: %s", registry.ErrUnknownRule, name)
}

func (h *Handler) failed(res registry.Result, name string) (Output, error) {
	switch res.Outcome() {
	case registry.OutcomeUnknownRule:
		return h.unknown(name)
	case registry.OutcomeLocked:
		var out Output
		out.add("%s", h.tr.Text(i18n.KeyLocked))
		return out, res.Err
	default:
		var out Output
		out.add("%s", h.tr.Text(i18n.KeyInvalidValue, res.Input, name, res.Reason()))
		return out, res.Err
	}
}

func (h *Handler) set(ctx context.Context, actor notify.Actor, name, value string) (Output, error) {
	res := h.reg.Apply(ctx, name, value, actor)
	if !res.OK() {
		return h.failed(res, name)
	}

	out := Output{Count: 1}
	out.add("%s", res.Rule)
	if h.store != nil {
		out.add("%s /%s %s %s %s", h.tr.Text(i18n.KeyChangePermanently),
			h.Name(), CmdSetDefault, name, res.Value)
	}
	return out, nil
}

func (h *Handler) setDefault(ctx context.Context, actor notify.Actor, name, value string) (Output, error) {
	if h.store == nil {
		var out Output
		out.add("%s", h.tr.Text(i18n.KeyNoStore))
		return out, ErrNoStore
	}

	res := h.reg.Apply(ctx, name, value, actor)
	if !res.OK() {
		return h.failed(res, name)
	}
	if err := h.store.SetDefault(name, res.Value.String()); err != nil {
		h.logger.Error("persisting %s: %v", name, err)
		return Output{}, err
	}
	h.logger.Info("%s persisted %s=%s", actor, name, res.Value)

	out := Output{Count: 1}
	out.add("%s", h.tr.Text(i18n.KeySetDefault, name, res.Value))
	return out, nil
}

func (h *Handler) removeDefault(ctx context.Context, actor notify.Actor, name string) (Output, error) {
	if h.store == nil {
		var out Output
		out.add("%s", h.tr.Text(i18n.KeyNoStore))
		return out, ErrNoStore
	}
	if !h.reg.Has(name) {
		return h.unknown(name)
	}

	removed, err := h.store.RemoveDefault(name)
	if err != nil {
		h.logger.Error("removing %s from store: %v", name, err)
		return Output{}, err
	}

	var out Output
	if !removed {
		out.add("%s", h.tr.Text(i18n.KeyNotPersisted, name, h.store.Path()))
		return out, nil
	}

	res := h.reg.Reset(ctx, name, actor)
	if !res.OK() {
		return h.failed(res, name)
	}
	h.logger.Info("%s removed %s from store", actor, name)
	out.Count = 1
	out.add("%s", h.tr.Text(i18n.KeyRemoveDefault, name))
	return out, nil
}
