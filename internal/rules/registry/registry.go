// Package registry owns the rules of one configuration namespace.
//
// Rules are registered once at startup from schema descriptors. After
// that the set of rules is fixed and only values change, through Apply
// (validated, lock-gated, observed) or Seed (the privileged bootstrap path
// used when restoring persisted values).
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/rulebook/internal/logging"
	"github.com/dshills/rulebook/internal/rules/notify"
	"github.com/dshills/rulebook/internal/rules/rule"
	"github.com/dshills/rulebook/internal/rules/schema"
	"github.com/dshills/rulebook/internal/rules/search"
)

const tracerName = "github.com/dshills/rulebook/internal/rules/registry"

// Describer returns the human-readable description used for search.
type Describer func(r *rule.Rule) string

// Registry maintains the rules of one namespace.
type Registry struct {
	namespace string
	title     string
	version   string

	// rules is written only during registration.
	rules map[string]*rule.Rule

	locked atomic.Bool
	frozen atomic.Bool

	bus      *notify.Bus
	describe Describer
	logger   *logging.Logger
	tracer   trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithTitle sets the display name used in menus. Defaults to the namespace.
func WithTitle(title string) Option {
	return func(r *Registry) {
		r.title = title
	}
}

// WithVersion sets the version shown in menus.
func WithVersion(version string) Option {
	return func(r *Registry) {
		r.version = version
	}
}

// WithHub connects the registry to the process-wide observers.
func WithHub(hub *notify.Hub) Option {
	return func(r *Registry) {
		r.bus = notify.NewBus(hub)
	}
}

// WithDescriber sets the description source used by Search.
func WithDescriber(d Describer) Option {
	return func(r *Registry) {
		if d != nil {
			r.describe = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTracer sets the tracer used around Apply.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// New creates an empty registry for namespace.
func New(namespace string, opts ...Option) *Registry {
	r := &Registry{
		namespace: namespace,
		title:     namespace,
		rules:     make(map[string]*rule.Rule),
		bus:       notify.NewBus(nil),
		describe:  (*rule.Rule).Description,
		logger:    logging.Nop(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("registry").WithField("namespace", namespace)
	return r
}

// Register builds and adds rules. It fails on the first invalid descriptor
// or duplicate name, leaving the registry unchanged.
func (r *Registry) Register(descs ...schema.Descriptor) error {
	if r.frozen.Load() {
		return ErrFrozen
	}

	built := make(map[string]*rule.Rule, len(descs))
	for _, d := range descs {
		if _, exists := r.rules[d.Name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, d.Name)
		}
		if _, exists := built[d.Name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, d.Name)
		}
		rl, err := d.Build()
		if err != nil {
			return fmt.Errorf("registering %s: %w", d.Name, err)
		}
		built[d.Name] = rl
	}

	for name, rl := range built {
		r.rules[name] = rl
	}
	r.logger.Debug("registered %d rules", len(built))
	return nil
}

// MustRegister registers descriptors and panics on error.
func (r *Registry) MustRegister(descs ...schema.Descriptor) {
	if err := r.Register(descs...); err != nil {
		panic(err)
	}
}

// Namespace returns the registry's identifier.
func (r *Registry) Namespace() string { return r.namespace }

// Title returns the display name.
func (r *Registry) Title() string { return r.title }

// Version returns the version string, possibly empty.
func (r *Registry) Version() string { return r.version }

// Rule resolves a rule by name.
func (r *Registry) Rule(name string) (*rule.Rule, error) {
	rl, ok := r.rules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRule, name)
	}
	return rl, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.rules[name]
	return ok
}

// Len returns the number of rules.
func (r *Registry) Len() int {
	return len(r.rules)
}

// Observe registers an instance observer.
func (r *Registry) Observe(o notify.Observer) {
	r.bus.Subscribe(o)
}

// Lock rejects all further mutations.
func (r *Registry) Lock() {
	r.locked.Store(true)
}

// Unlock accepts mutations again.
func (r *Registry) Unlock() {
	r.locked.Store(false)
}

// Locked reports whether mutations are rejected.
func (r *Registry) Locked() bool {
	return r.locked.Load()
}

func (r *Registry) gate() error {
	if r.locked.Load() {
		return ErrLocked
	}
	return nil
}

// Apply validates raw for the named rule and, on success, commits it and
// notifies observers with (actor, rule, raw). Concurrent Apply calls on the
// same rule are serialized through observer delivery, so observers see
// one rule's changes in commit order. ctx carries trace context only.
func (r *Registry) Apply(ctx context.Context, name, raw string, actor notify.Actor) Result {
	_, span := r.tracer.Start(ctx, "rules.apply", trace.WithAttributes(
		attribute.String("rules.namespace", r.namespace),
		attribute.String("rules.name", name),
		attribute.String("rules.actor", actor.ID),
	))
	defer span.End()

	res := r.apply(name, raw, actor)

	span.SetAttributes(attribute.String("rules.outcome", res.Outcome().String()))
	if res.Err != nil {
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

func (r *Registry) apply(name, raw string, actor notify.Actor) Result {
	r.frozen.Store(true)

	rl, ok := r.rules[name]
	if !ok {
		return Result{Input: raw, Err: fmt.Errorf("%w: %s", ErrUnknownRule, name)}
	}

	prev, next, err := rl.Set(raw, r.gate, func(prev, next rule.Value) {
		r.logger.Info("%s changed %s from %s to %s", actor, name, prev, next)

		change := notify.NewChange(r.namespace, actor, rl, raw, prev, next)
		if err := r.bus.Dispatch(change); err != nil {
			r.logger.Error("observer failure after %s change: %v", name, err)
		}
	})
	if err != nil {
		r.logger.Debug("rejected %s=%q from %s: %v", name, raw, actor, err)
		return Result{Rule: rl, Input: raw, Previous: prev, Value: prev, Err: err}
	}

	return Result{Rule: rl, Input: raw, Previous: prev, Value: next}
}

// Reset applies the rule's default value through Apply.
func (r *Registry) Reset(ctx context.Context, name string, actor notify.Actor) Result {
	rl, ok := r.rules[name]
	if !ok {
		return Result{Err: fmt.Errorf("%w: %s", ErrUnknownRule, name)}
	}
	return r.Apply(ctx, name, rl.Default().String(), actor)
}

// Seed sets a rule value during bootstrap. It validates raw but bypasses
// the lock and does not notify observers.
func (r *Registry) Seed(name, raw string) error {
	rl, ok := r.rules[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRule, name)
	}
	if _, _, err := rl.Set(raw, nil, nil); err != nil {
		return err
	}
	return nil
}

// Sorted returns every rule ordered by name.
func (r *Registry) Sorted() []*rule.Rule {
	return r.filter(func(*rule.Rule) bool { return true })
}

// Names returns every rule name in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.rules))
	for name := range r.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByCategory returns the rules tagged exactly tag, ordered by name.
func (r *Registry) ByCategory(tag string) []*rule.Rule {
	return r.filter(func(rl *rule.Rule) bool { return rl.HasCategory(tag) })
}

// NonDefault returns the rules whose value differs from their default,
// ordered by name.
func (r *Registry) NonDefault() []*rule.Rule {
	return r.filter(func(rl *rule.Rule) bool { return !rl.IsDefault() })
}

// Categories returns every distinct category tag, sorted.
func (r *Registry) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rl := range r.rules {
		for _, c := range rl.Categories() {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Search returns rules whose name contains term, whose categories include
// term exactly, or whose description has term as a whole word. Results
// are ordered by name.
func (r *Registry) Search(term string) []*rule.Rule {
	return r.filter(func(rl *rule.Rule) bool {
		return search.MatchesTerm(rl.Name(), rl.Categories(), r.describe(rl), term)
	})
}

func (r *Registry) filter(keep func(*rule.Rule) bool) []*rule.Rule {
	result := make([]*rule.Rule, 0, len(r.rules))
	for _, rl := range r.rules {
		if keep(rl) {
			result = append(result, rl)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}
