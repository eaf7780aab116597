// Package app wires a rule registry to its collaborators: the rules file,
// its watcher, scripts, localization, tracing and the command surface.
package app

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dshills/rulebook/internal/logging"
	"github.com/dshills/rulebook/internal/rules/command"
	"github.com/dshills/rulebook/internal/rules/i18n"
	"github.com/dshills/rulebook/internal/rules/notify"
	"github.com/dshills/rulebook/internal/rules/registry"
	"github.com/dshills/rulebook/internal/rules/rule"
	"github.com/dshills/rulebook/internal/rules/schema"
	"github.com/dshills/rulebook/internal/rules/script"
	"github.com/dshills/rulebook/internal/rules/store"
	"github.com/dshills/rulebook/internal/rules/watcher"
)

// ServiceName identifies the process in traces.
const ServiceName = "rulebook"

// App owns one registry and everything attached to it.
type App struct {
	cfg    Config
	logger *logging.Logger

	hub      *notify.Hub
	catalog  *i18n.Catalog
	scripts  *script.Engine
	registry *registry.Registry
	store    *store.Store
	handler  *command.Handler
	watcher  *watcher.Watcher
	metrics  *Metrics

	mu       sync.Mutex
	snapshot *store.Snapshot

	shutdownTracing func(context.Context) error

	running      atomic.Bool
	done         chan struct{}
	shutdownOnce sync.Once
}

// Option configures an App.
type Option func(*App)

// WithLogger replaces the logger built from Config.LogLevel.
func WithLogger(l *logging.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithLogOutput sends the default logger's output to w.
func WithLogOutput(w io.Writer) Option {
	return func(a *App) {
		a.logger.SetOutput(w)
	}
}

// WithHub shares a process-wide hub between several apps.
func WithHub(h *notify.Hub) Option {
	return func(a *App) {
		if h != nil {
			a.hub = h
		}
	}
}

// New builds and starts every component in dependency order. The rules
// file, if any, has been applied when New returns.
func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.LogLevel)

	a := &App{
		cfg:     cfg,
		logger:  logging.New(logCfg),
		hub:     notify.NewHub(),
		metrics: NewMetrics(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.bootstrap(ctx); err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) bootstrap(ctx context.Context) error {
	var err error

	// 1. Tracing
	a.shutdownTracing, err = SetupTracing(ctx, ServiceName, a.cfg.OTelEndpoint, a.cfg.OTelEnabled)
	if err != nil {
		return &InitError{Component: "tracing", Err: err}
	}

	// 2. Localization
	var extra []fs.FS
	if a.cfg.LocalesDir != "" {
		extra = append(extra, os.DirFS(a.cfg.LocalesDir))
	}
	a.catalog, err = i18n.New(extra...)
	if err != nil {
		return &InitError{Component: "locales", Err: err}
	}

	// 3. Scripts
	a.scripts = script.New(
		script.WithTimeout(a.cfg.ScriptTimeout),
		script.WithLogger(a.logger),
	)
	for _, path := range a.cfg.Scripts {
		if err := a.scripts.DoFile(path); err != nil {
			return &InitError{Component: "scripts", Err: err}
		}
	}
	if a.scripts.ObserverCount() > 0 {
		a.hub.Subscribe(a.scripts.Observer())
	}

	// 4. Registry
	descs, err := a.descriptors()
	if err != nil {
		return &InitError{Component: "schema", Err: err}
	}
	ns := a.cfg.Namespace
	a.registry = registry.New(ns,
		registry.WithTitle(a.cfg.Title),
		registry.WithVersion(a.cfg.Version),
		registry.WithHub(a.hub),
		registry.WithLogger(a.logger),
		registry.WithDescriber(func(r *rule.Rule) string {
			return a.catalog.RuleDescription(ns, r)
		}),
	)
	if err := a.registry.Register(descs...); err != nil {
		return &InitError{Component: "registry", Err: err}
	}

	// 5. Configured language, then the rules file on top of it
	if a.cfg.Language != "" && a.registry.Has(schema.LanguageRule) {
		if err := a.registry.Seed(schema.LanguageRule, a.cfg.Language); err != nil {
			a.logger.Warn("ignoring configured language %q: %v", a.cfg.Language, err)
		}
	}
	if a.cfg.RulesFile != "" {
		a.store, err = store.New(a.cfg.RulesFile)
		if err != nil {
			return &InitError{Component: "store", Err: err}
		}
		snap, err := a.store.Load()
		if err != nil {
			return &InitError{Component: "store", Err: err}
		}
		n := store.Restore(a.registry, snap, a.logger)
		a.snapshot = snap
		a.logger.Info("applied %d rules from %s", n, a.store.Path())
	}

	// 6. Observers
	a.registry.Observe(notify.ObserverFunc(a.languageChanged))
	a.syncLanguage()
	a.hub.Subscribe(notify.ObserverFunc(a.audit))

	// 7. Command surface
	cmdOpts := []command.Option{
		command.WithTranslator(a.catalog),
		command.WithLogger(a.logger),
	}
	if a.store != nil {
		cmdOpts = append(cmdOpts, command.WithStore(a.store))
	}
	if r, err := a.registry.Rule(schema.PermissionRule); err == nil {
		cmdOpts = append(cmdOpts, command.WithPermission(command.LevelPermission(r)))
	}
	a.handler, err = command.New(a.registry, cmdOpts...)
	if err != nil {
		return &InitError{Component: "command", Err: err}
	}

	// 8. Watcher
	if a.cfg.Watch && a.store != nil {
		a.watcher, err = watcher.New(a.store.Path(), a.fileChanged,
			watcher.WithDebounce(a.cfg.Debounce),
			watcher.WithLogger(a.logger),
		)
		if err != nil {
			return &InitError{Component: "watcher", Err: err}
		}
	}

	return nil
}

// descriptors returns the rule set with script validators attached.
func (a *App) descriptors() ([]schema.Descriptor, error) {
	descs := schema.Builtin()
	if a.cfg.SchemaFile != "" {
		loaded, err := schema.LoadFile(a.cfg.SchemaFile)
		if err != nil {
			return nil, err
		}
		descs = loaded
	}

	known := make(map[string]bool, len(descs))
	for i := range descs {
		known[descs[i].Name] = true
		descs[i].Validators = append(descs[i].Validators, a.scripts.Constraints(descs[i].Name)...)
	}
	for _, name := range a.scripts.Validated() {
		if !known[name] {
			a.logger.Warn("script validates unknown rule %s", name)
		}
	}
	return descs, nil
}

func (a *App) languageChanged(c notify.Change) {
	if c.Rule.Name() == schema.LanguageRule {
		a.syncLanguage()
	}
}

// syncLanguage points the catalog at the language rule's value. Seeded
// values do not notify, so reloads call it directly.
func (a *App) syncLanguage() {
	r, err := a.registry.Rule(schema.LanguageRule)
	if err != nil {
		return
	}
	tag, err := a.catalog.SetLanguage(r.Value().String())
	if err != nil {
		a.logger.Warn("language %s: %v", r.Value(), err)
		return
	}
	a.logger.Debug("language set to %s", tag)
}

// audit logs and counts this app's changes. The hub may be shared, so
// other namespaces are ignored.
func (a *App) audit(c notify.Change) {
	if c.Namespace != a.registry.Namespace() {
		return
	}
	a.metrics.RecordChange(c)
	a.logger.WithField("change", c.ID).Info("%s set %s/%s to %s (was %s)",
		c.Actor, c.Namespace, c.Rule.Name(), c.Value, c.Previous)
}

func (a *App) fileChanged(ev watcher.Event) {
	if ev.Op == watcher.OpRemove || ev.Op == watcher.OpRename {
		a.logger.Warn("%s %s, keeping current rules", ev.Path, ev.Op)
		return
	}
	if err := a.Reload(); err != nil {
		a.logger.Error("reloading %s: %v", ev.Path, err)
	}
}

// Reload re-reads the rules file and moves the registry to its contents.
// Values set at runtime survive unless the file changed them.
func (a *App) Reload() error {
	if a.store == nil {
		return ErrNoStore
	}
	next, err := a.store.Load()
	a.metrics.RecordReload(err)
	if err != nil {
		return err
	}

	a.mu.Lock()
	prev := a.snapshot
	a.snapshot = next
	n := store.Reconcile(a.registry, prev, next, a.logger)
	a.mu.Unlock()

	a.syncLanguage()
	a.logger.Info("reloaded %s: %d rules changed", a.store.Path(), n)
	return nil
}

// Run blocks until ctx is done or Shutdown is called, watching the rules
// file if configured.
func (a *App) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)

	select {
	case <-a.done:
		return ErrShutdown
	default:
	}

	if a.watcher == nil {
		select {
		case <-ctx.Done():
		case <-a.done:
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	a.logger.Info("watching %s", a.watcher.Path())
	err := a.watcher.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, watcher.ErrClosed) {
		return nil
	}
	return err
}

// Shutdown stops Run and releases every component. It is safe to call
// more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.shutdownOnce.Do(func() {
		close(a.done)
		err = a.close(ctx)
	})
	return err
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	if a.scripts != nil {
		a.scripts.Close()
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}
	return errors.Join(errs...)
}

// Execute runs one command line as actor. The leading namespace literal
// is optional.
func (a *App) Execute(ctx context.Context, actor notify.Actor, line string) (command.Output, error) {
	return a.handler.Execute(ctx, actor, a.args(line))
}

// Complete returns suggestions for the word being typed at the end of
// line.
func (a *App) Complete(actor notify.Actor, line string) []string {
	args := a.args(line)
	if line == "" || strings.HasSuffix(line, " ") {
		args = append(args, "")
	}
	return a.handler.Complete(actor, args)
}

func (a *App) args(line string) []string {
	args := strings.Fields(line)
	if len(args) > 0 && strings.TrimPrefix(args[0], "/") == a.handler.Name() {
		args = args[1:]
	}
	return args
}

// Config returns the settings the app was built with.
func (a *App) Config() Config { return a.cfg }

// Logger returns the app logger.
func (a *App) Logger() *logging.Logger { return a.logger }

// Registry returns the rule registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// Hub returns the process-wide observer hub.
func (a *App) Hub() *notify.Hub { return a.hub }

// Catalog returns the translator.
func (a *App) Catalog() *i18n.Catalog { return a.catalog }

// Handler returns the command handler.
func (a *App) Handler() *command.Handler { return a.handler }

// Store returns the rules file store, or nil when persistence is off.
func (a *App) Store() *store.Store { return a.store }

// Metrics returns the change counters.
func (a *App) Metrics() *Metrics { return a.metrics }
