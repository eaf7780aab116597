// Package script runs Lua scripts that observe and validate rules.
//
// A script registers callbacks through two globals:
//
//	on_change(function(change) ... end)
//	validate("fillLimit", function(raw, value) return ok, reason end)
//
// on_change callbacks receive a table with id, namespace, actor,
// actor_id, console, rule, input, value and previous fields. validate
// callbacks run after the rule's own validation and can reject a value
// with a reason.
package script

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/rulebook/internal/logging"
	"github.com/dshills/rulebook/internal/rules/notify"
	"github.com/dshills/rulebook/internal/rules/rule"
)

// DefaultTimeout bounds every call into Lua.
const DefaultTimeout = time.Second

// ErrClosed is returned when using a closed engine.
var ErrClosed = errors.New("script engine closed")

// rejectedReason is used when a validator returns false with no reason.
const rejectedReason = "rejected by script"

// Engine is a sandboxed Lua state holding the callbacks registered by
// the loaded scripts.
//
// gopher-lua states are not goroutine-safe; every entry point takes mu.
type Engine struct {
	mu sync.Mutex
	L  *lua.LState

	timeout time.Duration
	logger  *logging.Logger

	observers  []*lua.LFunction
	validators map[string][]*lua.LFunction

	closed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the per-call execution limit.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger. Script print output goes to it at info.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine with a fresh sandboxed state.
func New(opts ...Option) *Engine {
	e := &Engine{
		timeout:    DefaultTimeout,
		logger:     logging.Nop(),
		validators: make(map[string][]*lua.LFunction),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("script")

	e.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(e.L)
	e.install()
	return e
}

// openSafeLibraries opens base, table, string and math only.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func (e *Engine) install() {
	e.L.SetGlobal("on_change", e.L.NewFunction(func(L *lua.LState) int {
		fn := L.CheckFunction(1)
		e.observers = append(e.observers, fn)
		return 0
	}))

	e.L.SetGlobal("validate", e.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		fn := L.CheckFunction(2)
		e.validators[name] = append(e.validators[name], fn)
		return 0
	}))

	e.L.SetGlobal("print", e.L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		e.logger.Info("%s", strings.Join(parts, "\t"))
		return 0
	}))
}

// DoString runs a chunk of Lua code.
func (e *Engine) DoString(code string) error {
	return e.run(func() error { return e.L.DoString(code) })
}

// DoFile runs a Lua file.
func (e *Engine) DoFile(path string) error {
	if err := e.run(func() error { return e.L.DoFile(path) }); err != nil {
		return fmt.Errorf("script %s: %w", path, err)
	}
	return nil
}

func (e *Engine) run(fn func() error) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	e.L.SetContext(ctx)
	defer e.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// call invokes fn with args and returns nret results.
func (e *Engine) call(fn *lua.LFunction, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	var out []lua.LValue
	err := e.run(func() error {
		top := e.L.GetTop()
		if err := e.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
			e.L.SetTop(top)
			return err
		}
		out = make([]lua.LValue, nret)
		for i := 0; i < nret; i++ {
			out[i] = e.L.Get(top + 1 + i)
		}
		e.L.SetTop(top)
		return nil
	})
	return out, err
}

// Close releases the Lua state.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.L.Close()
}

// ObserverCount returns the number of on_change callbacks.
func (e *Engine) ObserverCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.observers)
}

// Validated returns the names of rules with script validators, sorted.
func (e *Engine) Validated() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.validators))
	for name := range e.validators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Observer returns a notify.Observer that forwards changes to every
// on_change callback. Callback errors are logged.
func (e *Engine) Observer() notify.Observer {
	return notify.ObserverFunc(func(c notify.Change) {
		e.mu.Lock()
		fns := append([]*lua.LFunction(nil), e.observers...)
		e.mu.Unlock()

		for _, fn := range fns {
			tbl := e.changeTable(c)
			if _, err := e.call(fn, 0, tbl); err != nil {
				e.logger.Error("on_change for %s failed: %v", c.Rule.Name(), err)
			}
		}
	})
}

func (e *Engine) changeTable(c notify.Change) *lua.LTable {
	e.mu.Lock()
	defer e.mu.Unlock()

	tbl := e.L.NewTable()
	tbl.RawSetString("id", lua.LString(c.ID.String()))
	tbl.RawSetString("namespace", lua.LString(c.Namespace))
	tbl.RawSetString("actor", lua.LString(c.Actor.String()))
	tbl.RawSetString("actor_id", lua.LString(c.Actor.ID))
	tbl.RawSetString("console", lua.LBool(c.Actor.Console))
	tbl.RawSetString("rule", lua.LString(c.Rule.Name()))
	tbl.RawSetString("input", lua.LString(c.Input))
	tbl.RawSetString("value", toLua(c.Value))
	tbl.RawSetString("previous", toLua(c.Previous))
	return tbl
}

// Constraints returns the script validators for a rule as a single
// constraint, or nil if no script validates it. The validators are looked
// up when the constraint runs.
func (e *Engine) Constraints(name string) []rule.Constraint {
	e.mu.Lock()
	_, ok := e.validators[name]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return []rule.Constraint{func(v rule.Value) (rule.Value, error) {
		return v, e.check(name, v)
	}}
}

func (e *Engine) check(name string, v rule.Value) error {
	e.mu.Lock()
	fns := append([]*lua.LFunction(nil), e.validators[name]...)
	e.mu.Unlock()

	for _, fn := range fns {
		ret, err := e.call(fn, 2, lua.LString(v.String()), toLua(v))
		if err != nil {
			e.logger.Error("validator for %s failed: %v", name, err)
			return rule.Invalid(rejectedReason)
		}
		if lua.LVAsBool(ret[0]) {
			continue
		}
		reason := rejectedReason
		if s, ok := ret[1].(lua.LString); ok && s != "" {
			reason = string(s)
		}
		return rule.Invalid(reason)
	}
	return nil
}

func toLua(v rule.Value) lua.LValue {
	switch v.Kind() {
	case rule.KindBool:
		return lua.LBool(v.Bool())
	case rule.KindInt:
		return lua.LNumber(v.Int())
	default:
		return lua.LString(v.String())
	}
}
