package script

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/rulebook/internal/logging"
	"github.com/dshills/rulebook/internal/rules/notify"
	"github.com/dshills/rulebook/internal/rules/rule"
	"github.com/dshills/rulebook/internal/rules/schema"
)

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := New(opts...)
	t.Cleanup(e.Close)
	return e
}

func TestEngine_Sandbox(t *testing.T) {
	e := newEngine(t)

	for _, name := range []string{"io", "os", "dofile", "loadfile", "load", "require"} {
		if err := e.DoString("assert(" + name + " == nil)"); err != nil {
			t.Errorf("%s should not be available: %v", name, err)
		}
	}
	if err := e.DoString(`x = string.upper("a") .. math.floor(1.5) .. table.concat({"b"})`); err != nil {
		t.Errorf("safe libraries should load: %v", err)
	}
}

func TestEngine_SyntaxError(t *testing.T) {
	e := newEngine(t)
	if err := e.DoString("this is not lua"); err == nil {
		t.Error("DoString() expected error")
	}
}

func TestEngine_Timeout(t *testing.T) {
	e := newEngine(t, WithTimeout(50*time.Millisecond))

	start := time.Now()
	err := e.DoString("while true do end")
	if err == nil {
		t.Fatal("infinite loop should time out")
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout took %v", time.Since(start))
	}

	if err := e.DoString("y = 1"); err != nil {
		t.Errorf("engine should stay usable after a timeout: %v", err)
	}
}

func TestEngine_Closed(t *testing.T) {
	e := New()
	e.Close()
	e.Close()
	if err := e.DoString("x = 1"); !errors.Is(err, ErrClosed) {
		t.Errorf("DoString() after Close = %v", err)
	}
}

func TestEngine_Print(t *testing.T) {
	var buf bytes.Buffer
	e := newEngine(t, WithLogger(logging.New(logging.Config{Level: logging.LevelInfo, Output: &buf})))

	if err := e.DoString(`print("hello", 42)`); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "hello\t42") {
		t.Errorf("print output = %q", buf.String())
	}
}

func TestEngine_Observer(t *testing.T) {
	e := newEngine(t)
	err := e.DoString(`
seen = {}
on_change(function(c)
  seen[#seen + 1] = c.rule .. "=" .. tostring(c.value) .. " by " .. c.actor_id .. " from " .. c.input
  last_console = c.console
  last_previous = c.previous
end)
`)
	if err != nil {
		t.Fatal(err)
	}
	if e.ObserverCount() != 1 {
		t.Fatalf("ObserverCount() = %d", e.ObserverCount())
	}

	r, _ := schema.Descriptor{Name: "fillLimit", Kind: rule.KindInt, Default: "10"}.Build()
	change := notify.NewChange("carpet", notify.ConsoleActor, r, " 20 ", rule.IntValue(10), rule.IntValue(20))
	e.Observer().RuleChanged(change)

	if err := e.DoString(`
assert(#seen == 1, "calls")
assert(seen[1] == "fillLimit=20 by console from  20 ", seen[1])
assert(last_console == true)
assert(last_previous == 10)
`); err != nil {
		t.Error(err)
	}
}

func TestEngine_ObserverErrorLogged(t *testing.T) {
	var buf bytes.Buffer
	e := newEngine(t, WithLogger(logging.New(logging.Config{Level: logging.LevelInfo, Output: &buf})))
	if err := e.DoString(`on_change(function(c) error("boom") end)`); err != nil {
		t.Fatal(err)
	}

	r, _ := schema.Descriptor{Name: "flag", Kind: rule.KindBool, Default: "false"}.Build()
	e.Observer().RuleChanged(notify.NewChange("carpet", notify.ConsoleActor, r, "true", rule.BoolValue(false), rule.BoolValue(true)))

	if !strings.Contains(buf.String(), "on_change for flag failed") {
		t.Errorf("log = %q", buf.String())
	}
}

func TestEngine_Constraints(t *testing.T) {
	e := newEngine(t)
	err := e.DoString(`
validate("pushLimit", function(raw, value)
  if value % 2 == 1 then
    return false, "must be even"
  end
  return true
end)
validate("pushLimit", function(raw)
  return raw ~= "100"
end)
`)
	if err != nil {
		t.Fatal(err)
	}

	if got := e.Validated(); len(got) != 1 || got[0] != "pushLimit" {
		t.Errorf("Validated() = %v", got)
	}
	if e.Constraints("other") != nil {
		t.Error("Constraints(other) should be nil")
	}

	d := schema.Descriptor{Name: "pushLimit", Kind: rule.KindInt, Default: "12", Validators: e.Constraints("pushLimit")}
	r, err := d.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	tests := []struct {
		raw    string
		reason string
	}{
		{"14", ""},
		{"13", "must be even"},
		{"100", "rejected by script"},
	}
	for _, tt := range tests {
		_, err := r.Validate(tt.raw)
		if tt.reason == "" {
			if err != nil {
				t.Errorf("Validate(%s) error = %v", tt.raw, err)
			}
			continue
		}
		if !errors.Is(err, rule.ErrInvalidValue) || rule.Reason(err) != tt.reason {
			t.Errorf("Validate(%s) = %v, want reason %q", tt.raw, err, tt.reason)
		}
	}
}

func TestEngine_ValidatorErrorRejects(t *testing.T) {
	e := newEngine(t)
	if err := e.DoString(`validate("x", function() error("bad script") end)`); err != nil {
		t.Fatal(err)
	}
	c := e.Constraints("x")[0]
	if _, err := c(rule.StringValue("a")); rule.Reason(err) != "rejected by script" {
		t.Errorf("constraint error = %v", err)
	}
}

func TestEngine_DoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.lua")
	if err := os.WriteFile(path, []byte(`on_change(function() end)`), 0o644); err != nil {
		t.Fatal(err)
	}
	e := newEngine(t)
	if err := e.DoFile(path); err != nil {
		t.Fatalf("DoFile() error = %v", err)
	}
	if e.ObserverCount() != 1 {
		t.Errorf("ObserverCount() = %d", e.ObserverCount())
	}
	if err := e.DoFile(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("DoFile(missing) expected error")
	}
}
