package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/dshills/rulebook/internal/logging"
	"github.com/dshills/rulebook/internal/rules/command"
	"github.com/dshills/rulebook/internal/rules/i18n"
	"github.com/dshills/rulebook/internal/rules/notify"
	"github.com/dshills/rulebook/internal/rules/registry"
	"github.com/dshills/rulebook/internal/rules/schema"
)

var console = notify.ConsoleActor

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RulesFile = filepath.Join(t.TempDir(), "carpet.conf")
	cfg.Version = "1.4.0"
	return cfg
}

func newTestApp(t *testing.T, cfg Config) (*App, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelDebug, Output: &buf})
	a, err := New(context.Background(), cfg, WithLogger(logger))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	return a, &buf
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func value(t *testing.T, a *App, name string) string {
	t.Helper()
	r, err := a.Registry().Rule(name)
	if err != nil {
		t.Fatalf("Rule(%s): %v", name, err)
	}
	return r.Value().String()
}

func TestNew_Builtin(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))

	if got := a.Registry().Namespace(); got != "carpet" {
		t.Errorf("Namespace = %q, want carpet", got)
	}
	if got := a.Registry().Len(); got != len(schema.Builtin()) {
		t.Errorf("Len = %d, want %d", got, len(schema.Builtin()))
	}
	if a.Store() == nil {
		t.Fatal("Store is nil with a rules file configured")
	}
	if a.Registry().Locked() {
		t.Error("registry locked without a rules file")
	}
}

func TestNew_NoStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RulesFile = ""
	a, _ := newTestApp(t, cfg)

	if a.Store() != nil {
		t.Error("Store should be nil")
	}
	if err := a.Reload(); !errors.Is(err, ErrNoStore) {
		t.Errorf("Reload error = %v, want ErrNoStore", err)
	}
	out, err := a.Execute(context.Background(), console, "setDefault fillLimit 1000")
	if !errors.Is(err, command.ErrNoStore) {
		t.Errorf("setDefault error = %v, want ErrNoStore", err)
	}
	if len(out.Lines) == 0 {
		t.Error("setDefault without store produced no message")
	}
}

func TestNew_RestoresRulesFile(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.RulesFile, `
[rules]
fillLimit = 250000
fillUpdates = "false"
noSuchRule = "x"
`)
	a, buf := newTestApp(t, cfg)

	if got := value(t, a, "fillLimit"); got != "250000" {
		t.Errorf("fillLimit = %s, want 250000", got)
	}
	if got := value(t, a, "fillUpdates"); got != "false" {
		t.Errorf("fillUpdates = %s, want false", got)
	}
	if !strings.Contains(buf.String(), "noSuchRule") {
		t.Errorf("unknown stored rule not logged:\n%s", buf.String())
	}
	if a.Metrics().Snapshot().Changes != 0 {
		t.Error("restoring should not notify observers")
	}
}

func TestNew_LockedRulesFile(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.RulesFile, "locked = true\n")
	a, _ := newTestApp(t, cfg)

	if !a.Registry().Locked() {
		t.Fatal("registry should be locked")
	}
	_, err := a.Execute(context.Background(), console, "fillLimit 1000")
	if !errors.Is(err, registry.ErrLocked) {
		t.Errorf("Execute error = %v, want ErrLocked", err)
	}
}

func TestNew_Errors(t *testing.T) {
	dir := t.TempDir()
	badScript := filepath.Join(dir, "bad.lua")
	writeFile(t, badScript, "this is not lua")
	badRules := filepath.Join(dir, "bad.toml")
	writeFile(t, badRules, "rules = [")

	tests := []struct {
		name      string
		modify    func(*Config)
		component string
	}{
		{"config", func(c *Config) { c.Namespace = "" }, "config"},
		{"script", func(c *Config) { c.Scripts = []string{badScript} }, "scripts"},
		{"missing script", func(c *Config) { c.Scripts = []string{filepath.Join(dir, "nope.lua")} }, "scripts"},
		{"schema", func(c *Config) { c.SchemaFile = filepath.Join(dir, "nope.yaml") }, "schema"},
		{"rules file", func(c *Config) { c.RulesFile = badRules }, "store"},
		{"rules format", func(c *Config) { c.RulesFile = filepath.Join(dir, "rules.ini") }, "store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.RulesFile = ""
			tt.modify(&cfg)
			_, err := New(context.Background(), cfg, WithLogger(logging.Nop()))
			var initErr *InitError
			if !errors.As(err, &initErr) {
				t.Fatalf("error = %v, want *InitError", err)
			}
			if initErr.Component != tt.component {
				t.Errorf("Component = %q, want %q", initErr.Component, tt.component)
			}
		})
	}
}

func TestNew_SchemaFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.SchemaFile = filepath.Join(t.TempDir(), "rules.yaml")
	writeFile(t, cfg.SchemaFile, `
rules:
  - name: pvp
    kind: bool
    default: "true"
    description: Players can hurt each other
    categories: [survival]
`)
	a, _ := newTestApp(t, cfg)

	if got := a.Registry().Names(); !slices.Equal(got, []string{"pvp"}) {
		t.Errorf("Names = %v, want [pvp]", got)
	}
	// no permission rule in this schema, so everyone may use the command
	if _, err := a.Execute(context.Background(), notify.Actor{ID: "p"}, "pvp false"); err != nil {
		t.Errorf("Execute: %v", err)
	}
}

func TestExecute(t *testing.T) {
	a, buf := newTestApp(t, testConfig(t))
	ctx := context.Background()

	out, err := a.Execute(ctx, console, "/carpet fillLimit 1000")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Count != 1 {
		t.Errorf("Count = %d, want 1", out.Count)
	}
	if got := value(t, a, "fillLimit"); got != "1000" {
		t.Errorf("fillLimit = %s, want 1000", got)
	}

	// namespace literal is optional
	if _, err := a.Execute(ctx, console, "fillLimit 2000"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	m := a.Metrics().Snapshot()
	if m.Changes != 2 || m.ConsoleChanges != 2 {
		t.Errorf("metrics = %+v, want 2 console changes", m)
	}
	if m.LastChange.IsZero() {
		t.Error("LastChange not recorded")
	}
	if !strings.Contains(buf.String(), "Console set carpet/fillLimit to 2000 (was 1000)") {
		t.Errorf("audit line missing:\n%s", buf.String())
	}
}

func TestExecute_Permission(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))
	ctx := context.Background()
	player := notify.Actor{ID: "p-1", Name: "Steve"}
	op := notify.Actor{ID: "p-2", Name: "Alex", Level: 2}

	if _, err := a.Execute(ctx, player, "fillLimit 10"); !errors.Is(err, command.ErrPermissionDenied) {
		t.Errorf("player error = %v, want ErrPermissionDenied", err)
	}
	if _, err := a.Execute(ctx, op, "fillLimit 10"); err != nil {
		t.Errorf("operator: %v", err)
	}

	if _, err := a.Execute(ctx, console, schema.PermissionRule+" true"); err != nil {
		t.Fatalf("opening command: %v", err)
	}
	if _, err := a.Execute(ctx, player, "fillLimit 20"); err != nil {
		t.Errorf("player after opening: %v", err)
	}
}

func TestSetDefault_Persists(t *testing.T) {
	cfg := testConfig(t)
	a, _ := newTestApp(t, cfg)
	ctx := context.Background()

	if _, err := a.Execute(ctx, console, "setDefault fillLimit 5000"); err != nil {
		t.Fatalf("setDefault: %v", err)
	}

	again, _ := newTestApp(t, cfg)
	if got := value(t, again, "fillLimit"); got != "5000" {
		t.Errorf("fillLimit after restart = %s, want 5000", got)
	}

	if _, err := again.Execute(ctx, console, "removeDefault fillLimit"); err != nil {
		t.Fatalf("removeDefault: %v", err)
	}
	third, _ := newTestApp(t, cfg)
	if got := value(t, third, "fillLimit"); got != "32768" {
		t.Errorf("fillLimit after removeDefault = %s, want default", got)
	}
}

func TestLanguage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Language = "es_es"
	a, _ := newTestApp(t, cfg)

	if got := i18n.Code(a.Catalog().Language()); got != "es_es" {
		t.Fatalf("language = %s, want es_es", got)
	}
	out, err := a.Execute(context.Background(), console, "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "límiteDeRelleno") {
		t.Errorf("listing not translated:\n%s", out)
	}

	if _, err := a.Execute(context.Background(), console, "language en_us"); err != nil {
		t.Fatal(err)
	}
	if got := i18n.Code(a.Catalog().Language()); got != "en_us" {
		t.Errorf("language after change = %s, want en_us", got)
	}
}

func TestLanguage_RulesFileWins(t *testing.T) {
	cfg := testConfig(t)
	cfg.Language = "es_es"
	writeFile(t, cfg.RulesFile, "[rules]\nlanguage = \"en_us\"\n")
	a, _ := newTestApp(t, cfg)

	if got := i18n.Code(a.Catalog().Language()); got != "en_us" {
		t.Errorf("language = %s, want en_us", got)
	}
}

func TestReload(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.RulesFile, "[rules]\nfillLimit = \"1000\"\nfillUpdates = \"false\"\n")
	a, _ := newTestApp(t, cfg)
	ctx := context.Background()

	// runtime change to a rule the file does not touch survives reloads
	if _, err := a.Execute(ctx, console, "language es_es"); err != nil {
		t.Fatal(err)
	}

	writeFile(t, cfg.RulesFile, "locked = true\n[rules]\nfillLimit = \"2000\"\n")
	if err := a.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got := value(t, a, "fillLimit"); got != "2000" {
		t.Errorf("fillLimit = %s, want 2000", got)
	}
	if got := value(t, a, "fillUpdates"); got != "true" {
		t.Errorf("fillUpdates = %s, want default true", got)
	}
	if got := value(t, a, schema.LanguageRule); got != "es_es" {
		t.Errorf("language = %s, want es_es", got)
	}
	if !a.Registry().Locked() {
		t.Error("registry should follow the file lock")
	}

	writeFile(t, cfg.RulesFile, "rules = [")
	if err := a.Reload(); err == nil {
		t.Error("Reload of a broken file should fail")
	}
	m := a.Metrics().Snapshot()
	if m.Reloads != 1 || m.ReloadFailures != 1 {
		t.Errorf("metrics = %+v, want 1 reload and 1 failure", m)
	}
}

func TestScripts(t *testing.T) {
	cfg := testConfig(t)
	script := filepath.Join(t.TempDir(), "limits.lua")
	writeFile(t, script, `
validate("fillLimit", function(raw, value)
  return value <= 100000, "fill limit capped at 100000"
end)
validate("noSuchRule", function() return true end)

on_change(function(change)
  print("changed", change.rule, change.value)
end)
`)
	cfg.Scripts = []string{script}
	a, buf := newTestApp(t, cfg)
	ctx := context.Background()

	out, err := a.Execute(ctx, console, "fillLimit 250000")
	if !errors.Is(err, registry.ErrInvalidValue) {
		t.Fatalf("error = %v, want ErrInvalidValue", err)
	}
	if !strings.Contains(out.String(), "fill limit capped at 100000") {
		t.Errorf("reason missing from output:\n%s", out)
	}

	if _, err := a.Execute(ctx, console, "fillLimit 500"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	logs := buf.String()
	if !strings.Contains(logs, "changed\tfillLimit\t500") {
		t.Errorf("script observer did not run:\n%s", logs)
	}
	if !strings.Contains(logs, "script validates unknown rule noSuchRule") {
		t.Errorf("unknown validated rule not logged:\n%s", logs)
	}
}

func TestSharedHub(t *testing.T) {
	hub := notify.NewHub()
	var seen []string
	hub.SubscribeFunc(func(c notify.Change) {
		seen = append(seen, c.Namespace+"/"+c.Rule.Name())
	})

	cfgA := testConfig(t)
	cfgB := testConfig(t)
	cfgB.Namespace = "fabric"

	a, err := New(context.Background(), cfgA, WithHub(hub), WithLogger(logging.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown(context.Background())
	b, err := New(context.Background(), cfgB, WithHub(hub), WithLogger(logging.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Shutdown(context.Background())

	if _, err := a.Execute(context.Background(), console, "fillLimit 10"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Execute(context.Background(), console, "fabric fillLimit 20"); err != nil {
		t.Fatal(err)
	}

	want := []string{"carpet/fillLimit", "fabric/fillLimit"}
	if !slices.Equal(seen, want) {
		t.Errorf("hub saw %v, want %v", seen, want)
	}
	if a.Metrics().Snapshot().Changes != 1 || b.Metrics().Snapshot().Changes != 1 {
		t.Error("each app should count only its own changes")
	}
}

func TestComplete(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))

	tests := []struct {
		line string
		want string
	}{
		{"fillL", "fillLimit"},
		{"carpet fillL", "fillLimit"},
		{"carpet list crea", "creative"},
		{"setDefault fillU", "fillUpdates"},
		{"", "list"},
		{"carpet ", "setDefault"},
		{"fillUpdates ", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := a.Complete(console, tt.line)
			if !slices.Contains(got, tt.want) {
				t.Errorf("Complete(%q) = %v, want it to contain %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestRun_Shutdown(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	if err := a.Run(context.Background()); !errors.Is(err, ErrShutdown) {
		t.Errorf("Run after Shutdown = %v, want ErrShutdown", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestRun_WatchReloads(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watch = true
	cfg.Debounce = 10 * time.Millisecond
	writeFile(t, cfg.RulesFile, "[rules]\nfillLimit = \"1000\"\n")
	a, _ := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	writeFile(t, cfg.RulesFile, "[rules]\nfillLimit = \"3000\"\n")

	deadline := time.Now().Add(3 * time.Second)
	for value(t, a, "fillLimit") != "3000" {
		if time.Now().After(deadline) {
			t.Fatal("file change was not applied")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
