package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dshills/rulebook/internal/logging"
)

// Config holds the process settings.
type Config struct {
	// Namespace is the command literal and registry namespace.
	Namespace string
	// Title is the display name used in listings.
	Title string
	// Version is shown in the default listing.
	Version string

	// RulesFile is the persisted rule file. Empty disables persistence.
	RulesFile string
	// SchemaFile replaces the built-in rule set when set.
	SchemaFile string

	// Scripts are Lua files loaded at startup.
	Scripts []string
	// ScriptTimeout bounds a single script call.
	ScriptTimeout time.Duration

	// Language seeds the language rule before the rules file is applied.
	Language string
	// LocalesDir holds extra locale files.
	LocalesDir string

	// LogLevel is debug, info, warn or error.
	LogLevel string

	// Watch reloads the rules file when it changes on disk.
	Watch bool
	// Debounce coalesces bursts of file events.
	Debounce time.Duration

	// OTelEndpoint is the OTLP/HTTP trace endpoint. Empty disables tracing.
	OTelEndpoint string
	// OTelEnabled can switch tracing off without clearing the endpoint.
	OTelEnabled bool
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Namespace:     "carpet",
		Title:         "Carpet Mod",
		RulesFile:     "carpet.conf",
		ScriptTimeout: time.Second,
		LogLevel:      "info",
		Debounce:      100 * time.Millisecond,
		OTelEnabled:   true,
	}
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence; flags are
// applied by the caller on the returned value.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("rules.namespace", def.Namespace)
	v.SetDefault("rules.title", def.Title)
	v.SetDefault("rules.version", def.Version)
	v.SetDefault("rules.file", def.RulesFile)
	v.SetDefault("rules.schema", def.SchemaFile)
	v.SetDefault("scripts.files", []string{})
	v.SetDefault("scripts.timeout", def.ScriptTimeout.String())
	v.SetDefault("i18n.language", def.Language)
	v.SetDefault("i18n.locales", def.LocalesDir)
	v.SetDefault("log.level", def.LogLevel)
	v.SetDefault("watch.enabled", def.Watch)
	v.SetDefault("watch.debounce", def.Debounce.String())
	v.SetDefault("otel.endpoint", def.OTelEndpoint)
	v.SetDefault("otel.enabled", def.OTelEnabled)

	// RULEBOOK_RULES_FILE, RULEBOOK_OTEL_ENDPOINT, ...
	v.SetEnvPrefix("RULEBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Namespace:     v.GetString("rules.namespace"),
		Title:         v.GetString("rules.title"),
		Version:       v.GetString("rules.version"),
		RulesFile:     v.GetString("rules.file"),
		SchemaFile:    v.GetString("rules.schema"),
		Scripts:       v.GetStringSlice("scripts.files"),
		ScriptTimeout: v.GetDuration("scripts.timeout"),
		Language:      v.GetString("i18n.language"),
		LocalesDir:    v.GetString("i18n.locales"),
		LogLevel:      v.GetString("log.level"),
		Watch:         v.GetBool("watch.enabled"),
		Debounce:      v.GetDuration("watch.debounce"),
		OTelEndpoint:  v.GetString("otel.endpoint"),
		OTelEnabled:   v.GetBool("otel.enabled"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for obvious mistakes.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Namespace) == "" {
		return fmt.Errorf("namespace must not be empty")
	}
	if strings.ContainsAny(c.Namespace, " \t/") {
		return fmt.Errorf("namespace must be a single word, got %q", c.Namespace)
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("log level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.ScriptTimeout <= 0 {
		return fmt.Errorf("script timeout must be positive, got %v", c.ScriptTimeout)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("watch debounce must not be negative, got %v", c.Debounce)
	}
	if c.Watch && c.RulesFile == "" {
		return fmt.Errorf("watch requires a rules file")
	}
	return nil
}
