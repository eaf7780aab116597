package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/rulebook/internal/app"
)

var (
	configFile string
	rulesFile  string
	schemaFile string
	namespace  string
	language   string
	localesDir string
	logLevel   string
	scripts    []string

	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "rulebook",
	Short: "Live game rule registry console",
	Long: `rulebook holds a set of typed server rules, validates changes to them,
notifies observers and keeps chosen values in a rules file.

Without a subcommand it starts the interactive console.`,
	SilenceUsage: true,
	RunE:         runConsole,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "rules file (.conf, .toml, .yaml, .json)")
	rootCmd.PersistentFlags().StringVar(&schemaFile, "schema", "", "YAML schema replacing the built-in rules")
	rootCmd.PersistentFlags().StringVar(&namespace, "namespace", "", "command namespace")
	rootCmd.PersistentFlags().StringVar(&language, "lang", "", "initial language (en_us, es_es)")
	rootCmd.PersistentFlags().StringVar(&localesDir, "locales", "", "directory with extra locale files")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSliceVar(&scripts, "script", nil, "Lua script to load (repeatable)")

	rootCmd.Flags().Bool("watch", false, "reload the rules file when it changes")
}

// SetVersion records build information for the version command.
func SetVersion(version, commit, date string) {
	buildVersion, buildCommit, buildDate = version, commit, date
	rootCmd.Version = version
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig merges the config file, environment and changed flags.
func loadConfig(cmd *cobra.Command) (*app.Config, error) {
	cfg, err := app.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("rules") {
		cfg.RulesFile = rulesFile
	}
	if flags.Changed("schema") {
		cfg.SchemaFile = schemaFile
	}
	if flags.Changed("namespace") {
		cfg.Namespace = namespace
	}
	if flags.Changed("lang") {
		cfg.Language = language
	}
	if flags.Changed("locales") {
		cfg.LocalesDir = localesDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("script") {
		cfg.Scripts = append(cfg.Scripts, scripts...)
	}
	if flags.Lookup("watch") != nil && flags.Changed("watch") {
		cfg.Watch, _ = flags.GetBool("watch")
	}
	if cfg.Version == "" {
		cfg.Version = buildVersion
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
