package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/rulebook/internal/app"
	"github.com/dshills/rulebook/internal/rules/notify"
)

var execCmd = &cobra.Command{
	Use:   "exec [rule command...]",
	Short: "Run one rules command and exit",
	Example: `  rulebook exec list creative
  rulebook exec fillLimit 250000
  rulebook exec setDefault fillUpdates false`,
	RunE: runExec,
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <partial command line>",
	Short: "Print completions for a partial command line",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSuggest,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rulebook %s\n", buildVersion)
		fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", buildCommit)
		fmt.Fprintf(cmd.OutOrStdout(), "Built: %s\n", buildDate)
	},
}

func init() {
	// values may start with a dash
	execCmd.Flags().SetInterspersed(false)

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(versionCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	application, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer application.Shutdown(ctx)

	out, err := application.Execute(ctx, notify.ConsoleActor, strings.Join(args, " "))
	if s := out.String(); s != "" {
		fmt.Fprintln(cmd.OutOrStdout(), s)
	}
	return err
}

func runSuggest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	application, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer application.Shutdown(ctx)

	var line string
	if len(args) == 1 {
		line = args[0]
	}
	for _, s := range application.Complete(notify.ConsoleActor, line) {
		fmt.Fprintln(cmd.OutOrStdout(), s)
	}
	return nil
}

// newApp builds a one-shot app. Watching makes no sense for a single
// command.
func newApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg.Watch = false
	return app.New(ctx, *cfg)
}
