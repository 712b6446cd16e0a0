package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gptcompany/claude-hooks-shared/internal/app"
	"github.com/gptcompany/claude-hooks-shared/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "claude-hooks",
		Short:         "Lifecycle hooks for Claude Code sessions (checkpoints, trajectories, lessons, claims, swarm)",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Never fail a hook over a missing config dir; a defect here
			// degrades to defaults plus a log line.
			if err := app.EnsureConfigDir(); err != nil {
				slog.Default().Warn("ensure config dir failed", "error", err)
			}
			return nil
		},
	}

	root.Flags().BoolP("version", "v", false, "version for claude-hooks")

	root.AddCommand(NewHookCmd())
	root.AddCommand(NewClaimCmd())
	root.AddCommand(NewSwarmCmd())
	root.AddCommand(NewStoreCmd())
	root.AddCommand(NewStatusCmd())

	err := root.Execute()
	if err != nil {
		slog.Default().Error("command failed", "error", err.Error())
	}
	return err
}
