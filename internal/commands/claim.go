package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gptcompany/claude-hooks-shared/internal/actions"
	"github.com/gptcompany/claude-hooks-shared/internal/app"
	"github.com/gptcompany/claude-hooks-shared/internal/dashboard"
	"github.com/gptcompany/claude-hooks-shared/internal/gateway"
	"github.com/gptcompany/claude-hooks-shared/internal/models"
	"github.com/gptcompany/claude-hooks-shared/internal/output"
	"github.com/gptcompany/claude-hooks-shared/internal/store"
)

func openStore() (*store.Store, error) {
	dir, err := app.StoreDir()
	if err != nil {
		return nil, fmt.Errorf("resolve store dir: %w", err)
	}
	return store.New(dir), nil
}

// NewClaimCmd creates the claim parent command.
func NewClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "File and task claim coordination",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newClaimFileCmd())
	cmd.AddCommand(newClaimReleaseCmd())
	cmd.AddCommand(newClaimTaskCmd())
	cmd.AddCommand(newClaimTaskReleaseCmd())
	cmd.AddCommand(newClaimProgressCmd())
	cmd.AddCommand(newClaimListCmd())
	cmd.AddCommand(newClaimDashboardCmd())

	return cmd
}

func newClaimFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Claim exclusive write access to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			outcome, err := actions.FileClaim(st, app.ScratchDir(), app.SessionID(), args[0])
			if err != nil {
				return err
			}
			if outcome.Blocked {
				return output.PrintSuccess(map[string]any{
					"claimed": false,
					"reason":  outcome.Reason,
				})
			}
			return output.PrintSuccess(map[string]any{
				"claimed": true,
				"stolen":  outcome.Stolen,
			})
		},
	}
	return cmd
}

func newClaimReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <path>",
		Short: "Release a held file claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			if err := actions.FileRelease(st, gateway.New(), app.ScratchDir(), app.SessionID(), args[0]); err != nil {
				return err
			}
			return output.PrintSuccess(map[string]any{"released": true})
		},
	}
}

func newClaimTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task <task-id>",
		Short: "Record an informational task claim (never blocks)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			taskContext, _ := cmd.Flags().GetString("context")
			res, err := actions.TaskClaim(st, app.SessionID(), args[0], taskContext)
			if err != nil {
				return err
			}
			return output.PrintSuccess(res)
		},
	}
	cmd.Flags().String("context", "", "Free-form context for the claim")
	return cmd
}

func newClaimTaskReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task-release [task-id]",
		Short: "Release one task claim, or all held by this session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				res, err := actions.TaskRelease(st, app.SessionID(), args[0])
				if err != nil {
					return err
				}
				return output.PrintSuccess(res)
			}
			released, err := actions.ReleaseSessionTaskClaims(st, app.SessionID())
			if err != nil {
				return err
			}
			return output.PrintSuccess(map[string]any{"released": released})
		},
	}
}

func newClaimProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <path> <percent>",
		Short: "Update progress on a held file claim",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			var percent int
			if _, err := fmt.Sscanf(args[1], "%d", &percent); err != nil {
				return fmt.Errorf("invalid percent %q: %w", args[1], err)
			}
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("normalize %s: %w", args[0], err)
			}
			issueID := actions.FileIssueID(absPath)
			claimant := actions.EditorClaimant(app.SessionID())
			if err := st.SetProgress(issueID, claimant, percent); err != nil {
				return err
			}
			return output.PrintSuccess(map[string]any{"issue_id": issueID, "progress": percent})
		},
	}
	return cmd
}

func newClaimListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List claims",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			status, _ := cmd.Flags().GetString("status")
			claimant, _ := cmd.Flags().GetString("claimant")
			issueID, _ := cmd.Flags().GetString("id")
			claims, err := st.ListClaims(store.ClaimFilter{
				Status:   models.ClaimStatus(status),
				Claimant: claimant,
				IssueID:  issueID,
			})
			if err != nil {
				return err
			}
			return output.PrintSuccess(map[string]any{"claims": claims, "count": len(claims)})
		},
	}
	cmd.Flags().String("status", "", "Filter by status (active, stealable, completed)")
	cmd.Flags().String("claimant", "", "Filter by claimant prefix")
	cmd.Flags().String("id", "", "Filter by issue id")
	return cmd
}

func newClaimDashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Render the claim dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			watch, _ := cmd.Flags().GetBool("watch")
			interval, _ := cmd.Flags().GetDuration("interval")

			if watch {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				err := dashboard.Watch(ctx, st, os.Stdout, interval)
				if err == context.Canceled {
					return nil
				}
				return err
			}

			snap, err := dashboard.BuildSnapshot(st)
			if err != nil {
				return err
			}
			if asJSON {
				return output.PrintSuccess(snap)
			}
			fmt.Print(snap.Render())
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Emit the snapshot as JSON")
	cmd.Flags().Bool("watch", false, "Re-render on claim store changes")
	cmd.Flags().Duration("interval", 2*time.Second, "Watch refresh interval")
	return cmd
}
