package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gptcompany/claude-hooks-shared/internal/actions"
	"github.com/gptcompany/claude-hooks-shared/internal/app"
	"github.com/gptcompany/claude-hooks-shared/internal/gateway"
)

// NewSwarmCmd creates the swarm lifecycle command — the target of the /swarm
// skill. Each subcommand prints a one-line confirmation or error.
func NewSwarmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swarm",
		Short: "Worker swarm lifecycle via the orchestrator",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newSwarmInitCmd())
	cmd.AddCommand(newSwarmStatusCmd())
	cmd.AddCommand(newSwarmSpawnCmd())
	cmd.AddCommand(newSwarmTaskCmd())
	cmd.AddCommand(newSwarmConsensusCmd())
	cmd.AddCommand(newSwarmBroadcastCmd())
	cmd.AddCommand(newSwarmShutdownCmd())

	return cmd
}

// confirm prints the skill surface's single confirmation line.
func confirm(format string, args ...any) error {
	_, err := fmt.Printf(format+"\n", args...)
	return err
}

func newSwarmInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a hive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			topology, _ := cmd.Flags().GetString("topology")
			res := actions.SwarmInit(cmd.Context(), st, gateway.New(), app.ProjectName(), topology)
			if !res.Success {
				return confirm("swarm init failed: %s", res.Reason)
			}
			return confirm("swarm initialized (hive %s)", res.HiveID)
		},
	}
	cmd.Flags().String("topology", "hierarchical-mesh", "Topology: hierarchical-mesh, mesh, star, ring")
	return cmd
}

func newSwarmStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report hive status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			res := actions.SwarmStatus(cmd.Context(), st, gateway.New(), app.ProjectName(), verbose)
			if !res.Success {
				return confirm("swarm status unavailable: %s", res.Reason)
			}
			detail := strings.TrimSpace(string(res.Detail))
			if detail == "" {
				detail = "ok"
			}
			return confirm("swarm status: %s", detail)
		},
	}
	cmd.Flags().Bool("verbose", false, "Include per-worker detail")
	return cmd
}

func newSwarmSpawnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "spawn <count>",
		Short: "Spawn N workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid count %q: %w", args[0], err)
			}
			res := actions.SwarmSpawn(cmd.Context(), gateway.New(), count)
			if !res.Success {
				return confirm("swarm spawn failed: %s", res.Reason)
			}
			return confirm("spawned %d worker(s)", count)
		},
	}
}

func newSwarmTaskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task <description>",
		Short: "Submit a task to the hive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := actions.SwarmSubmit(cmd.Context(), gateway.New(), strings.Join(args, " "))
			if !res.Success {
				// not_supported is a known limitation of a server-less
				// gateway, not a defect.
				if res.Reason == "not_supported" {
					return confirm("task submission not supported without the orchestrator server")
				}
				return confirm("task submit failed: %s", res.Reason)
			}
			if res.TaskID != "" {
				return confirm("task submitted (%s)", res.TaskID)
			}
			return confirm("task submitted")
		},
	}
}

func newSwarmConsensusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consensus <topic>",
		Short: "Propose a vote among workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options, _ := cmd.Flags().GetStringArray("option")
			res := actions.SwarmConsensus(cmd.Context(), gateway.New(), args[0], options)
			if !res.Success {
				return confirm("consensus failed: %s", res.Reason)
			}
			return confirm("consensus proposed on %q", args[0])
		},
	}
	cmd.Flags().StringArray("option", nil, "Vote option (repeatable)")
	return cmd
}

func newSwarmBroadcastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast <message>",
		Short: "Publish a message to all workers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := actions.SwarmBroadcast(cmd.Context(), gateway.New(), strings.Join(args, " "))
			if !res.Success {
				return confirm("broadcast failed: %s", res.Reason)
			}
			return confirm("broadcast sent")
		},
	}
}

func newSwarmShutdownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Terminate the hive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			graceful, _ := cmd.Flags().GetBool("graceful")
			res := actions.SwarmShutdown(cmd.Context(), st, gateway.New(), app.ProjectName(), graceful)
			if !res.Success {
				return confirm("swarm shutdown attempted: %s", res.Reason)
			}
			return confirm("swarm shut down")
		},
	}
	cmd.Flags().Bool("graceful", true, "Wait for in-flight tasks")
	return cmd
}
