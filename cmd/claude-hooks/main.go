// Claude-hooks is the automation layer for Claude Code sessions: lifecycle
// hooks that checkpoint session state, record task trajectories, mine and
// inject lessons, coordinate file claims across concurrent agents, and drive
// a worker swarm through an external orchestrator.
package main

import (
	"os"
	"runtime/debug"

	"github.com/gptcompany/claude-hooks-shared/internal/commands"
)

// version is set via ldflags (-X main.version=v1.0.0) or detected
// automatically from Go module info embedded by go install.
var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
