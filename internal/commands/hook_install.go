package commands

import (
	"github.com/spf13/cobra"

	"github.com/gptcompany/claude-hooks-shared/internal/commands/hookcmd"
)

func newHookInstallCmd() *cobra.Command {
	return hookcmd.NewInstallCmd()
}

func newHookUninstallCmd() *cobra.Command {
	return hookcmd.NewUninstallCmd()
}
