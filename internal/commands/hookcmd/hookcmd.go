// Package hookcmd provides hook installation and uninstallation commands.
// This package is separate from the main commands package to allow independent
// evolution of hook lifecycle management.
package hookcmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/gptcompany/claude-hooks-shared/internal/output"
)

const hooksCommandFallback = "claude-hooks"

//nolint:gochecknoglobals // sync.Once singleton cache for hook definitions; required by the sync.Once pattern
var (
	hooksOnce  sync.Once
	hooksCache map[string]hookEntry
)

type hookHandler struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

type hookEntry struct {
	Matcher string        `json:"matcher"`
	Hooks   []hookHandler `json:"hooks"`
}

func claudeSettingsPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude", "settings.json")
}

func projectClaudeSettingsPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return filepath.Join(".", ".claude", "settings.json")
	}
	return filepath.Join(wd, ".claude", "settings.json")
}

func resolveClaudeSettingsPath(projectScoped bool) string {
	if projectScoped {
		return projectClaudeSettingsPath()
	}
	return claudeSettingsPath()
}

func hooksExecutable() string {
	exe, err := os.Executable()
	if err != nil || strings.TrimSpace(exe) == "" {
		return hooksCommandFallback
	}
	return exe
}

func buildHookCommand(subcommand string) string {
	exe := hooksExecutable()
	if exe == hooksCommandFallback {
		return fmt.Sprintf("claude-hooks hook %s", subcommand)
	}
	return fmt.Sprintf("%q hook %s", exe, subcommand)
}

func registeredHooks() map[string]hookEntry {
	hooksOnce.Do(func() {
		hooksCache = buildRegisteredHooks()
	})
	return hooksCache
}

// buildRegisteredHooks declares the six lifecycle events. Timeouts reflect
// each handler's work: the claim gate and injector stay tight, Stop gets
// headroom for extraction and checkpointing.
func buildRegisteredHooks() map[string]hookEntry {
	return map[string]hookEntry{
		"PreToolUse": {
			Matcher: "",
			Hooks: []hookHandler{{
				Type:    "command",
				Command: buildHookCommand("pre-tool"),
				Timeout: 5000,
			}},
		},
		"PostToolUse": {
			Matcher: "",
			Hooks: []hookHandler{{
				Type:    "command",
				Command: buildHookCommand("post-tool"),
				Timeout: 5000,
			}},
		},
		"UserPromptSubmit": {
			Matcher: "",
			Hooks: []hookHandler{{
				Type:    "command",
				Command: buildHookCommand("prompt"),
				Timeout: 5000,
			}},
		},
		"SubagentStop": {
			Matcher: "",
			Hooks: []hookHandler{{
				Type:    "command",
				Command: buildHookCommand("subagent-stop"),
				Timeout: 10000,
			}},
		},
		"Stop": {
			Matcher: "",
			Hooks: []hookHandler{{
				Type:    "command",
				Command: buildHookCommand("stop"),
				Timeout: 15000,
			}},
		},
		"SessionEnd": {
			Matcher: "",
			Hooks: []hookHandler{{
				Type:    "command",
				Command: buildHookCommand("session-end"),
				Timeout: 10000,
			}},
		},
	}
}

func registeredHookEventNames() []string {
	events := make([]string, 0, len(registeredHooks()))
	for name := range registeredHooks() {
		events = append(events, name)
	}
	sort.Strings(events)
	return events
}

func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: settings path derived from home dir or cwd
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return settings, nil
}

func writeSettings(path string, settings map[string]any) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// IsHooksCommand checks if a command string is a claude-hooks hook command:
// its executable is named claude-hooks or is the running executable (the
// path buildHookCommand writes).
func IsHooksCommand(command string) bool {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return false
	}
	parts := strings.Fields(cmd)
	if len(parts) < 3 {
		return false
	}

	execToken := strings.Trim(parts[0], "\"'")
	if filepath.Base(execToken) != hooksCommandFallback && execToken != hooksExecutable() {
		return false
	}
	if parts[1] != "hook" {
		return false
	}

	switch parts[2] {
	case "pre-tool", "post-tool", "prompt", "subagent-stop", "stop", "session-end":
		return true
	default:
		return false
	}
}

func hookEntryEqual(a, b map[string]any) bool {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return string(aj) == string(bj)
}

type installOutcome int

const (
	hookInstalled installOutcome = iota
	hookUpdated
	hookSkipped
)

// upsertHookEntry replaces any existing claude-hooks entry for the event
// while preserving unrelated hooks from other tools.
func upsertHookEntry(existing []any, newEntry map[string]any) ([]any, installOutcome) {
	var kept []any
	hadOurs := false
	matchingOurs := false

	for _, currentEntry := range existing {
		entryObj, ok := currentEntry.(map[string]any)
		if !ok {
			kept = append(kept, currentEntry)
			continue
		}
		hooks, ok := entryObj["hooks"].([]any)
		if !ok {
			kept = append(kept, currentEntry)
			continue
		}
		isOurs := false
		for _, h := range hooks {
			hMap, ok := h.(map[string]any)
			if !ok {
				continue
			}
			cmd, _ := hMap["command"].(string)
			if IsHooksCommand(cmd) {
				isOurs = true
				break
			}
		}
		if isOurs {
			hadOurs = true
			if hookEntryEqual(entryObj, newEntry) {
				matchingOurs = true
			}
			continue
		}
		kept = append(kept, currentEntry)
	}

	kept = append(kept, newEntry)
	if matchingOurs {
		return kept, hookSkipped
	}
	if hadOurs {
		return kept, hookUpdated
	}
	return kept, hookInstalled
}

// NewInstallCmd creates the hook install command.
func NewInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install claude-hooks into Claude Code settings",
		Long:  "Registers the lifecycle hook handlers in ~/.claude/settings.json (or ./.claude/settings.json with --project).",
		RunE: func(cmd *cobra.Command, args []string) error {
			type result struct {
				Message   string   `json:"message"`
				Path      string   `json:"path"`
				Installed []string `json:"installed"`
				Updated   []string `json:"updated,omitempty"`
				Skipped   []string `json:"skipped"`
			}

			projectScoped, _ := cmd.Flags().GetBool("project")
			path := resolveClaudeSettingsPath(projectScoped)

			settings, err := readSettings(path)
			if err != nil {
				return err
			}

			hooksObj, _ := settings["hooks"].(map[string]any)
			if hooksObj == nil {
				hooksObj = map[string]any{}
			}

			var installed, updated, skipped []string
			for eventName, entry := range registeredHooks() {
				existing, _ := hooksObj[eventName].([]any)

				entryJSON, _ := json.Marshal(entry)
				var entryMap map[string]any
				_ = json.Unmarshal(entryJSON, &entryMap)

				entries, outcome := upsertHookEntry(existing, entryMap)
				hooksObj[eventName] = entries

				switch outcome {
				case hookInstalled:
					installed = append(installed, eventName)
				case hookUpdated:
					updated = append(updated, eventName)
				case hookSkipped:
					skipped = append(skipped, eventName)
				}
			}

			settings["hooks"] = hooksObj
			if err := writeSettings(path, settings); err != nil {
				return err
			}

			sort.Strings(installed)
			sort.Strings(updated)
			sort.Strings(skipped)

			resp := result{Path: path, Installed: installed, Updated: updated, Skipped: skipped}
			switch {
			case len(installed) > 0:
				resp.Message = fmt.Sprintf("Hooks installed (%s). Run 'claude-hooks status' to verify.", strings.Join(installed, ", "))
			case len(updated) > 0:
				resp.Message = fmt.Sprintf("Hooks updated (%s).", strings.Join(updated, ", "))
			default:
				resp.Message = "Hooks already installed."
			}
			return output.PrintSuccess(resp)
		},
	}

	cmd.Flags().Bool("project", false, "Install hooks in ./.claude/settings.json")
	return cmd
}

// NewUninstallCmd creates the hook uninstall command.
func NewUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove claude-hooks from Claude Code settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			type result struct {
				Path    string   `json:"path"`
				Removed []string `json:"removed"`
			}

			projectScoped, _ := cmd.Flags().GetBool("project")
			path := resolveClaudeSettingsPath(projectScoped)

			settings, err := readSettings(path)
			if err != nil {
				return err
			}

			hooksObj, _ := settings["hooks"].(map[string]any)
			if hooksObj == nil {
				return output.PrintSuccess(result{Path: path, Removed: []string{}})
			}

			var removed []string
			for _, eventName := range registeredHookEventNames() {
				entries, ok := hooksObj[eventName].([]any)
				if !ok {
					continue
				}

				var kept []any
				for _, entry := range entries {
					entryMap, ok := entry.(map[string]any)
					if !ok {
						kept = append(kept, entry)
						continue
					}
					hooks, ok := entryMap["hooks"].([]any)
					if !ok {
						kept = append(kept, entry)
						continue
					}

					isOurs := false
					for _, h := range hooks {
						hMap, ok := h.(map[string]any)
						if !ok {
							continue
						}
						cmd, _ := hMap["command"].(string)
						if IsHooksCommand(cmd) {
							isOurs = true
							break
						}
					}

					if !isOurs {
						kept = append(kept, entry)
					}
				}

				if len(kept) != len(entries) {
					removed = append(removed, eventName)
				}

				if len(kept) == 0 {
					delete(hooksObj, eventName)
				} else {
					hooksObj[eventName] = kept
				}
			}

			settings["hooks"] = hooksObj
			if err := writeSettings(path, settings); err != nil {
				return err
			}

			return output.PrintSuccess(result{Path: path, Removed: removed})
		},
	}

	cmd.Flags().Bool("project", false, "Uninstall hooks from ./.claude/settings.json")
	return cmd
}
