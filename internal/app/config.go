package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/claude-hooks/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "claude-hooks"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# claude-hooks configuration
# Run: claude-hooks --help

# Optional: override the shared store location (read by the orchestrator too).
# Can also be set via CLAUDE_HOOKS_STORE_DIR.
# store_dir: ~/.claude-flow

# Optional: orchestrator CLI binary.
# orchestrator_bin: claude-flow
`

// StoreDir resolves the shared store base directory:
// env CLAUDE_HOOKS_STORE_DIR > settings store_dir > ~/.claude-flow.
func StoreDir() (string, error) {
	if v := os.Getenv("CLAUDE_HOOKS_STORE_DIR"); v != "" {
		return v, nil
	}
	if s, err := LoadSettings(); err == nil && s.StoreDir != "" {
		return expandHome(s.StoreDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude-flow"), nil
}

// ScratchDir resolves the per-session scratch directory:
// env CLAUDE_HOOKS_SCRATCH_DIR > settings scratch_dir > <tmp>/claude-metrics.
// Scratch files are session-local; they are never shared across sessions.
func ScratchDir() string {
	if v := os.Getenv("CLAUDE_HOOKS_SCRATCH_DIR"); v != "" {
		return v
	}
	if s, err := LoadSettings(); err == nil && s.ScratchDir != "" {
		if dir, err := expandHome(s.ScratchDir); err == nil {
			return dir
		}
	}
	return filepath.Join(os.TempDir(), "claude-metrics")
}

// DBPath resolves the session-analysis database path:
// env CLAUDE_HOOKS_DB_PATH > settings db_path > <config dir>/analysis.db.
func DBPath() (string, error) {
	if v := os.Getenv("CLAUDE_HOOKS_DB_PATH"); v != "" {
		return v, nil
	}
	if s, err := LoadSettings(); err == nil && s.DBPath != "" {
		return expandHome(s.DBPath)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "analysis.db"), nil
}

// EnsureDBDir creates the parent directory for dbPath and returns the
// absolute path.
func EnsureDBDir(dbPath string) (string, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0750); err != nil {
		return "", err
	}
	return abs, nil
}

// LogPath returns the append-only diagnostic log for hook processes.
func LogPath() string {
	return filepath.Join(ScratchDir(), "claude-hooks.log")
}

func expandHome(path string) (string, error) {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
