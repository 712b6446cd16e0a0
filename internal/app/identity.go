package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Project and session identity. Both resolvers are idempotent and return the
// same value for the lifetime of the process; hooks from the same session
// converge on the same session id through the scratch cache.

//nolint:gochecknoglobals // sync.Once singletons are intentional process-wide state
var (
	projectOnce sync.Once
	projectName string

	sessionOnce sync.Once
	sessionID   string
)

// ProjectName resolves the project identity, in order:
// CLAUDE_PROJECT_NAME > basename of the enclosing git root > basename of cwd.
func ProjectName() string {
	projectOnce.Do(func() {
		projectName = resolveProjectName("")
	})
	return projectName
}

// ProjectNameFor resolves project identity for an explicit working directory
// (hooks receive cwd on stdin). Does not consult the process cwd cache.
func ProjectNameFor(cwd string) string {
	if v := os.Getenv("CLAUDE_PROJECT_NAME"); v != "" {
		return v
	}
	return resolveProjectName(cwd)
}

func resolveProjectName(cwd string) string {
	if v := os.Getenv("CLAUDE_PROJECT_NAME"); v != "" {
		return v
	}
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	if root := gitRoot(cwd); root != "" {
		return filepath.Base(root)
	}
	if cwd != "" {
		return filepath.Base(cwd)
	}
	return "unknown"
}

// gitRoot walks up from dir looking for a .git entry. Returns "" when dir is
// not inside a work tree.
func gitRoot(dir string) string {
	for dir != "" {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
	return ""
}

// sessionState is the scratch cache for the derived session id.
type sessionState struct {
	SessionID string    `json:"session_id"`
	PID       int       `json:"pid"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionID resolves the session identity, in order:
// CLAUDE_SESSION_ID > cached value in <scratch>/session_state.json > a value
// derived from pid+start-time, which is then cached so every hook process in
// the session agrees.
func SessionID() string {
	sessionOnce.Do(func() {
		sessionID = resolveSessionID()
	})
	return sessionID
}

// SessionStatePath returns the per-session identity scratch file.
func SessionStatePath() string {
	return filepath.Join(ScratchDir(), "session_state.json")
}

func resolveSessionID() string {
	if v := os.Getenv("CLAUDE_SESSION_ID"); v != "" {
		return v
	}

	path := SessionStatePath()
	if data, err := os.ReadFile(path); err == nil { //nolint:gosec // G304: fixed scratch path
		var st sessionState
		if json.Unmarshal(data, &st) == nil && st.SessionID != "" {
			return st.SessionID
		}
	}

	st := sessionState{
		SessionID: fmt.Sprintf("sess_%d_%d", os.Getpid(), time.Now().Unix()),
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC(),
	}
	if err := os.MkdirAll(ScratchDir(), 0o755); err == nil {
		if data, err := json.Marshal(st); err == nil {
			_ = os.WriteFile(path, data, 0o600)
		}
	}
	return st.SessionID
}

// ClearSessionState removes the cached session identity. Called at session
// stop so the next session derives a fresh id.
func ClearSessionState() {
	_ = os.Remove(SessionStatePath())
}
