package actions

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gptcompany/claude-hooks-shared/internal/models"
	"github.com/gptcompany/claude-hooks-shared/internal/store"
)

func sessionKey(project, sessionID string) string {
	return models.NamespaceSession + project + ":" + sessionID
}

func sessionLastKey(project string) string {
	return models.NamespaceSession + project + ":last"
}

// EnsureSessionStarted creates the session entry at first hook invocation
// and refreshes last_activity on every later one. The convenience alias
// session:{project}:last always tracks the most recent write.
func EnsureSessionStarted(st *store.Store, project, sessionID, task string) (*models.Session, error) {
	var sess models.Session
	found, err := st.Peek(sessionKey(project, sessionID), &sess)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if !found {
		sess = models.Session{
			SessionID: sessionID,
			Project:   project,
			Task:      task,
			StartedAt: now,
		}
	}
	if task != "" && sess.Task == "" {
		sess.Task = task
	}
	sess.LastActivity = now

	if err := st.Put(sessionKey(project, sessionID), &sess); err != nil {
		return nil, err
	}
	if err := st.Put(sessionLastKey(project), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Checkpoint finalizes the session: completed=true, ended_at=now, written to
// both the canonical key and the last alias. The free-form state blob is
// preserved for the orchestrator's post-mortem inspection.
func Checkpoint(st *store.Store, project, sessionID string, state json.RawMessage) error {
	var sess models.Session
	found, err := st.Peek(sessionKey(project, sessionID), &sess)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if !found {
		sess = models.Session{
			SessionID: sessionID,
			Project:   project,
			StartedAt: now,
		}
	}
	sess.Completed = true
	sess.EndedAt = &now
	sess.LastActivity = now
	if len(state) > 0 {
		sess.State = state
	}

	if err := st.Put(sessionKey(project, sessionID), &sess); err != nil {
		return err
	}
	return st.Put(sessionLastKey(project), &sess)
}

// RestoreCheck detects an interrupted previous session. It returns the
// context string to inject, or "" when there is nothing to report.
//
// A previous session counts as interrupted when the last alias exists, is
// not completed, belongs to a different session, and started before the
// grace window. Younger entries are treated as the same session (rapid
// restart) and skipped. After reporting, the alias is reset so consecutive
// prompts do not re-inject.
func RestoreCheck(st *store.Store, project, currentSessionID string, graceWindow time.Duration) (string, error) {
	var sess models.Session
	found, err := st.Peek(sessionLastKey(project), &sess)
	if err != nil {
		return "", err
	}
	if !found || sess.Completed {
		return "", nil
	}
	if currentSessionID != "" && sess.SessionID == currentSessionID {
		return "", nil
	}
	if time.Since(sess.StartedAt) < graceWindow {
		return "", nil
	}

	task := sess.Task
	if task == "" {
		task = "unknown task"
	}
	msg := fmt.Sprintf(
		"[Interrupted session detected: %s] The previous session (%s) did not complete. "+
			"Consider reviewing its stored state before starting new work.",
		task, sess.SessionID,
	)

	// Reset the alias so the report fires exactly once.
	sess.Completed = true
	if err := st.Put(sessionLastKey(project), &sess); err != nil {
		return "", err
	}
	return msg, nil
}
