package actions

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gptcompany/claude-hooks-shared/internal/gateway"
	"github.com/gptcompany/claude-hooks-shared/internal/models"
	"github.com/gptcompany/claude-hooks-shared/internal/store"
)

// WriteClassTools are the tools gated by the file-claim coordinator.
var WriteClassTools = map[string]bool{
	"Write":     true,
	"Edit":      true,
	"MultiEdit": true,
}

// IsWriteTool reports whether toolName mutates files and needs a claim.
func IsWriteTool(toolName string) bool {
	return WriteClassTools[toolName]
}

// FileIssueID builds the claim id for a file path.
func FileIssueID(absPath string) string {
	return "file:" + absPath
}

// TaskIssueID builds the claim id for a task.
func TaskIssueID(taskID string) string {
	return models.NamespaceTask + taskID
}

// EditorClaimant builds the claimant identity for file claims.
func EditorClaimant(sessionID string) string {
	return models.NamespaceAgent + sessionID + ":editor"
}

// WorkerClaimant builds the claimant identity for task claims.
func WorkerClaimant(sessionID string) string {
	return models.NamespaceAgent + sessionID + ":worker"
}

// SessionClaimantPrefix matches every claimant role of one session.
func SessionClaimantPrefix(sessionID string) string {
	return models.NamespaceAgent + sessionID + ":"
}

// FileClaimOutcome is the result of the pre-tool claim gate.
type FileClaimOutcome struct {
	Blocked bool
	Reason  string
	Stolen  bool
}

// FileClaim attempts the exclusive file claim for a write-class tool call.
// On success the claim is recorded in the session scratch so the post hook
// can release it. On conflict the outcome is a block decision — the only
// deliberate user-visible failure in the system.
func FileClaim(st *store.Store, scratchDir, sessionID, filePath string) (FileClaimOutcome, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return FileClaimOutcome{}, fmt.Errorf("normalize %s: %w", filePath, err)
	}

	issueID := FileIssueID(absPath)
	claimant := EditorClaimant(sessionID)

	res, err := st.Claim(issueID, claimant, "editing "+absPath)
	if err != nil {
		return FileClaimOutcome{}, err
	}
	if !res.Success {
		holder := "unknown"
		if res.Existing != nil {
			holder = res.Existing.Claimant
		}
		return FileClaimOutcome{
			Blocked: true,
			Reason:  fmt.Sprintf("File claimed by %s", holder),
		}, nil
	}

	sc, err := loadFileClaims(scratchDir)
	if err != nil {
		return FileClaimOutcome{Stolen: res.Stolen}, err
	}
	sc.Claims[absPath] = heldFileClaim{
		IssueID:   issueID,
		Claimant:  claimant,
		FilePath:  absPath,
		ClaimedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := saveFileClaims(scratchDir, sc); err != nil {
		return FileClaimOutcome{Stolen: res.Stolen}, err
	}
	return FileClaimOutcome{Stolen: res.Stolen}, nil
}

// FileRelease releases the file claim after a write-class tool completes and
// broadcasts the release fire-and-forget so waiters can retry. Failures are
// logged and swallowed by callers.
func FileRelease(st *store.Store, gw *gateway.Gateway, scratchDir, sessionID, filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("normalize %s: %w", filePath, err)
	}

	sc, err := loadFileClaims(scratchDir)
	if err != nil {
		return err
	}

	issueID := FileIssueID(absPath)
	claimant := EditorClaimant(sessionID)
	if held, ok := sc.Claims[absPath]; ok {
		issueID = held.IssueID
		claimant = held.Claimant
	}

	res, err := st.Release(issueID, claimant)
	if err != nil {
		return err
	}
	if !res.Success {
		slog.Default().Warn("file release skipped", "issue_id", issueID, "reason", res.Reason)
	}

	delete(sc.Claims, absPath)
	if err := saveFileClaims(scratchDir, sc); err != nil {
		return err
	}

	if gw != nil {
		if err := gw.InvokeDetached(
			[]string{"hooks", "notify", "--message", "file released: " + absPath}, nil,
		); err != nil {
			slog.Default().Debug("release broadcast skipped", "error", err)
		}
	}
	return nil
}

// ReleaseAllFileClaims releases every file claim recorded in the session
// scratch. Used at session stop as a belt-and-suspenders sweep before the
// stuck detector handles whatever is left in the shared store.
func ReleaseAllFileClaims(st *store.Store, gw *gateway.Gateway, scratchDir, sessionID string) int {
	sc, err := loadFileClaims(scratchDir)
	if err != nil {
		slog.Default().Warn("load file claim scratch failed", "error", err)
		return 0
	}
	released := 0
	for path := range sc.Claims {
		if err := FileRelease(st, gw, scratchDir, sessionID, path); err != nil {
			slog.Default().Warn("file release failed", "path", path, "error", err)
			continue
		}
		released++
	}
	return released
}

// TaskClaim records an informational task claim. Never blocks: conflicts are
// reported in the result for dashboards but the caller always proceeds.
func TaskClaim(st *store.Store, sessionID, taskID, context string) (store.ClaimResult, error) {
	return st.Claim(TaskIssueID(taskID), WorkerClaimant(sessionID), context)
}

// TaskRelease releases one informational task claim.
func TaskRelease(st *store.Store, sessionID, taskID string) (store.ReleaseResult, error) {
	return st.Release(TaskIssueID(taskID), WorkerClaimant(sessionID))
}

// ReleaseSessionTaskClaims releases every task claim held by the session.
// Invoked at subagent stop.
func ReleaseSessionTaskClaims(st *store.Store, sessionID string) (int, error) {
	claimant := WorkerClaimant(sessionID)
	claims, err := st.ListClaims(store.ClaimFilter{
		Status:   models.ClaimActive,
		Claimant: claimant,
	})
	if err != nil {
		return 0, err
	}
	released := 0
	for _, c := range claims {
		res, err := st.Release(c.IssueID, claimant)
		if err != nil {
			slog.Default().Warn("task release failed", "issue_id", c.IssueID, "error", err)
			continue
		}
		if res.Success {
			released++
		}
	}
	return released, nil
}

// StuckDetector sweeps every active claim held by the session into the
// stealable set with reason blocked-timeout. A later session's claim attempt
// then takes ownership without the original owner's release.
func StuckDetector(st *store.Store, sessionID string) ([]models.Claim, error) {
	return st.MarkClaimantStealable(SessionClaimantPrefix(sessionID), models.StealReasonBlockedTimeout)
}
