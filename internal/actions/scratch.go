// Package actions implements the business logic behind every hook event:
// session checkpoint/restore, trajectory recording, pattern extraction and
// lesson injection, the claim coordinator, the swarm lifecycle, and the
// metrics emitter. Commands stay thin; this package owns the semantics.
package actions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gptcompany/claude-hooks-shared/internal/models"
)

// Per-session scratch files. Scratch is the source of truth while a session
// runs and is flushed to the shared store on defined boundaries (post-tool,
// stop). Scratch belonging to another session is never read.
const (
	activeTrajectoryFile = "active_trajectory.json"
	activeFileClaimsFile = "active_file_claims.json"
)

func readScratch(scratchDir, name string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(scratchDir, name)) //nolint:gosec // G304: fixed scratch file names
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read scratch %s: %w", name, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse scratch %s: %w", name, err)
	}
	return true, nil
}

func writeScratch(scratchDir, name string, v any) error {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal scratch %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(scratchDir, name), data, 0o600)
}

func clearScratch(scratchDir, name string) {
	_ = os.Remove(filepath.Join(scratchDir, name))
}

// loadActiveTrajectory returns the session's active trajectory, or nil.
func loadActiveTrajectory(scratchDir string) (*models.Trajectory, error) {
	var t models.Trajectory
	found, err := readScratch(scratchDir, activeTrajectoryFile, &t)
	if err != nil || !found {
		return nil, err
	}
	if t.ID == "" {
		return nil, nil
	}
	return &t, nil
}

// heldFileClaim records one file claim in the per-session scratch so the
// post hook can release it even if the host drops file_path from the event.
type heldFileClaim struct {
	IssueID   string `json:"issue_id"`
	Claimant  string `json:"claimant"`
	FilePath  string `json:"file_path"`
	ClaimedAt string `json:"claimed_at"`
}

type fileClaimsScratch struct {
	Claims map[string]heldFileClaim `json:"claims"` // keyed by abs file path
}

func loadFileClaims(scratchDir string) (fileClaimsScratch, error) {
	var sc fileClaimsScratch
	if _, err := readScratch(scratchDir, activeFileClaimsFile, &sc); err != nil {
		return sc, err
	}
	if sc.Claims == nil {
		sc.Claims = map[string]heldFileClaim{}
	}
	return sc, nil
}

func saveFileClaims(scratchDir string, sc fileClaimsScratch) error {
	return writeScratch(scratchDir, activeFileClaimsFile, sc)
}
