package actions

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gptcompany/claude-hooks-shared/internal/models"
	"github.com/gptcompany/claude-hooks-shared/internal/store"
)

// trajectoryIndexCap bounds the per-project index list (FIFO eviction).
const trajectoryIndexCap = 100

// taskDescriptionMax caps the stored task description.
const taskDescriptionMax = 200

// generatePrefixedID creates a globally unique ID in the format:
//
//	{prefix}_{unix_nano}_{12_hex_chars}
//
// The 12 hex characters are derived from 6 cryptographically random bytes,
// giving 48 bits of randomness to avoid collisions at the same nanosecond.
// If crypto/rand fails, the ID omits the random suffix and relies on the
// nanosecond timestamp alone (acceptable for hook-scale usage).
func generatePrefixedID(prefix string) string {
	timestamp := time.Now().UnixNano()

	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%s_%d", prefix, timestamp)
	}

	return fmt.Sprintf("%s_%d_%s", prefix, timestamp, hex.EncodeToString(b[:]))
}

func activeTrajectoryKey(project string) string {
	return models.NamespaceTrajectory + project + ":active"
}

func trajectoryKey(project, id string) string {
	return models.NamespaceTrajectory + project + ":" + id
}

func trajectoryIndexKey(project string) string {
	return models.NamespaceTrajectory + project + ":index"
}

// StartTrajectory begins recording for a task. Idempotent per session: when
// an active trajectory already exists in scratch it is returned unchanged
// and created is false.
func StartTrajectory(st *store.Store, scratchDir, project, sessionID, task string) (*models.Trajectory, bool, error) {
	if existing, err := loadActiveTrajectory(scratchDir); err != nil {
		return nil, false, err
	} else if existing != nil && existing.Status == models.TrajectoryInProgress {
		return existing, false, nil
	}

	if len(task) > taskDescriptionMax {
		task = task[:taskDescriptionMax]
	}

	t := &models.Trajectory{
		ID:        generatePrefixedID("traj"),
		Project:   project,
		SessionID: sessionID,
		Task:      task,
		Status:    models.TrajectoryInProgress,
		Steps:     []models.Step{},
		StartedAt: time.Now().UTC(),
	}
	if err := writeScratch(scratchDir, activeTrajectoryFile, t); err != nil {
		return nil, false, err
	}
	if err := st.Put(activeTrajectoryKey(project), t); err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// AppendStep records one tool action on the active trajectory. Without an
// active trajectory this is a no-op (the host may fire post-tool events
// outside any recorded task).
func AppendStep(st *store.Store, scratchDir string, step models.Step) (*models.Trajectory, error) {
	t, err := loadActiveTrajectory(scratchDir)
	if err != nil || t == nil {
		return nil, err
	}
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now().UTC()
	}
	if step.Quality < 0 {
		step.Quality = 0
	}
	if step.Quality > 1 {
		step.Quality = 1
	}

	t.Steps = append(t.Steps, step)
	if err := writeScratch(scratchDir, activeTrajectoryFile, t); err != nil {
		return nil, err
	}
	// Mirror to the shared store so post-mortem inspection sees partial state.
	if err := st.Put(activeTrajectoryKey(t.Project), t); err != nil {
		return t, err
	}
	return t, nil
}

// EndTrajectory finalizes the active trajectory with the given terminal
// status, stores it, prepends the index summary, and clears scratch.
// Returns nil without error when no trajectory is active.
func EndTrajectory(st *store.Store, scratchDir string, status models.TrajectoryStatus) (*models.Trajectory, error) {
	t, err := loadActiveTrajectory(scratchDir)
	if err != nil || t == nil {
		return nil, err
	}

	now := time.Now().UTC()
	t.Status = status
	t.EndedAt = &now
	t.SuccessRate = t.ComputeSuccessRate()

	if err := st.Put(trajectoryKey(t.Project, t.ID), t); err != nil {
		return nil, err
	}
	if err := prependIndex(st, t); err != nil {
		return nil, err
	}
	if err := st.Delete(activeTrajectoryKey(t.Project)); err != nil {
		return nil, err
	}
	clearScratch(scratchDir, activeTrajectoryFile)
	return t, nil
}

func prependIndex(st *store.Store, t *models.Trajectory) error {
	key := trajectoryIndexKey(t.Project)

	var index []models.TrajectorySummary
	if _, err := st.Peek(key, &index); err != nil {
		return err
	}

	entry := models.TrajectorySummary{
		ID:      t.ID,
		Task:    t.Task,
		Success: t.SuccessRate >= 0.5,
		Steps:   len(t.Steps),
		TS:      time.Now().UTC(),
	}
	index = append([]models.TrajectorySummary{entry}, index...)
	if len(index) > trajectoryIndexCap {
		index = index[:trajectoryIndexCap]
	}
	return st.Put(key, index)
}

// TrajectoryIndex returns the project's summary list, newest first.
func TrajectoryIndex(st *store.Store, project string) ([]models.TrajectorySummary, error) {
	var index []models.TrajectorySummary
	if _, err := st.Peek(trajectoryIndexKey(project), &index); err != nil {
		return nil, err
	}
	return index, nil
}
