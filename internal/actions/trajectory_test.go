package actions

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptcompany/claude-hooks-shared/internal/models"
	"github.com/gptcompany/claude-hooks-shared/internal/store"
)

func setupTrajectory(t *testing.T) (*store.Store, string) {
	t.Helper()
	return store.New(t.TempDir()), t.TempDir()
}

func TestTrajectory_FullLifecycle(t *testing.T) {
	st, scratch := setupTrajectory(t)

	traj, created, err := StartTrajectory(st, scratch, "demo", "sess-1", "demo")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, traj.ID)
	assert.Equal(t, models.TrajectoryInProgress, traj.Status)

	_, err = AppendStep(st, scratch, models.Step{Action: "Write", Success: true, Quality: 1.0})
	require.NoError(t, err)
	_, err = AppendStep(st, scratch, models.Step{Action: "Bash", Success: false, Quality: 0.2})
	require.NoError(t, err)

	done, err := EndTrajectory(st, scratch, models.TrajectoryCompleted)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, models.TrajectoryCompleted, done.Status)
	assert.InDelta(t, 0.5, done.SuccessRate, 1e-9)
	assert.Len(t, done.Steps, 2)

	// Stored under trajectory:{project}:{id}.
	var stored models.Trajectory
	found, err := st.Peek("trajectory:demo:"+done.ID, &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 0.5, stored.SuccessRate, 1e-9)

	// Index entry prepended.
	index, err := TrajectoryIndex(st, "demo")
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.Equal(t, done.ID, index[0].ID)
	assert.True(t, index[0].Success) // 0.5 >= 0.5
	assert.Equal(t, 2, index[0].Steps)

	// Scratch and active key cleared.
	again, err := EndTrajectory(st, scratch, models.TrajectoryCompleted)
	require.NoError(t, err)
	assert.Nil(t, again)

	var active models.Trajectory
	found, err = st.Peek("trajectory:demo:active", &active)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStartTrajectory_Idempotent(t *testing.T) {
	st, scratch := setupTrajectory(t)

	first, created, err := StartTrajectory(st, scratch, "demo", "sess-1", "task one")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := StartTrajectory(st, scratch, "demo", "sess-1", "task two")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "task one", second.Task)
}

func TestStartTrajectory_TruncatesTask(t *testing.T) {
	st, scratch := setupTrajectory(t)

	long := ""
	for i := 0; i < 30; i++ {
		long += "0123456789"
	}
	traj, _, err := StartTrajectory(st, scratch, "demo", "sess-1", long)
	require.NoError(t, err)
	assert.Len(t, traj.Task, 200)
}

func TestAppendStep_NoActiveTrajectory(t *testing.T) {
	st, scratch := setupTrajectory(t)

	traj, err := AppendStep(st, scratch, models.Step{Action: "Read", Success: true})
	require.NoError(t, err)
	assert.Nil(t, traj)
}

func TestEndTrajectory_AllFailedSteps(t *testing.T) {
	st, scratch := setupTrajectory(t)

	_, _, err := StartTrajectory(st, scratch, "demo", "sess-1", "t")
	require.NoError(t, err)
	_, err = AppendStep(st, scratch, models.Step{Action: "Bash", Success: false, Quality: 0.1})
	require.NoError(t, err)

	done, err := EndTrajectory(st, scratch, models.TrajectoryFailed)
	require.NoError(t, err)
	assert.Equal(t, models.TrajectoryFailed, done.Status)
	assert.Zero(t, done.SuccessRate)

	index, err := TrajectoryIndex(st, "demo")
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.False(t, index[0].Success)
}

func TestEndTrajectory_ZeroSteps(t *testing.T) {
	st, scratch := setupTrajectory(t)

	_, _, err := StartTrajectory(st, scratch, "demo", "sess-1", "t")
	require.NoError(t, err)

	done, err := EndTrajectory(st, scratch, models.TrajectoryCompleted)
	require.NoError(t, err)
	assert.Zero(t, done.SuccessRate)
}

func TestTrajectoryIndex_CapAndOrder(t *testing.T) {
	st, scratch := setupTrajectory(t)

	var lastID string
	for i := 0; i < trajectoryIndexCap+5; i++ {
		traj, _, err := StartTrajectory(st, scratch, "demo", "sess-1", fmt.Sprintf("task %d", i))
		require.NoError(t, err)
		lastID = traj.ID
		_, err = EndTrajectory(st, scratch, models.TrajectoryCompleted)
		require.NoError(t, err)
	}

	index, err := TrajectoryIndex(st, "demo")
	require.NoError(t, err)
	assert.Len(t, index, trajectoryIndexCap)
	// Newest first.
	assert.Equal(t, lastID, index[0].ID)
}
