package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptcompany/claude-hooks-shared/internal/models"
	"github.com/gptcompany/claude-hooks-shared/internal/store"
)

func TestFileClaim_ConflictBlocks(t *testing.T) {
	st := store.New(t.TempDir())
	scratchA := t.TempDir()
	scratchB := t.TempDir()

	outcome, err := FileClaim(st, scratchA, "A", "/tmp/x.py")
	require.NoError(t, err)
	assert.False(t, outcome.Blocked)

	outcome, err = FileClaim(st, scratchB, "B", "/tmp/x.py")
	require.NoError(t, err)
	assert.True(t, outcome.Blocked)
	assert.Contains(t, outcome.Reason, "agent:A:editor")
}

func TestFileClaim_SameSessionIdempotent(t *testing.T) {
	st := store.New(t.TempDir())
	scratch := t.TempDir()

	outcome, err := FileClaim(st, scratch, "A", "/tmp/x.py")
	require.NoError(t, err)
	assert.False(t, outcome.Blocked)

	outcome, err = FileClaim(st, scratch, "A", "/tmp/x.py")
	require.NoError(t, err)
	assert.False(t, outcome.Blocked)
}

func TestFileClaim_RelativePathNormalized(t *testing.T) {
	st := store.New(t.TempDir())
	scratch := t.TempDir()

	_, err := FileClaim(st, scratch, "A", "rel/path.go")
	require.NoError(t, err)

	claims, err := st.ListClaims(store.ClaimFilter{Status: models.ClaimActive})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	// Absolute form in the issue id.
	assert.Contains(t, claims[0].IssueID, "file:/")
	assert.Contains(t, claims[0].IssueID, "rel/path.go")
}

func TestFileRelease_RemovesClaimAndScratch(t *testing.T) {
	st := store.New(t.TempDir())
	scratch := t.TempDir()

	_, err := FileClaim(st, scratch, "A", "/tmp/x.py")
	require.NoError(t, err)

	require.NoError(t, FileRelease(st, nil, scratch, "A", "/tmp/x.py"))

	claims, err := st.ListClaims(store.ClaimFilter{})
	require.NoError(t, err)
	assert.Empty(t, claims)

	// Second claim by another session now succeeds.
	outcome, err := FileClaim(st, t.TempDir(), "B", "/tmp/x.py")
	require.NoError(t, err)
	assert.False(t, outcome.Blocked)
}

func TestFileRelease_MissingClaimIsSilent(t *testing.T) {
	st := store.New(t.TempDir())
	scratch := t.TempDir()

	// Releasing a never-claimed file logs and succeeds.
	require.NoError(t, FileRelease(st, nil, scratch, "A", "/tmp/never.py"))
}

func TestStuckDetector_SweepsSessionClaims(t *testing.T) {
	st := store.New(t.TempDir())
	scratchA := t.TempDir()

	_, err := FileClaim(st, scratchA, "A", "/a")
	require.NoError(t, err)
	_, err = FileClaim(st, scratchA, "A", "/b")
	require.NoError(t, err)
	_, err = FileClaim(st, t.TempDir(), "B", "/c")
	require.NoError(t, err)

	swept, err := StuckDetector(st, "A")
	require.NoError(t, err)
	require.Len(t, swept, 2)

	stealable, err := st.ListClaims(store.ClaimFilter{Status: models.ClaimStealable})
	require.NoError(t, err)
	require.Len(t, stealable, 2)
	for _, c := range stealable {
		assert.Equal(t, models.StealReasonBlockedTimeout, c.StealReason)
	}

	// Session B's claim is untouched.
	active, err := st.ListClaims(store.ClaimFilter{Status: models.ClaimActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "agent:B:editor", active[0].Claimant)
}

func TestFileClaim_StealsAfterStuckDetector(t *testing.T) {
	st := store.New(t.TempDir())

	_, err := FileClaim(st, t.TempDir(), "A", "/a")
	require.NoError(t, err)
	_, err = StuckDetector(st, "A")
	require.NoError(t, err)

	outcome, err := FileClaim(st, t.TempDir(), "B", "/a")
	require.NoError(t, err)
	assert.False(t, outcome.Blocked)
	assert.True(t, outcome.Stolen)
}

func TestTaskClaim_NeverBlocksCaller(t *testing.T) {
	st := store.New(t.TempDir())

	res, err := TaskClaim(st, "A", "t1", "building")
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Conflict is reported but informational only.
	res, err = TaskClaim(st, "B", "t1", "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Existing)
	assert.Equal(t, "agent:A:worker", res.Existing.Claimant)
}

func TestReleaseSessionTaskClaims(t *testing.T) {
	st := store.New(t.TempDir())

	_, err := TaskClaim(st, "A", "t1", "")
	require.NoError(t, err)
	_, err = TaskClaim(st, "A", "t2", "")
	require.NoError(t, err)
	_, err = TaskClaim(st, "B", "t3", "")
	require.NoError(t, err)

	released, err := ReleaseSessionTaskClaims(st, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	remaining, err := st.ListClaims(store.ClaimFilter{Status: models.ClaimActive})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "task:t3", remaining[0].IssueID)
}

func TestReleaseAllFileClaims(t *testing.T) {
	st := store.New(t.TempDir())
	scratch := t.TempDir()

	_, err := FileClaim(st, scratch, "A", "/a")
	require.NoError(t, err)
	_, err = FileClaim(st, scratch, "A", "/b")
	require.NoError(t, err)

	released := ReleaseAllFileClaims(st, nil, scratch, "A")
	assert.Equal(t, 2, released)

	claims, err := st.ListClaims(store.ClaimFilter{})
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestIsWriteTool(t *testing.T) {
	for _, tool := range []string{"Write", "Edit", "MultiEdit"} {
		assert.True(t, IsWriteTool(tool), tool)
	}
	for _, tool := range []string{"Read", "Bash", "Glob", "Task", ""} {
		assert.False(t, IsWriteTool(tool), tool)
	}
}
