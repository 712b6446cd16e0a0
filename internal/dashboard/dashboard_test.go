package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptcompany/claude-hooks-shared/internal/models"
	"github.com/gptcompany/claude-hooks-shared/internal/store"
)

func TestBuildSnapshot_Grouping(t *testing.T) {
	st := store.New(t.TempDir())

	_, err := st.Claim("file:/a", "agent:A:editor", "")
	require.NoError(t, err)
	_, err = st.Claim("file:/b", "agent:A:editor", "")
	require.NoError(t, err)
	require.NoError(t, st.MarkStealable("file:/b", models.StealReasonBlockedTimeout))
	_, err = st.Claim("task:t1", "agent:A:worker", "")
	require.NoError(t, err)
	require.NoError(t, st.Complete("task:t1", "agent:A:worker"))

	snap, err := BuildSnapshot(st)
	require.NoError(t, err)
	assert.Len(t, snap.Active, 1)
	assert.Len(t, snap.Stealable, 1)
	assert.Len(t, snap.Completed, 1)
	assert.Equal(t, "1 active, 1 stealable, 1 completed", snap.Summary())
}

func TestBuildSnapshot_EmptyStore(t *testing.T) {
	st := store.New(t.TempDir())

	snap, err := BuildSnapshot(st)
	require.NoError(t, err)
	assert.Equal(t, "0 active, 0 stealable, 0 completed", snap.Summary())
}

func TestRender_ContainsSections(t *testing.T) {
	st := store.New(t.TempDir())

	_, err := st.Claim("file:/a", "agent:A:editor", "")
	require.NoError(t, err)
	require.NoError(t, st.SetProgress("file:/a", "agent:A:editor", 50))
	_, err = st.Claim("file:/b", "agent:B:editor", "")
	require.NoError(t, err)
	require.NoError(t, st.MarkStealable("file:/b", models.StealReasonBlockedTimeout))

	snap, err := BuildSnapshot(st)
	require.NoError(t, err)
	out := snap.Render()

	assert.Contains(t, out, "ACTIVE")
	assert.Contains(t, out, "STEALABLE")
	assert.Contains(t, out, "file:/a")
	assert.Contains(t, out, "agent:A:editor")
	assert.Contains(t, out, models.StealReasonBlockedTimeout)
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "1 active, 1 stealable, 0 completed")
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "30s", formatAge(30*time.Second))
	assert.Equal(t, "5m", formatAge(5*time.Minute))
	assert.Equal(t, "2.5h", formatAge(150*time.Minute))
	assert.Equal(t, "0s", formatAge(-time.Second))
}

func TestProgressBar(t *testing.T) {
	assert.Empty(t, progressBar(0))
	assert.Contains(t, progressBar(50), "50%")
	assert.Contains(t, progressBar(200), "100%")
}
