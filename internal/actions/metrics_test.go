package actions

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptcompany/claude-hooks-shared/internal/models"
)

func TestPointFormat(t *testing.T) {
	p := Point{
		Table: "claude_trajectories",
		Tags:  map[string]string{"project": "demo", "status": "completed"},
		Fields: map[string]any{
			"success_rate": 0.5,
			"steps":        2,
		},
		TS: time.Unix(0, 1700000000000000000),
	}

	line := p.Format()
	assert.Equal(t,
		"claude_trajectories,project=demo,status=completed steps=2i,success_rate=0.5 1700000000000000000",
		line)
}

func TestPointFormat_TagEscaping(t *testing.T) {
	p := Point{
		Table:  "t",
		Tags:   map[string]string{"project": "my project,v=2"},
		Fields: map[string]any{"n": 1},
		TS:     time.Unix(0, 1),
	}

	line := p.Format()
	assert.Contains(t, line, `project=my\ project\,v\=2`)
}

func TestPointFormat_FieldTypes(t *testing.T) {
	p := Point{
		Table: "t",
		Fields: map[string]any{
			"i": int64(7),
			"f": 1.25,
			"b": true,
			"s": "hello world",
		},
		TS: time.Unix(0, 1),
	}

	line := p.Format()
	assert.Contains(t, line, "i=7i")
	assert.Contains(t, line, "f=1.25")
	assert.Contains(t, line, "b=true")
	assert.Contains(t, line, `s="hello world"`)
}

func TestEmitPoints_Appends(t *testing.T) {
	scratch := t.TempDir()

	require.NoError(t, EmitPoints(scratch, []Point{
		{Table: "t1", Fields: map[string]any{"a": 1}, TS: time.Unix(0, 1)},
	}))
	require.NoError(t, EmitPoints(scratch, []Point{
		{Table: "t2", Fields: map[string]any{"b": 2}, TS: time.Unix(0, 2)},
	}))

	data, err := os.ReadFile(filepath.Join(scratch, metricsFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "t1 "))
	assert.True(t, strings.HasPrefix(lines[1], "t2 "))
}

func TestEmitPoints_NoPoints(t *testing.T) {
	scratch := t.TempDir()
	require.NoError(t, EmitPoints(scratch, nil))

	_, err := os.Stat(filepath.Join(scratch, metricsFile))
	assert.True(t, os.IsNotExist(err))
}

func TestTrajectoryPoint(t *testing.T) {
	traj := &models.Trajectory{
		Project:     "demo",
		Status:      models.TrajectoryCompleted,
		SuccessRate: 0.5,
		Steps:       []models.Step{{}, {}},
	}

	p := TrajectoryPoint(traj)
	assert.Equal(t, "claude_trajectories", p.Table)
	assert.Equal(t, "demo", p.Tags["project"])
	assert.Equal(t, 0.5, p.Fields["success_rate"])
	assert.Equal(t, 2, p.Fields["steps"])
}

func TestClaimSummaryPoint(t *testing.T) {
	p := ClaimSummaryPoint("demo", 2, 1, 3)
	assert.Equal(t, "claude_mcp_agents", p.Table)
	assert.Equal(t, 2, p.Fields["active_claims"])
	assert.Equal(t, 1, p.Fields["stealable_claims"])
	assert.Equal(t, 3, p.Fields["completed_claims"])
}
