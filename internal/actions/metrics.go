package actions

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gptcompany/claude-hooks-shared/internal/models"
)

// Line-protocol emission is best-effort and never on the blocking path: the
// stop hook writes points after all real work, and every failure is
// swallowed by the caller after a log line. An external shipper tails the
// file into the TSDB.

// metricsFile is the append-only line-protocol sink under the scratch dir.
const metricsFile = "metrics.lp"

// metricsMaxBytes triggers truncation so an unattended sink cannot grow
// without bound.
const metricsMaxBytes = 10 << 20

// Point is one line-protocol record.
type Point struct {
	Table  string
	Tags   map[string]string
	Fields map[string]any
	TS     time.Time
}

// escapeTag escapes commas, spaces, and equals per line protocol.
func escapeTag(s string) string {
	r := strings.NewReplacer(",", `\,`, " ", `\ `, "=", `\=`)
	return r.Replace(s)
}

func formatField(v any) string {
	switch val := v.(type) {
	case int:
		return fmt.Sprintf("%di", val)
	case int64:
		return fmt.Sprintf("%di", val)
	case float64:
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%q", fmt.Sprint(val))
	}
}

// Format renders the point as one line-protocol line. Tags and fields are
// sorted for deterministic output.
func (p Point) Format() string {
	var b strings.Builder
	b.WriteString(p.Table)

	tagKeys := make([]string, 0, len(p.Tags))
	for k := range p.Tags {
		tagKeys = append(tagKeys, k)
	}
	sort.Strings(tagKeys)
	for _, k := range tagKeys {
		b.WriteString(",")
		b.WriteString(escapeTag(k))
		b.WriteString("=")
		b.WriteString(escapeTag(p.Tags[k]))
	}

	fieldKeys := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		fieldKeys = append(fieldKeys, k)
	}
	sort.Strings(fieldKeys)
	b.WriteString(" ")
	for i, k := range fieldKeys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(escapeTag(k))
		b.WriteString("=")
		b.WriteString(formatField(p.Fields[k]))
	}

	ts := p.TS
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(&b, " %d", ts.UnixNano())
	return b.String()
}

// EmitPoints appends points to the metrics sink, truncating it first when it
// has grown past the cap.
func EmitPoints(scratchDir string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	path := filepath.Join(scratchDir, metricsFile)

	if info, err := os.Stat(path); err == nil && info.Size() > metricsMaxBytes {
		_ = os.Truncate(path, 0)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // G304: fixed scratch file name
	if err != nil {
		return fmt.Errorf("open metrics sink: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, p := range points {
		b.WriteString(p.Format())
		b.WriteString("\n")
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("append metrics: %w", err)
	}
	return nil
}

// TrajectoryPoint builds the claude_trajectories record for a finalized
// trajectory.
func TrajectoryPoint(t *models.Trajectory) Point {
	return Point{
		Table: "claude_trajectories",
		Tags: map[string]string{
			"project": t.Project,
			"status":  string(t.Status),
		},
		Fields: map[string]any{
			"success_rate": t.SuccessRate,
			"steps":        len(t.Steps),
		},
	}
}

// ClaimSummaryPoint builds the claude_mcp_agents record for the claim store
// snapshot at session stop.
func ClaimSummaryPoint(project string, active, stealable, completed int) Point {
	return Point{
		Table: "claude_mcp_agents",
		Tags:  map[string]string{"project": project},
		Fields: map[string]any{
			"active_claims":    active,
			"stealable_claims": stealable,
			"completed_claims": completed,
		},
	}
}

// SessionPoint builds the claude_strategy_metrics record for a finalized
// session.
func SessionPoint(project, sessionID string, durationSec float64, patterns int) Point {
	return Point{
		Table: "claude_strategy_metrics",
		Tags: map[string]string{
			"project": project,
			"session": sessionID,
		},
		Fields: map[string]any{
			"duration_sec":       durationSec,
			"patterns_extracted": patterns,
		},
	}
}
