package models

import (
	"encoding/json"
	"time"
)

// ID Strategy:
// - KV entries are addressed by namespaced string keys ("session:{project}:{id}").
// - Trajectories use prefixed IDs ("traj_{unix_nano}_{hex}") for collision-free
//   generation across concurrent sessions.
// - Claims are addressed by resource identity ("file:{abs_path}", "task:{id}")
//   so two agents contending for the same resource always collide on the same key.

// Namespace prefixes used across the shared store.
const (
	NamespaceSession    = "session:"
	NamespaceTrajectory = "trajectory:"
	NamespacePattern    = "pattern:"
	NamespaceAgent      = "agent:"
	NamespaceTask       = "task:"
)

// TrajectoryStatus represents the lifecycle state of a trajectory.
type TrajectoryStatus string

// Trajectory status constants.
const (
	TrajectoryInProgress TrajectoryStatus = "in_progress"
	TrajectoryCompleted  TrajectoryStatus = "completed"
	TrajectoryFailed     TrajectoryStatus = "failed"
)

// IsTerminal returns true once the trajectory has been finalized.
func (s TrajectoryStatus) IsTerminal() bool {
	return s == TrajectoryCompleted || s == TrajectoryFailed
}

// ClaimStatus represents the lifecycle state of a claim.
type ClaimStatus string

// Claim status constants.
const (
	ClaimActive    ClaimStatus = "active"
	ClaimStealable ClaimStatus = "stealable"
	ClaimCompleted ClaimStatus = "completed"
)

// StealReasonBlockedTimeout marks claims swept by the stuck detector at
// session stop. A later session may take these over without the original
// owner's release.
const StealReasonBlockedTimeout = "blocked-timeout"

// Entry is a generic KV record in the shared store.
type Entry struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	StoredAt    time.Time       `json:"stored_at"`
	AccessCount int             `json:"access_count"`
}

// Session is the persisted state of one agent runtime run.
type Session struct {
	SessionID    string          `json:"session_id"`
	Project      string          `json:"project"`
	Task         string          `json:"task,omitempty"`
	Completed    bool            `json:"completed"`
	StartedAt    time.Time       `json:"started_at"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
	LastActivity time.Time       `json:"last_activity"`
	State        json.RawMessage `json:"state,omitempty"`
}

// Step is one tool action inside a trajectory.
type Step struct {
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Quality   float64   `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
}

// Trajectory is the ordered record of tool actions for one task.
type Trajectory struct {
	ID          string           `json:"id"`
	Project     string           `json:"project"`
	SessionID   string           `json:"session_id"`
	Task        string           `json:"task"`
	Status      TrajectoryStatus `json:"status"`
	Steps       []Step           `json:"steps"`
	SuccessRate float64          `json:"success_rate"`
	StartedAt   time.Time        `json:"started_at"`
	EndedAt     *time.Time       `json:"ended_at,omitempty"`
}

// ComputeSuccessRate returns (#steps with success=true) / max(1, #steps).
// Recomputed at finalization, never stored stale.
func (t *Trajectory) ComputeSuccessRate() float64 {
	if len(t.Steps) == 0 {
		return 0
	}
	ok := 0
	for _, s := range t.Steps {
		if s.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(t.Steps))
}

// TrajectorySummary is the compact index entry kept under
// trajectory:{project}:index (newest first, capped).
type TrajectorySummary struct {
	ID      string    `json:"id"`
	Task    string    `json:"task"`
	Success bool      `json:"success"`
	Steps   int       `json:"steps"`
	TS      time.Time `json:"ts"`
}

// PatternType classifies a mined lesson.
type PatternType string

// Pattern type constants.
const (
	PatternHighRework  PatternType = "high_rework"
	PatternHighError   PatternType = "high_error"
	PatternQualityDrop PatternType = "quality_drop"
	PatternWorkflow    PatternType = "workflow"
)

// Pattern is a lesson mined from session statistics, retrievable by project
// and free-text query.
type Pattern struct {
	Fingerprint string            `json:"fingerprint"`
	Project     string            `json:"project"`
	Type        PatternType       `json:"type"`
	Text        string            `json:"text"`
	Confidence  float64           `json:"confidence"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Confidence bands for lesson injection.
const (
	ConfidenceHigh   = 0.8
	ConfidenceMedium = 0.5
)

// Band returns "high", "medium", or "low" for the pattern's confidence.
func (p *Pattern) Band() string {
	switch {
	case p.Confidence >= ConfidenceHigh:
		return "high"
	case p.Confidence >= ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// Claim is an exclusive lock over a resource (file path or task id), owned
// by one claimant until released or stolen.
type Claim struct {
	IssueID           string      `json:"issue_id"`
	Claimant          string      `json:"claimant"`
	Status            ClaimStatus `json:"status"`
	Context           string      `json:"context,omitempty"`
	Progress          int         `json:"progress,omitempty"`
	ClaimedAt         time.Time   `json:"claimed_at"`
	StealReason       string      `json:"steal_reason,omitempty"`
	MarkedStealableAt *time.Time  `json:"marked_stealable_at,omitempty"`
	StolenFrom        string      `json:"stolen_from,omitempty"`
}

// Age returns how long ago the claim was taken.
func (c *Claim) Age(now time.Time) time.Duration {
	return now.Sub(c.ClaimedAt)
}
