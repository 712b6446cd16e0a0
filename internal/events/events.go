package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ToolEvent is one recorded tool invocation.
type ToolEvent struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Project   string    `json:"project"`
	ToolName  string    `json:"tool_name"`
	FilePath  string    `json:"file_path,omitempty"`
	IsError   bool      `json:"is_error"`
	Quality   float64   `json:"quality"`
	CreatedAt time.Time `json:"created_at"`
}

// EnsureSession inserts the session row if it does not exist yet.
func EnsureSession(db *sql.DB, sessionID, project string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	return RetryWithBackoff(func() error {
		_, err := db.ExecContext(context.Background(), `
			INSERT INTO sessions (session_id, project)
			VALUES (?, ?)
			ON CONFLICT(session_id) DO NOTHING
		`, sessionID, project)
		if err != nil {
			return fmt.Errorf("failed to ensure session: %w", err)
		}
		return nil
	})
}

// EndSession stamps ended_at on the session row.
func EndSession(db *sql.DB, sessionID string) error {
	return RetryWithBackoff(func() error {
		_, err := db.ExecContext(context.Background(), `
			UPDATE sessions SET ended_at = CURRENT_TIMESTAMP
			WHERE session_id = ? AND ended_at IS NULL
		`, sessionID)
		if err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}
		return nil
	})
}

// AppendToolEvent records one tool invocation. Best-effort callers swallow
// the returned error after logging it.
func AppendToolEvent(db *sql.DB, ev ToolEvent) (int64, error) {
	if ev.SessionID == "" {
		return 0, fmt.Errorf("session id is required")
	}
	if ev.ToolName == "" {
		return 0, fmt.Errorf("tool name is required")
	}
	if ev.Quality < 0 {
		ev.Quality = 0
	}
	if ev.Quality > 1 {
		ev.Quality = 1
	}

	var id int64
	err := RetryWithBackoff(func() error {
		res, err := db.ExecContext(context.Background(), `
			INSERT INTO tool_events (session_id, project, tool_name, file_path, is_error, quality)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ev.SessionID, ev.Project, ev.ToolName, ev.FilePath, boolToInt(ev.IsError), ev.Quality)
		if err != nil {
			return fmt.Errorf("failed to append tool event: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// SessionStats aggregates one session's tool usage for pattern extraction.
type SessionStats struct {
	SessionID     string
	TotalEvents   int
	ErrorCount    int
	FileEdits     map[string]int // write-class tool invocations per file
	QualitySeries []float64      // per-event quality, in event order
}

// ErrorRate returns ErrorCount / max(1, TotalEvents).
func (s *SessionStats) ErrorRate() float64 {
	if s.TotalEvents == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.TotalEvents)
}

// writeClassTools are the tools whose per-file counts feed the high_rework
// detector. Matches the claim gate's write-class set.
var writeClassTools = map[string]bool{
	"Write":     true,
	"Edit":      true,
	"MultiEdit": true,
}

// LoadSessionStats reads the session's events and aggregates them.
func LoadSessionStats(db *sql.DB, sessionID string) (*SessionStats, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT tool_name, file_path, is_error, quality
		FROM tool_events
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	stats := &SessionStats{
		SessionID: sessionID,
		FileEdits: map[string]int{},
	}
	for rows.Next() {
		var (
			toolName string
			filePath string
			isError  int
			quality  float64
		)
		if err := rows.Scan(&toolName, &filePath, &isError, &quality); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		stats.TotalEvents++
		if isError != 0 {
			stats.ErrorCount++
		}
		if filePath != "" && writeClassTools[toolName] {
			stats.FileEdits[filePath]++
		}
		stats.QualitySeries = append(stats.QualitySeries, quality)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// PruneOldEvents deletes events older than retentionDays, at most batch rows
// per call. Returns the number deleted.
func PruneOldEvents(db *sql.DB, retentionDays, batch int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if batch <= 0 {
		batch = 500
	}

	var deleted int64
	err := RetryWithBackoff(func() error {
		res, err := db.ExecContext(context.Background(), `
			DELETE FROM tool_events
			WHERE id IN (
				SELECT id FROM tool_events
				WHERE created_at < datetime(CURRENT_TIMESTAMP, '-' || ? || ' days')
				LIMIT ?
			)
		`, retentionDays, batch)
		if err != nil {
			return fmt.Errorf("failed to prune events: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
