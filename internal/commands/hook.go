package commands

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/gptcompany/claude-hooks-shared/internal/actions"
	"github.com/gptcompany/claude-hooks-shared/internal/app"
	"github.com/gptcompany/claude-hooks-shared/internal/events"
	"github.com/gptcompany/claude-hooks-shared/internal/gateway"
	"github.com/gptcompany/claude-hooks-shared/internal/models"
	"github.com/gptcompany/claude-hooks-shared/internal/output"
	"github.com/gptcompany/claude-hooks-shared/internal/store"
)

// maxHookStdinBytes caps stdin reads. Hook payloads are small JSON objects;
// 1 MB is generous headroom that prevents unbounded allocation.
const maxHookStdinBytes = 1 << 20

// NewHookCmd creates the hook parent command.
func NewHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Hook handlers and installers for Claude Code",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newHookInstallCmd())
	cmd.AddCommand(newHookUninstallCmd())

	// Hook handler subcommands — called by the hook system, not agents directly.
	// Hidden from help output to reduce command surface noise.
	for _, sub := range []*cobra.Command{
		newHookPreToolCmd(),
		newHookPostToolCmd(),
		newHookPromptCmd(),
		newHookSubagentStopCmd(),
		newHookStopCmd(),
		newHookSessionEndCmd(),
	} {
		sub.Hidden = true
		cmd.AddCommand(sub)
	}

	return cmd
}

// hookInput is the JSON Claude Code sends on stdin to hooks.
type hookInput struct {
	CWD           string          `json:"cwd"`
	SessionID     string          `json:"session_id"`
	HookEventName string          `json:"hook_event_name"`
	Prompt        string          `json:"prompt"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
	ToolResponse  json.RawMessage `json:"tool_response"`
	AgentID       string          `json:"agent_id"`
	TaskID        string          `json:"task_id"`
	Raw           map[string]any  `json:"-"`
}

// hookContext holds resolved common state shared by all hook handlers.
type hookContext struct {
	Input     hookInput
	Project   string
	SessionID string
	Scratch   string
	Store     *store.Store
	Gateway   *gateway.Gateway
	Tuning    app.Tuning
}

// resolveHookContext reads stdin, switches diagnostics to the hook log file,
// and resolves identity, store, and tuning. It cannot fail: every resolution
// problem degrades to a default plus a log line.
func resolveHookContext() (hookContext, context.Context, context.CancelFunc) {
	initHookLogging()

	input := readHookStdin()
	tuning := app.EffectiveTuning()

	project := app.ProjectNameFor(input.CWD)
	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = app.SessionID()
	}

	storeDir, err := app.StoreDir()
	if err != nil {
		slog.Default().Warn("store dir resolution failed, using temp fallback", "error", err)
		storeDir = filepath.Join(os.TempDir(), ".claude-flow")
	}

	hctx := hookContext{
		Input:     input,
		Project:   project,
		SessionID: sessionID,
		Scratch:   app.ScratchDir(),
		Store:     store.New(storeDir),
		Gateway:   gateway.New(),
		Tuning:    tuning,
	}

	ctx, cancel := context.WithTimeout(context.Background(), tuning.Deadline)
	return hctx, ctx, cancel
}

// initHookLogging redirects slog to the append-only hook log. stdout is the
// protocol and stderr noise confuses some host versions, so diagnostics go
// to a file. Falls back to stderr when the file cannot be opened.
func initHookLogging() {
	path := app.LogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err == nil { //nolint:gosec // G304: fixed log path
			slog.SetDefault(slog.New(slog.NewJSONHandler(f, nil)))
			return
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
}

func readHookStdin() hookInput {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, maxHookStdinBytes))
	if err != nil {
		return hookInput{}
	}
	var input hookInput
	if err := json.Unmarshal(data, &input); err != nil {
		slog.Default().Warn("hook stdin unmarshal failed", "error", err, "bytes", len(data))
	}
	// Intentional double-unmarshal: struct tags handle known fields while
	// the Raw map preserves unknown fields (quality, task descriptions).
	// Hook payloads are <1 KB so the cost is negligible.
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	input.Raw = raw
	return input
}

func truncateString(raw string, max int) (string, bool) {
	if max <= 0 {
		return raw, false
	}
	runes := []rune(raw)
	if len(runes) <= max {
		return raw, false
	}
	return string(runes[:max]), true
}

// toolFilePath extracts file_path from a tool_input payload.
func toolFilePath(toolInput json.RawMessage) string {
	if len(toolInput) == 0 {
		return ""
	}
	var in struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(toolInput, &in); err != nil {
		return ""
	}
	return in.FilePath
}

// toolTaskDescription extracts a task description for trajectory start:
// tool_input description/prompt fields first, then the tool name.
func toolTaskDescription(input hookInput) string {
	if len(input.ToolInput) > 0 {
		var in struct {
			Description string `json:"description"`
			Prompt      string `json:"prompt"`
		}
		if err := json.Unmarshal(input.ToolInput, &in); err == nil {
			if in.Description != "" {
				return in.Description
			}
			if in.Prompt != "" {
				return in.Prompt
			}
		}
	}
	return input.ToolName
}

// toolResponseIsError reports whether the host marked the tool response as
// failed. Success defaults to true when the field is absent.
func toolResponseIsError(toolResponse json.RawMessage) bool {
	if len(toolResponse) == 0 {
		return false
	}
	var resp struct {
		IsError bool `json:"is_error"`
	}
	if err := json.Unmarshal(toolResponse, &resp); err != nil {
		return false
	}
	return resp.IsError
}

// stepQuality extracts the host-supplied quality, defaulting to 1.0.
func stepQuality(raw map[string]any) float64 {
	if raw == nil {
		return 1.0
	}
	if v, ok := raw["quality"].(float64); ok && v >= 0 && v <= 1 {
		return v
	}
	return 1.0
}

// newHookPreToolCmd creates the PreToolUse handler: trajectory start plus
// the file-claim gate for write-class tools.
//
// The claim gate's decision:block is one of the two deliberate user-visible
// decisions in the system; everything else on this path fails open.
func newHookPreToolCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "pre-tool",
		Short:         "PreToolUse hook — trajectory start and file-claim gate",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx, _, cancel := resolveHookContext()
			defer cancel()

			if _, err := actions.EnsureSessionStarted(hctx.Store, hctx.Project, hctx.SessionID, ""); err != nil {
				slog.Default().Warn("session ensure failed", "error", err)
			}

			task, _ := truncateString(toolTaskDescription(hctx.Input), 200)
			if _, _, err := actions.StartTrajectory(hctx.Store, hctx.Scratch, hctx.Project, hctx.SessionID, task); err != nil {
				slog.Default().Warn("trajectory start failed", "error", err)
			}

			if !actions.IsWriteTool(hctx.Input.ToolName) {
				return output.EmitNoop()
			}
			filePath := toolFilePath(hctx.Input.ToolInput)
			if filePath == "" {
				return output.EmitNoop()
			}

			outcome, err := actions.FileClaim(hctx.Store, hctx.Scratch, hctx.SessionID, filePath)
			if err != nil {
				// Fail open: a broken claim store must not stop the edit.
				slog.Default().Error("file claim failed", "error", err, "file", filePath)
				return output.EmitNoop()
			}
			if outcome.Blocked {
				return output.EmitBlock(outcome.Reason)
			}
			return output.EmitNoop()
		},
	}
}

// newHookPostToolCmd creates the PostToolUse handler: trajectory step,
// analytics event, and file-claim release.
func newHookPostToolCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "post-tool",
		Short:         "PostToolUse hook — trajectory step and file-claim release",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx, _, cancel := resolveHookContext()
			defer cancel()

			if hctx.Input.ToolName == "" {
				return output.EmitNoop()
			}

			isError := toolResponseIsError(hctx.Input.ToolResponse)
			step := models.Step{
				Action:  hctx.Input.ToolName,
				Success: !isError,
				Quality: stepQuality(hctx.Input.Raw),
			}
			if _, err := actions.AppendStep(hctx.Store, hctx.Scratch, step); err != nil {
				slog.Default().Warn("trajectory step failed", "error", err)
			}

			recordToolEvent(hctx, isError, step.Quality)

			if actions.IsWriteTool(hctx.Input.ToolName) {
				if filePath := toolFilePath(hctx.Input.ToolInput); filePath != "" {
					if err := actions.FileRelease(hctx.Store, hctx.Gateway, hctx.Scratch, hctx.SessionID, filePath); err != nil {
						slog.Default().Warn("file release failed", "error", err, "file", filePath)
					}
				}
			}

			return output.EmitNoop()
		},
	}
}

// recordToolEvent appends the analytics row that pattern extraction mines at
// session stop. Best-effort: any failure is a log line.
func recordToolEvent(hctx hookContext, isError bool, quality float64) {
	db, err := events.InitDB()
	if err != nil {
		slog.Default().Warn("analysis db open failed", "error", err)
		return
	}
	defer func() { _ = events.CloseDB(db) }()

	if err := events.EnsureSession(db, hctx.SessionID, hctx.Project); err != nil {
		slog.Default().Warn("analysis session ensure failed", "error", err)
	}
	if _, err := events.AppendToolEvent(db, events.ToolEvent{
		SessionID: hctx.SessionID,
		Project:   hctx.Project,
		ToolName:  hctx.Input.ToolName,
		FilePath:  toolFilePath(hctx.Input.ToolInput),
		IsError:   isError,
		Quality:   quality,
	}); err != nil {
		slog.Default().Warn("tool event append failed", "error", err)
	}
}

// newHookPromptCmd creates the UserPromptSubmit handler: interrupted-session
// detection plus lesson injection.
func newHookPromptCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "prompt",
		Short:         "UserPromptSubmit hook — restore check and lesson injection",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx, ctx, cancel := resolveHookContext()
			defer cancel()

			restoreMsg, err := actions.RestoreCheck(hctx.Store, hctx.Project, hctx.SessionID, hctx.Tuning.GraceWindow)
			if err != nil {
				slog.Default().Warn("restore check failed", "error", err)
				restoreMsg = ""
			}

			if _, err := actions.EnsureSessionStarted(hctx.Store, hctx.Project, hctx.SessionID, firstLine(hctx.Input.Prompt)); err != nil {
				slog.Default().Warn("session ensure failed", "error", err)
			}

			lessons := actions.InjectLessons(ctx, hctx.Store, hctx.Gateway, hctx.Project, hctx.Input.Prompt, hctx.Tuning)

			switch {
			case restoreMsg != "" && lessons != "":
				return output.EmitContext(restoreMsg + "\n\n" + lessons)
			case restoreMsg != "":
				return output.EmitContext(restoreMsg)
			case lessons != "":
				return output.EmitContext(lessons)
			default:
				return output.EmitNoop()
			}
		},
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	out, _ := truncateString(s, 200)
	return out
}

// newHookSubagentStopCmd creates the SubagentStop handler: finalize the
// active trajectory and release the subagent's task claims. Kept separate
// from Stop — the host fires them at different boundaries.
func newHookSubagentStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "subagent-stop",
		Short:         "SubagentStop hook — trajectory end and task-claim release",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx, _, cancel := resolveHookContext()
			defer cancel()

			t, err := actions.EndTrajectory(hctx.Store, hctx.Scratch, models.TrajectoryCompleted)
			if err != nil {
				slog.Default().Warn("trajectory end failed", "error", err)
			} else if t != nil {
				emitMetrics(hctx, []actions.Point{actions.TrajectoryPoint(t)})
			}

			if _, err := actions.ReleaseSessionTaskClaims(hctx.Store, hctx.SessionID); err != nil {
				slog.Default().Warn("task claim release failed", "error", err)
			}

			return output.EmitNoop()
		},
	}
}

// newHookStopCmd creates the Stop handler: trajectory end, session
// checkpoint, stuck-claim sweep, pattern extraction, and metrics.
func newHookStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "stop",
		Short:         "Stop hook — checkpoint, stuck detector, pattern extraction",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx, _, cancel := resolveHookContext()
			defer cancel()

			var points []actions.Point

			t, err := actions.EndTrajectory(hctx.Store, hctx.Scratch, models.TrajectoryCompleted)
			if err != nil {
				slog.Default().Warn("trajectory end failed", "error", err)
			} else if t != nil {
				points = append(points, actions.TrajectoryPoint(t))
			}

			actions.ReleaseAllFileClaims(hctx.Store, hctx.Gateway, hctx.Scratch, hctx.SessionID)

			if swept, err := actions.StuckDetector(hctx.Store, hctx.SessionID); err != nil {
				slog.Default().Warn("stuck detector failed", "error", err)
			} else if len(swept) > 0 {
				slog.Default().Info("claims marked stealable", "count", len(swept))
			}

			patternCount := extractSessionPatterns(hctx)

			var state json.RawMessage
			if raw, err := json.Marshal(hctx.Input.Raw); err == nil {
				state = raw
			}
			if err := actions.Checkpoint(hctx.Store, hctx.Project, hctx.SessionID, state); err != nil {
				slog.Default().Error("session checkpoint failed", "error", err)
			}

			points = append(points, claimSummary(hctx))
			points = append(points, actions.SessionPoint(hctx.Project, hctx.SessionID, sessionDuration(hctx), patternCount))
			emitMetrics(hctx, points)

			app.ClearSessionState()
			return output.EmitNoop()
		},
	}
}

// extractSessionPatterns mines and stores lessons from this session's tool
// usage. Returns the number of patterns produced.
func extractSessionPatterns(hctx hookContext) int {
	db, err := events.InitDB()
	if err != nil {
		slog.Default().Warn("analysis db open failed", "error", err)
		return 0
	}
	defer func() { _ = events.CloseDB(db) }()

	stats, err := events.LoadSessionStats(db, hctx.SessionID)
	if err != nil {
		slog.Default().Warn("session stats load failed", "error", err)
		return 0
	}
	patterns := actions.ExtractPatterns(stats, hctx.Project, hctx.Tuning)
	if len(patterns) == 0 {
		return 0
	}
	if err := actions.StorePatterns(hctx.Store, hctx.Gateway, patterns); err != nil {
		slog.Default().Warn("pattern store failed", "error", err)
		return 0
	}
	if err := events.EndSession(db, hctx.SessionID); err != nil {
		slog.Default().Warn("analysis session end failed", "error", err)
	}
	return len(patterns)
}

func claimSummary(hctx hookContext) actions.Point {
	var active, stealable, completed int
	if claims, err := hctx.Store.ListClaims(store.ClaimFilter{}); err == nil {
		for _, c := range claims {
			switch c.Status {
			case models.ClaimActive:
				active++
			case models.ClaimStealable:
				stealable++
			case models.ClaimCompleted:
				completed++
			}
		}
	}
	return actions.ClaimSummaryPoint(hctx.Project, active, stealable, completed)
}

func sessionDuration(hctx hookContext) float64 {
	var sess models.Session
	if found, err := hctx.Store.Peek(
		models.NamespaceSession+hctx.Project+":"+hctx.SessionID, &sess,
	); err == nil && found && !sess.StartedAt.IsZero() {
		return time.Since(sess.StartedAt).Seconds()
	}
	return 0
}

func emitMetrics(hctx hookContext, points []actions.Point) {
	if !hctx.Tuning.MetricsEnabled {
		return
	}
	if err := actions.EmitPoints(hctx.Scratch, points); err != nil {
		slog.Default().Debug("metrics emit skipped", "error", err)
	}
}

// newHookSessionEndCmd creates the SessionEnd handler: flush anything still
// open (trajectory as failed), checkpoint, and prune old analytics.
func newHookSessionEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "session-end",
		Short:         "SessionEnd hook — best-effort checkpoint and maintenance",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hctx, _, cancel := resolveHookContext()
			defer cancel()

			// A trajectory still open here means Stop never ran; the partial
			// record is flushed as failed with whatever steps it has.
			if t, err := actions.EndTrajectory(hctx.Store, hctx.Scratch, models.TrajectoryFailed); err != nil {
				slog.Default().Warn("trajectory flush failed", "error", err)
			} else if t != nil {
				emitMetrics(hctx, []actions.Point{actions.TrajectoryPoint(t)})
			}

			if err := actions.Checkpoint(hctx.Store, hctx.Project, hctx.SessionID, nil); err != nil {
				slog.Default().Error("session checkpoint failed", "error", err)
			}

			if db, err := events.InitDB(); err == nil {
				if err := events.EndSession(db, hctx.SessionID); err != nil {
					slog.Default().Warn("analysis session end failed", "error", err)
				}
				if deleted, err := events.PruneOldEvents(db, 30, 500); err != nil {
					slog.Default().Warn("event prune failed", "error", err)
				} else if deleted > 0 {
					slog.Default().Info("old tool events pruned", "deleted", deleted)
				}
				_ = events.CloseDB(db)
			}

			app.ClearSessionState()
			return output.EmitNoop()
		},
	}
}
