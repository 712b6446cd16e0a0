package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gptcompany/claude-hooks-shared/internal/gateway"
	"github.com/gptcompany/claude-hooks-shared/internal/models"
	"github.com/gptcompany/claude-hooks-shared/internal/store"
)

// Topologies accepted by swarm init.
var swarmTopologies = map[string]bool{
	"hierarchical-mesh": true,
	"mesh":              true,
	"star":              true,
	"ring":              true,
}

// SwarmResult is the uniform JSON-out shape of every swarm operation.
type SwarmResult struct {
	Success bool            `json:"success"`
	Reason  string          `json:"reason,omitempty"`
	HiveID  string          `json:"hive_id,omitempty"`
	TaskID  string          `json:"task_id,omitempty"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}

// hiveRecord is persisted at agent:{project}:hive so later operations find
// the hive created by an earlier session.
type hiveRecord struct {
	HiveID    string    `json:"hive_id"`
	Topology  string    `json:"topology"`
	CreatedAt time.Time `json:"created_at"`
}

func hiveKey(project string) string {
	return models.NamespaceAgent + project + ":hive"
}

// SwarmInit creates a hive with the given topology and records its id.
func SwarmInit(ctx context.Context, st *store.Store, gw *gateway.Gateway, project, topology string) SwarmResult {
	if topology == "" {
		topology = "hierarchical-mesh"
	}
	if !swarmTopologies[topology] {
		return SwarmResult{Success: false, Reason: fmt.Sprintf("unknown topology %q", topology)}
	}

	res := gw.Invoke(ctx, []string{"hive-mind", "init", "--topology", topology}, nil, 0)
	if res.Failure != gateway.FailureNone && !res.Success {
		return SwarmResult{Success: false, Reason: string(res.Failure), Detail: res.Parsed}
	}

	hiveID := parsedField(res.Parsed, "hive_id")
	if hiveID == "" {
		// The orchestrator created the hive but did not name it; track it
		// locally so status/shutdown still have a handle.
		hiveID = uuid.NewString()
	}

	rec := hiveRecord{HiveID: hiveID, Topology: topology, CreatedAt: time.Now().UTC()}
	if err := st.Put(hiveKey(project), rec); err != nil {
		return SwarmResult{Success: false, Reason: "io"}
	}
	return SwarmResult{Success: true, HiveID: hiveID, Detail: res.Parsed}
}

// SwarmSpawn spawns count workers in the current hive.
func SwarmSpawn(ctx context.Context, gw *gateway.Gateway, count int) SwarmResult {
	if count <= 0 {
		count = 1
	}
	res := gw.Invoke(ctx, []string{"hive-mind", "spawn", "--count", strconv.Itoa(count)}, nil, 0)
	if !res.Success {
		return SwarmResult{Success: false, Reason: string(res.Failure), Detail: res.Parsed}
	}
	return SwarmResult{Success: true, Detail: res.Parsed}
}

// SwarmSubmit submits a task description to the hive. When the gateway's
// companion server is not running this returns reason "not_supported" — a
// known limitation callers must treat as non-fatal, not a bug.
func SwarmSubmit(ctx context.Context, gw *gateway.Gateway, description string) SwarmResult {
	if strings.TrimSpace(description) == "" {
		return SwarmResult{Success: false, Reason: "empty task description"}
	}
	res := gw.Invoke(ctx, []string{"task", "submit", "--description", description}, nil, 0)
	if !res.Success {
		if submitUnsupported(res) {
			return SwarmResult{Success: false, Reason: "not_supported"}
		}
		return SwarmResult{Success: false, Reason: string(res.Failure), Detail: res.Parsed}
	}
	return SwarmResult{Success: true, TaskID: parsedField(res.Parsed, "task_id"), Detail: res.Parsed}
}

// submitUnsupported recognizes the companion-server-absent failure shape.
func submitUnsupported(res gateway.Result) bool {
	if res.Failure == gateway.FailureNotInstalled {
		return true
	}
	if res.Failure != gateway.FailureNonzeroExit {
		return false
	}
	combined := strings.ToLower(res.Stderr + " " + res.Stdout)
	return strings.Contains(combined, "server") || strings.Contains(combined, "mcp") ||
		strings.Contains(combined, "not running")
}

// SwarmStatus reports topology, worker count, task counts, and health.
// Best-effort: a failed gateway call still reports the locally known hive.
func SwarmStatus(ctx context.Context, st *store.Store, gw *gateway.Gateway, project string, verbose bool) SwarmResult {
	args := []string{"hive-mind", "status"}
	if verbose {
		args = append(args, "--verbose")
	}
	res := gw.Invoke(ctx, args, nil, 0)

	var rec hiveRecord
	_, _ = st.Peek(hiveKey(project), &rec)

	if !res.Success {
		return SwarmResult{Success: false, Reason: string(res.Failure), HiveID: rec.HiveID}
	}
	return SwarmResult{Success: true, HiveID: rec.HiveID, Detail: res.Parsed}
}

// SwarmConsensus proposes a vote on topic among the given options.
func SwarmConsensus(ctx context.Context, gw *gateway.Gateway, topic string, options []string) SwarmResult {
	args := []string{"hive-mind", "consensus", "--topic", topic}
	for _, opt := range options {
		args = append(args, "--option", opt)
	}
	res := gw.Invoke(ctx, args, nil, 0)
	if !res.Success {
		return SwarmResult{Success: false, Reason: string(res.Failure), Detail: res.Parsed}
	}
	return SwarmResult{Success: true, Detail: res.Parsed}
}

// SwarmBroadcast publishes a message to all workers.
func SwarmBroadcast(ctx context.Context, gw *gateway.Gateway, message string) SwarmResult {
	res := gw.Invoke(ctx, []string{"hooks", "notify", "--message", message}, nil, 0)
	if !res.Success {
		return SwarmResult{Success: false, Reason: string(res.Failure)}
	}
	return SwarmResult{Success: true}
}

// SwarmShutdown terminates the hive. Always attempted; the local hive record
// is cleared regardless of the gateway outcome so a dead orchestrator does
// not wedge the lifecycle.
func SwarmShutdown(ctx context.Context, st *store.Store, gw *gateway.Gateway, project string, graceful bool) SwarmResult {
	args := []string{"hive-mind", "shutdown"}
	if graceful {
		args = append(args, "--graceful")
	}
	res := gw.Invoke(ctx, args, nil, 0)

	_ = st.Delete(hiveKey(project))

	if !res.Success {
		return SwarmResult{Success: false, Reason: string(res.Failure), Detail: res.Parsed}
	}
	return SwarmResult{Success: true, Detail: res.Parsed}
}

// parsedField extracts a top-level string field from gateway JSON output.
func parsedField(raw json.RawMessage, field string) string {
	if raw == nil {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	if v, ok := m[field].(string); ok {
		return v
	}
	return ""
}
