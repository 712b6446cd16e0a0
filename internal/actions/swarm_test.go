package actions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptcompany/claude-hooks-shared/internal/gateway"
	"github.com/gptcompany/claude-hooks-shared/internal/store"
)

func stubOrchestrator(t *testing.T, script string) *gateway.Gateway {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude-flow")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return gateway.NewWithBin(path)
}

func TestSwarmLifecycle_WithStub(t *testing.T) {
	st := store.New(t.TempDir())
	gw := stubOrchestrator(t, `echo '{"hive_id":"hive-42","workers":0,"health":"ok"}'`)
	ctx := context.Background()

	res := SwarmInit(ctx, st, gw, "demo", "hierarchical-mesh")
	require.True(t, res.Success)
	assert.Equal(t, "hive-42", res.HiveID)

	res = SwarmStatus(ctx, st, gw, "demo", false)
	require.True(t, res.Success)
	assert.Equal(t, "hive-42", res.HiveID)

	res = SwarmShutdown(ctx, st, gw, "demo", true)
	require.True(t, res.Success)

	// The local hive record is cleared after shutdown.
	res = SwarmStatus(ctx, st, gw, "demo", false)
	require.True(t, res.Success)
	assert.Empty(t, res.HiveID)
}

func TestSwarmInit_UnknownTopology(t *testing.T) {
	st := store.New(t.TempDir())
	gw := stubOrchestrator(t, `echo '{}'`)

	res := SwarmInit(context.Background(), st, gw, "demo", "pentagram")
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "unknown topology")
}

func TestSwarmInit_HiveIDFallback(t *testing.T) {
	st := store.New(t.TempDir())
	gw := stubOrchestrator(t, `echo '{}'`)

	res := SwarmInit(context.Background(), st, gw, "demo", "mesh")
	require.True(t, res.Success)
	// No hive_id from the orchestrator: a local one is generated.
	assert.NotEmpty(t, res.HiveID)
}

func TestSwarmSubmit_NotSupportedWithoutServer(t *testing.T) {
	gw := stubOrchestrator(t, `echo "MCP server not running" >&2; exit 1`)

	res := SwarmSubmit(context.Background(), gw, "index the repo")
	assert.False(t, res.Success)
	assert.Equal(t, "not_supported", res.Reason)
}

func TestSwarmSubmit_NotInstalled(t *testing.T) {
	gw := gateway.NewWithBin(filepath.Join(t.TempDir(), "missing"))

	res := SwarmSubmit(context.Background(), gw, "index the repo")
	assert.False(t, res.Success)
	assert.Equal(t, "not_supported", res.Reason)
}

func TestSwarmSubmit_Success(t *testing.T) {
	gw := stubOrchestrator(t, `echo '{"task_id":"task-7"}'`)

	res := SwarmSubmit(context.Background(), gw, "index the repo")
	require.True(t, res.Success)
	assert.Equal(t, "task-7", res.TaskID)
}

func TestSwarmSubmit_EmptyDescription(t *testing.T) {
	gw := stubOrchestrator(t, `echo '{}'`)

	res := SwarmSubmit(context.Background(), gw, "   ")
	assert.False(t, res.Success)
}

func TestSwarmSpawn(t *testing.T) {
	gw := stubOrchestrator(t, `echo '{"spawned":3}'`)

	res := SwarmSpawn(context.Background(), gw, 3)
	assert.True(t, res.Success)
}

func TestSwarmBroadcast_GatewayDown(t *testing.T) {
	gw := gateway.NewWithBin(filepath.Join(t.TempDir(), "missing"))

	res := SwarmBroadcast(context.Background(), gw, "hello workers")
	assert.False(t, res.Success)
	assert.Equal(t, "not_installed", res.Reason)
}

func TestSwarmShutdown_ClearsRecordEvenOnFailure(t *testing.T) {
	st := store.New(t.TempDir())
	okGw := stubOrchestrator(t, `echo '{"hive_id":"hive-9"}'`)

	res := SwarmInit(context.Background(), st, okGw, "demo", "star")
	require.True(t, res.Success)

	deadGw := stubOrchestrator(t, `exit 1`)
	res = SwarmShutdown(context.Background(), st, deadGw, "demo", false)
	assert.False(t, res.Success)

	// A dead orchestrator must not wedge the lifecycle: the record is gone.
	status := SwarmStatus(context.Background(), st, okGw, "demo", false)
	assert.Empty(t, status.HiveID)
}
