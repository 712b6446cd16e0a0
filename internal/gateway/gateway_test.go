package gateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeStub writes an executable shell script and returns its path.
func writeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude-flow")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestInvoke_ParsesJSON(t *testing.T) {
	gw := NewWithBin(writeStub(t, `echo '{"hive_id":"hive-1","ok":true}'`))

	res := gw.Invoke(context.Background(), []string{"hive-mind", "init"}, nil, 0)
	assert.True(t, res.Success)
	assert.Equal(t, FailureNone, res.Failure)
	assert.JSONEq(t, `{"hive_id":"hive-1","ok":true}`, string(res.Parsed))
}

func TestInvoke_NotInstalled(t *testing.T) {
	gw := NewWithBin(filepath.Join(t.TempDir(), "no-such-binary"))

	res := gw.Invoke(context.Background(), []string{"status"}, nil, 0)
	assert.False(t, res.Success)
	assert.Equal(t, FailureNotInstalled, res.Failure)
}

func TestInvoke_NonzeroExit(t *testing.T) {
	gw := NewWithBin(writeStub(t, `echo "boom" >&2; exit 3`))

	res := gw.Invoke(context.Background(), []string{"status"}, nil, 0)
	assert.False(t, res.Success)
	assert.Equal(t, FailureNonzeroExit, res.Failure)
	assert.Contains(t, res.Stderr, "boom")
}

func TestInvoke_InvalidJSON(t *testing.T) {
	gw := NewWithBin(writeStub(t, `echo "plain text output"`))

	res := gw.Invoke(context.Background(), []string{"status"}, nil, 0)
	assert.True(t, res.Success)
	assert.Equal(t, FailureInvalidJSON, res.Failure)
	assert.Nil(t, res.Parsed)
	assert.Equal(t, "plain text output", res.Stdout)
}

func TestInvoke_Timeout(t *testing.T) {
	gw := NewWithBin(writeStub(t, `sleep 5`))

	start := time.Now()
	res := gw.Invoke(context.Background(), []string{"status"}, nil, 150*time.Millisecond)
	assert.False(t, res.Success)
	assert.Equal(t, FailureTimeout, res.Failure)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestInvoke_StdinPayload(t *testing.T) {
	gw := NewWithBin(writeStub(t, `cat`))

	res := gw.Invoke(context.Background(), []string{"pattern", "store"}, map[string]string{"text": "lesson"}, 0)
	assert.True(t, res.Success)
	assert.JSONEq(t, `{"text":"lesson"}`, string(res.Parsed))
}

func TestInvoke_EmptyStdout(t *testing.T) {
	gw := NewWithBin(writeStub(t, `exit 0`))

	res := gw.Invoke(context.Background(), []string{"hooks", "notify"}, nil, 0)
	assert.True(t, res.Success)
	assert.Equal(t, FailureNone, res.Failure)
	assert.Nil(t, res.Parsed)
}

func TestAvailable(t *testing.T) {
	assert.True(t, NewWithBin(writeStub(t, `exit 0`)).Available())
	assert.False(t, NewWithBin(filepath.Join(t.TempDir(), "missing")).Available())
}

func TestInvokeDetached_MissingBinary(t *testing.T) {
	gw := NewWithBin(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, gw.InvokeDetached([]string{"hooks", "notify"}, nil))
}

func TestInvokeDetached_Starts(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	gw := NewWithBin(writeStub(t, `touch "`+marker+`"`))

	require.NoError(t, gw.InvokeDetached([]string{"hooks", "notify"}, nil))

	// The detached child runs on its own schedule; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(marker); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("detached process never ran")
}
