// Package gateway is the only module that knows subprocess semantics for the
// external orchestrator CLI. Everything else programs against its JSON
// result type. The orchestrator is always optional: a missing binary, a
// timeout, or garbage output degrade to a structured failure, never to a
// process failure in the calling hook.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gptcompany/claude-hooks-shared/internal/app"
)

// FailureKind classifies gateway failures.
type FailureKind string

// Gateway failure kinds.
const (
	FailureNone         FailureKind = ""
	FailureNotInstalled FailureKind = "not_installed"
	FailureTimeout      FailureKind = "timeout"
	FailureNonzeroExit  FailureKind = "nonzero_exit"
	FailureInvalidJSON  FailureKind = "invalid_json"
)

// Timeout bounds for orchestrator invocations.
const (
	DefaultTimeout = 10 * time.Second
	MaxTimeout     = 30 * time.Second
)

// Result is the structured outcome of one orchestrator invocation.
// Parsing is best-effort: on non-JSON stdout, Parsed is nil and Failure is
// invalid_json while Stdout still carries the raw text.
type Result struct {
	Success bool            `json:"success"`
	Stdout  string          `json:"stdout,omitempty"`
	Stderr  string          `json:"stderr,omitempty"`
	Parsed  json.RawMessage `json:"parsed,omitempty"`
	Failure FailureKind     `json:"failure,omitempty"`
}

// Gateway wraps subprocess invocation of the orchestrator CLI.
type Gateway struct {
	bin string
}

// New returns a gateway for the configured orchestrator binary.
func New() *Gateway {
	return &Gateway{bin: app.OrchestratorBin()}
}

// NewWithBin returns a gateway for an explicit binary. Used by tests.
func NewWithBin(bin string) *Gateway {
	return &Gateway{bin: bin}
}

// Bin returns the orchestrator binary name.
func (g *Gateway) Bin() string { return g.bin }

// Available reports whether the orchestrator binary resolves on PATH.
func (g *Gateway) Available() bool {
	_, err := exec.LookPath(g.bin)
	return err == nil
}

// limitedWriter caps writes at maxBytes, silently discarding overflow.
// This prevents unbounded allocation from a buggy CLI emitting endless output.
type limitedWriter struct {
	buf      bytes.Buffer
	maxBytes int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	originalLen := len(p)
	remaining := w.maxBytes - w.buf.Len()
	if remaining <= 0 {
		return originalLen, nil // discard but report success
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	w.buf.Write(p)
	return originalLen, nil // always report original len to avoid short write errors
}

// Invoke runs the orchestrator with args, feeding payload (marshaled JSON)
// on stdin when non-nil. The timeout is clamped to [0, MaxTimeout]; zero
// means DefaultTimeout. The returned Result never represents a Go error —
// callers branch on Failure.
func (g *Gateway) Invoke(ctx context.Context, args []string, payload any, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	if _, err := exec.LookPath(g.bin); err != nil {
		return Result{Failure: FailureNotInstalled}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.bin, args...) //nolint:gosec // G204: binary name comes from operator config, args are built internally
	cmd.Env = os.Environ()

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Result{Failure: FailureInvalidJSON, Stderr: fmt.Sprintf("marshal payload: %v", err)}
		}
		cmd.Stdin = bytes.NewReader(data)
	}

	stdoutW := &limitedWriter{maxBytes: 1 << 20}
	stderrW := &limitedWriter{maxBytes: 16 << 10}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	// Without WaitDelay, a killed orchestrator whose children inherited the
	// output pipes would hold Run past the hook deadline.
	cmd.WaitDelay = 250 * time.Millisecond

	err := cmd.Run()
	stdout := strings.TrimSpace(stdoutW.buf.String())
	stderr := strings.TrimSpace(stderrW.buf.String())

	if err != nil {
		kind := FailureNonzeroExit
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = FailureTimeout
		}
		return Result{Stdout: stdout, Stderr: stderr, Failure: kind}
	}

	res := Result{Success: true, Stdout: stdout, Stderr: stderr}
	if stdout != "" {
		if json.Valid([]byte(stdout)) {
			res.Parsed = json.RawMessage(stdout)
		} else {
			res.Failure = FailureInvalidJSON
		}
	}
	return res
}

// InvokeDetached launches the orchestrator fire-and-forget, released from
// the hook's lifetime. Used for notifications and background sync that must
// not sit on the synchronous hook path. Errors are returned for logging
// only; callers swallow them.
func (g *Gateway) InvokeDetached(args []string, payload any) error {
	if _, err := exec.LookPath(g.bin); err != nil {
		return fmt.Errorf("orchestrator %q not found: %w", g.bin, err)
	}

	cmd := exec.Command(g.bin, args...) //nolint:gosec // G204: binary name comes from operator config, args are built internally
	cmd.Env = os.Environ()
	cmd.Stdout = nil
	cmd.Stderr = nil

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		cmd.Stdin = bytes.NewReader(data)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", g.bin, err)
	}
	// Detach: the child may outlive this hook process.
	return cmd.Process.Release()
}
