package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its stdout.
// Probes take a Runner so tests can substitute canned output for real
// process invocations.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands via os/exec. Cancellation of the context kills
// the child process.
type ExecRunner struct{}

// Run executes the command and returns trimmed stdout.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("probe: %s: %w", name, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("probe: %s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("probe: %s: %w", name, err)
	}
	return bytes.TrimSpace(stdout.Bytes()), nil
}

// powershellArgs builds the argument list for running one script through
// powershell without profile or execution-policy interference.
func powershellArgs(script string) []string {
	return []string{"-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", script}
}
