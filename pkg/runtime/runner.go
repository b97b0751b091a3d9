package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Runner executes external commands. It exists so the resolver and the
// compose driver can be exercised in tests without a container runtime
// installed.
type Runner interface {
	// Run executes the command with stdout/stderr attached to the
	// process's own streams, so orchestration-tool output reaches the
	// operator verbatim.
	Run(ctx context.Context, name string, args ...string) error

	// RunQuiet executes the command with all output discarded. Used
	// for probes where only the exit status matters.
	RunQuiet(ctx context.Context, name string, args ...string) error
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct {
	// Stdout and Stderr default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner creates a runner writing to the process streams.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes the command, streaming its output.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// RunQuiet executes the command with output discarded.
func (r *ExecRunner) RunQuiet(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
