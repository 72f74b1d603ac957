// Package toolexec is the boundary between the orchestrator and the
// external processing tools. Every tool invocation goes through a Runner:
// the real implementation spawns the process and captures output, the
// recording implementation lets step logic run under test without spawning
// anything. The orchestrator never interprets tool output beyond exit
// status and documented file-existence checks.
package toolexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/geodelta/sbaspipe/internal/monitoring"
)

// Invocation describes one external tool run. Args are constructed from
// resolved configuration values, never from raw user strings.
type Invocation struct {
	Command  string
	Args     []string
	Dir      string
	ExtraEnv []string // appended to the parent environment
}

// String renders the invocation in shell-like form for logs.
func (i Invocation) String() string {
	parts := append([]string{i.Command}, i.Args...)
	s := strings.Join(parts, " ")
	if i.Dir != "" {
		s = fmt.Sprintf("(cwd=%s) %s", i.Dir, s)
	}
	return s
}

// Result carries the captured outcome of an invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// stderrTailLimit bounds how much captured stderr a ToolError carries.
const stderrTailLimit = 2048

// ToolError reports a non-zero exit from an invoked tool, with the tail of
// its stderr attached for diagnosis.
type ToolError struct {
	Command    string
	ExitCode   int
	StderrTail string
}

func (e *ToolError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, e.StderrTail)
}

// Tail returns the last limit bytes of s, trimmed.
func Tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}

// Runner executes tool invocations. Implementations must honor ctx
// cancellation and translate non-zero exits into a ToolError.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// ExecRunner runs invocations as real subprocesses. With DryRun set it logs
// the fully constructed command line and executes nothing.
type ExecRunner struct {
	DryRun bool
}

// Run blocks until the process exits, capturing stdout and stderr.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	if r.DryRun {
		monitoring.Logf("[dry-run] would execute: %s", inv)
		return Result{}, nil
	}

	monitoring.Logf("$ %s", inv)

	cmd := exec.CommandContext(ctx, inv.Command, inv.Args...)
	cmd.Dir = inv.Dir
	if len(inv.ExtraEnv) > 0 {
		cmd.Env = append(os.Environ(), inv.ExtraEnv...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			if s := strings.TrimSpace(res.Stderr); s != "" {
				monitoring.Logf("stderr: %s", Tail(s, stderrTailLimit))
			}
			return res, &ToolError{
				Command:    inv.Command,
				ExitCode:   res.ExitCode,
				StderrTail: Tail(res.Stderr, stderrTailLimit),
			}
		}
		return res, fmt.Errorf("start %s: %w", inv.Command, err)
	}

	if s := strings.TrimSpace(res.Stdout); s != "" {
		monitoring.Logf("%s", s)
	}
	return res, nil
}

// RecordedCall is one invocation a RecordingRunner observed.
type RecordedCall struct {
	Invocation Invocation
}

// RecordingRunner records invocations instead of executing them. Tests
// script results per command name and may attach an OnRun hook to create
// the files steps expect as postconditions.
type RecordingRunner struct {
	Calls   []RecordedCall
	Results map[string]Result      // keyed by Invocation.Command; zero Result if absent
	Errs    map[string]error       // keyed by Invocation.Command
	OnRun   func(inv Invocation) error
}

// Run records the invocation and returns any scripted result.
func (r *RecordingRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	r.Calls = append(r.Calls, RecordedCall{Invocation: inv})
	if r.OnRun != nil {
		if err := r.OnRun(inv); err != nil {
			return Result{}, err
		}
	}
	if err, ok := r.Errs[inv.Command]; ok && err != nil {
		return Result{}, err
	}
	if res, ok := r.Results[inv.Command]; ok {
		return res, nil
	}
	return Result{}, nil
}

// CommandNames returns the recorded command names in call order.
func (r *RecordingRunner) CommandNames() []string {
	names := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		names[i] = c.Invocation.Command
	}
	return names
}
