package toolexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/geodelta/sbaspipe/internal/monitoring"
)

func captureLog(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(nil) })
	return &lines
}

func TestExecRunnerSuccess(t *testing.T) {
	captureLog(t)
	r := &ExecRunner{}
	res, err := r.Run(context.Background(), Invocation{Command: "echo", Args: []string{"hello"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 || strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("result = %+v", res)
	}
}

func TestExecRunnerNonZeroExit(t *testing.T) {
	captureLog(t)
	r := &ExecRunner{}
	res, err := r.Run(context.Background(), Invocation{
		Command: "sh",
		Args:    []string{"-c", "echo boom >&2; exit 3"},
	})

	var terr *ToolError
	if !errors.As(err, &terr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if terr.ExitCode != 3 || res.ExitCode != 3 {
		t.Errorf("exit code = %d / %d, want 3", terr.ExitCode, res.ExitCode)
	}
	if !strings.Contains(terr.StderrTail, "boom") {
		t.Errorf("stderr tail = %q", terr.StderrTail)
	}
}

func TestExecRunnerMissingCommand(t *testing.T) {
	captureLog(t)
	r := &ExecRunner{}
	_, err := r.Run(context.Background(), Invocation{Command: "definitely-not-a-command-xyz"})
	if err == nil {
		t.Fatal("expected error for missing command")
	}
	var terr *ToolError
	if errors.As(err, &terr) {
		t.Errorf("missing binary should not be a ToolError: %v", err)
	}
}

func TestExecRunnerDryRun(t *testing.T) {
	lines := captureLog(t)
	r := &ExecRunner{DryRun: true}

	res, err := r.Run(context.Background(), Invocation{
		Command: "rm",
		Args:    []string{"-rf", "/important"},
		Dir:     "/tmp",
	})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("dry-run should succeed without executing: %+v, %v", res, err)
	}

	joined := strings.Join(*lines, "\n")
	if !strings.Contains(joined, "dry-run") || !strings.Contains(joined, "rm -rf /important") {
		t.Errorf("dry-run log = %q", joined)
	}
	if !strings.Contains(joined, "cwd=/tmp") {
		t.Errorf("dry-run log missing cwd: %q", joined)
	}
}

func TestRecordingRunner(t *testing.T) {
	r := &RecordingRunner{
		Results: map[string]Result{"dem.py": {Stdout: "ok"}},
		Errs:    map[string]error{"stackSentinel.py": &ToolError{Command: "stackSentinel.py", ExitCode: 1}},
	}

	res, err := r.Run(context.Background(), Invocation{Command: "dem.py", Args: []string{"-a", "stitch"}})
	if err != nil || res.Stdout != "ok" {
		t.Errorf("scripted result = %+v, %v", res, err)
	}

	_, err = r.Run(context.Background(), Invocation{Command: "stackSentinel.py"})
	var terr *ToolError
	if !errors.As(err, &terr) {
		t.Errorf("scripted error = %v", err)
	}

	if got := r.CommandNames(); len(got) != 2 || got[0] != "dem.py" || got[1] != "stackSentinel.py" {
		t.Errorf("CommandNames = %v", got)
	}
	if got := r.Calls[0].Invocation.Args; len(got) != 2 || got[0] != "-a" {
		t.Errorf("recorded args = %v", got)
	}
}

func TestRecordingRunnerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &RecordingRunner{}
	if _, err := r.Run(ctx, Invocation{Command: "echo"}); err == nil {
		t.Error("expected context error")
	}
	if len(r.Calls) != 0 {
		t.Errorf("cancelled run should not be recorded: %v", r.Calls)
	}
}

func TestTail(t *testing.T) {
	if got := Tail("  hello  ", 100); got != "hello" {
		t.Errorf("Tail = %q", got)
	}
	if got := Tail("abcdef", 3); got != "def" {
		t.Errorf("Tail = %q", got)
	}
}
