package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/geodelta/sbaspipe/internal/catalog"
	"github.com/geodelta/sbaspipe/internal/config"
	"github.com/geodelta/sbaspipe/internal/monitoring"
	"github.com/geodelta/sbaspipe/internal/state"
	"github.com/geodelta/sbaspipe/internal/timeutil"
	"github.com/geodelta/sbaspipe/internal/toolexec"
)

func muteLogs(t *testing.T) {
	t.Helper()
	monitoring.SetLogger(func(format string, v ...interface{}) { t.Logf(format, v...) })
	t.Cleanup(func() { monitoring.SetLogger(nil) })
}

// newTestContext builds a RunContext over a throwaway project directory.
func newTestContext(t *testing.T, runner toolexec.Runner) *RunContext {
	t.Helper()
	muteLogs(t)

	root := t.TempDir()
	f := &config.File{
		ProjectDir:     root,
		AOIBBox:        []float64{10, 40, 11, 41},
		DateStart:      "2023-01-01",
		DateEnd:        "2023-12-31",
		OrbitDirection: "ASC",
	}
	resolved, err := config.Resolve(f)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	paths := ProjectPaths(resolved.ProjectDir)
	if err := paths.EnsureAll(); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	cat, err := catalog.Open(paths.CatalogDB())
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	clock := timeutil.NewManualClock(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC))
	return &RunContext{
		Config:  resolved,
		Paths:   paths,
		Store:   state.New(paths.StateDir, clock),
		Catalog: cat,
		Runner:  runner,
		Clock:   clock,
		RunID:   "run-test",
	}
}

// syntheticStep counts executions so gating behavior is observable without
// any real step work.
func syntheticStep(id string, count *int, fail error) Step {
	return Step{
		ID:    id,
		Title: "synthetic",
		Run: func(ctx context.Context, rc *RunContext) (map[string]interface{}, error) {
			*count++
			if fail != nil {
				return nil, fail
			}
			return map[string]interface{}{"runs": *count}, nil
		},
	}
}

func TestExecutorSkipsDoneSteps(t *testing.T) {
	rc := newTestContext(t, &toolexec.RecordingRunner{})
	ex := &Executor{RC: rc}

	var runs int
	steps := []Step{syntheticStep("01_prepare", &runs, nil)}

	if err := ex.Run(context.Background(), steps); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := ex.Run(context.Background(), steps); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if runs != 1 {
		t.Errorf("step ran %d times, want 1 (done steps must be skipped)", runs)
	}

	rec, err := rc.Store.Read("01_prepare")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec.Status != state.Done {
		t.Errorf("status = %v, want done", rec.Status)
	}
	if rec.RunID != "run-test" {
		t.Errorf("run id = %q, want run-test", rec.RunID)
	}
}

func TestExecutorForceReruns(t *testing.T) {
	rc := newTestContext(t, &toolexec.RecordingRunner{})
	ex := &Executor{RC: rc}

	var runs int
	steps := []Step{syntheticStep("01_prepare", &runs, nil)}

	if err := ex.Run(context.Background(), steps); err != nil {
		t.Fatalf("first run: %v", err)
	}
	rc.Force = true
	if err := ex.Run(context.Background(), steps); err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if runs != 2 {
		t.Errorf("step ran %d times, want 2 under -force", runs)
	}
}

func TestExecutorFailFast(t *testing.T) {
	rc := newTestContext(t, &toolexec.RecordingRunner{})
	ex := &Executor{RC: rc}

	var aRuns, bRuns int
	boom := errors.New("tool exploded")
	steps := []Step{
		syntheticStep("01_prepare", &aRuns, boom),
		syntheticStep("02_discover", &bRuns, nil),
	}

	err := ex.Run(context.Background(), steps)
	if err == nil {
		t.Fatal("expected failure")
	}
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("error %T, want *StepError", err)
	}
	if se.StepID != "01_prepare" {
		t.Errorf("failed step = %q, want 01_prepare", se.StepID)
	}
	if bRuns != 0 {
		t.Error("later step ran after failure (must fail fast)")
	}

	rec, err := rc.Store.Read("01_prepare")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec.Status != state.Failed {
		t.Errorf("status = %v, want failed", rec.Status)
	}
	if rec.Note == "" {
		t.Error("failed record should carry the cause")
	}

	if rec, _ := rc.Store.Read("02_discover"); rec != nil {
		t.Error("skipped step should have no record")
	}
}

func TestExecutorRetryAfterFailure(t *testing.T) {
	rc := newTestContext(t, &toolexec.RecordingRunner{})
	ex := &Executor{RC: rc}

	var runs int
	fail := errors.New("transient")
	failing := []Step{syntheticStep("01_prepare", &runs, fail)}
	if err := ex.Run(context.Background(), failing); err == nil {
		t.Fatal("expected failure")
	}

	// Same step succeeds on retry without -force.
	ok := []Step{syntheticStep("01_prepare", &runs, nil)}
	if err := ex.Run(context.Background(), ok); err != nil {
		t.Fatalf("retry: %v", err)
	}
	rec, err := rc.Store.Read("01_prepare")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec.Status != state.Done {
		t.Errorf("status after retry = %v, want done", rec.Status)
	}
}

func TestExecutorStepGating(t *testing.T) {
	rc := newTestContext(t, &toolexec.RecordingRunner{})
	ex := &Executor{RC: rc}

	counts := make(map[string]*int)
	var steps []Step
	for _, id := range stepIDs() {
		n := new(int)
		counts[id] = n
		steps = append(steps, syntheticStep(id, n, nil))
	}
	sel, err := Select(Selection{From: "03", Until: "05"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	// Filter the synthetic table to the same ids the selection returned.
	want := map[string]bool{}
	for _, st := range sel {
		want[st.ID] = true
	}
	var chosen []Step
	for _, st := range steps {
		if want[st.ID] {
			chosen = append(chosen, st)
		}
	}

	if err := ex.Run(context.Background(), chosen); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, id := range stepIDs() {
		rec, err := rc.Store.Read(id)
		if err != nil {
			t.Fatalf("Read %s: %v", id, err)
		}
		if want[id] {
			if *counts[id] != 1 || rec == nil || rec.Status != state.Done {
				t.Errorf("step %s: runs=%d rec=%+v, want one done run", id, *counts[id], rec)
			}
		} else {
			if *counts[id] != 0 || rec != nil {
				t.Errorf("step %s ran or got a record outside the selected range", id)
			}
		}
	}
}

func TestExecutorDryRunWritesNoRecords(t *testing.T) {
	rc := newTestContext(t, &toolexec.RecordingRunner{})
	rc.DryRun = true
	ex := &Executor{RC: rc}

	var runs int
	steps := []Step{syntheticStep("01_prepare", &runs, nil)}
	if err := ex.Run(context.Background(), steps); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if runs != 1 {
		t.Errorf("step ran %d times, want 1", runs)
	}
	if rec, _ := rc.Store.Read("01_prepare"); rec != nil {
		t.Error("dry run must not write state records")
	}
}

func TestExecutorFailsStaleRunning(t *testing.T) {
	rc := newTestContext(t, &toolexec.RecordingRunner{})

	// Simulate a crashed prior process that left a running record.
	if err := rc.Store.MarkRunning("03_download", "old-run"); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}

	ex := &Executor{RC: rc}
	if err := ex.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec, err := rc.Store.Read("03_download")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec.Status != state.Failed {
		t.Errorf("stale record status = %v, want failed", rec.Status)
	}
}

func TestExecutorRerunsOnCorruptRecord(t *testing.T) {
	rc := newTestContext(t, &toolexec.RecordingRunner{})
	ex := &Executor{RC: rc}

	path := filepath.Join(rc.Paths.StateDir, "01_prepare.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt record: %v", err)
	}

	var runs int
	steps := []Step{syntheticStep("01_prepare", &runs, nil)}
	if err := ex.Run(context.Background(), steps); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runs != 1 {
		t.Errorf("step ran %d times, want 1 (corrupt record reads as not done)", runs)
	}
	rec, err := rc.Store.Read("01_prepare")
	if err != nil {
		t.Fatalf("record still corrupt after re-run: %v", err)
	}
	if rec.Status != state.Done {
		t.Errorf("status = %v, want done", rec.Status)
	}
}

func TestExecutorHonorsCancellation(t *testing.T) {
	rc := newTestContext(t, &toolexec.RecordingRunner{})
	ex := &Executor{RC: rc}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var runs int
	steps := []Step{syntheticStep("01_prepare", &runs, nil)}
	if err := ex.Run(ctx, steps); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if runs != 0 {
		t.Error("step ran despite cancelled context")
	}
}
