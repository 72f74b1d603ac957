package pipeline

import (
	"context"
	"errors"

	"github.com/geodelta/sbaspipe/internal/monitoring"
	"github.com/geodelta/sbaspipe/internal/state"
)

// Executor drives a selected step sequence through the state store:
// skip-if-done, mark running, run, mark done or failed. Execution is
// fail-fast; a failing step stops the run with its record marked failed.
type Executor struct {
	RC *RunContext
}

// Run executes the steps in order. Before the first step, any stale running
// record left by a crashed prior process is rewritten as failed.
func (e *Executor) Run(ctx context.Context, steps []Step) error {
	rc := e.RC

	if !rc.DryRun {
		stale, err := rc.Store.FailStale()
		if err != nil {
			return err
		}
		for _, id := range stale {
			monitoring.Logf("step %s: stale running record marked failed (previous run crashed or was interrupted)", id)
		}
	}

	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := rc.Store.IsDone(st.ID)
		if err != nil {
			var ce *state.CorruptionError
			if !errors.As(err, &ce) {
				return &StepError{StepID: st.ID, Err: err}
			}
			// A corrupt record reads as not done: re-run the step, but
			// make the corruption visible since it may mean disk trouble.
			monitoring.Logf("WARNING: %v (treating step as not done)", err)
			done = false
		}
		if done && !rc.Force {
			monitoring.Logf("step %s: already done, skipping (use -force to re-run)", st.ID)
			continue
		}

		if rc.DryRun {
			monitoring.Logf("step %s: %s (dry-run)", st.ID, st.Title)
			if _, err := st.Run(ctx, rc); err != nil {
				return &StepError{StepID: st.ID, Err: err}
			}
			continue
		}

		monitoring.Logf("step %s: %s", st.ID, st.Title)
		if err := rc.Store.MarkRunning(st.ID, rc.RunID); err != nil {
			return &StepError{StepID: st.ID, Err: err}
		}

		meta, err := st.Run(ctx, rc)
		if err != nil {
			if ferr := rc.Store.MarkFailed(st.ID, err.Error()); ferr != nil {
				monitoring.Logf("step %s: could not record failure: %v", st.ID, ferr)
			}
			return &StepError{StepID: st.ID, Err: err}
		}
		if err := rc.Store.MarkDone(st.ID, meta); err != nil {
			return &StepError{StepID: st.ID, Err: err}
		}
		monitoring.Logf("step %s: done", st.ID)
	}
	return nil
}
