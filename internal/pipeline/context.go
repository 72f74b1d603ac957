package pipeline

import (
	"fmt"

	"github.com/geodelta/sbaspipe/internal/catalog"
	"github.com/geodelta/sbaspipe/internal/config"
	"github.com/geodelta/sbaspipe/internal/state"
	"github.com/geodelta/sbaspipe/internal/timeutil"
	"github.com/geodelta/sbaspipe/internal/toolexec"
)

// RunContext carries everything a step needs for one invocation. Built once
// per run and passed read-only to every step.
type RunContext struct {
	Config  *config.Resolved
	Paths   Paths
	Store   *state.Store
	Catalog *catalog.DB
	Runner  toolexec.Runner
	Creds   config.Credentials
	Clock   timeutil.Clock
	RunID   string
	Force   bool
	DryRun  bool
}

// PreconditionError reports that a step's required input artifact is
// missing, typically because an earlier step has not run or its outputs
// were removed.
type PreconditionError struct {
	StepID  string
	Missing string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("step %s: missing precondition: %s", e.StepID, e.Missing)
}

// StepError wraps a step failure with the identity of the step that failed
// so the CLI can name it in its exit message.
type StepError struct {
	StepID string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.StepID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
