// Package state is the durable record of per-step completion, the single
// source of truth for resumability. Each step owns one JSON record file
// under the project's .state directory; records are replaced atomically so
// a crash mid-step can never leave a falsely-done record behind.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/geodelta/sbaspipe/internal/fsutil"
	"github.com/geodelta/sbaspipe/internal/timeutil"
)

// Status is the lifecycle state of a step record.
type Status int

const (
	Pending Status = iota
	Running
	Done
	Failed
)

var statusNames = map[Status]string{
	Pending: "pending",
	Running: "running",
	Done:    "done",
	Failed:  "failed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalJSON encodes the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	n, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return json.Marshal(n)
}

// UnmarshalJSON decodes a status name; unknown names are an error so a
// mangled record surfaces as corruption instead of a silent default.
func (s *Status) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	for st, name := range statusNames {
		if name == n {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", n)
}

// Record is one step's durable state. Owned exclusively by the store; a
// step only ever transitions its own record.
type Record struct {
	StepID     string                 `json:"step"`
	Status     Status                 `json:"status"`
	RunID      string                 `json:"run_id,omitempty"`
	StartedAt  string                 `json:"started_at,omitempty"`
	FinishedAt string                 `json:"finished_at,omitempty"`
	Note       string                 `json:"note,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// CorruptionError reports an unreadable or malformed record file. Callers
// treat the step as not done (safe default: re-run) but must log loudly,
// since corruption may indicate filesystem trouble.
type CorruptionError struct {
	Path string
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("state record %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// TransitionError reports an attempt to move a record through an invalid
// status transition.
type TransitionError struct {
	StepID string
	From   Status
	To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("step %s: invalid transition %s -> %s", e.StepID, e.From, e.To)
}

// Store reads and writes step records under a state directory. The store
// assumes a single orchestrator process per project directory; concurrent
// invocations are not supported (the CLI holds an advisory lock).
type Store struct {
	dir   string
	clock timeutil.Clock
}

// New creates a store rooted at dir. The directory is created on first
// write.
func New(dir string, clock timeutil.Clock) *Store {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Store{dir: dir, clock: clock}
}

// Dir returns the state directory path.
func (s *Store) Dir() string { return s.dir }

func (s *Store) recordPath(stepID string) string {
	return filepath.Join(s.dir, stepID+".json")
}

// Read returns the record for stepID, nil if absent, or a CorruptionError
// if the file exists but cannot be decoded.
func (s *Store) Read(stepID string) (*Record, error) {
	path := s.recordPath(stepID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &CorruptionError{Path: path, Err: err}
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &CorruptionError{Path: path, Err: err}
	}
	if rec.StepID == "" {
		rec.StepID = stepID
	}
	return &rec, nil
}

// IsDone reports whether stepID has a done record. A corrupt record reads
// as not done and the CorruptionError is returned alongside so the caller
// can log it.
func (s *Store) IsDone(stepID string) (bool, error) {
	rec, err := s.Read(stepID)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Status == Done, nil
}

func (s *Store) write(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.StepID, err)
	}
	return fsutil.WriteFileAtomic(s.recordPath(rec.StepID), append(data, '\n'), 0o644)
}

// MarkRunning transitions stepID to running. Valid from absent, done
// (forced re-run) or failed (retry); a live running record is rejected.
func (s *Store) MarkRunning(stepID, runID string) error {
	prev, err := s.Read(stepID)
	if err != nil {
		// Corrupt records are overwritten; the caller has already logged.
		prev = nil
	}
	if prev != nil && prev.Status == Running {
		return &TransitionError{StepID: stepID, From: Running, To: Running}
	}
	return s.write(&Record{
		StepID:    stepID,
		Status:    Running,
		RunID:     runID,
		StartedAt: timeutil.UTCStamp(s.clock.Now()),
	})
}

// MarkDone transitions a running stepID to done, attaching the metadata
// payload the step produced. Only called after all side-effecting work for
// the step completed without error.
func (s *Store) MarkDone(stepID string, meta map[string]interface{}) error {
	return s.finish(stepID, Done, "", meta)
}

// MarkFailed transitions a running stepID to failed, recording the cause.
func (s *Store) MarkFailed(stepID, cause string) error {
	return s.finish(stepID, Failed, cause, nil)
}

func (s *Store) finish(stepID string, to Status, note string, meta map[string]interface{}) error {
	prev, err := s.Read(stepID)
	if err != nil {
		return err
	}
	if prev == nil || prev.Status != Running {
		from := Pending
		if prev != nil {
			from = prev.Status
		}
		return &TransitionError{StepID: stepID, From: from, To: to}
	}
	prev.Status = to
	prev.Note = note
	prev.Meta = meta
	prev.FinishedAt = timeutil.UTCStamp(s.clock.Now())
	return s.write(prev)
}

// FailStale rewrites any running record as failed. A running record at
// startup belongs to a crashed or interrupted prior process: steps are
// retried from their own start, never resumed mid-execution. Returns the
// ids of the records that were failed.
func (s *Store) FailStale() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan state dir: %w", err)
	}

	var stale []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		stepID := strings.TrimSuffix(e.Name(), ".json")
		rec, err := s.Read(stepID)
		if err != nil || rec == nil {
			continue
		}
		if rec.Status != Running {
			continue
		}
		rec.Status = Failed
		rec.Note = "stale running record from a previous invocation"
		rec.FinishedAt = timeutil.UTCStamp(s.clock.Now())
		if err := s.write(rec); err != nil {
			return stale, err
		}
		stale = append(stale, stepID)
	}
	return stale, nil
}
