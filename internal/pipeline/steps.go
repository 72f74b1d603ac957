package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/geodelta/sbaspipe/internal/config"
)

// Step is one entry in the fixed pipeline sequence. Run returns metadata to
// attach to the step's done record.
type Step struct {
	ID    string
	Title string
	Run   func(ctx context.Context, rc *RunContext) (map[string]interface{}, error)
}

// Steps returns the pipeline's fixed step sequence. Order is the execution
// order; selection filters this list but never reorders it.
func Steps() []Step {
	return []Step{
		{ID: "01_prepare", Title: "Prepare project directories", Run: runPrepare},
		{ID: "02_discover", Title: "Search catalog and build baseline network", Run: runDiscover},
		{ID: "03_download", Title: "Download selected scenes", Run: runDownload},
		{ID: "04_download_dem", Title: "Download DEM over network extent", Run: runDownloadDEM},
		{ID: "05_download_orbits", Title: "Download orbit files", Run: runDownloadOrbits},
		{ID: "06_run_stack", Title: "Configure and run stack processing", Run: runStack},
		{ID: "07_run_timeseries", Title: "Run time-series inversion", Run: runTimeseries},
	}
}

// NormalizeStepID maps a user-supplied step selector to a canonical step
// id. Accepted forms: the canonical id (04_download_dem), a step_-prefixed
// name (step_04_download_dem), or the bare numeric prefix (04 or 4).
func NormalizeStepID(sel string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(sel))
	s = strings.TrimPrefix(s, "step_")

	for _, st := range Steps() {
		if s == st.ID {
			return st.ID, nil
		}
		num := strings.SplitN(st.ID, "_", 2)[0]
		if s == num || s == strings.TrimLeft(num, "0") {
			return st.ID, nil
		}
	}
	return "", &config.ConfigError{
		Field:  "steps",
		Reason: fmt.Sprintf("unknown step %q (valid: %s)", sel, strings.Join(stepIDs(), ", ")),
	}
}

func stepIDs() []string {
	steps := Steps()
	ids := make([]string, len(steps))
	for i, st := range steps {
		ids[i] = st.ID
	}
	return ids
}

// Selection narrows the step sequence. Only wins over From/Until when both
// are given; an empty Selection means the full sequence.
type Selection struct {
	Only  []string
	From  string
	Until string
}

// Select resolves a Selection against the step table, preserving pipeline
// order. Unknown selectors and inverted ranges are configuration errors.
func Select(sel Selection) ([]Step, error) {
	steps := Steps()

	if len(sel.Only) > 0 {
		want := make(map[string]bool, len(sel.Only))
		for _, s := range sel.Only {
			id, err := NormalizeStepID(s)
			if err != nil {
				return nil, err
			}
			want[id] = true
		}
		var out []Step
		for _, st := range steps {
			if want[st.ID] {
				out = append(out, st)
			}
		}
		return out, nil
	}

	from, until := 0, len(steps)-1
	if sel.From != "" {
		id, err := NormalizeStepID(sel.From)
		if err != nil {
			return nil, err
		}
		from = stepIndex(steps, id)
	}
	if sel.Until != "" {
		id, err := NormalizeStepID(sel.Until)
		if err != nil {
			return nil, err
		}
		until = stepIndex(steps, id)
	}
	if from > until {
		return nil, &config.ConfigError{
			Field:  "steps",
			Reason: fmt.Sprintf("from-step %s is after until-step %s", steps[from].ID, steps[until].ID),
		}
	}
	return steps[from : until+1], nil
}

func stepIndex(steps []Step, id string) int {
	for i, st := range steps {
		if st.ID == id {
			return i
		}
	}
	return -1 // unreachable: id comes from NormalizeStepID
}
