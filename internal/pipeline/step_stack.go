package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/geodelta/sbaspipe/internal/fsutil"
	"github.com/geodelta/sbaspipe/internal/monitoring"
	"github.com/geodelta/sbaspipe/internal/network"
	"github.com/geodelta/sbaspipe/internal/security"
	"github.com/geodelta/sbaspipe/internal/toolexec"
)

// compactDate is the date form the stack processor's -m flag expects.
const compactDate = "20060102"

// runStack configures the stack processor from the resolved tool options
// and the built network, runs it, then executes the run scripts it
// generated in lexical order. The processor owns all interferometric
// processing; this step only sequences it.
func runStack(ctx context.Context, rc *RunContext) (map[string]interface{}, error) {
	cfg := rc.Config

	n, err := rc.Store.LoadNetwork()
	if err != nil {
		return nil, err
	}
	if n == nil && !rc.DryRun {
		return nil, &PreconditionError{StepID: "06_run_stack", Missing: "network record (run step 02_discover first)"}
	}

	demFile := "<dem file>"
	if !rc.DryRun {
		demFile, err = fsutil.FindFirst(rc.Paths.DEMDir, "*.dem.wgs84", "*.wgs84", "*.dem")
		if err != nil {
			return nil, &PreconditionError{StepID: "06_run_stack", Missing: "DEM product (run step 04_download_dem first)"}
		}
	}

	refDate, err := referenceDate(cfg.Tools.ReferenceDate, n)
	if err != nil {
		return nil, err
	}

	numConn := cfg.Tools.NumConnections
	if numConn == 0 {
		numConn = cfg.Network.KNeighbors
	}

	extent := cfg.AOI()
	if n != nil && !n.Extent.IsZero() {
		extent = n.Extent
	}

	args := []string{
		"-s", rc.Paths.SLCDir,
		"-d", demFile,
		"-a", rc.Paths.AuxDir,
		"-o", rc.Paths.OrbitDir,
		"-w", rc.Paths.StackDir,
		"-b", extent.SNWE(),
		"-c", strconv.Itoa(numConn),
		"-m", refDate,
		"-n", cfg.Tools.SwathNum,
		"-C", cfg.Tools.Coregistration,
		"-W", cfg.Tools.Workflow,
		"-r", strconv.Itoa(cfg.Tools.RangeLooks),
		"-z", strconv.Itoa(cfg.Tools.AzimuthLooks),
		"-f", strconv.FormatFloat(cfg.Tools.FilterStrength, 'g', -1, 64),
		"-u", cfg.Tools.UnwrapMethod,
		"--num-proc", strconv.Itoa(cfg.Tools.NumProc),
	}
	inv := toolexec.Invocation{
		Command: cfg.Tools.StackCommand,
		Args:    args,
		Dir:     rc.Paths.StackDir,
	}
	if _, err := rc.Runner.Run(ctx, inv); err != nil {
		return nil, err
	}

	// The processor emits numbered run scripts; executing them in sorted
	// order is the documented contract.
	scripts, err := fsutil.GlobSorted(filepath.Join(rc.Paths.StackDir, "run_files", "run_*"))
	if err != nil {
		return nil, err
	}
	scripts = executableScripts(scripts)
	if len(scripts) == 0 {
		if rc.DryRun {
			monitoring.Logf("[dry-run] would execute generated run scripts under %s", filepath.Join(rc.Paths.StackDir, "run_files"))
			return nil, nil
		}
		return nil, fmt.Errorf("stack processor generated no run scripts under %s", filepath.Join(rc.Paths.StackDir, "run_files"))
	}
	for _, script := range scripts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := security.ValidatePathWithinDirectory(script, rc.Paths.StackDir); err != nil {
			return nil, fmt.Errorf("refusing to execute run script: %w", err)
		}
		monitoring.Logf("executing run script %s", filepath.Base(script))
		runInv := toolexec.Invocation{
			Command: "bash",
			Args:    []string{script},
			Dir:     rc.Paths.StackDir,
		}
		if _, err := rc.Runner.Run(ctx, runInv); err != nil {
			return nil, err
		}
	}

	if rc.DryRun {
		return nil, nil
	}
	return map[string]interface{}{
		"reference_date": refDate,
		"run_scripts":    len(scripts),
	}, nil
}

// executableScripts drops the .job companions some processor versions emit
// next to each run script.
func executableScripts(paths []string) []string {
	var out []string
	for _, p := range paths {
		if strings.HasSuffix(p, ".job") {
			continue
		}
		out = append(out, p)
	}
	return out
}

// referenceDate resolves the stack reference date. "auto" picks the median
// acquisition of the selected scenes, which keeps temporal baselines to the
// reference short on both ends.
func referenceDate(setting string, n *network.Network) (string, error) {
	if setting != "auto" && setting != "" {
		t, err := time.ParseInLocation("2006-01-02", setting, time.UTC)
		if err != nil {
			if t, err2 := time.ParseInLocation(compactDate, setting, time.UTC); err2 == nil {
				return t.Format(compactDate), nil
			}
			return "", fmt.Errorf("tools.reference_date: bad date %q (want YYYY-MM-DD or auto)", setting)
		}
		return t.Format(compactDate), nil
	}
	if n == nil || len(n.Scenes) == 0 {
		return "<auto>", nil // dry-run placeholder; real runs always have a network
	}
	// Scenes are in date order; the lower median is taken for even counts.
	return n.Scenes[(len(n.Scenes)-1)/2].Date.Format(compactDate), nil
}
