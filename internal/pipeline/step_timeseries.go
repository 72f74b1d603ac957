package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/geodelta/sbaspipe/internal/fsutil"
	"github.com/geodelta/sbaspipe/internal/monitoring"
	"github.com/geodelta/sbaspipe/internal/toolexec"
)

// timeseriesConfigName is the template file the inversion tool generates
// and then consumes.
const timeseriesConfigName = "smallbaselineApp.cfg"

// runTimeseries drives the time-series inversion tool: generate its config
// template, patch in the paths and options the rest of the pipeline
// determined, and run it. The inversion numerics stay inside the tool.
func runTimeseries(ctx context.Context, rc *RunContext) (map[string]interface{}, error) {
	cfg := rc.Config
	cfgPath := filepath.Join(rc.Paths.TimeseriesDir, timeseriesConfigName)

	genInv := toolexec.Invocation{
		Command: cfg.Tools.TimeseriesCommand,
		Args:    []string{"-g"},
		Dir:     rc.Paths.TimeseriesDir,
	}
	if _, err := rc.Runner.Run(ctx, genInv); err != nil {
		return nil, err
	}

	if rc.DryRun {
		monitoring.Logf("[dry-run] would patch %s and run the inversion", cfgPath)
		return nil, nil
	}

	if !fsutil.Exists(cfgPath) {
		return nil, fmt.Errorf("template generation produced no %s", cfgPath)
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("read timeseries config: %w", err)
	}
	patched := patchConfigKeys(data, map[string]string{
		"mintpy.load.processor":           "isce",
		"mintpy.load.autoPath":            "yes",
		"mintpy.compute.numWorker":        strconv.Itoa(cfg.Tools.NumProc),
		"mintpy.troposphericDelay.method": cfg.Tools.TroposphericCorrection,
	})
	if err := fsutil.WriteFileAtomic(cfgPath, patched, 0o644); err != nil {
		return nil, err
	}

	runInv := toolexec.Invocation{
		Command: cfg.Tools.TimeseriesCommand,
		Args:    []string{cfgPath, "--work-dir", rc.Paths.TimeseriesDir},
		Dir:     rc.Paths.TimeseriesDir,
	}
	if _, err := rc.Runner.Run(ctx, runInv); err != nil {
		return nil, err
	}

	return map[string]interface{}{"config": cfgPath}, nil
}

// patchConfigKeys rewrites "key = value" lines in a generated template,
// appending any key the template lacks. Missing keys are appended in sorted
// order so repeated patching is byte-stable.
func patchConfigKeys(data []byte, kv map[string]string) []byte {
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	seen := make(map[string]bool, len(kv))

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		if val, ok := kv[key]; ok {
			lines[i] = key + " = " + val
			seen[key] = true
		}
	}

	missing := make([]string, 0, len(kv))
	for key := range kv {
		if !seen[key] {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	for _, key := range missing {
		lines = append(lines, key+" = "+kv[key])
	}

	return []byte(strings.Join(lines, "\n") + "\n")
}
