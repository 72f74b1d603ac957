package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/geodelta/sbaspipe/internal/config"
	"github.com/geodelta/sbaspipe/internal/fsutil"
	"github.com/geodelta/sbaspipe/internal/monitoring"
	"github.com/geodelta/sbaspipe/internal/network"
	"github.com/geodelta/sbaspipe/internal/toolexec"
)

// runDiscover invokes the search tool, parses the scene manifest it wrote,
// records the candidates in the catalog, builds the baseline network, and
// persists the network record. The search tool is the only component that
// talks to the remote archive; its output contract is the manifest file.
func runDiscover(ctx context.Context, rc *RunContext) (map[string]interface{}, error) {
	cfg := rc.Config
	manifest := rc.Paths.SceneManifest()

	args := []string{
		"--aoi", cfg.AOI().WKT(),
		"--start", cfg.DateStart,
		"--end", cfg.DateEnd,
		"--beam-mode", cfg.Download.BeamMode,
		"--processing-level", cfg.Download.ProcessingLevel,
		"--max-results", strconv.Itoa(cfg.Download.MaxResults),
		"--output", manifest,
	}
	if cfg.Download.Platform != "" {
		args = append(args, "--platform", cfg.Download.Platform)
	}
	if cfg.OrbitDirection != config.OrbitBoth {
		args = append(args, "--orbit-direction", string(cfg.OrbitDirection))
	}

	inv := toolexec.Invocation{
		Command:  cfg.Download.SearchCommand,
		Args:     args,
		ExtraEnv: rc.Creds.Env(),
	}
	if _, err := rc.Runner.Run(ctx, inv); err != nil {
		return nil, err
	}

	if rc.DryRun {
		monitoring.Logf("[dry-run] would parse %s and build the baseline network", manifest)
		return nil, nil
	}

	if !fsutil.Exists(manifest) {
		return nil, &PreconditionError{StepID: "02_discover", Missing: fmt.Sprintf("scene manifest %s (search tool produced no output)", manifest)}
	}
	scenes, err := readSceneManifest(manifest)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("search returned %d candidate scenes", len(scenes))

	if rc.Catalog != nil {
		if err := rc.Catalog.RecordDiscovery(scenes, rc.RunID, rc.Clock.Now()); err != nil {
			return nil, err
		}
	}

	n, err := network.Build(scenes, network.ParamsFromConfig(cfg))
	if err != nil {
		return nil, err
	}

	recordPath, err := rc.Store.SaveNetwork(n, rc.RunID)
	if err != nil {
		return nil, err
	}
	if rc.Catalog != nil {
		if err := rc.Catalog.MarkSelected(n.SceneIDs(), rc.Clock.Now()); err != nil {
			return nil, err
		}
	}

	monitoring.Logf("network: %d scenes, %d pairs (%d bridges), frame %q",
		len(n.Scenes), len(n.Pairs), n.Counts.BridgesInserted, n.Frame)

	return map[string]interface{}{
		"network_record":  recordPath,
		"scenes_found":    len(scenes),
		"scenes_selected": len(n.Scenes),
		"pairs":           len(n.Pairs),
	}, nil
}
