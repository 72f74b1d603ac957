package pipeline

import (
	"context"

	"github.com/geodelta/sbaspipe/internal/monitoring"
	"github.com/geodelta/sbaspipe/internal/toolexec"
)

// runDownloadDEM fetches the digital elevation model covering the network
// extent. DEM tiles are distributed per integer degree, so the extent is
// snapped outward to whole degrees before being handed to the tool.
func runDownloadDEM(ctx context.Context, rc *RunContext) (map[string]interface{}, error) {
	cfg := rc.Config

	extent := cfg.AOI()
	n, err := rc.Store.LoadNetwork()
	if err != nil {
		return nil, err
	}
	if n != nil && !n.Extent.IsZero() {
		extent = n.Extent
	} else if !rc.DryRun {
		monitoring.Logf("no network record extent, using configured AOI for DEM bounds")
	}

	snapped := extent.SnapOut()
	inv := toolexec.Invocation{
		Command: cfg.Tools.DEMCommand,
		Args: []string{
			"-a", "stitch",
			"-b", snapped.SNWE(),
			"-r", "-s", "1", "-c",
			"-u", cfg.Tools.DEMURL,
		},
		Dir: rc.Paths.DEMDir,
	}
	if _, err := rc.Runner.Run(ctx, inv); err != nil {
		return nil, err
	}
	if rc.DryRun {
		return nil, nil
	}
	return map[string]interface{}{"bounds_snwe": snapped.SNWE()}, nil
}
