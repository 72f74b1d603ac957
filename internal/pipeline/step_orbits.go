package pipeline

import (
	"context"

	"github.com/geodelta/sbaspipe/internal/monitoring"
	"github.com/geodelta/sbaspipe/internal/toolexec"
)

// runDownloadOrbits fetches an orbit file for every downloaded scene
// product. The preference between precise and restituted orbits is passed
// through to the tool; which file it actually retrieves is its business.
func runDownloadOrbits(ctx context.Context, rc *RunContext) (map[string]interface{}, error) {
	cfg := rc.Config

	if rc.DryRun {
		inv := toolexec.Invocation{
			Command: cfg.Tools.OrbitCommand,
			Args: []string{
				"-i", "<scene product>",
				"-o", rc.Paths.OrbitDir,
				"--prefer", cfg.Tools.OrbitPrefer,
			},
			ExtraEnv: rc.Creds.Env(),
		}
		if _, err := rc.Runner.Run(ctx, inv); err != nil {
			return nil, err
		}
		return nil, nil
	}

	scenes, err := rc.Catalog.SelectedScenes()
	if err != nil {
		return nil, err
	}

	fetched := 0
	for _, scene := range scenes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if scene.LocalPath == "" {
			monitoring.Logf("scene %s: no local product, skipping orbit fetch", scene.ID)
			continue
		}
		inv := toolexec.Invocation{
			Command: cfg.Tools.OrbitCommand,
			Args: []string{
				"-i", scene.LocalPath,
				"-o", rc.Paths.OrbitDir,
				"--prefer", cfg.Tools.OrbitPrefer,
			},
			ExtraEnv: rc.Creds.Env(),
		}
		if _, err := rc.Runner.Run(ctx, inv); err != nil {
			return nil, err
		}
		fetched++
	}

	if fetched == 0 {
		return nil, &PreconditionError{StepID: "05_download_orbits", Missing: "downloaded scene products (run step 03_download first)"}
	}
	return map[string]interface{}{"orbits_fetched": fetched}, nil
}
