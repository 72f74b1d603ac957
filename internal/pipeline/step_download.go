package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/geodelta/sbaspipe/internal/fsutil"
	"github.com/geodelta/sbaspipe/internal/monitoring"
	"github.com/geodelta/sbaspipe/internal/toolexec"
)

// runDownload fetches the product for every selected scene via the download
// tool. Products that already exist locally are skipped when skip_existing
// is set, which makes the step cheap to re-run after partial failures.
func runDownload(ctx context.Context, rc *RunContext) (map[string]interface{}, error) {
	cfg := rc.Config

	n, err := rc.Store.LoadNetwork()
	if err != nil {
		return nil, err
	}
	if n == nil {
		if rc.DryRun {
			monitoring.Logf("[dry-run] would download the selected scene set (no network record yet)")
			return nil, nil
		}
		return nil, &PreconditionError{StepID: "03_download", Missing: "network record (run step 02_discover first)"}
	}

	downloaded, skipped := 0, 0
	for _, scene := range n.Scenes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if cfg.Download.SkipExisting && !rc.DryRun {
			if existing, err := fsutil.FindFirst(rc.Paths.SLCDir, scene.ID+"*"); err == nil {
				monitoring.Logf("scene %s: already present at %s, skipping", scene.ID, existing)
				if err := rc.Catalog.SetLocalPath(scene.ID, existing, rc.Clock.Now()); err != nil {
					return nil, err
				}
				skipped++
				continue
			}
		}

		inv := toolexec.Invocation{
			Command: cfg.Download.DownloadCommand,
			Args: []string{
				"--out", rc.Paths.SLCDir,
				"--processes", strconv.Itoa(cfg.Download.Processes),
				scene.ID,
			},
			ExtraEnv: rc.Creds.Env(),
		}
		if _, err := rc.Runner.Run(ctx, inv); err != nil {
			return nil, err
		}
		if rc.DryRun {
			continue
		}

		path, err := fsutil.FindFirst(rc.Paths.SLCDir, scene.ID+"*")
		if err != nil {
			return nil, fmt.Errorf("scene %s: download tool exited cleanly but no product appeared under %s", scene.ID, rc.Paths.SLCDir)
		}
		if err := rc.Catalog.SetLocalPath(scene.ID, path, rc.Clock.Now()); err != nil {
			return nil, err
		}
		downloaded++
	}

	if rc.DryRun {
		return nil, nil
	}
	monitoring.Logf("downloaded %d scenes, %d already present", downloaded, skipped)
	return map[string]interface{}{
		"downloaded": downloaded,
		"skipped":    skipped,
	}, nil
}
