package pipeline

import (
	"context"

	"github.com/geodelta/sbaspipe/internal/monitoring"
)

// runPrepare creates the project directory tree and persists the resolved
// configuration snapshot. Idempotent: re-running refreshes the snapshot.
func runPrepare(ctx context.Context, rc *RunContext) (map[string]interface{}, error) {
	if rc.DryRun {
		monitoring.Logf("[dry-run] would create project tree under %s and write the resolved config snapshot", rc.Paths.Root)
		return nil, nil
	}

	if err := rc.Paths.EnsureAll(); err != nil {
		return nil, err
	}
	snapshot, err := rc.Config.WriteSnapshot(rc.Paths.Root)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("resolved configuration written to %s", snapshot)

	return map[string]interface{}{"snapshot": snapshot}, nil
}
