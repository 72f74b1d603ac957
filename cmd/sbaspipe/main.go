// Command sbaspipe orchestrates an SBAS InSAR processing pipeline: it
// resolves the declarative project configuration, builds the acquisition
// baseline network, and drives the external search, download, stack and
// time-series tools through a resumable, file-backed step sequence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/geodelta/sbaspipe/internal/catalog"
	"github.com/geodelta/sbaspipe/internal/config"
	"github.com/geodelta/sbaspipe/internal/fsutil"
	"github.com/geodelta/sbaspipe/internal/monitoring"
	"github.com/geodelta/sbaspipe/internal/pipeline"
	"github.com/geodelta/sbaspipe/internal/state"
	"github.com/geodelta/sbaspipe/internal/timeutil"
	"github.com/geodelta/sbaspipe/internal/toolexec"
	"github.com/geodelta/sbaspipe/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to the pipeline YAML configuration (required)")
	onlySteps  = flag.String("only-steps", "", "Comma-separated step selectors to run exclusively (e.g. 02,04_download_dem)")
	fromStep   = flag.String("from-step", "", "First step to run (selector)")
	untilStep  = flag.String("until-step", "", "Last step to run (selector)")
	force      = flag.Bool("force", false, "Re-run steps already marked done")
	dryRun     = flag.Bool("dry-run", false, "Log the commands each step would run without executing anything")
	listSteps  = flag.Bool("list-steps", false, "Print the step sequence and exit")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}

	if *listSteps {
		for _, st := range pipeline.Steps() {
			fmt.Printf("%-22s %s\n", st.ID, st.Title)
		}
		return
	}

	if *configPath == "" {
		log.Fatal("-config is required")
	}

	if err := run(); err != nil {
		var se *pipeline.StepError
		if errors.As(err, &se) {
			log.Fatalf("pipeline stopped at step %s: %v", se.StepID, se.Err)
		}
		log.Fatalf("sbaspipe: %v", err)
	}
}

func run() error {
	f, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	resolved, err := config.Resolve(f)
	if err != nil {
		return err
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	var sel pipeline.Selection
	if *onlySteps != "" {
		sel.Only = strings.Split(*onlySteps, ",")
	}
	sel.From = *fromStep
	sel.Until = *untilStep
	steps, err := pipeline.Select(sel)
	if err != nil {
		return err
	}

	paths := pipeline.ProjectPaths(resolved.ProjectDir)
	clock := timeutil.SystemClock{}

	rc := &pipeline.RunContext{
		Config: resolved,
		Paths:  paths,
		Store:  state.New(paths.StateDir, clock),
		Runner: &toolexec.ExecRunner{DryRun: *dryRun},
		Creds:  creds,
		Clock:  clock,
		RunID:  uuid.NewString(),
		Force:  *force,
		DryRun: *dryRun,
	}

	// A dry run must leave no trace: no lock, no log file, no catalog.
	if !*dryRun {
		if err := fsutil.EnsureDir(paths.Root); err != nil {
			return err
		}

		release, err := pipeline.AcquireLock(paths.LockFile())
		if err != nil {
			return err
		}
		defer release()

		closer, err := monitoring.OpenRunLog(paths.LogsDir)
		if err != nil {
			return err
		}
		defer closer.Close()

		cat, err := catalog.Open(paths.CatalogDB())
		if err != nil {
			return err
		}
		defer cat.Close()
		rc.Catalog = cat
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitoring.Logf("run %s: project %s, steps %s", rc.RunID, paths.Root, stepList(steps))
	ex := &pipeline.Executor{RC: rc}
	if err := ex.Run(ctx, steps); err != nil {
		return err
	}
	monitoring.Logf("run %s: complete", rc.RunID)
	return nil
}

func stepList(steps []pipeline.Step) string {
	ids := make([]string, len(steps))
	for i, st := range steps {
		ids[i] = st.ID
	}
	return strings.Join(ids, ",")
}
