// Package pipeline sequences the processing steps: it owns the step table,
// the per-run context, and the executor that drives steps through the state
// store. Step implementations orchestrate external tools and never perform
// SAR processing themselves.
package pipeline

import (
	"path/filepath"

	"github.com/geodelta/sbaspipe/internal/fsutil"
)

// Paths is the fixed project directory layout. Every step resolves its
// inputs and outputs through Paths so the layout is defined once.
type Paths struct {
	Root          string
	StateDir      string
	LogsDir       string
	SearchDir     string
	SLCDir        string
	DEMDir        string
	OrbitDir      string
	AuxDir        string
	StackDir      string
	TimeseriesDir string
}

// ProjectPaths derives the layout under a project root.
func ProjectPaths(root string) Paths {
	data := filepath.Join(root, "data")
	return Paths{
		Root:          root,
		StateDir:      filepath.Join(root, ".state"),
		LogsDir:       filepath.Join(root, "logs"),
		SearchDir:     filepath.Join(data, "search"),
		SLCDir:        filepath.Join(data, "slc"),
		DEMDir:        filepath.Join(data, "dem"),
		OrbitDir:      filepath.Join(data, "orbit"),
		AuxDir:        filepath.Join(data, "aux"),
		StackDir:      filepath.Join(root, "stack"),
		TimeseriesDir: filepath.Join(root, "timeseries"),
	}
}

// EnsureAll creates every directory in the layout.
func (p Paths) EnsureAll() error {
	for _, dir := range []string{
		p.StateDir, p.LogsDir, p.SearchDir, p.SLCDir, p.DEMDir,
		p.OrbitDir, p.AuxDir, p.StackDir, p.TimeseriesDir,
	} {
		if err := fsutil.EnsureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// SceneManifest is where the search tool is told to write its results.
func (p Paths) SceneManifest() string {
	return filepath.Join(p.SearchDir, "scenes.json")
}

// CatalogDB is the per-project scene catalog database.
func (p Paths) CatalogDB() string {
	return filepath.Join(p.Root, "catalog.db")
}

// LockFile is the advisory lock held for the duration of a run.
func (p Paths) LockFile() string {
	return filepath.Join(p.StateDir, "lock")
}
