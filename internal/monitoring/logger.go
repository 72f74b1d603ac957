// Package monitoring holds the pipeline's diagnostic logger. The whole
// orchestrator logs through Logf so runs can be teed into the per-project
// log file and tests can mute or capture output.
package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or production code can redirect or
// mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// OpenRunLog opens (appending) the pipeline log file under logsDir and
// installs a logger that writes to both stdout and the file. The returned
// closer restores the previous logger and closes the file.
func OpenRunLog(logsDir string) (io.Closer, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	path := filepath.Join(logsDir, "pipeline.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pipeline log: %w", err)
	}

	prev := Logf
	l := log.New(io.MultiWriter(os.Stdout, f), "", log.LstdFlags)
	Logf = l.Printf

	return &runLog{file: f, prev: prev}, nil
}

type runLog struct {
	file *os.File
	prev func(format string, v ...interface{})
}

func (r *runLog) Close() error {
	Logf = r.prev
	return r.file.Close()
}
