package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/geodelta/sbaspipe/internal/fsutil"
)

// AcquireLock takes the project's advisory run lock by creating the lock
// file exclusively with the holder's pid inside. The returned release
// removes it. A held lock means another orchestrator invocation is active
// on the same project; the state store is not safe for two writers.
func AcquireLock(path string) (release func(), err error) {
	if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			holder := "unknown pid"
			if data, rerr := os.ReadFile(path); rerr == nil && len(data) > 0 {
				holder = "pid " + string(data)
			}
			return nil, fmt.Errorf("project is locked by another run (%s); remove %s if that process is gone", holder, path)
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write lock file: %v", werr)
	}
	return func() { os.Remove(path) }, nil
}
