package executor

import (
	"path/filepath"

	"github.com/shirou/gopsutil/disk"

	"github.com/restic/kvrecover/internal/errors"
)

// freeSpace returns the space available to unprivileged users on the file
// system holding dir. Missing directories are resolved to their nearest
// existing parent.
func freeSpace(dir string) (uint64, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	for {
		usage, err := disk.Usage(dir)
		if err == nil {
			return usage.Free, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return 0, errors.Wrap(err, "disk usage")
		}
		dir = parent
	}
}
