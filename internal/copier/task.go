package copier

import (
	"github.com/restic/kvrecover/internal/manifest"
)

// TaskState is the lifecycle state of a Task.
type TaskState int

const (
	Pending TaskState = iota
	Retrying
	Verified
	Fatal
)

func (s TaskState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Retrying:
		return "retrying"
	case Verified:
		return "verified"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Task copies one log segment to a local path.
type Task struct {
	Entry manifest.LogFileEntry
	Dest  string

	State    TaskState
	Attempts int
	Err      error
}
