package backend

import (
	"context"
	"io"
)

// Backend gives read access to an archive of node backups. Paths are
// slash-separated and relative to the root the backend was opened with.
//
// Backend operations that return an error will be retried when a Backend is
// wrapped by the retry package. To prevent that from happening, the
// operations should return a github.com/cenkalti/backoff/v4.PermanentError.
// Errors from the context package need not be wrapped, as context
// cancellation is checked separately by the retrying logic.
type Backend interface {
	// Location returns a string that describes the archive location.
	Location() string

	// Connections returns the maximum number of concurrent backend operations.
	Connections() uint

	// Load runs fn with a reader that yields the contents of the object at
	// path.
	//
	// The function fn may be called multiple times during the same Load
	// invocation and therefore must be idempotent.
	//
	// Implementations are encouraged to use util.DefaultLoad
	Load(ctx context.Context, path string, fn func(rd io.Reader) error) error

	// Stat returns information about the object at path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List runs fn for each object below prefix, recursively. When an error
	// occurs (or fn returns an error), List stops and returns it.
	//
	// The function fn is called exactly once for each object during
	// successful execution and at most once in case of an error.
	//
	// The function fn is called in the same Goroutine that List() is called
	// from.
	List(ctx context.Context, prefix string, fn func(FileInfo) error) error

	// IsNotExist returns true if the error was caused by a non-existing
	// object in the backend.
	//
	// The argument may be a wrapped error. The implementation is responsible
	// for unwrapping it.
	IsNotExist(err error) bool

	// IsPermanentError returns true if the error can very likely not be
	// resolved by retrying the operation. Backends should return true if the
	// object is missing or the user is not authorized to perform the
	// requested operation.
	IsPermanentError(err error) bool

	// Close the backend
	Close() error
}

type Unwrapper interface {
	// Unwrap returns the underlying backend or nil if there is none.
	Unwrap() Backend
}

func AsBackend[B Backend](b Backend) B {
	for b != nil {
		if be, ok := b.(B); ok {
			return be
		}

		if be, ok := b.(Unwrapper); ok {
			b = be.Unwrap()
		} else {
			// not the backend we're looking for
			break
		}
	}
	var be B
	return be
}

// FileInfo contains information about an object in the backend.
type FileInfo struct {
	Size int64
	Path string
}

// ApplyEnvironmenter fills in a backend configuration from the environment
type ApplyEnvironmenter interface {
	ApplyEnvironment(prefix string)
}
