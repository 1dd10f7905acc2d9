package sema

import (
	"context"
	"io"

	"github.com/cenkalti/backoff/v4"
	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/errors"
)

// make sure that connectionLimitedBackend implements backend.Backend
var _ backend.Backend = &connectionLimitedBackend{}

// connectionLimitedBackend limits the number of concurrent operations.
type connectionLimitedBackend struct {
	backend.Backend
	sem Semaphore
}

// NewBackend creates a backend that limits the concurrent operations on the underlying backend
func NewBackend(be backend.Backend) backend.Backend {
	sem, err := New(be.Connections())
	if err != nil {
		panic(err)
	}

	return &connectionLimitedBackend{
		Backend: be,
		sem:     sem,
	}
}

func (be *connectionLimitedBackend) limit() func() {
	be.sem.GetToken()
	return be.sem.ReleaseToken
}

func validPath(p string) error {
	if p == "" {
		return errors.New("invalid path: empty")
	}
	return nil
}

// Load runs fn with a reader that yields the contents of the object at p.
func (be *connectionLimitedBackend) Load(ctx context.Context, p string, fn func(rd io.Reader) error) error {
	if err := validPath(p); err != nil {
		return backoff.Permanent(err)
	}

	defer be.limit()()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	return be.Backend.Load(ctx, p, fn)
}

// Stat returns information about an object in the backend.
func (be *connectionLimitedBackend) Stat(ctx context.Context, p string) (backend.FileInfo, error) {
	if err := validPath(p); err != nil {
		return backend.FileInfo{}, backoff.Permanent(err)
	}

	defer be.limit()()

	if ctx.Err() != nil {
		return backend.FileInfo{}, ctx.Err()
	}

	return be.Backend.Stat(ctx, p)
}

func (be *connectionLimitedBackend) Unwrap() backend.Backend {
	return be.Backend
}
