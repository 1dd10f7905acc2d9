package mock

import (
	"context"
	"io"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/errors"
)

// Backend implements a mock backend.
type Backend struct {
	CloseFn            func() error
	IsNotExistFn       func(err error) bool
	IsPermanentErrorFn func(err error) bool
	OpenReaderFn       func(ctx context.Context, p string) (io.ReadCloser, error)
	StatFn             func(ctx context.Context, p string) (backend.FileInfo, error)
	ListFn             func(ctx context.Context, prefix string, fn func(backend.FileInfo) error) error
	ConnectionsFn      func() uint
}

// NewBackend returns new mock Backend instance
func NewBackend() *Backend {
	be := &Backend{}
	return be
}

// Location returns a fixed location.
func (m *Backend) Location() string {
	return "mock"
}

// Close the backend.
func (m *Backend) Close() error {
	if m.CloseFn == nil {
		return nil
	}

	return m.CloseFn()
}

func (m *Backend) Connections() uint {
	if m.ConnectionsFn == nil {
		return 2
	}

	return m.ConnectionsFn()
}

// IsNotExist returns true if the error is caused by a missing file.
func (m *Backend) IsNotExist(err error) bool {
	if m.IsNotExistFn == nil {
		return false
	}

	return m.IsNotExistFn(err)
}

func (m *Backend) IsPermanentError(err error) bool {
	if m.IsPermanentErrorFn == nil {
		return false
	}

	return m.IsPermanentErrorFn(err)
}

// Load runs fn with a reader that yields the contents of the object at p.
func (m *Backend) Load(ctx context.Context, p string, fn func(rd io.Reader) error) error {
	rd, err := m.openReader(ctx, p)
	if err != nil {
		return err
	}
	err = fn(rd)
	if err != nil {
		_ = rd.Close() // ignore secondary errors closing the reader
		return err
	}
	return rd.Close()
}

func (m *Backend) openReader(ctx context.Context, p string) (io.ReadCloser, error) {
	if m.OpenReaderFn == nil {
		return nil, errors.New("not implemented")
	}

	return m.OpenReaderFn(ctx, p)
}

// Stat an object in the backend.
func (m *Backend) Stat(ctx context.Context, p string) (backend.FileInfo, error) {
	if m.StatFn == nil {
		return backend.FileInfo{}, errors.New("not implemented")
	}

	return m.StatFn(ctx, p)
}

// List objects below prefix.
func (m *Backend) List(ctx context.Context, prefix string, fn func(backend.FileInfo) error) error {
	if m.ListFn == nil {
		return nil
	}

	return m.ListFn(ctx, prefix, fn)
}

// Make sure that Backend implements the backend interface.
var _ backend.Backend = &Backend{}
