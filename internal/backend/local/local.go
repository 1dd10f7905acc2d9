package local

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/location"
	"github.com/restic/kvrecover/internal/backend/sema"
	"github.com/restic/kvrecover/internal/backend/util"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"

	"github.com/cenkalti/backoff/v4"
)

// Local is a backend in a local directory, e.g. a mounted archive volume.
type Local struct {
	Config
	sem sema.Semaphore
}

// ensure statically that *Local implements backend.Backend.
var _ backend.Backend = &Local{}

func NewFactory() location.Factory {
	return location.NewLimitedBackendFactory("local", NewConfig, Open)
}

// Open opens the local backend as specified by config.
func Open(_ context.Context, cfg Config) (*Local, error) {
	debug.Log("open local backend at %v", cfg.Path)

	sem, err := sema.New(cfg.Connections)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, "Stat")
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("%v is not a directory", cfg.Path)
	}

	return &Local{
		Config: cfg,
		sem:    sem,
	}, nil
}

func (b *Local) Connections() uint {
	return b.Config.Connections
}

// Location returns this backend's location (the directory name).
func (b *Local) Location() string {
	return b.Path
}

// filename returns the local file name for the archive path p.
func (b *Local) filename(p string) string {
	return filepath.Join(b.Path, filepath.FromSlash(strings.TrimPrefix(p, "/")))
}

// IsNotExist returns true if the error is caused by a non existing file.
func (b *Local) IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// IsPermanentError returns true if the error is caused by a missing file or
// missing permissions.
func (b *Local) IsPermanentError(err error) bool {
	return b.IsNotExist(err) || errors.Is(err, os.ErrPermission)
}

// Load runs fn with a reader that yields the contents of the file at p.
func (b *Local) Load(ctx context.Context, p string, fn func(rd io.Reader) error) error {
	return util.DefaultLoad(ctx, p, b.openReader, fn)
}

func (b *Local) openReader(_ context.Context, p string) (io.ReadCloser, error) {
	debug.Log("Load %v", p)

	b.sem.GetToken()
	f, err := os.Open(b.filename(p))
	if err != nil {
		b.sem.ReleaseToken()
		if b.IsPermanentError(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return b.sem.ReleaseTokenOnClose(f, nil), nil
}

// Stat returns information about the file at p.
func (b *Local) Stat(_ context.Context, p string) (backend.FileInfo, error) {
	debug.Log("Stat %v", p)

	b.sem.GetToken()
	defer b.sem.ReleaseToken()

	fi, err := os.Stat(b.filename(p))
	if err != nil {
		return backend.FileInfo{}, errors.WithStack(err)
	}

	return backend.FileInfo{Size: fi.Size(), Path: strings.TrimPrefix(p, "/")}, nil
}

// List runs fn for each regular file below prefix. When an error occurs (or
// fn returns an error), List stops and returns it. A missing prefix
// directory is reported as an error for which IsNotExist returns true.
func (b *Local) List(ctx context.Context, prefix string, fn func(backend.FileInfo) error) error {
	prefix = backend.CleanPrefix(prefix)
	debug.Log("List %v", prefix)

	root := b.filename(prefix)
	return filepath.WalkDir(root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, name)
		if err != nil {
			return err
		}

		return fn(backend.FileInfo{
			Path: prefix + filepath.ToSlash(rel),
			Size: fi.Size(),
		})
	})
}

// Close closes all open files.
func (b *Local) Close() error {
	debug.Log("Close()")
	// this does not need to do anything, all open files are closed within the
	// same function.
	return nil
}
