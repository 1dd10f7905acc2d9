// Package b2 provides a read-only archive backend for Backblaze B2.
package b2

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/location"
	"github.com/restic/kvrecover/internal/backend/sema"
	"github.com/restic/kvrecover/internal/backend/util"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"

	"github.com/Backblaze/blazer/b2"
)

// b2Backend is a backend which reads its data from Backblaze B2.
type b2Backend struct {
	client       *b2.Client
	bucket       *b2.Bucket
	cfg          Config
	listMaxItems int
	sem          sema.Semaphore
}

// Billing happens in 1000 item granularity, but we are more interested in
// reducing the number of network round trips.
const defaultListMaxItems = 10 * 1000

// ensure statically that *b2Backend implements backend.Backend.
var _ backend.Backend = &b2Backend{}

func NewFactory() location.Factory {
	return location.NewHTTPBackendFactory("b2", NewConfig, Open)
}

func newClient(ctx context.Context, cfg Config, rt http.RoundTripper) (*b2.Client, error) {
	opts := []b2.ClientOption{b2.Transport(rt)}

	c, err := b2.NewClient(ctx, cfg.AccountID, cfg.Key.Unwrap(), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "b2.NewClient")
	}
	return c, nil
}

// Open opens a connection to the B2 service.
func Open(ctx context.Context, cfg Config, rt http.RoundTripper) (backend.Backend, error) {
	debug.Log("cfg %#v", cfg)

	if err := checkBucketName(cfg.Bucket); err != nil {
		return nil, errors.Fatalf("b2: %v", err)
	}

	if cfg.AccountID == "" {
		return nil, errors.Fatal("b2: no account ID specified")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := newClient(ctx, cfg, rt)
	if err != nil {
		return nil, err
	}

	bucket, err := client.Bucket(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "Bucket")
	}

	sem, err := sema.New(cfg.Connections)
	if err != nil {
		return nil, err
	}

	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	be := &b2Backend{
		client:       client,
		bucket:       bucket,
		cfg:          cfg,
		listMaxItems: defaultListMaxItems,
		sem:          sem,
	}

	return be, nil
}

// SetListMaxItems sets the number of list items to load per request.
func (be *b2Backend) SetListMaxItems(i int) {
	be.listMaxItems = i
}

func (be *b2Backend) Connections() uint {
	return be.cfg.Connections
}

// Location returns the location for the backend.
func (be *b2Backend) Location() string {
	return path.Join(be.cfg.Bucket, be.cfg.Prefix)
}

// IsNotExist returns true if the error is caused by a non-existing file.
func (be *b2Backend) IsNotExist(err error) bool {
	return b2.IsNotExist(errors.Cause(err))
}

func (be *b2Backend) IsPermanentError(err error) bool {
	if be.IsNotExist(err) {
		return true
	}

	code, _ := b2.Code(errors.Cause(err))
	return code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusRequestedRangeNotSatisfiable
}

func (be *b2Backend) objectName(p string) string {
	return backend.Join(be.cfg.Prefix, p)
}

// Load runs fn with a reader that yields the contents of the file at p.
func (be *b2Backend) Load(ctx context.Context, p string, fn func(rd io.Reader) error) error {
	return util.DefaultLoad(ctx, p, be.openReader, fn)
}

func (be *b2Backend) openReader(ctx context.Context, p string) (io.ReadCloser, error) {
	name := be.objectName(p)
	debug.Log("Load %v from %v", p, name)

	ctx, cancel := context.WithCancel(ctx)

	be.sem.GetToken()

	rd := be.bucket.Object(name).NewReader(ctx)
	return be.sem.ReleaseTokenOnClose(rd, cancel), nil
}

// Stat returns information about a file.
func (be *b2Backend) Stat(ctx context.Context, p string) (bi backend.FileInfo, err error) {
	debug.Log("Stat %v", p)

	be.sem.GetToken()
	defer be.sem.ReleaseToken()

	attrs, err := be.bucket.Object(be.objectName(p)).Attrs(ctx)
	if err != nil {
		debug.Log("Attrs() err %v", err)
		return backend.FileInfo{}, errors.Wrap(err, "Stat")
	}
	return backend.FileInfo{Size: attrs.Size, Path: p}, nil
}

// semLocker wraps a sema.Semaphore so that it can be passed to blazer.
type semLocker struct {
	sema.Semaphore
}

func (sm semLocker) Lock()   { sm.GetToken() }
func (sm semLocker) Unlock() { sm.ReleaseToken() }

// List runs fn for each file below prefix.
func (be *b2Backend) List(ctx context.Context, prefix string, fn func(backend.FileInfo) error) error {
	base := backend.CleanPrefix(be.cfg.Prefix)
	full := base + backend.CleanPrefix(prefix)
	debug.Log("List %v", full)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	iter := be.bucket.List(ctx, b2.ListPrefix(full), b2.ListPageSize(be.listMaxItems), b2.ListLocker(semLocker{be.sem}))

	for iter.Next() {
		obj := iter.Object()

		attrs, err := obj.Attrs(ctx)
		if err != nil {
			return err
		}

		fi := backend.FileInfo{
			Path: strings.TrimPrefix(obj.Name(), base),
			Size: attrs.Size,
		}

		if err := fn(fi); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		debug.Log("List: %v", err)
		return err
	}
	return nil
}

// Close does nothing
func (be *b2Backend) Close() error { return nil }
