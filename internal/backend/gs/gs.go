// Package gs provides a read-only archive backend for Google Cloud Storage.
package gs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/location"
	"github.com/restic/kvrecover/internal/backend/sema"
	"github.com/restic/kvrecover/internal/backend/util"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Backend reads an archive from a GCS bucket.
//
// The service account used to access the bucket must have these permissions:
//   - storage.objects.get
//   - storage.objects.list
type Backend struct {
	gcsClient   *storage.Client
	projectID   string
	connections uint
	sem         sema.Semaphore
	bucketName  string
	bucket      *storage.BucketHandle
	prefix      string
}

// Ensure that *Backend implements backend.Backend.
var _ backend.Backend = &Backend{}

func NewFactory() location.Factory {
	return location.NewHTTPBackendFactory("gs", NewConfig, Open)
}

func getStorageClient(rt http.RoundTripper) (*storage.Client, error) {
	// create a new HTTP client
	httpClient := &http.Client{
		Transport: rt,
	}

	// create a now context with the HTTP client stored at the oauth2.HTTPClient key
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	var ts oauth2.TokenSource
	if token := os.Getenv("GOOGLE_ACCESS_TOKEN"); token != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		})
	} else {
		var err error
		ts, err = google.DefaultTokenSource(ctx, storage.ScopeReadOnly)
		if err != nil {
			return nil, err
		}
	}

	oauthClient := oauth2.NewClient(ctx, ts)

	gcsClient, err := storage.NewClient(ctx, option.WithHTTPClient(oauthClient))
	if err != nil {
		return nil, err
	}

	return gcsClient, nil
}

// Open opens the gs backend at the specified bucket.
func Open(_ context.Context, cfg Config, rt http.RoundTripper) (*Backend, error) {
	debug.Log("open, config %#v", cfg)

	if cfg.Bucket == "" {
		return nil, errors.Fatal("gs: no bucket specified")
	}

	gcsClient, err := getStorageClient(rt)
	if err != nil {
		return nil, errors.Wrap(err, "getStorageClient")
	}

	sem, err := sema.New(cfg.Connections)
	if err != nil {
		return nil, err
	}

	return &Backend{
		gcsClient:   gcsClient,
		projectID:   cfg.ProjectID,
		connections: cfg.Connections,
		sem:         sem,
		bucketName:  cfg.Bucket,
		bucket:      gcsClient.Bucket(cfg.Bucket),
		prefix:      strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// IsNotExist returns true if the error is caused by a not existing file.
func (be *Backend) IsNotExist(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}

	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// IsPermanentError returns true for missing objects and missing permissions.
func (be *Backend) IsPermanentError(err error) bool {
	if be.IsNotExist(err) || errors.Is(err, storage.ErrBucketNotExist) {
		return true
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusRequestedRangeNotSatisfiable || gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden {
			return true
		}
	}

	return false
}

func (be *Backend) Connections() uint {
	return be.connections
}

// Location returns this backend's location (the bucket name).
func (be *Backend) Location() string {
	return path.Join(be.bucketName, be.prefix)
}

func (be *Backend) objectName(p string) string {
	return backend.Join(be.prefix, p)
}

// Load runs fn with a reader that yields the contents of the object at p.
func (be *Backend) Load(ctx context.Context, p string, fn func(rd io.Reader) error) error {
	return util.DefaultLoad(ctx, p, be.openReader, fn)
}

func (be *Backend) openReader(ctx context.Context, p string) (io.ReadCloser, error) {
	objName := be.objectName(p)
	debug.Log("Load %v from %v", p, objName)

	be.sem.GetToken()
	ctx, cancel := context.WithCancel(ctx)

	r, err := be.bucket.Object(objName).NewReader(ctx)
	if err != nil {
		cancel()
		be.sem.ReleaseToken()
		return nil, err
	}

	return be.sem.ReleaseTokenOnClose(r, cancel), err
}

// Stat returns information about an object.
func (be *Backend) Stat(ctx context.Context, p string) (bi backend.FileInfo, err error) {
	objName := be.objectName(p)

	be.sem.GetToken()
	attr, err := be.bucket.Object(objName).Attrs(ctx)
	be.sem.ReleaseToken()

	if err != nil {
		debug.Log("GetObjectAttributes() err %v", err)
		return backend.FileInfo{}, errors.Wrap(err, "service.Objects.Get")
	}

	return backend.FileInfo{Size: attr.Size, Path: p}, nil
}

// List runs fn for each object below prefix. When an error occurs (or fn
// returns an error), List stops and returns it.
func (be *Backend) List(ctx context.Context, prefix string, fn func(backend.FileInfo) error) error {
	base := backend.CleanPrefix(be.prefix)
	prefix = backend.CleanPrefix(prefix)
	debug.Log("listing %v%v", base, prefix)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	itr := be.bucket.Objects(ctx, &storage.Query{Prefix: base + prefix})

	for {
		attrs, err := itr.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("list objects below %q: %w", base+prefix, err)
		}

		name := strings.TrimPrefix(attrs.Name, base)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}

		err = fn(backend.FileInfo{Path: name, Size: attrs.Size})
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return ctx.Err()
}

// Close does nothing.
func (be *Backend) Close() error { return nil }
