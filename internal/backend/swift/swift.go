// Package swift provides a read-only archive backend for OpenStack Swift.
package swift

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/location"
	"github.com/restic/kvrecover/internal/backend/sema"
	"github.com/restic/kvrecover/internal/backend/util"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"

	"github.com/ncw/swift/v2"
)

// beSwift is a backend which reads the archive from a swift endpoint.
type beSwift struct {
	conn        *swift.Connection
	connections uint
	sem         sema.Semaphore
	container   string // Container name
	prefix      string // Prefix of object names in the container
}

// ensure statically that *beSwift implements backend.Backend.
var _ backend.Backend = &beSwift{}

func NewFactory() location.Factory {
	return location.NewHTTPBackendFactory("swift", NewConfig, Open)
}

// Open opens the swift backend at a container in region. The container must
// already exist.
func Open(ctx context.Context, cfg Config, rt http.RoundTripper) (backend.Backend, error) {
	debug.Log("config %#v", cfg)

	sem, err := sema.New(cfg.Connections)
	if err != nil {
		return nil, err
	}

	be := &beSwift{
		conn: &swift.Connection{
			UserName:                    cfg.UserName,
			UserId:                      cfg.UserID,
			Domain:                      cfg.Domain,
			DomainId:                    cfg.DomainID,
			ApiKey:                      cfg.APIKey,
			AuthUrl:                     cfg.AuthURL,
			Region:                      cfg.Region,
			Tenant:                      cfg.Tenant,
			TenantId:                    cfg.TenantID,
			TenantDomain:                cfg.TenantDomain,
			TenantDomainId:              cfg.TenantDomainID,
			TrustId:                     cfg.TrustID,
			StorageUrl:                  cfg.StorageURL,
			AuthToken:                   cfg.AuthToken.Unwrap(),
			ApplicationCredentialId:     cfg.ApplicationCredentialID,
			ApplicationCredentialName:   cfg.ApplicationCredentialName,
			ApplicationCredentialSecret: cfg.ApplicationCredentialSecret.Unwrap(),
			ConnectTimeout:              time.Minute,
			Timeout:                     time.Minute,

			Transport: rt,
		},
		connections: cfg.Connections,
		sem:         sem,
		container:   cfg.Container,
		prefix:      strings.Trim(cfg.Prefix, "/"),
	}

	// Authenticate if needed
	if !be.conn.Authenticated() {
		if err := be.conn.Authenticate(ctx); err != nil {
			return nil, errors.Wrap(err, "conn.Authenticate")
		}
	}

	if _, _, err := be.conn.Container(ctx, be.container); err != nil {
		return nil, errors.Wrap(err, "conn.Container")
	}

	return be, nil
}

func (be *beSwift) Connections() uint {
	return be.connections
}

// Location returns this backend's location (the container name).
func (be *beSwift) Location() string {
	return path.Join(be.container, be.prefix)
}

func (be *beSwift) objectName(p string) string {
	return backend.Join(be.prefix, p)
}

// Load runs fn with a reader that yields the contents of the object at p.
func (be *beSwift) Load(ctx context.Context, p string, fn func(rd io.Reader) error) error {
	return util.DefaultLoad(ctx, p, be.openReader, fn)
}

func (be *beSwift) openReader(ctx context.Context, p string) (io.ReadCloser, error) {
	objName := be.objectName(p)
	debug.Log("Load %v from %v", p, objName)

	be.sem.GetToken()
	obj, _, err := be.conn.ObjectOpen(ctx, be.container, objName, false, nil)
	if err != nil {
		debug.Log("  err %v", err)
		be.sem.ReleaseToken()
		return nil, errors.Wrap(err, "conn.ObjectOpen")
	}

	return be.sem.ReleaseTokenOnClose(obj, nil), nil
}

// Stat returns information about an object.
func (be *beSwift) Stat(ctx context.Context, p string) (bi backend.FileInfo, err error) {
	debug.Log("%v", p)

	be.sem.GetToken()
	defer be.sem.ReleaseToken()

	obj, _, err := be.conn.Object(ctx, be.container, be.objectName(p))
	if err != nil {
		debug.Log("Object() err %v", err)
		return backend.FileInfo{}, errors.Wrap(err, "conn.Object")
	}

	return backend.FileInfo{Size: obj.Bytes, Path: p}, nil
}

// List runs fn for each object below prefix. When an error occurs (or fn
// returns an error), List stops and returns it.
func (be *beSwift) List(ctx context.Context, prefix string, fn func(backend.FileInfo) error) error {
	base := backend.CleanPrefix(be.prefix)
	full := base + backend.CleanPrefix(prefix)
	debug.Log("listing %v", full)

	err := be.conn.ObjectsWalk(ctx, be.container, &swift.ObjectsOpts{Prefix: full},
		func(ctx context.Context, opts *swift.ObjectsOpts) (interface{}, error) {
			be.sem.GetToken()
			newObjects, err := be.conn.Objects(ctx, be.container, opts)
			be.sem.ReleaseToken()

			if err != nil {
				return nil, errors.Wrap(err, "conn.ObjectNames")
			}
			for _, obj := range newObjects {
				m := strings.TrimPrefix(obj.Name, base)
				if m == "" || obj.PseudoDirectory {
					continue
				}

				err := fn(backend.FileInfo{Path: m, Size: obj.Bytes})
				if err != nil {
					return nil, err
				}

				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
			}
			return newObjects, nil
		})

	if err != nil {
		return err
	}

	return ctx.Err()
}

// IsNotExist returns true if the error is caused by a not existing file.
func (be *beSwift) IsNotExist(err error) bool {
	var e *swift.Error
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}

func (be *beSwift) IsPermanentError(err error) bool {
	if be.IsNotExist(err) {
		return true
	}

	var serr *swift.Error
	if errors.As(err, &serr) {
		if serr.StatusCode == http.StatusRequestedRangeNotSatisfiable || serr.StatusCode == http.StatusUnauthorized || serr.StatusCode == http.StatusForbidden {
			return true
		}
	}

	return false
}

// Close does nothing
func (be *beSwift) Close() error { return nil }
