package s3

import (
	"context"
	"fmt"
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

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Backend reads an archive from an S3 endpoint.
type Backend struct {
	client *minio.Client
	sem    sema.Semaphore
	cfg    Config
}

// make sure that *Backend implements backend.Backend
var _ backend.Backend = &Backend{}

func NewFactory() location.Factory {
	return location.NewHTTPBackendFactory("s3", NewConfig, Open)
}

// Open opens the S3 backend at bucket and region.
func Open(_ context.Context, cfg Config, rt http.RoundTripper) (*Backend, error) {
	debug.Log("open, config %#v", cfg)

	if cfg.Bucket == "" {
		return nil, errors.Fatal("s3: no bucket specified")
	}

	if cfg.MaxRetries > 0 {
		minio.MaxRetry = int(cfg.MaxRetries)
	}

	// Chains all credential types, in the following order:
	// 	- Static credentials provided by user
	//	- AWS env vars (i.e. AWS_ACCESS_KEY_ID)
	//  - Minio env vars (i.e. MINIO_ACCESS_KEY)
	//  - AWS creds file (i.e. AWS_SHARED_CREDENTIALS_FILE or ~/.aws/credentials)
	//  - Minio creds file (i.e. MINIO_SHARED_CREDENTIALS_FILE or ~/.mc/config.json)
	//  - IAM profile based credentials. (performs an HTTP
	//    call to a pre-defined endpoint, only valid inside
	//    configured ec2 instances)
	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.Static{
			Value: credentials.Value{
				AccessKeyID:     cfg.KeyID,
				SecretAccessKey: cfg.Secret.Unwrap(),
			},
		},
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
		&credentials.FileAWSCredentials{},
		&credentials.FileMinioClient{},
		&credentials.IAM{
			Client: &http.Client{
				Transport: http.DefaultTransport,
			},
		},
	})

	c, err := creds.Get()
	if err != nil {
		return nil, errors.Wrap(err, "creds.Get")
	}

	if c.SignerType == credentials.SignatureAnonymous {
		debug.Log("using anonymous access for %#v", cfg.Endpoint)
	}

	options := &minio.Options{
		Creds:     creds,
		Secure:    !cfg.UseHTTP,
		Region:    cfg.Region,
		Transport: rt,
	}

	switch strings.ToLower(cfg.BucketLookup) {
	case "", "auto":
		options.BucketLookup = minio.BucketLookupAuto
	case "dns":
		options.BucketLookup = minio.BucketLookupDNS
	case "path":
		options.BucketLookup = minio.BucketLookupPath
	default:
		return nil, fmt.Errorf(`bad bucket-lookup style %q must be "auto", "path" or "dns"`, cfg.BucketLookup)
	}

	client, err := minio.New(cfg.Endpoint, options)
	if err != nil {
		return nil, errors.Wrap(err, "minio.New")
	}

	sem, err := sema.New(cfg.Connections)
	if err != nil {
		return nil, err
	}

	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	return &Backend{
		client: client,
		sem:    sem,
		cfg:    cfg,
	}, nil
}

// IsNotExist returns true if the error is caused by a not existing file.
func (be *Backend) IsNotExist(err error) bool {
	var e minio.ErrorResponse
	return errors.As(err, &e) && e.Code == "NoSuchKey"
}

// IsPermanentError returns true if the error is caused by a missing object
// or missing permissions.
func (be *Backend) IsPermanentError(err error) bool {
	if be.IsNotExist(err) {
		return true
	}

	var merr minio.ErrorResponse
	if errors.As(err, &merr) {
		if merr.Code == "InvalidRange" || merr.Code == "AccessDenied" || merr.Code == "NoSuchBucket" {
			return true
		}
	}

	return false
}

func (be *Backend) Connections() uint {
	return be.cfg.Connections
}

// Location returns this backend's location (the bucket name).
func (be *Backend) Location() string {
	return path.Join(be.cfg.Bucket, be.cfg.Prefix)
}

func (be *Backend) objectName(p string) string {
	return backend.Join(be.cfg.Prefix, p)
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

	coreClient := minio.Core{Client: be.client}
	rd, _, _, err := coreClient.GetObject(ctx, be.cfg.Bucket, objName, minio.GetObjectOptions{})
	if err != nil {
		cancel()
		be.sem.ReleaseToken()
		return nil, err
	}

	return be.sem.ReleaseTokenOnClose(rd, cancel), err
}

// Stat returns information about an object.
func (be *Backend) Stat(ctx context.Context, p string) (bi backend.FileInfo, err error) {
	objName := be.objectName(p)
	debug.Log("Stat %v", objName)

	be.sem.GetToken()
	defer be.sem.ReleaseToken()

	fi, err := be.client.StatObject(ctx, be.cfg.Bucket, objName, minio.StatObjectOptions{})
	if err != nil {
		debug.Log("StatObject() err %v", err)
		return backend.FileInfo{}, errors.Wrap(err, "client.StatObject")
	}

	return backend.FileInfo{Size: fi.Size, Path: p}, nil
}

// List runs fn for each object below prefix. When an error occurs (or fn
// returns an error), List stops and returns it.
func (be *Backend) List(ctx context.Context, prefix string, fn func(backend.FileInfo) error) error {
	prefix = backend.CleanPrefix(prefix)
	base := backend.CleanPrefix(be.cfg.Prefix)
	debug.Log("listing %v%v", base, prefix)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// NB: unfortunately we can't protect this with be.sem.GetToken() here.
	// Doing so would enable a deadlock situation (gh-1399), as ListObjects()
	// starts its own goroutine and returns results via a channel.
	listresp := be.client.ListObjects(ctx, be.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    base + prefix,
		Recursive: true,
		UseV1:     be.cfg.ListObjectsV1,
	})

	for obj := range listresp {
		if obj.Err != nil {
			return obj.Err
		}

		name := strings.TrimPrefix(obj.Key, base)
		// Sometimes s3 returns an entry for a directory. Ignore it.
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn(backend.FileInfo{Path: name, Size: obj.Size})
		if err != nil {
			return err
		}
	}

	return ctx.Err()
}

// Close does nothing
func (be *Backend) Close() error { return nil }
