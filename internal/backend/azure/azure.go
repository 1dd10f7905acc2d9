// Package azure provides a read-only archive backend for Azure Blob Storage.
package azure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/location"
	"github.com/restic/kvrecover/internal/backend/util"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	azContainer "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// Backend reads an archive from an azure container.
type Backend struct {
	cfg          Config
	container    *azContainer.Client
	connections  uint
	prefix       string
	listMaxItems int
}

const defaultListMaxItems = 5000

// make sure that *Backend implements backend.Backend
var _ backend.Backend = &Backend{}

func NewFactory() location.Factory {
	return location.NewHTTPBackendFactory("azure", NewConfig, Open)
}

func containerURL(cfg Config) string {
	endpointSuffix := cfg.EndpointSuffix
	if endpointSuffix == "" {
		endpointSuffix = "core.windows.net"
	}
	return fmt.Sprintf("https://%s.blob.%s/%s", cfg.AccountName, endpointSuffix, cfg.Container)
}

// Open opens the Azure backend at specified container.
func Open(_ context.Context, cfg Config, rt http.RoundTripper) (*Backend, error) {
	debug.Log("open, config %#v", cfg)

	if cfg.AccountName == "" || cfg.Container == "" {
		return nil, errors.Fatal("azure: account name and container are required")
	}

	var client *azContainer.Client
	var err error

	url := containerURL(cfg)
	opts := &azContainer.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: &http.Client{Transport: rt},
		},
	}

	switch {
	case cfg.AccountKey.String() != "":
		debug.Log(" - using account key")
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey.Unwrap())
		if err != nil {
			return nil, errors.Wrap(err, "NewSharedKeyCredential")
		}

		client, err = azContainer.NewClientWithSharedKeyCredential(url, cred, opts)
		if err != nil {
			return nil, errors.Wrap(err, "NewClientWithSharedKeyCredential")
		}

	case cfg.AccountSAS.String() != "":
		debug.Log(" - using sas token")
		sas := strings.TrimPrefix(cfg.AccountSAS.Unwrap(), "?")

		client, err = azContainer.NewClientWithNoCredential(fmt.Sprintf("%s?%s", url, sas), opts)
		if err != nil {
			return nil, errors.Wrap(err, "NewClientWithNoCredential")
		}

	default:
		var cred azcore.TokenCredential

		if cfg.ForceCliCredential {
			debug.Log(" - using AzureCLICredential")
			cred, err = azidentity.NewAzureCLICredential(nil)
			if err != nil {
				return nil, errors.Wrap(err, "NewAzureCLICredential")
			}
		} else {
			debug.Log(" - using DefaultAzureCredential")
			cred, err = azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return nil, errors.Wrap(err, "NewDefaultAzureCredential")
			}
		}

		client, err = azContainer.NewClient(url, cred, opts)
		if err != nil {
			return nil, errors.Wrap(err, "NewClient")
		}
	}

	return &Backend{
		container:    client,
		cfg:          cfg,
		connections:  cfg.Connections,
		prefix:       strings.Trim(cfg.Prefix, "/"),
		listMaxItems: defaultListMaxItems,
	}, nil
}

// SetListMaxItems sets the number of list items to load per request.
func (be *Backend) SetListMaxItems(i int) {
	be.listMaxItems = i
}

// IsNotExist returns true if the error is caused by a not existing file.
func (be *Backend) IsNotExist(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound)
}

func (be *Backend) IsPermanentError(err error) bool {
	if be.IsNotExist(err) || bloberror.HasCode(err, bloberror.ContainerNotFound) {
		return true
	}

	var aerr *azcore.ResponseError
	if errors.As(err, &aerr) {
		if aerr.StatusCode == http.StatusRequestedRangeNotSatisfiable || aerr.StatusCode == http.StatusUnauthorized || aerr.StatusCode == http.StatusForbidden {
			return true
		}
	}
	return false
}

func (be *Backend) Connections() uint {
	return be.connections
}

// Location returns this backend's location (the container name).
func (be *Backend) Location() string {
	return path.Join(be.cfg.AccountName, be.cfg.Container, be.prefix)
}

func (be *Backend) objectName(p string) string {
	return backend.Join(be.prefix, p)
}

// Load runs fn with a reader that yields the contents of the blob at p.
func (be *Backend) Load(ctx context.Context, p string, fn func(rd io.Reader) error) error {
	return util.DefaultLoad(ctx, p, be.openReader, fn)
}

func (be *Backend) openReader(ctx context.Context, p string) (io.ReadCloser, error) {
	objName := be.objectName(p)
	debug.Log("Load %v from %v", p, objName)

	resp, err := be.container.NewBlobClient(objName).DownloadStream(ctx, nil)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// Stat returns information about a blob.
func (be *Backend) Stat(ctx context.Context, p string) (backend.FileInfo, error) {
	blobClient := be.container.NewBlobClient(be.objectName(p))

	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return backend.FileInfo{}, errors.Wrap(err, "blob.GetProperties")
	}

	fi := backend.FileInfo{Path: p}
	if props.ContentLength != nil {
		fi.Size = *props.ContentLength
	}
	return fi, nil
}

// List runs fn for each blob below prefix. When an error occurs (or fn
// returns an error), List stops and returns it.
func (be *Backend) List(ctx context.Context, prefix string, fn func(backend.FileInfo) error) error {
	base := backend.CleanPrefix(be.prefix)
	full := base + backend.CleanPrefix(prefix)

	max := int32(be.listMaxItems)

	opts := &azContainer.ListBlobsFlatOptions{
		MaxResults: &max,
		Prefix:     &full,
	}
	lister := be.container.NewListBlobsFlatPager(opts)

	for lister.More() {
		resp, err := lister.NextPage(ctx)
		if err != nil {
			return err
		}

		debug.Log("got %v objects", len(resp.Segment.BlobItems))

		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}

			m := strings.TrimPrefix(*item.Name, base)
			if m == "" {
				continue
			}

			fi := backend.FileInfo{Path: m}
			if item.Properties != nil && item.Properties.ContentLength != nil {
				fi.Size = *item.Properties.ContentLength
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}

			err := fn(fi)
			if err != nil {
				return err
			}
		}
	}

	return ctx.Err()
}

// Close does nothing
func (be *Backend) Close() error { return nil }
