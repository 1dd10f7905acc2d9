package mem

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/location"
	"github.com/restic/kvrecover/internal/backend/util"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"
)

type memMap map[string][]byte

// make sure that MemoryBackend implements backend.Backend
var _ backend.Backend = &MemoryBackend{}

// NewFactory creates a factory that always returns be. This allows tests and
// dry runs to hand a prepared archive to code that opens backends by name.
func NewFactory(be *MemoryBackend) location.Factory {
	return location.NewHTTPBackendFactory[struct{}, *MemoryBackend](
		"mem",
		func() struct{} {
			return struct{}{}
		},
		func(_ context.Context, _ struct{}, _ http.RoundTripper) (*MemoryBackend, error) {
			return be, nil
		},
	)
}

var errNotFound = errors.New("not found")

const connectionCount = 2

// MemoryBackend is a mock backend that uses a map for storing all data in
// memory. This should only be used for tests.
type MemoryBackend struct {
	data memMap
	m    sync.Mutex
}

// New returns a new backend that keeps all data in a map in memory.
func New() *MemoryBackend {
	be := &MemoryBackend{
		data: make(memMap),
	}

	debug.Log("created new memory backend")

	return be
}

// Put stores data at p, replacing any existing object.
func (be *MemoryBackend) Put(p string, data []byte) {
	be.m.Lock()
	defer be.m.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	be.data[clean(p)] = buf
}

// Delete removes the object at p.
func (be *MemoryBackend) Delete(p string) {
	be.m.Lock()
	defer be.m.Unlock()

	delete(be.data, clean(p))
}

// Fingerprint returns a content hash of the object at p, or an empty string
// if it does not exist.
func (be *MemoryBackend) Fingerprint(p string) string {
	be.m.Lock()
	defer be.m.Unlock()

	buf, ok := be.data[clean(p)]
	if !ok {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(buf), 16)
}

func clean(p string) string {
	return strings.TrimPrefix(path.Clean(p), "/")
}

// IsNotExist returns true if the file does not exist.
func (be *MemoryBackend) IsNotExist(err error) bool {
	return errors.Is(err, errNotFound)
}

func (be *MemoryBackend) IsPermanentError(err error) bool {
	return be.IsNotExist(err)
}

// Load runs fn with a reader that yields the contents of the object at p.
func (be *MemoryBackend) Load(ctx context.Context, p string, fn func(rd io.Reader) error) error {
	return util.DefaultLoad(ctx, p, be.openReader, fn)
}

func (be *MemoryBackend) openReader(ctx context.Context, p string) (io.ReadCloser, error) {
	be.m.Lock()
	defer be.m.Unlock()

	buf, ok := be.data[clean(p)]
	if !ok {
		return nil, errors.Wrap(errNotFound, p)
	}

	return io.NopCloser(bytes.NewReader(buf)), ctx.Err()
}

// Stat returns information about an object in the backend.
func (be *MemoryBackend) Stat(ctx context.Context, p string) (backend.FileInfo, error) {
	be.m.Lock()
	defer be.m.Unlock()

	e, ok := be.data[clean(p)]
	if !ok {
		return backend.FileInfo{}, errors.Wrap(errNotFound, p)
	}

	return backend.FileInfo{Size: int64(len(e)), Path: clean(p)}, ctx.Err()
}

// List runs fn for all objects below prefix, sorted by path.
func (be *MemoryBackend) List(ctx context.Context, prefix string, fn func(backend.FileInfo) error) error {
	prefix = backend.CleanPrefix(prefix)

	be.m.Lock()
	entries := make([]backend.FileInfo, 0, len(be.data))
	for name, buf := range be.data {
		entries = append(entries, backend.FileInfo{Path: name, Size: int64(len(buf))})
	}
	be.m.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	return util.ListPrefix(ctx, entries, func(fi backend.FileInfo) string { return fi.Path }, prefix, fn)
}

// Location returns a fixed description of the memory backend.
func (be *MemoryBackend) Location() string {
	return "mem:"
}

func (be *MemoryBackend) Connections() uint {
	return connectionCount
}

// Close closes the backend.
func (be *MemoryBackend) Close() error {
	return nil
}
