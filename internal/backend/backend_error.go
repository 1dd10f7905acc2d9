package backend

import (
	"context"
	"io"
	"math/rand"
	"sync"

	"github.com/restic/kvrecover/internal/errors"
)

// ErrorBackend is used to induce errors into various function calls and test
// the retry functions.
type ErrorBackend struct {
	FailLoad     float32
	FailLoadRead float32
	FailStat     float32
	FailList     float32
	Backend

	r *rand.Rand
	m sync.Mutex
}

// statically ensure that ErrorBackend implements Backend.
var _ Backend = &ErrorBackend{}

// NewErrorBackend wraps be with a backend that returns errors according to
// given probabilities.
func NewErrorBackend(be Backend, seed int64) *ErrorBackend {
	return &ErrorBackend{
		Backend: be,
		r:       rand.New(rand.NewSource(seed)),
	}
}

func (be *ErrorBackend) fail(p float32) bool {
	be.m.Lock()
	v := be.r.Float32()
	be.m.Unlock()

	return v < p
}

// Load runs consumer with a reader for the object at p. When FailLoadRead
// triggers, the reader breaks off after a random number of bytes.
func (be *ErrorBackend) Load(ctx context.Context, p string, consumer func(rd io.Reader) error) error {
	if be.fail(be.FailLoad) {
		return errors.Errorf("Load(%v) random error induced", p)
	}

	if be.fail(be.FailLoadRead) {
		be.m.Lock()
		n := be.r.Int63n(1000)
		be.m.Unlock()

		return be.Backend.Load(ctx, p, func(rd io.Reader) error {
			err := consumer(&brokenReader{rd: io.LimitReader(rd, n)})
			if err == nil {
				err = errors.Errorf("Load(%v) random error with partial read induced", p)
			}
			return err
		})
	}

	return be.Backend.Load(ctx, p, consumer)
}

type brokenReader struct {
	rd io.Reader
}

func (b *brokenReader) Read(p []byte) (int, error) {
	n, err := b.rd.Read(p)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// Stat returns information about the object at p.
func (be *ErrorBackend) Stat(ctx context.Context, p string) (FileInfo, error) {
	if be.fail(be.FailStat) {
		return FileInfo{}, errors.Errorf("Stat(%v) random error induced", p)
	}

	return be.Backend.Stat(ctx, p)
}

// List runs fn for all objects below prefix.
func (be *ErrorBackend) List(ctx context.Context, prefix string, fn func(FileInfo) error) error {
	if be.fail(be.FailList) {
		return errors.Errorf("List(%v) random error induced", prefix)
	}

	return be.Backend.List(ctx, prefix, fn)
}

func (be *ErrorBackend) Unwrap() Backend {
	return be.Backend
}
