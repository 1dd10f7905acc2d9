package manifest

import (
	"context"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"
)

// InvalidError is returned by Cache.Get when a descriptor was loaded but
// could not be decoded.
type InvalidError struct {
	Path string
	Err  error
}

func (e *InvalidError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *InvalidError) Unwrap() error { return e.Err }

// IsInvalid returns true if err is (or wraps) an InvalidError.
func IsInvalid(err error) bool {
	var e *InvalidError
	return errors.As(err, &e)
}

// FetchFunc loads the raw manifest descriptor at path.
type FetchFunc func(ctx context.Context, path string) ([]byte, error)

// Cache decodes manifest descriptors and keeps the most recently used ones.
// It is not safe for concurrent use.
type Cache struct {
	fetch FetchFunc
	c     *simplelru.LRU[string, Record]
}

// DefaultCacheSize is the number of decoded records kept by a Cache.
const DefaultCacheSize = 4096

// NewCache returns a cache which loads descriptors with fetch.
func NewCache(size int, fetch FetchFunc) *Cache {
	c, err := simplelru.NewLRU[string, Record](size, nil)
	if err != nil {
		panic(err) // size > 0
	}
	return &Cache{fetch: fetch, c: c}
}

// Get returns the decoded record at path.
func (c *Cache) Get(ctx context.Context, path string) (Record, error) {
	if rec, ok := c.c.Get(path); ok {
		return rec, nil
	}

	buf, err := c.fetch(ctx, path)
	if err != nil {
		return Record{}, err
	}

	rec, err := Decode(buf)
	if err != nil {
		return Record{}, errors.WithStack(&InvalidError{Path: path, Err: err})
	}

	debug.Log("decoded %v: node %v complete %v seq %v master %v, %d entries",
		path, rec.NodeName, rec.IsComplete, rec.SequenceNumber, rec.IsMaster, len(rec.Entries))

	c.c.Add(path, rec)
	return rec, nil
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	return c.c.Len()
}
