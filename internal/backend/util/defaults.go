package util

import (
	"context"
	"io"
	"strings"
)

// DefaultLoad implements Backend.Load using lower-level openReader func
func DefaultLoad(ctx context.Context, p string,
	openReader func(ctx context.Context, p string) (io.ReadCloser, error),
	fn func(rd io.Reader) error) error {

	rd, err := openReader(ctx, p)
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

// ListPrefix runs fn for every item whose name starts with prefix, in
// order, and stops at the first error or when ctx is cancelled.
func ListPrefix[T any](ctx context.Context, items []T, name func(T) string, prefix string, fn func(T) error) error {
	for _, item := range items {
		if !strings.HasPrefix(name(item), prefix) {
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn(item)
		if err != nil {
			return err
		}
	}

	return ctx.Err()
}
