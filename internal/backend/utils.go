package backend

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
)

// LoadAll reads all data stored in the backend at path into the given
// buffer, which is truncated. If the buffer is not large enough or nil, a new
// one is allocated.
func LoadAll(ctx context.Context, buf []byte, be Backend, p string) ([]byte, error) {
	err := be.Load(ctx, p, func(rd io.Reader) error {
		// make sure this is idempotent, in case an error occurs this function may be called multiple times!
		wr := bytes.NewBuffer(buf[:0])
		_, cerr := io.Copy(wr, rd)
		if cerr != nil {
			return cerr
		}
		buf = wr.Bytes()
		return nil
	})

	if err != nil {
		return nil, err
	}

	return buf, nil
}

// CleanPrefix normalizes a listing prefix: slashes only, no leading slash,
// and exactly one trailing slash unless the prefix is empty.
func CleanPrefix(prefix string) string {
	prefix = strings.Trim(path.Clean("/"+strings.ReplaceAll(prefix, `\`, "/")), "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// Join combines path components with slashes and strips leading slashes.
func Join(p ...string) string {
	return strings.TrimPrefix(path.Join(p...), "/")
}
