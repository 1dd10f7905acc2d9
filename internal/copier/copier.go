// Package copier transfers log segments from the archive to local files and
// verifies them against the checksums recorded in the manifest.
package copier

import (
	"context"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/cenkalti/backoff/v4"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/manifest"
)

// Copier copies objects from an archive to local files. Retrying transient
// failures is the job of the backend, usually a retry.Backend.
type Copier struct {
	be backend.Backend
}

// New returns a copier reading from be.
func New(be backend.Backend) *Copier {
	return &Copier{be: be}
}

// isLocalPermanent returns true for local errors retrying cannot fix.
func isLocalPermanent(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EROFS) ||
		errors.Is(err, os.ErrPermission)
}

func localError(err error) error {
	if isLocalPermanent(err) {
		return backoff.Permanent(err)
	}
	return err
}

// Fetch returns the contents of the object at src.
func (c *Copier) Fetch(ctx context.Context, src string) ([]byte, error) {
	return backend.LoadAll(ctx, nil, c.be, src)
}

// Size returns the size of the object at src.
func (c *Copier) Size(ctx context.Context, src string) (int64, error) {
	fi, err := c.be.Stat(ctx, src)
	if err != nil {
		return 0, err
	}
	return fi.Size, nil
}

// Copy copies the object at src to the local file dst and returns the hex
// encoded checksum of the bytes read from the archive. An existing file at
// dst is removed first.
func (c *Copier) Copy(ctx context.Context, src, dst, alg string) (string, error) {
	return c.copy(ctx, src, dst, alg, nil)
}

func (c *Copier) copy(ctx context.Context, src, dst, alg string, attempt func()) (string, error) {
	h, err := manifest.NewHash(alg)
	if err != nil {
		return "", err
	}

	err = os.Remove(dst)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", errors.WithStack(err)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return "", errors.WithStack(err)
	}

	fi, err := c.be.Stat(ctx, src)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return "", errors.Wrapf(err, "stat %v", src)
	}

	if fi.Size > 0 {
		err = preallocate(f, fi.Size)
		if err != nil {
			debug.Log("preallocating %v failed: %v", dst, err)
		}
	}

	var sum string
	err = c.be.Load(ctx, src, func(rd io.Reader) error {
		if attempt != nil {
			attempt()
		}
		// called again on every retry, so start from scratch
		h.Reset()
		n, err := writeAt0(f, rd, h)
		if err != nil {
			return err
		}
		if fi.Size > 0 && n != fi.Size {
			return errors.Errorf("short read from %v: got %d of %d bytes", src, n, fi.Size)
		}
		sum = hex.EncodeToString(h.Sum(nil))
		return nil
	})

	if err == nil {
		err = localError(f.Sync())
	}
	if cerr := f.Close(); err == nil {
		err = localError(cerr)
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", errors.Wrapf(err, "copy %v to %v", src, dst)
	}

	debug.Log("copied %v to %v, checksum %v", src, dst, sum)
	return sum, nil
}

// writeAt0 writes rd to f from the beginning, truncating f to the number of
// bytes written, and feeds the same bytes to h.
func writeAt0(f *os.File, rd io.Reader, h hash.Hash) (int64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, localError(err)
	}

	n, err := io.Copy(io.MultiWriter(f, h), rd)
	if err != nil {
		return n, localError(err)
	}

	return n, localError(f.Truncate(n))
}

// Checksum returns the hex encoded checksum of the local file.
func (c *Copier) Checksum(file, alg string) (string, error) {
	return Checksum(file, alg)
}

// Checksum returns the hex encoded checksum of the local file.
func Checksum(file, alg string) (string, error) {
	h, err := manifest.NewHash(alg)
	if err != nil {
		return "", err
	}

	f, err := os.Open(file)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer func() {
		_ = f.Close()
	}()

	_, err = io.Copy(h, f)
	if err != nil {
		return "", errors.Wrapf(err, "read %v", file)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Run copies the log segment of t and verifies that the checksum of the
// archive stream, the checksum recomputed from the local file and the
// checksum recorded in the manifest agree. A mismatch is returned as an
// errors.IntegrityError and is not retried.
func (c *Copier) Run(ctx context.Context, t *Task) error {
	t.State = Pending
	t.Attempts = 0

	err := c.run(ctx, t)
	if err != nil {
		t.State = Fatal
		t.Err = err
		return err
	}

	t.State = Verified
	return nil
}

func (c *Copier) run(ctx context.Context, t *Task) error {
	alg := t.Entry.ChecksumAlg
	if _, err := manifest.NormalizeAlg(alg); err != nil {
		return errors.Wrapf(err, "%v", t.Entry.FilePath)
	}

	err := os.MkdirAll(filepath.Dir(t.Dest), 0700)
	if err != nil {
		return errors.WithStack(err)
	}

	archiveSum, err := c.copy(ctx, t.Entry.FilePath, t.Dest, alg, func() {
		t.Attempts++
		if t.Attempts > 1 {
			t.State = Retrying
		}
	})
	if err != nil {
		return err
	}

	localSum, err := Checksum(t.Dest, alg)
	if err != nil {
		_ = os.Remove(t.Dest)
		return err
	}

	for _, cmp := range []struct {
		stage            string
		expected, actual string
	}{
		{"manifest/archive", t.Entry.Checksum, archiveSum},
		{"manifest/local", t.Entry.Checksum, localSum},
		{"archive/local", archiveSum, localSum},
	} {
		if !manifest.EqualChecksums(cmp.expected, cmp.actual) {
			// a segment known to be bad must not stay in the environment
			_ = os.Remove(t.Dest)
			return errors.WithStack(&errors.IntegrityError{
				Path:     t.Entry.FilePath,
				Stage:    cmp.stage,
				Expected: cmp.expected,
				Actual:   cmp.actual,
			})
		}
	}

	return nil
}
