package copier_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/mem"
	"github.com/restic/kvrecover/internal/backend/retry"
	"github.com/restic/kvrecover/internal/copier"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/manifest"
	rtest "github.com/restic/kvrecover/internal/test"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// flakyBackend breaks off the first failures loads after a few bytes.
type flakyBackend struct {
	backend.Backend
	failures int
	loads    int
}

func (be *flakyBackend) Load(ctx context.Context, p string, fn func(rd io.Reader) error) error {
	be.loads++
	if be.failures > 0 {
		be.failures--
		return be.Backend.Load(ctx, p, func(rd io.Reader) error {
			err := fn(io.LimitReader(rd, 7))
			if err == nil {
				err = errors.New("connection reset")
			}
			return err
		})
	}
	return be.Backend.Load(ctx, p, fn)
}

func newRetryBackend(t testing.TB, be backend.Backend, policy retry.Policy) backend.Backend {
	retry.TestFastRetries(t)
	return retry.New(be, policy, nil, nil)
}

func TestCopy(t *testing.T) {
	data := rtest.Random(23, 64*1024)
	be := mem.New()
	be.Put("base/kvstore/rg1/rg1-rn1/20230101/00000000.jdb", data)

	c := copier.New(be)
	dst := filepath.Join(rtest.TempDir(t), "00000000.jdb")

	// a stale file must be replaced, not appended to
	rtest.WriteFile(t, dst, []byte("stale content that is longer than nothing"))

	sum, err := c.Copy(context.TODO(), "base/kvstore/rg1/rg1-rn1/20230101/00000000.jdb", dst, manifest.SHA256)
	rtest.OK(t, err)
	rtest.Equals(t, sha256Hex(data), sum)
	rtest.Equals(t, data, rtest.ReadFile(t, dst))

	local, err := c.Checksum(dst, manifest.SHA256)
	rtest.OK(t, err)
	rtest.Equals(t, sum, local)
}

func TestCopyMissing(t *testing.T) {
	c := copier.New(newRetryBackend(t, mem.New(), retry.DefaultPolicy()))
	dst := filepath.Join(rtest.TempDir(t), "missing.jdb")

	_, err := c.Copy(context.TODO(), "does/not/exist", dst, manifest.SHA1)
	rtest.Assert(t, err != nil, "expected error for missing object")
	rtest.Assert(t, !errors.IsTransient(err), "missing object must not be reported as transient: %v", err)

	_, err = os.Stat(dst)
	rtest.Assert(t, errors.Is(err, os.ErrNotExist), "partial destination file left behind: %v", err)
}

func TestCopyUnsupportedAlg(t *testing.T) {
	be := mem.New()
	be.Put("a", []byte("x"))

	_, err := copier.New(be).Copy(context.TODO(), "a", filepath.Join(rtest.TempDir(t), "a"), "MD5")
	rtest.Assert(t, err != nil, "expected error for unsupported algorithm")
}

func TestCopyRetriesTransient(t *testing.T) {
	data := rtest.Random(42, 4096)
	mbe := mem.New()
	mbe.Put("seg.jdb", data)

	flaky := &flakyBackend{Backend: mbe, failures: 3}
	c := copier.New(newRetryBackend(t, flaky, retry.DefaultPolicy()))

	task := &copier.Task{
		Entry: manifest.LogFileEntry{
			FileName:    "seg.jdb",
			FilePath:    "seg.jdb",
			Checksum:    sha256Hex(data),
			ChecksumAlg: manifest.SHA256,
		},
		Dest: filepath.Join(rtest.TempDir(t), "node", "env", "seg.jdb"),
	}

	rtest.OK(t, c.Run(context.TODO(), task))
	rtest.Equals(t, copier.Verified, task.State)
	rtest.Equals(t, 4, task.Attempts)
	rtest.Equals(t, 4, flaky.loads)
	rtest.Equals(t, data, rtest.ReadFile(t, task.Dest))
}

func TestCopyGivesUp(t *testing.T) {
	mbe := mem.New()
	mbe.Put("seg.jdb", []byte("some data"))

	flaky := &flakyBackend{Backend: mbe, failures: 100}
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = 3
	c := copier.New(newRetryBackend(t, flaky, policy))

	_, err := c.Copy(context.TODO(), "seg.jdb", filepath.Join(rtest.TempDir(t), "seg.jdb"), manifest.SHA1)
	rtest.Assert(t, errors.IsTransient(err), "want transient error, got %v", err)
	rtest.Equals(t, 3, flaky.loads)
}

func TestCopyCancelled(t *testing.T) {
	mbe := mem.New()
	mbe.Put("seg.jdb", []byte("some data"))

	flaky := &flakyBackend{Backend: mbe, failures: 1 << 30}
	c := copier.New(newRetryBackend(t, flaky, retry.DefaultPolicy()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Copy(ctx, "seg.jdb", filepath.Join(rtest.TempDir(t), "seg.jdb"), manifest.SHA1)
	rtest.Assert(t, err != nil, "unbounded retry did not end on cancellation")
	rtest.Assert(t, errors.Is(err, context.DeadlineExceeded), "want deadline exceeded, got %v", err)
}

func TestRunIntegrityMismatch(t *testing.T) {
	data := []byte("log segment with unexpected content")
	mbe := mem.New()
	mbe.Put("seg.jdb", data)

	flaky := &flakyBackend{Backend: mbe}
	c := copier.New(newRetryBackend(t, flaky, retry.DefaultPolicy()))

	task := &copier.Task{
		Entry: manifest.LogFileEntry{
			FileName:    "seg.jdb",
			FilePath:    "seg.jdb",
			Checksum:    "abc123",
			ChecksumAlg: manifest.SHA256,
		},
		Dest: filepath.Join(rtest.TempDir(t), "seg.jdb"),
	}

	err := c.Run(context.TODO(), task)
	rtest.Assert(t, errors.IsIntegrity(err), "want integrity error, got %v", err)
	rtest.Equals(t, copier.Fatal, task.State)
	rtest.Equals(t, 1, task.Attempts)
	rtest.Equals(t, 1, flaky.loads)

	var ierr *errors.IntegrityError
	rtest.Assert(t, errors.As(err, &ierr), "error is not an IntegrityError")
	rtest.Equals(t, "abc123", ierr.Expected)
	rtest.Equals(t, sha256Hex(data), ierr.Actual)

	_, err = os.Stat(task.Dest)
	rtest.Assert(t, errors.Is(err, os.ErrNotExist), "mismatched segment left at %v: %v", task.Dest, err)
}

func TestRunChecksumCaseInsensitive(t *testing.T) {
	data := []byte("segment")
	be := mem.New()
	be.Put("seg.jdb", data)

	sum := sha256.Sum256(data)
	task := &copier.Task{
		Entry: manifest.LogFileEntry{
			FilePath:    "seg.jdb",
			Checksum:    hex.EncodeToString(sum[:]),
			ChecksumAlg: "sha256",
		},
		Dest: filepath.Join(rtest.TempDir(t), "seg.jdb"),
	}
	task.Entry.Checksum = strings.ToUpper(task.Entry.Checksum)

	rtest.OK(t, copier.New(be).Run(context.TODO(), task))
	rtest.Equals(t, copier.Verified, task.State)
}

func TestFetch(t *testing.T) {
	be := mem.New()
	be.Put("base/kvstore/rg1/rg1-rn1/20230101/manifest.json", []byte(`{"nodeName":"rg1-rn1"}`))

	buf, err := copier.New(be).Fetch(context.TODO(), "base/kvstore/rg1/rg1-rn1/20230101/manifest.json")
	rtest.OK(t, err)
	rtest.Equals(t, `{"nodeName":"rg1-rn1"}`, string(buf))
}

func TestTaskStateString(t *testing.T) {
	rtest.Equals(t, "pending", copier.Pending.String())
	rtest.Equals(t, "retrying", copier.Retrying.String())
	rtest.Equals(t, "verified", copier.Verified.String())
	rtest.Equals(t, "fatal", copier.Fatal.String())
}
