package manifest

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/restic/kvrecover/internal/errors"
	rtest "github.com/restic/kvrecover/internal/test"
)

const descriptor = `{
  "nodeName": "rg1-rn1", "isComplete": true, "sequenceNumber": 500,
  "isMaster": false, "checksumFormatVersion": 1,
  "jdbFilesList": [
    { "fileName": "00000000.jdb", "filePath": "base/kvstore/rg1/rg1-rn1/20230101/00000000.jdb",
      "checksum": "ABC123", "checksumAlg": "SHA-1", "encryptionAlg": "NONE", "compressionAlg": "NONE" }
  ]
}`

func TestDecode(t *testing.T) {
	rec, err := Decode([]byte(descriptor))
	rtest.OK(t, err)

	rtest.Equals(t, Record{
		NodeName:              "rg1-rn1",
		IsComplete:            true,
		SequenceNumber:        500,
		ChecksumFormatVersion: 1,
		Entries: []LogFileEntry{{
			FileName:       "00000000.jdb",
			FilePath:       "base/kvstore/rg1/rg1-rn1/20230101/00000000.jdb",
			Checksum:       "ABC123",
			ChecksumAlg:    "SHA-1",
			EncryptionAlg:  "NONE",
			CompressionAlg: "NONE",
		}},
	}, rec)
}

func TestDecodeInvalid(t *testing.T) {
	for _, data := range []string{
		``,
		`{"nodeName": 12}`,
		`{"nodeName": "rn1", "jdbFilesList": [{"fileName": "x.jdb"}]}`,
	} {
		_, err := Decode([]byte(data))
		rtest.Assert(t, err != nil, "expected error for %q", data)
	}
}

func TestRequiredFilesEncodeDeterministic(t *testing.T) {
	rf := RequiredFiles{
		"rg2":   {WinnerNode: "rg2-rn3", Entries: []LogFileEntry{{FileName: "b.jdb", FilePath: "p/b.jdb"}}},
		"admin": {WinnerNode: "admin1", Entries: []LogFileEntry{}},
		"rg1":   {WinnerNode: "rg1-rn1", Entries: []LogFileEntry{{FileName: "a.jdb", FilePath: "p/a.jdb"}}},
	}

	first, err := rf.Encode()
	rtest.OK(t, err)
	for i := 0; i < 10; i++ {
		buf, err := rf.Encode()
		rtest.OK(t, err)
		rtest.Equals(t, string(first), string(buf))
	}

	decoded, err := DecodeRequiredFiles(first)
	rtest.OK(t, err)
	rtest.Equals(t, rf, decoded)
}

func TestDecodeRequiredFilesNoWinner(t *testing.T) {
	_, err := DecodeRequiredFiles([]byte(`{"rg1": {"jdbFilesList": []}}`))
	rtest.Assert(t, err != nil, "expected error for missing winner")
}

func TestNewHash(t *testing.T) {
	data := []byte("log segment")
	s1 := sha1.Sum(data)
	s256 := sha256.Sum256(data)

	for _, test := range []struct {
		alg  string
		want string
	}{
		{"SHA-1", hex.EncodeToString(s1[:])},
		{"sha1", hex.EncodeToString(s1[:])},
		{"SHA-256", hex.EncodeToString(s256[:])},
		{" sha256 ", hex.EncodeToString(s256[:])},
	} {
		h, err := NewHash(test.alg)
		rtest.OK(t, err)
		_, _ = h.Write(data)
		rtest.Equals(t, test.want, hex.EncodeToString(h.Sum(nil)))
	}

	_, err := NewHash("MD5")
	rtest.Assert(t, err != nil, "expected error for unsupported algorithm")
}

func TestEqualChecksums(t *testing.T) {
	rtest.Assert(t, EqualChecksums("abc123", "ABC123"), "case must be ignored")
	rtest.Assert(t, !EqualChecksums("abc123", "def456"), "different checksums compare equal")
}

func TestCache(t *testing.T) {
	calls := 0
	c := NewCache(2, func(_ context.Context, path string) ([]byte, error) {
		calls++
		if path == "missing" {
			return nil, errors.New("not found")
		}
		return []byte(descriptor), nil
	})

	for i := 0; i < 3; i++ {
		rec, err := c.Get(context.TODO(), "a")
		rtest.OK(t, err)
		rtest.Equals(t, "rg1-rn1", rec.NodeName)
	}
	rtest.Equals(t, 1, calls)

	_, err := c.Get(context.TODO(), "missing")
	rtest.Assert(t, err != nil, "expected error")
	rtest.Assert(t, !IsInvalid(err), "load error reported as invalid descriptor: %v", err)
	rtest.Equals(t, 1, c.Len())

	_, _ = c.Get(context.TODO(), "b")
	_, _ = c.Get(context.TODO(), "c")
	_, _ = c.Get(context.TODO(), "a")
	rtest.Equals(t, 2, c.Len())
	rtest.Equals(t, 5, calls)
}

func TestCacheInvalid(t *testing.T) {
	c := NewCache(2, func(_ context.Context, _ string) ([]byte, error) {
		return []byte("not json"), nil
	})

	_, err := c.Get(context.TODO(), "broken")
	rtest.Assert(t, IsInvalid(err), "want invalid descriptor error, got %v", err)

	var ierr *InvalidError
	rtest.Assert(t, errors.As(err, &ierr), "error is not an InvalidError")
	rtest.Equals(t, "broken", ierr.Path)
	rtest.Equals(t, 0, c.Len())
}
