package manifest

import (
	"crypto/sha1"
	"crypto/sha256"
	"hash"
	"strings"

	"github.com/restic/kvrecover/internal/errors"
)

// Supported checksum algorithms.
const (
	SHA1   = "SHA-1"
	SHA256 = "SHA-256"
)

// NormalizeAlg maps the spellings found in manifests (SHA1, sha-256, ...) to
// the canonical algorithm name.
func NormalizeAlg(alg string) (string, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(alg), "-", "")) {
	case "SHA1":
		return SHA1, nil
	case "SHA256":
		return SHA256, nil
	}
	return "", errors.Errorf("unsupported checksum algorithm %q", alg)
}

// NewHash returns a new hash for the checksum algorithm alg.
func NewHash(alg string) (hash.Hash, error) {
	name, err := NormalizeAlg(alg)
	if err != nil {
		return nil, err
	}

	switch name {
	case SHA1:
		return sha1.New(), nil
	default:
		return sha256.New(), nil
	}
}

// EqualChecksums compares two hex encoded checksums, ignoring case and
// surrounding whitespace.
func EqualChecksums(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
