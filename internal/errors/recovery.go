package errors

import (
	"fmt"
	"strings"
)

// ConfigurationError reports missing or invalid arguments, configuration
// files or input documents. It is raised before the archive is touched.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Configuration returns a ConfigurationError with a formatted message. The
// last error in args, if any, is kept as the underlying cause.
func Configuration(format string, args ...interface{}) error {
	return WithStack(&ConfigurationError{Msg: fmt.Sprintf(format, args...), Err: lastError(args)})
}

// IsConfiguration returns true if err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return As(err, &e)
}

// TransientIOError marks a failure of an archive or local I/O operation that
// may succeed when retried.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient I/O error during %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// IsTransient returns true if err is (or wraps) a TransientIOError.
func IsTransient(err error) bool {
	var e *TransientIOError
	return As(err, &e)
}

// IntegrityError is returned when the checksums of a copied log segment do not
// agree. It is never retried.
type IntegrityError struct {
	Path string

	// Which pair of checksums disagreed, e.g. "archive/local".
	Stage string

	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for %v (%s): expected %s, got %s", e.Path, e.Stage, e.Expected, e.Actual)
}

// IsIntegrity returns true if err is (or wraps) an IntegrityError.
func IsIntegrity(err error) bool {
	var e *IntegrityError
	return As(err, &e)
}

// NoConsistentRecoveryPointError is returned when no bucket in the searched
// range has a complete backup for every shard of every store.
type NoConsistentRecoveryPointError struct {
	BasePath string
	Oldest   string
	Target   string

	// Missing lists, for the newest examined buckets first, the shards that
	// had no complete backup.
	Missing []BucketCoverage
}

// BucketCoverage names the shards without a complete backup in one bucket.
type BucketCoverage struct {
	Bucket string
	Shards []string
}

func (e *NoConsistentRecoveryPointError) Error() string {
	rng := fmt.Sprintf("[%s, %s]", e.Oldest, e.Target)
	if e.Oldest == "" {
		rng = fmt.Sprintf("[-, %s]", e.Target)
	}
	return fmt.Sprintf("no consistent recovery point found in range %s under %v", rng, e.BasePath)
}

// Report returns a human-readable summary of the coverage gaps of the newest
// max buckets.
func (e *NoConsistentRecoveryPointError) Report(max int) string {
	var sb strings.Builder
	for i, c := range e.Missing {
		if i >= max {
			fmt.Fprintf(&sb, "  ... %d more buckets\n", len(e.Missing)-max)
			break
		}
		fmt.Fprintf(&sb, "  %s: no complete backup for %s\n", c.Bucket, strings.Join(c.Shards, ", "))
	}
	return sb.String()
}

// IsNoConsistentRecoveryPoint returns true if err is (or wraps) a
// NoConsistentRecoveryPointError.
func IsNoConsistentRecoveryPoint(err error) bool {
	var e *NoConsistentRecoveryPointError
	return As(err, &e)
}

func lastError(data []interface{}) error {
	for i := len(data) - 1; i >= 0; i-- {
		if err, ok := data[i].(error); ok {
			return err
		}
	}
	return nil
}
