package main

import (
	"fmt"

	"github.com/restic/kvrecover/internal/errors"
)

// usageError reports invalid command line arguments.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...interface{}) error {
	return usageError{fmt.Errorf(format, args...)}
}

func isUsageError(err error) bool {
	var e usageError
	return errors.As(err, &e)
}

// requireFlags returns a usage error naming the first flag whose value is
// empty. names and values are passed in pairs.
func requireFlags(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return usageErrorf("flag --%s is required", pairs[i])
		}
	}
	return nil
}
