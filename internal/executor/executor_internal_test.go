package executor

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/manifest"
	rtest "github.com/restic/kvrecover/internal/test"
)

func TestRunUnitsIsolation(t *testing.T) {
	units := []unit{{id: "a"}, {id: "b"}, {id: "c"}, {id: "d"}}

	for _, parallelism := range []int{0, 1, 2, 8} {
		var ran atomic.Int32
		res := runUnits(context.TODO(), parallelism, units, func(_ context.Context, u unit) error {
			ran.Add(1)
			switch u.id {
			case "b":
				panic("unit b crashed")
			case "d":
				return errors.New("unit d failed")
			}
			return nil
		})

		rtest.Equals(t, int32(4), ran.Load())
		rtest.Equals(t, []string{"b", "d"}, res.Failed())
		rtest.Assert(t, res.Err("a") == nil, "unexpected error for a: %v", res.Err("a"))

		err := res.First()
		rtest.Assert(t, err != nil, "expected an error")
		rtest.Equals(t, "b: panic: unit b crashed", err.Error())
	}
}

func TestDestFile(t *testing.T) {
	var tests = []struct {
		name, path string
		ok         bool
	}{
		{"00000000.jdb", "base/s/rg1/rn1/20230101/00000000.jdb", true},
		{"", "base/s/rg1/rn1/20230101/00000001.jdb", true},
		{"../escape.jdb", "base/s/rg1/rn1/20230101/escape.jdb", false},
		{"..", "base/s/rg1/rn1/20230101/x", false},
	}

	for _, test := range tests {
		_, err := destFile("/restore", manifest.LogFileEntry{FileName: test.name, FilePath: test.path})
		rtest.Equals(t, test.ok, err == nil)
	}
}
