package config_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/local"
	"github.com/restic/kvrecover/internal/backend/location"
	"github.com/restic/kvrecover/internal/backend/mem"
	"github.com/restic/kvrecover/internal/backend/retry"
	"github.com/restic/kvrecover/internal/config"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/options"
	rtest "github.com/restic/kvrecover/internal/test"
	"github.com/restic/kvrecover/internal/ui"
)

func testRegistry(be *mem.MemoryBackend) *location.Registry {
	registry := location.NewRegistry()
	registry.Register(local.NewFactory())
	registry.Register(mem.NewFactory(be))
	return registry
}

func TestLoad(t *testing.T) {
	dir := rtest.TempDir(t)
	fn := filepath.Join(dir, "recovery.properties")
	rtest.WriteFile(t, fn, []byte(`
# archive access
copy.impl = local
local.path = `+dir+`
archive.base: /backups/
retry.initial-wait=2s
retry.max-wait=1m
retry.max-attempts=5
! tuning
limit.download-kb=1024
executor.parallelism=3
`))

	cfg, err := config.Load(fn, testRegistry(mem.New()))
	rtest.OK(t, err)

	rtest.Equals(t, "backups", cfg.Base)
	rtest.Equals(t, retry.Policy{InitialWait: 2 * time.Second, MaxWait: time.Minute, MaxAttempts: 5}, cfg.Retry)
	rtest.Equals(t, 1024, cfg.Limits.DownloadKb)
	rtest.Equals(t, 3, cfg.Parallelism)
	rtest.Equals(t, "local", cfg.Location.Scheme)
	rtest.Equals(t, dir, cfg.Location.Config.(*local.Config).Path)
	rtest.OK(t, cfg.RequireBase())
}

func TestParseDefaults(t *testing.T) {
	cfg, err := config.Parse(options.Options{"copy.impl": "mem"}, testRegistry(mem.New()))
	rtest.OK(t, err)

	rtest.Equals(t, retry.DefaultPolicy(), cfg.Retry)
	rtest.Assert(t, cfg.Retry.Unbounded(), "default policy should retry forever")
	rtest.Equals(t, 1, cfg.Parallelism)
	rtest.Equals(t, 0, cfg.Limits.DownloadKb)

	err = cfg.RequireBase()
	rtest.Assert(t, errors.IsConfiguration(err), "want configuration error, got %v", err)
}

func TestParseInvalid(t *testing.T) {
	var tests = []options.Options{
		{},
		{"copy.impl": "ftp"},
		{"copy.impl": "mem", "bogus": "1"},
		{"copy.impl": "mem", "unknown.key": "1"},
		{"copy.impl": "mem", "archive.nope": "1"},
		{"copy.impl": "mem", "retry.initial-wait": "soon"},
		{"copy.impl": "mem", "retry.initial-wait": "0s"},
		{"copy.impl": "mem", "retry.initial-wait": "2h"},
		{"copy.impl": "mem", "executor.parallelism": "0"},
		{"copy.impl": "mem", "limit.download-kb": "-1"},
		{"copy.impl": "local", "local.nope": "x"},
	}

	for i, opts := range tests {
		_, err := config.Parse(opts, testRegistry(mem.New()))
		rtest.Assert(t, errors.IsConfiguration(err), "test %d: want configuration error, got %v", i, err)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load(filepath.Join(rtest.TempDir(t), "missing"), testRegistry(mem.New()))
	rtest.Assert(t, errors.IsConfiguration(err), "want configuration error, got %v", err)
}

func TestOpen(t *testing.T) {
	be := mem.New()
	be.Put("base/kvstore/rg1/rg1-rn1/20230101/manifest.json", []byte("{}"))

	cfg, err := config.Parse(options.Options{
		"copy.impl":         "mem",
		"archive.base":      "base",
		"limit.download-kb": "10000",
	}, testRegistry(be))
	rtest.OK(t, err)

	opened, err := cfg.Open(context.TODO(), &ui.MockPrinter{})
	rtest.OK(t, err)

	buf, err := backend.LoadAll(context.TODO(), nil, opened, "base/kvstore/rg1/rg1-rn1/20230101/manifest.json")
	rtest.OK(t, err)
	rtest.Equals(t, []byte("{}"), buf)
}

func TestOpenUnreachable(t *testing.T) {
	cfg, err := config.Parse(options.Options{
		"copy.impl":  "local",
		"local.path": filepath.Join(rtest.TempDir(t), "missing"),
	}, testRegistry(mem.New()))
	rtest.OK(t, err)

	_, err = cfg.Open(context.TODO(), &ui.MockPrinter{})
	rtest.Assert(t, errors.IsConfiguration(err), "want configuration error, got %v", err)
}
