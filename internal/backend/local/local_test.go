package local_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/local"
	"github.com/restic/kvrecover/internal/backend/location"
	"github.com/restic/kvrecover/internal/options"
	rtest "github.com/restic/kvrecover/internal/test"
)

func openTempArchive(t *testing.T) (*local.Local, string) {
	dir := rtest.TempDir(t)
	for _, name := range []string{
		"kv/admin1/20230101/manifest.json",
		"kv/rg1/rg1-rn1/20230101/manifest.json",
		"kv/rg1/rg1-rn1/20230101/00000000.jdb",
	} {
		rtest.WriteFile(t, filepath.Join(dir, filepath.FromSlash(name)), []byte(name))
	}

	cfg := local.NewConfig()
	cfg.Path = dir
	be, err := local.Open(context.TODO(), cfg)
	rtest.OK(t, err)
	return be, dir
}

func TestLocalList(t *testing.T) {
	be, _ := openTempArchive(t)

	var listed []string
	err := be.List(context.TODO(), "kv", func(fi backend.FileInfo) error {
		listed = append(listed, fi.Path)
		rtest.Equals(t, int64(len(fi.Path)), fi.Size)
		return nil
	})
	rtest.OK(t, err)
	rtest.Equals(t, []string{
		"kv/admin1/20230101/manifest.json",
		"kv/rg1/rg1-rn1/20230101/00000000.jdb",
		"kv/rg1/rg1-rn1/20230101/manifest.json",
	}, listed)
}

func TestLocalListMissingPrefix(t *testing.T) {
	be, _ := openTempArchive(t)

	err := be.List(context.TODO(), "does/not/exist", func(fi backend.FileInfo) error {
		t.Fatalf("unexpected file %v", fi.Path)
		return nil
	})
	rtest.Assert(t, be.IsNotExist(err), "expected not-exist error, got %v", err)
}

func TestLocalLoadStat(t *testing.T) {
	be, _ := openTempArchive(t)
	p := "kv/rg1/rg1-rn1/20230101/00000000.jdb"

	fi, err := be.Stat(context.TODO(), p)
	rtest.OK(t, err)
	rtest.Equals(t, int64(len(p)), fi.Size)

	err = be.Load(context.TODO(), p, func(rd io.Reader) error {
		buf, err := io.ReadAll(rd)
		rtest.OK(t, err)
		rtest.Equals(t, p, string(buf))
		return nil
	})
	rtest.OK(t, err)

	err = be.Load(context.TODO(), "kv/missing", func(rd io.Reader) error { return nil })
	rtest.Assert(t, be.IsPermanentError(err), "missing file must be a permanent error, got %v", err)
}

func TestLocalOpenInvalid(t *testing.T) {
	dir := rtest.TempDir(t)
	file := filepath.Join(dir, "file")
	rtest.OK(t, os.WriteFile(file, nil, 0600))

	for _, p := range []string{filepath.Join(dir, "missing"), file} {
		cfg := local.NewConfig()
		cfg.Path = p
		_, err := local.Open(context.TODO(), cfg)
		rtest.Assert(t, err != nil, "expected error opening %v", p)
	}
}

func TestLocalFactory(t *testing.T) {
	_, dir := openTempArchive(t)

	registry := location.NewRegistry()
	registry.Register(local.NewFactory())

	loc, err := location.Parse(registry, "local", options.Options{"local.path": dir})
	rtest.OK(t, err)

	be, err := registry.Lookup(loc.Scheme).Open(context.TODO(), loc.Config, nil, nil)
	rtest.OK(t, err)
	rtest.Equals(t, dir, be.Location())
}
