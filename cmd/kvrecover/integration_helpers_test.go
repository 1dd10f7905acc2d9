package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/restic/kvrecover/internal/layout"
	"github.com/restic/kvrecover/internal/manifest"
	rtest "github.com/restic/kvrecover/internal/test"
)

type testEnvironment struct {
	base    string
	archive string
	config  string
	gopts   *GlobalOptions
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
}

// withTestEnvironment creates an empty local archive and a configuration
// file pointing at it.
func withTestEnvironment(t testing.TB) *testEnvironment {
	env := &testEnvironment{
		base:   rtest.TempDir(t),
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
	env.archive = filepath.Join(env.base, "archive")
	env.config = filepath.Join(env.base, "recovery.properties")

	rtest.OK(t, os.MkdirAll(env.archive, 0700))
	rtest.WriteFile(t, env.config, []byte(
		"copy.impl=local\n"+
			"local.path="+env.archive+"\n"+
			"archive.base=backups\n"+
			"retry.max-attempts=2\n"+
			"retry.initial-wait=10ms\n"+
			"retry.max-wait=20ms\n"))

	env.gopts = &GlobalOptions{
		stdout:   env.stdout,
		stderr:   env.stderr,
		backends: collectBackends(),
	}
	rtest.OK(t, env.gopts.PreRun())

	return env
}

// backup writes one node backup into the archive.
func (env *testEnvironment) backup(t testing.TB, store, shard, node, bucket string, seq int64, complete bool) {
	rel := filepath.Join("backups", store, shard, node, bucket)
	if shard == layout.AdminShard {
		rel = filepath.Join("backups", store, node, bucket)
	}
	dir := filepath.Join(env.archive, rel)
	rtest.OK(t, os.MkdirAll(dir, 0700))

	data := []byte("log segment of " + node + " in " + bucket)
	rtest.WriteFile(t, filepath.Join(dir, "00000000.jdb"), data)
	sum := sha256.Sum256(data)

	rec := manifest.Record{
		NodeName:              node,
		IsComplete:            complete,
		SequenceNumber:        seq,
		ChecksumFormatVersion: 1,
		Entries: []manifest.LogFileEntry{{
			FileName:       "00000000.jdb",
			FilePath:       filepath.ToSlash(filepath.Join(rel, "00000000.jdb")),
			Checksum:       hex.EncodeToString(sum[:]),
			ChecksumAlg:    manifest.SHA256,
			EncryptionAlg:  "NONE",
			CompressionAlg: "NONE",
		}},
	}
	buf, err := json.Marshal(rec)
	rtest.OK(t, err)
	rtest.WriteFile(t, filepath.Join(dir, manifest.DescriptorName), buf)
}

func (env *testEnvironment) search(t testing.TB, target string) (string, error) {
	output := filepath.Join(env.base, "bundle-"+target+".zip")
	err := runSearch(context.TODO(), SearchOptions{
		TargetTime: target,
		Config:     env.config,
		Output:     output,
	}, env.gopts)
	return output, err
}
