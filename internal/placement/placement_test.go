package placement_test

import (
	"path/filepath"
	"testing"

	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/placement"
	rtest "github.com/restic/kvrecover/internal/test"
)

const testDescription = `{
  "storeName": "kvstore",
  "storageNodes": [
    { "id": "sn1", "hostname": "host-a", "rootDir": "/var/kvroot",
      "replicaNodes": [ { "name": "rg1-rn1", "storageDir": "/disk1/ondb" },
                        { "name": "rg2-rn1" } ],
      "admins": [ { "name": "admin1" } ] },
    { "id": "sn2", "hostname": "host-b", "rootDir": "/var/kvroot",
      "replicaNodes": [ { "name": "rg1-rn2" } ] }
  ]
}`

func TestHostedNodes(t *testing.T) {
	d, err := placement.Decode([]byte(testDescription))
	rtest.OK(t, err)

	nodes, err := d.HostedNodes("host-a")
	rtest.OK(t, err)
	rtest.Equals(t, []placement.HostedNode{
		{Name: "admin1", IsAdmin: true, Dest: filepath.FromSlash("/var/kvroot/kvstore/sn1/admin1/env")},
		{Name: "rg1-rn1", Dest: filepath.FromSlash("/disk1/ondb/rg1-rn1/env")},
		{Name: "rg2-rn1", Dest: filepath.FromSlash("/var/kvroot/kvstore/sn1/rg2-rn1/env")},
	}, nodes)

	nodes, err = d.HostedNodes("host-b")
	rtest.OK(t, err)
	rtest.Equals(t, 1, len(nodes))
	rtest.Equals(t, "rg1-rn2", nodes[0].Name)

	_, err = d.HostedNodes("host-c")
	rtest.Assert(t, errors.IsConfiguration(err), "want configuration error, got %v", err)
}

func TestLoad(t *testing.T) {
	dir := rtest.TempDir(t)
	fn := filepath.Join(dir, "placement.json")

	// UTF-8 BOM is stripped
	rtest.WriteFile(t, fn, append([]byte{0xef, 0xbb, 0xbf}, testDescription...))

	d, err := placement.Load(fn)
	rtest.OK(t, err)
	rtest.Equals(t, "kvstore", d.StoreName)
	rtest.Equals(t, 2, len(d.StorageNodes))

	buf, err := d.Encode()
	rtest.OK(t, err)
	d2, err := placement.Decode(buf)
	rtest.OK(t, err)
	rtest.Equals(t, d, d2)

	_, err = placement.Load(filepath.Join(dir, "missing.json"))
	rtest.Assert(t, errors.IsConfiguration(err), "want configuration error, got %v", err)
}

func TestValidate(t *testing.T) {
	var tests = []struct {
		name string
		data string
	}{
		{"no store", `{"storageNodes": []}`},
		{"no hostname", `{"storeName": "s", "storageNodes": [{"id": "sn1"}]}`},
		{"duplicate id", `{"storeName": "s", "storageNodes": [
			{"id": "sn1", "hostname": "a"}, {"id": "sn1", "hostname": "b"}]}`},
		{"duplicate node", `{"storeName": "s", "storageNodes": [
			{"id": "sn1", "hostname": "a", "rootDir": "/r", "replicaNodes": [{"name": "rn"}]},
			{"id": "sn2", "hostname": "b", "rootDir": "/r", "replicaNodes": [{"name": "rn"}]}]}`},
		{"no directory", `{"storeName": "s", "storageNodes": [
			{"id": "sn1", "hostname": "a", "replicaNodes": [{"name": "rn"}]}]}`},
		{"admin without root", `{"storeName": "s", "storageNodes": [
			{"id": "sn1", "hostname": "a", "admins": [{"name": "admin1"}]}]}`},
		{"invalid json", `{"storeName": `},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := placement.Decode([]byte(test.data))
			rtest.Assert(t, err != nil, "expected error for %v", test.name)
		})
	}
}
