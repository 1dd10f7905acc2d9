// Package placement reads the description of which logical nodes are hosted
// on which storage node host.
package placement

import (
	"encoding/json"
	"path/filepath"
	"sort"

	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/textfile"
)

// EnvDir is the directory below a node's storage directory that holds the
// log segments.
const EnvDir = "env"

// ReplicaNode is a replica node hosted on a storage node.
type ReplicaNode struct {
	Name       string `json:"name"`
	StorageDir string `json:"storageDir,omitempty"`
}

// Admin is an admin node hosted on a storage node.
type Admin struct {
	Name string `json:"name"`
}

// StorageNode is a physical host of a store.
type StorageNode struct {
	ID           string        `json:"id"`
	Hostname     string        `json:"hostname"`
	RootDir      string        `json:"rootDir"`
	ReplicaNodes []ReplicaNode `json:"replicaNodes"`
	Admins       []Admin       `json:"admins"`
}

// Description is the placement of all nodes of one store.
type Description struct {
	StoreName    string        `json:"storeName"`
	StorageNodes []StorageNode `json:"storageNodes"`
}

// HostedNode is a node hosted on the local machine together with the
// directory its log segments are restored into.
type HostedNode struct {
	Name    string
	IsAdmin bool
	Dest    string
}

// Load reads a placement description from filename.
func Load(filename string) (*Description, error) {
	buf, err := textfile.Read(filename)
	if err != nil {
		return nil, errors.Configuration("read placement description: %v", err)
	}

	d, err := Decode(buf)
	if err != nil {
		return nil, errors.Configuration("%v: %v", filename, err)
	}
	return d, nil
}

// Decode parses and validates a placement description.
func Decode(buf []byte) (*Description, error) {
	var d Description
	if err := json.Unmarshal(buf, &d); err != nil {
		return nil, errors.Wrap(err, "decode placement description")
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks that the description names a store and that every node
// name appears only once.
func (d *Description) Validate() error {
	if d.StoreName == "" {
		return errors.New("storeName is missing")
	}

	seen := make(map[string]string)
	add := func(sn, node string) error {
		if node == "" {
			return errors.Errorf("storage node %v: node without name", sn)
		}
		if other, ok := seen[node]; ok {
			return errors.Errorf("node %v is placed on both %v and %v", node, other, sn)
		}
		seen[node] = sn
		return nil
	}

	ids := make(map[string]struct{})
	for _, sn := range d.StorageNodes {
		if sn.ID == "" || sn.Hostname == "" {
			return errors.New("storage node needs id and hostname")
		}
		if _, ok := ids[sn.ID]; ok {
			return errors.Errorf("duplicate storage node id %v", sn.ID)
		}
		ids[sn.ID] = struct{}{}

		for _, rn := range sn.ReplicaNodes {
			if rn.StorageDir == "" && sn.RootDir == "" {
				return errors.Errorf("storage node %v: replica node %v has neither storageDir nor rootDir", sn.ID, rn.Name)
			}
			if err := add(sn.ID, rn.Name); err != nil {
				return err
			}
		}
		for _, a := range sn.Admins {
			if sn.RootDir == "" {
				return errors.Errorf("storage node %v: admin %v needs rootDir", sn.ID, a.Name)
			}
			if err := add(sn.ID, a.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Description) nodeDir(sn StorageNode, node string) string {
	return filepath.Join(sn.RootDir, d.StoreName, sn.ID, node, EnvDir)
}

// HostedNodes returns the nodes placed on the storage node with the given
// hostname, sorted by name. An unknown hostname is a configuration error.
func (d *Description) HostedNodes(hostname string) ([]HostedNode, error) {
	var nodes []HostedNode
	found := false
	for _, sn := range d.StorageNodes {
		if sn.Hostname != hostname {
			continue
		}
		found = true

		for _, rn := range sn.ReplicaNodes {
			dest := d.nodeDir(sn, rn.Name)
			if rn.StorageDir != "" {
				dest = filepath.Join(rn.StorageDir, rn.Name, EnvDir)
			}
			nodes = append(nodes, HostedNode{Name: rn.Name, Dest: dest})
		}
		for _, a := range sn.Admins {
			nodes = append(nodes, HostedNode{Name: a.Name, IsAdmin: true, Dest: d.nodeDir(sn, a.Name)})
		}
	}

	if !found {
		return nil, errors.Configuration("host %q is not part of store %v", hostname, d.StoreName)
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Name < nodes[j].Name
	})
	return nodes, nil
}

// Encode returns the description as indented JSON.
func (d *Description) Encode() ([]byte, error) {
	buf, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return append(buf, '\n'), nil
}
