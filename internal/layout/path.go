package layout

import (
	"path"
	"strings"

	"github.com/restic/kvrecover/internal/errors"
)

// AdminShard is the shard name under which admin nodes are grouped.
const AdminShard = "admin"

// ShardKey identifies a shard of one store.
type ShardKey struct {
	Store string
	Shard string
}

func (k ShardKey) String() string {
	return k.Store + "/" + k.Shard
}

// Less orders shard keys by store, then shard.
func (k ShardKey) Less(other ShardKey) bool {
	if k.Store != other.Store {
		return k.Store < other.Store
	}
	return k.Shard < other.Shard
}

// NodePath is the structured form of an archive path below the base
// directory.
type NodePath struct {
	Store  string
	Shard  string
	Node   string
	Bucket Bucket
	File   string
}

// IsAdmin returns true if the path belongs to an admin node.
func (p NodePath) IsAdmin() bool {
	return p.Shard == AdminShard
}

// Key returns the shard the path belongs to.
func (p NodePath) Key() ShardKey {
	return ShardKey{Store: p.Store, Shard: p.Shard}
}

// String formats p relative to the base directory.
func (p NodePath) String() string {
	if p.IsAdmin() {
		return path.Join(p.Store, p.Node, p.Bucket.Key, p.File)
	}
	return path.Join(p.Store, p.Shard, p.Node, p.Bucket.Key, p.File)
}

func isAdminNode(name string) bool {
	return strings.HasPrefix(name, AdminShard) && len(name) > len(AdminShard)
}

// ParseNodePath parses rel, a slash separated path relative to the base
// directory.
func ParseNodePath(rel string) (NodePath, error) {
	rel = strings.Trim(rel, "/")
	parts := strings.Split(rel, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return NodePath{}, errors.Errorf("invalid archive path %q: empty component", rel)
		}
	}

	var p NodePath
	switch {
	case len(parts) == 4 && isAdminNode(parts[1]):
		p = NodePath{Store: parts[0], Shard: AdminShard, Node: parts[1], File: parts[3]}
	case len(parts) == 5 && !isAdminNode(parts[1]) && parts[1] != AdminShard:
		p = NodePath{Store: parts[0], Shard: parts[1], Node: parts[2], File: parts[4]}
	default:
		return NodePath{}, errors.Errorf("invalid archive path %q: want <store>/<shard>/<node>/<bucket>/<file> or <store>/admin<id>/<bucket>/<file>", rel)
	}

	b, err := ParseBucket(parts[len(parts)-2])
	if err != nil {
		return NodePath{}, errors.Wrapf(err, "invalid archive path %q", rel)
	}
	p.Bucket = b

	return p, nil
}
