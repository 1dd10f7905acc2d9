// Package scanner enumerates the manifest descriptors in the archive and
// groups them into time buckets.
package scanner

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/layout"
	"github.com/restic/kvrecover/internal/manifest"
)

// Descriptor is one manifest descriptor found in the archive.
type Descriptor struct {
	// Path is the full archive path of the descriptor.
	Path string
	layout.NodePath
}

// Group holds the descriptors of one bucket, sorted by path.
type Group struct {
	Bucket      layout.Bucket
	Descriptors []Descriptor
}

// Index is the result of a scan.
type Index struct {
	Base   string
	Target layout.Bucket

	// Buckets not after Target, newest first.
	Buckets []Group
}

// Scan lists the archive below base and returns the manifest descriptors of
// all buckets not after target.
func Scan(ctx context.Context, be backend.Backend, base string, target string) (*Index, error) {
	t, err := layout.ParseBucket(target)
	if err != nil {
		return nil, errors.Configuration("invalid target recovery time: %v", err)
	}

	base = strings.Trim(base, "/")
	prefix := backend.CleanPrefix(base)

	groups := make(map[string]*Group)
	found := 0
	skipped := 0

	err = be.List(ctx, base, func(fi backend.FileInfo) error {
		if path.Base(fi.Path) != manifest.DescriptorName {
			return nil
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(fi.Path, "/"), prefix)
		np, err := layout.ParseNodePath(rel)
		if err != nil {
			debug.Log("skipping %v: %v", fi.Path, err)
			skipped++
			return nil
		}
		found++

		if !np.Bucket.NotAfter(t) {
			return nil
		}

		g, ok := groups[np.Bucket.Key]
		if !ok {
			g = &Group{Bucket: np.Bucket}
			groups[np.Bucket.Key] = g
		}
		g.Descriptors = append(g.Descriptors, Descriptor{Path: backend.Join(base, rel), NodePath: np})
		return nil
	})

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Configuration("archive base path %q is not reachable: %v", base, err)
	}

	debug.Log("found %d manifest descriptors below %q, skipped %d", found, base, skipped)

	if found == 0 {
		return nil, errors.Configuration("no manifest descriptors found below archive base path %q", base)
	}

	idx := &Index{Base: base, Target: t}
	for _, g := range groups {
		sort.Slice(g.Descriptors, func(i, j int) bool {
			return g.Descriptors[i].Path < g.Descriptors[j].Path
		})
		idx.Buckets = append(idx.Buckets, *g)
	}
	sort.Slice(idx.Buckets, func(i, j int) bool {
		return idx.Buckets[i].Bucket.Newer(idx.Buckets[j].Bucket)
	})

	return idx, nil
}

// KnownShards returns, sorted, every shard of every store that appears in
// any bucket of the index.
func (idx *Index) KnownShards() []layout.ShardKey {
	seen := make(map[layout.ShardKey]struct{})
	for _, g := range idx.Buckets {
		for _, d := range g.Descriptors {
			seen[d.Key()] = struct{}{}
		}
	}

	keys := make([]layout.ShardKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Oldest returns the oldest bucket of the index, if any.
func (idx *Index) Oldest() (layout.Bucket, bool) {
	if len(idx.Buckets) == 0 {
		return layout.Bucket{}, false
	}
	return idx.Buckets[len(idx.Buckets)-1].Bucket, true
}
