// Package selector searches the archive for the most recent bucket in which
// every shard of every store has a complete backup.
package selector

import (
	"context"

	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/election"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/layout"
	"github.com/restic/kvrecover/internal/manifest"
	"github.com/restic/kvrecover/internal/scanner"
)

// Result is the chosen recovery point and the winner of every shard.
type Result struct {
	ART     layout.Bucket
	Winners map[layout.ShardKey]manifest.WinnerSelection
}

// Stores returns the winners grouped by store.
func (r *Result) Stores() map[string]manifest.RequiredFiles {
	stores := make(map[string]manifest.RequiredFiles)
	for k, sel := range r.Winners {
		rf, ok := stores[k.Store]
		if !ok {
			rf = make(manifest.RequiredFiles)
			stores[k.Store] = rf
		}
		rf[k.Shard] = sel
	}
	return stores
}

// Search walks the buckets of idx from newest to oldest and returns the
// first one in which every known shard has at least one complete backup.
// Each bucket is judged on its own records only. Manifest descriptors are
// loaded with fetch.
func Search(ctx context.Context, idx *scanner.Index, fetch manifest.FetchFunc) (*Result, error) {
	records := manifest.NewCache(manifest.DefaultCacheSize, fetch)
	known := idx.KnownShards()

	debug.Log("searching %d buckets for %d shards, target %v", len(idx.Buckets), len(known), idx.Target)

	var coverage []errors.BucketCoverage
	for _, g := range idx.Buckets {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		pools, err := collect(ctx, records, g)
		if err != nil {
			return nil, err
		}

		var missing []string
		for _, k := range known {
			if len(pools[k]) == 0 {
				missing = append(missing, k.String())
			}
		}

		if len(missing) > 0 {
			debug.Log("bucket %v: no complete backup for %v", g.Bucket, missing)
			coverage = append(coverage, errors.BucketCoverage{Bucket: g.Bucket.Key, Shards: missing})
			continue
		}

		res := &Result{
			ART:     g.Bucket,
			Winners: make(map[layout.ShardKey]manifest.WinnerSelection, len(known)),
		}
		for _, k := range known {
			winner, err := election.Elect(pools[k])
			if err != nil {
				return nil, errors.Wrapf(err, "elect winner for %v", k)
			}
			debug.Log("bucket %v: winner for %v is %v (seq %v, master %v)",
				g.Bucket, k, winner.NodeName, winner.SequenceNumber, winner.IsMaster)
			res.Winners[k] = manifest.NewWinnerSelection(winner)
		}
		return res, nil
	}

	nerr := &errors.NoConsistentRecoveryPointError{
		BasePath: idx.Base,
		Target:   idx.Target.Key,
		Missing:  coverage,
	}
	if oldest, ok := idx.Oldest(); ok {
		nerr.Oldest = oldest.Key
	}
	return nil, errors.WithStack(nerr)
}

// collect loads the descriptors of one bucket and returns the complete
// records per shard. A descriptor that cannot be decoded counts as an
// incomplete backup, a descriptor that cannot be loaded fails the search.
func collect(ctx context.Context, records *manifest.Cache, g scanner.Group) (map[layout.ShardKey][]manifest.Record, error) {
	pools := make(map[layout.ShardKey][]manifest.Record)
	for _, d := range g.Descriptors {
		rec, err := records.Get(ctx, d.Path)
		if manifest.IsInvalid(err) {
			debug.Log("bucket %v: treating %v as incomplete: %v", g.Bucket, d.Path, err)
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "load manifest %v", d.Path)
		}

		if rec.NodeName == "" {
			rec.NodeName = d.Node
		} else if rec.NodeName != d.Node {
			debug.Log("%v: manifest names node %q", d.Path, rec.NodeName)
		}

		if !rec.IsComplete {
			continue
		}
		pools[d.Key()] = append(pools[d.Key()], rec)
	}
	return pools, nil
}
