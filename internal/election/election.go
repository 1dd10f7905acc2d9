// Package election picks the node whose backup is used to restore a shard.
package election

import (
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/manifest"
)

// Better reports whether a ranks above b: the higher sequence number wins,
// then the master, then the lexicographically smaller node name.
func Better(a, b manifest.Record) bool {
	if a.SequenceNumber != b.SequenceNumber {
		return a.SequenceNumber > b.SequenceNumber
	}
	if a.IsMaster != b.IsMaster {
		return a.IsMaster
	}
	return a.NodeName < b.NodeName
}

// Elect returns the best of the complete records in candidates.
func Elect(candidates []manifest.Record) (manifest.Record, error) {
	if len(candidates) == 0 {
		return manifest.Record{}, errors.New("no candidates to elect a winner from")
	}

	winner := candidates[0]
	for i, rec := range candidates {
		if !rec.IsComplete {
			return manifest.Record{}, errors.Errorf("candidate %q is not a complete backup", rec.NodeName)
		}
		if i > 0 && Better(rec, winner) {
			winner = rec
		}
	}

	return winner, nil
}
