package election

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/restic/kvrecover/internal/manifest"
	rtest "github.com/restic/kvrecover/internal/test"
)

func rec(name string, seq int64, master bool) manifest.Record {
	return manifest.Record{NodeName: name, IsComplete: true, SequenceNumber: seq, IsMaster: master}
}

func TestElect(t *testing.T) {
	var tests = []struct {
		name       string
		candidates []manifest.Record
		winner     string
	}{
		{
			"single",
			[]manifest.Record{rec("rg1-rn1", 1, false)},
			"rg1-rn1",
		},
		{
			"master breaks sequence tie",
			[]manifest.Record{rec("rn1", 500, false), rec("rn2", 500, true)},
			"rn2",
		},
		{
			"sequence dominates master",
			[]manifest.Record{rec("rn1", 400, false), rec("rn2", 600, false)},
			"rn2",
		},
		{
			"sequence dominates master flag set",
			[]manifest.Record{rec("rn1", 400, true), rec("rn2", 600, false)},
			"rn2",
		},
		{
			"lexicographic tie break",
			[]manifest.Record{rec("rg1-rn2", 500, false), rec("rg1-rn1", 500, false)},
			"rg1-rn1",
		},
		{
			"more than two tie",
			[]manifest.Record{rec("rg1-rn3", 500, false), rec("rg1-rn2", 500, false), rec("rg1-rn1", 500, false), rec("rg1-rn4", 499, true)},
			"rg1-rn1",
		},
		{
			"master among many",
			[]manifest.Record{rec("rg1-rn1", 700, false), rec("rg1-rn3", 700, true), rec("rg1-rn2", 700, false)},
			"rg1-rn3",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w, err := Elect(test.candidates)
			rtest.OK(t, err)
			rtest.Equals(t, test.winner, w.NodeName)
		})
	}
}

func TestElectOrderIndependent(t *testing.T) {
	candidates := []manifest.Record{
		rec("rg1-rn5", 10, false),
		rec("rg1-rn4", 12, false),
		rec("rg1-rn3", 12, false),
		rec("rg1-rn2", 11, true),
		rec("rg1-rn1", 9, true),
	}

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		r.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		w, err := Elect(candidates)
		rtest.OK(t, err)
		rtest.Equals(t, "rg1-rn3", w.NodeName)
	}
}

func TestBetterIsStrictOrder(t *testing.T) {
	var recs []manifest.Record
	for seq := int64(1); seq <= 2; seq++ {
		for _, master := range []bool{false, true} {
			for n := 1; n <= 2; n++ {
				recs = append(recs, rec(fmt.Sprintf("rn%d", n), seq, master))
			}
		}
	}

	for i, a := range recs {
		rtest.Assert(t, !Better(a, a), "Better is not irreflexive for %v", a)
		for j, b := range recs {
			if i == j {
				continue
			}
			rtest.Assert(t, Better(a, b) != Better(b, a), "Better is not antisymmetric for %v, %v", a, b)
		}
	}
}

func TestElectErrors(t *testing.T) {
	_, err := Elect(nil)
	rtest.Assert(t, err != nil, "expected error for empty candidate set")

	incomplete := rec("rn1", 1, false)
	incomplete.IsComplete = false
	_, err = Elect([]manifest.Record{rec("rn2", 1, false), incomplete})
	rtest.Assert(t, err != nil, "expected error for incomplete candidate")
}
