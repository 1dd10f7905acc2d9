package executor

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/restic/kvrecover/internal/copier"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/layout"
	"github.com/restic/kvrecover/internal/manifest"
	"github.com/restic/kvrecover/internal/ui"
)

// AdminExecutor restores the admin node of every store into an output
// directory.
type AdminExecutor struct {
	worker
}

// NewAdmin returns an executor copying through c.
func NewAdmin(c *copier.Copier, printer ui.Printer, opts Options) *AdminExecutor {
	return &AdminExecutor{worker{copier: c, printer: printer, opts: opts}}
}

// Run restores the admin winner of each store into
// <outputDir>/<store>/<winnerNode>. Each store is a separate unit.
func (e *AdminExecutor) Run(ctx context.Context, stores map[string]manifest.RequiredFiles, outputDir string) (*Results, error) {
	names := sortedStores(stores)
	if len(names) == 0 {
		return nil, errors.Configuration("no stores to recover")
	}

	units := make([]unit, 0, len(names))
	missing := make(map[string]bool)
	for _, store := range names {
		sel, ok := stores[store][layout.AdminShard]
		if !ok {
			missing[store] = true
			units = append(units, unit{id: store})
			continue
		}

		units = append(units, unit{
			id:      store,
			node:    sel.WinnerNode,
			dir:     filepath.Join(outputDir, store, sel.WinnerNode),
			entries: sel.Entries,
		})
	}

	res := runUnits(ctx, e.opts.Parallelism, units, func(ctx context.Context, u unit) error {
		if missing[u.id] {
			return errors.Configuration("store %v has no %v shard", u.id, layout.AdminShard)
		}
		return e.restore(ctx, u)
	})

	return res, e.report(res)
}

func sortedStores(stores map[string]manifest.RequiredFiles) []string {
	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
