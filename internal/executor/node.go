package executor

import (
	"context"
	"os"
	"sort"

	"github.com/restic/kvrecover/internal/copier"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/manifest"
	"github.com/restic/kvrecover/internal/placement"
	"github.com/restic/kvrecover/internal/ui"
)

// NodeExecutor restores the winning nodes hosted on the local machine.
type NodeExecutor struct {
	worker

	// FreeSpace returns the number of bytes available below dir.
	FreeSpace func(dir string) (uint64, error)
}

// NewNode returns an executor copying through c.
func NewNode(c *copier.Copier, printer ui.Printer, opts Options) *NodeExecutor {
	return &NodeExecutor{
		worker:    worker{copier: c, printer: printer, opts: opts},
		FreeSpace: freeSpace,
	}
}

// hostedUnits returns a unit for every winner of rf that is placed on
// hostname, sorted by node name.
func hostedUnits(rf manifest.RequiredFiles, d *placement.Description, hostname string) ([]unit, error) {
	hosted, err := d.HostedNodes(hostname)
	if err != nil {
		return nil, err
	}

	winners := make(map[string]manifest.WinnerSelection, len(rf))
	for shard, sel := range rf {
		if _, ok := winners[sel.WinnerNode]; ok {
			return nil, errors.Configuration("node %v is the winner of more than one shard", sel.WinnerNode)
		}
		debug.Log("shard %v: winner %v", shard, sel.WinnerNode)
		winners[sel.WinnerNode] = sel
	}

	var units []unit
	for _, node := range hosted {
		sel, ok := winners[node.Name]
		if !ok {
			continue
		}
		units = append(units, unit{
			id:      node.Name,
			node:    node.Name,
			dir:     node.Dest,
			entries: sel.Entries,
		})
	}

	sort.Slice(units, func(i, j int) bool {
		return units[i].id < units[j].id
	})
	return units, nil
}

// Run restores every winner in rf that d places on hostname. Each node is a
// separate unit. Winners hosted elsewhere are ignored.
func (e *NodeExecutor) Run(ctx context.Context, rf manifest.RequiredFiles, d *placement.Description, hostname string) (*Results, error) {
	units, err := hostedUnits(rf, d, hostname)
	if err != nil {
		return nil, err
	}

	if len(units) == 0 {
		e.printer.P("no winning nodes of store %v are hosted on %v", d.StoreName, hostname)
		return newResults(nil), nil
	}

	res := runUnits(ctx, e.opts.Parallelism, units, func(ctx context.Context, u unit) error {
		if !e.opts.DryRun {
			if err := e.checkSpace(ctx, u); err != nil {
				return err
			}
		}
		return e.restore(ctx, u)
	})

	return res, e.report(res)
}

// checkSpace fails if the file system holding the unit's directory cannot
// take all of its segments. Files about to be replaced are taken into
// account.
func (e *NodeExecutor) checkSpace(ctx context.Context, u unit) error {
	var need uint64
	for _, entry := range u.entries {
		size, err := e.copier.Size(ctx, entry.FilePath)
		if err != nil {
			return err
		}
		need += uint64(size)

		dst, err := destFile(u.dir, entry)
		if err != nil {
			return err
		}
		if fi, err := os.Stat(dst); err == nil && fi.Mode().IsRegular() {
			need -= min(need, uint64(fi.Size()))
		}
	}

	free, err := e.FreeSpace(u.dir)
	if err != nil {
		return err
	}
	debug.Log("unit %v needs %d bytes, %d available", u.id, need, free)

	if need > free {
		return errors.Errorf("not enough space in %v: need %v, %v available",
			u.dir, ui.FormatBytes(need), ui.FormatBytes(free))
	}
	return nil
}
