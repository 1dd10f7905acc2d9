// Package executor restores the log segments of the winning nodes into local
// directories. Work is split into independent units, one per store or per
// locally hosted node. A failing unit never aborts its siblings.
package executor

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/restic/kvrecover/internal/copier"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/manifest"
	"github.com/restic/kvrecover/internal/ui"
)

// Options configure a recovery run.
type Options struct {
	// DryRun only prints the planned copies.
	DryRun bool
	// Parallelism is the number of units run concurrently. Values below two
	// run all units sequentially.
	Parallelism int
}

// unit is one independent piece of work: the log segments of one winning
// node, restored into dir.
type unit struct {
	id      string
	node    string
	dir     string
	entries []manifest.LogFileEntry
}

type worker struct {
	copier  *copier.Copier
	printer ui.Printer
	opts    Options
}

func unitIDs(units []unit) []string {
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.id)
	}
	return ids
}

// runUnits runs fn for all units and records the results.
func runUnits(ctx context.Context, parallelism int, units []unit, fn func(context.Context, unit) error) *Results {
	res := newResults(unitIDs(units))

	if parallelism < 2 {
		for _, u := range units {
			res.record(u.id, isolate(ctx, u, fn))
		}
		return res
	}

	var wg errgroup.Group
	wg.SetLimit(parallelism)
	for _, u := range units {
		wg.Go(func() error {
			res.record(u.id, isolate(ctx, u, fn))
			return nil
		})
	}
	_ = wg.Wait()

	return res
}

// isolate runs fn and converts a panic into an error for the unit.
func isolate(ctx context.Context, u unit, fn func(context.Context, unit) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			debug.Log("unit %v panicked: %v\n%s", u.id, r, debug.DumpStacktrace())
			err = errors.Errorf("panic: %v", r)
		}
	}()

	return fn(ctx, u)
}

// destFile returns the local file for entry below dir.
func destFile(dir string, entry manifest.LogFileEntry) (string, error) {
	name := entry.FileName
	if name == "" {
		name = path.Base(entry.FilePath)
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", errors.Errorf("invalid file name %q for %v", name, entry.FilePath)
	}
	return filepath.Join(dir, name), nil
}

// restore copies all segments of u into its directory, one after another.
func (w *worker) restore(ctx context.Context, u unit) error {
	if w.opts.DryRun {
		for _, entry := range u.entries {
			dst, err := destFile(u.dir, entry)
			if err != nil {
				return err
			}
			w.printer.P("would copy %v to %v", entry.FilePath, dst)
		}
		return nil
	}

	if err := os.MkdirAll(u.dir, 0700); err != nil {
		return errors.WithStack(err)
	}

	w.printer.V("restoring %d files of %v to %v", len(u.entries), u.node, u.dir)
	for _, entry := range u.entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		dst, err := destFile(u.dir, entry)
		if err != nil {
			return err
		}

		task := &copier.Task{Entry: entry, Dest: dst}
		err = w.copier.Run(ctx, task)
		debug.Log("task %v: %v after %d attempts", entry.FilePath, task.State, task.Attempts)
		if err != nil {
			return err
		}
		if task.Attempts > 1 {
			w.printer.V("%v verified after %d attempts", dst, task.Attempts)
		} else {
			w.printer.VV("%v verified", dst)
		}
	}

	w.printer.P("restored %v: %d files in %v", u.node, len(u.entries), u.dir)
	return nil
}

func (w *worker) report(res *Results) error {
	for _, id := range res.Failed() {
		w.printer.E("%v failed: %v", id, res.Err(id))
	}
	return res.First()
}
