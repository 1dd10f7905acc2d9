package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/restic/kvrecover/internal/bundle"
	"github.com/restic/kvrecover/internal/config"
	"github.com/restic/kvrecover/internal/copier"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/layout"
	"github.com/restic/kvrecover/internal/scanner"
	"github.com/restic/kvrecover/internal/selector"
)

func newSearchCommand(gopts *GlobalOptions) *cobra.Command {
	var opts SearchOptions

	cmd := &cobra.Command{
		Use:   "search-for-recovery-point [flags]",
		Short: "Find the newest consistent recovery point before a target time",
		Long: `
The "search-for-recovery-point" command walks the backups in the archive from
the target time backwards and picks the newest bucket in which every shard of
every store has a complete backup. For each shard it elects the node with the
most recent data and writes the log segments to restore into a bundle.

The target time is a bucket key, either YYYYMMDD or YYYYMMDDHH.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if no consistent recovery point exists or there was any other error.
Exit status is 2 if the arguments or the configuration are invalid.
Exit status is 130 if the command was interrupted.
`,
		DisableAutoGenTag: true,
		Args:              cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd.Context(), opts, gopts)
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// SearchOptions collects all options for the search-for-recovery-point command.
type SearchOptions struct {
	TargetTime string
	Config     string
	Output     string
}

func (opts *SearchOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVarP(&opts.TargetTime, "target-time", "t", "", "search recovery points not after this `bucket` (YYYYMMDD or YYYYMMDDHH)")
	f.StringVarP(&opts.Config, "config", "c", "", "read the configuration from `file`")
	f.StringVarP(&opts.Output, "output", "o", "", "write the bundle to `file`")
}

func runSearch(ctx context.Context, opts SearchOptions, gopts *GlobalOptions) (err error) {
	if err := requireFlags("target-time", opts.TargetTime, "config", opts.Config, "output", opts.Output); err != nil {
		return err
	}

	if _, err := layout.ParseBucket(opts.TargetTime); err != nil {
		return errors.Configuration("invalid target recovery time: %v", err)
	}

	cfg, err := config.Load(opts.Config, gopts.backends)
	if err != nil {
		return err
	}
	if err := cfg.RequireBase(); err != nil {
		return err
	}

	printer := gopts.printer()

	be, err := openArchive(ctx, gopts, cfg, printer)
	if err != nil {
		return err
	}
	defer closeArchive(be, &err)

	printer.V("scanning %v for backups up to %v", cfg.Base, opts.TargetTime)
	idx, err := scanner.Scan(ctx, be, cfg.Base, opts.TargetTime)
	if err != nil {
		return err
	}

	shards := idx.KnownShards()
	printer.V("found %d buckets with %d shards", len(idx.Buckets), len(shards))
	for _, k := range shards {
		printer.VV("  %v", k)
	}

	res, err := selector.Search(ctx, idx, copier.New(be).Fetch)
	if err != nil {
		return err
	}
	debug.Log("run %v: recovery point %v", gopts.runID, res.ART.Key)

	b := bundle.Emit(res)
	if err := b.WriteFile(opts.Output); err != nil {
		return err
	}

	printer.P("recovery point %v: %d stores, %d shards", res.ART.Key, len(b.Stores), len(res.Winners))
	for _, k := range shards {
		printer.V("  %v: %v", k, res.Winners[k].WinnerNode)
	}
	printer.P("bundle written to %v", opts.Output)
	return nil
}
