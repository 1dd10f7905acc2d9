package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/restic/kvrecover/internal/bundle"
	"github.com/restic/kvrecover/internal/config"
	"github.com/restic/kvrecover/internal/copier"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/executor"
	"github.com/restic/kvrecover/internal/placement"
)

func newRecoverNodeCommand(gopts *GlobalOptions) *cobra.Command {
	var opts RecoverNodeOptions

	cmd := &cobra.Command{
		Use:   "recover-storage-node [flags]",
		Short: "Restore the winning nodes hosted on this storage node",
		Long: `
The "recover-storage-node" command restores the log segments of all winning
replica and admin nodes that the placement description puts on this host.
The manifest is the <store>.json document of one store from the bundle.

Nodes are restored independently: a failure in one node does not stop the
others, but makes the command fail after all nodes were processed.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if restoring any node failed.
Exit status is 2 if the arguments, the configuration or the input files are invalid.
Exit status is 130 if the command was interrupted.
`,
		DisableAutoGenTag: true,
		Args:              cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecoverNode(cmd.Context(), opts, gopts)
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// RecoverNodeOptions collects all options for the recover-storage-node command.
type RecoverNodeOptions struct {
	Config    string
	Manifest  string
	Placement string
	Hostname  string
	DryRun    bool
}

func (opts *RecoverNodeOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVarP(&opts.Config, "config", "c", "", "read the configuration from `file`")
	f.StringVarP(&opts.Manifest, "manifest", "m", "", "read the winners of one store from `file`")
	f.StringVarP(&opts.Placement, "placement", "p", "", "read the placement description from `file`")
	f.StringVar(&opts.Hostname, "hostname", "", "restore the nodes placed on `host` (default: the local hostname)")
	f.BoolVarP(&opts.DryRun, "dry-run", "n", false, "only show what would be copied")
}

func runRecoverNode(ctx context.Context, opts RecoverNodeOptions, gopts *GlobalOptions) (err error) {
	if err := requireFlags("config", opts.Config, "manifest", opts.Manifest, "placement", opts.Placement); err != nil {
		return err
	}

	printer := gopts.printer()

	hostname := opts.Hostname
	if hostname == "" {
		hostname, err = os.Hostname()
		if err != nil {
			return errors.Wrap(err, "hostname")
		}
	}

	rf, err := bundle.ReadStoreFile(opts.Manifest)
	if err != nil {
		return err
	}

	d, err := placement.Load(opts.Placement)
	if err != nil {
		return err
	}

	store := strings.TrimSuffix(filepath.Base(opts.Manifest), ".json")
	if store != d.StoreName {
		printer.E("warning: manifest %v does not match store %v of the placement description", opts.Manifest, d.StoreName)
	}

	cfg, err := config.Load(opts.Config, gopts.backends)
	if err != nil {
		return err
	}

	be, err := openArchive(ctx, gopts, cfg, printer)
	if err != nil {
		return err
	}
	defer closeArchive(be, &err)

	e := executor.NewNode(copier.New(be), printer, executor.Options{
		DryRun:      opts.DryRun,
		Parallelism: cfg.Parallelism,
	})

	res, err := e.Run(ctx, rf, d, hostname)
	if err != nil {
		return err
	}

	printer.P("restored %d nodes of store %v on %v", len(res.Units()), d.StoreName, hostname)
	return nil
}
