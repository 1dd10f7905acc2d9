package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/restic/kvrecover/internal/bundle"
	"github.com/restic/kvrecover/internal/config"
	"github.com/restic/kvrecover/internal/copier"
	"github.com/restic/kvrecover/internal/executor"
)

func newRecoverAdminCommand(gopts *GlobalOptions) *cobra.Command {
	var opts RecoverAdminOptions

	cmd := &cobra.Command{
		Use:   "recover-admin-metadata [flags]",
		Short: "Restore the admin nodes of all stores from a bundle",
		Long: `
The "recover-admin-metadata" command copies the log segments of the winning
admin node of every store in the bundle into <output-dir>/<store>/<node>.
The bundle may be the zip file written by "search-for-recovery-point" or a
directory holding its extracted documents.

Stores are restored independently: a failure in one store does not stop the
others, but makes the command fail after all stores were processed.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if restoring any store failed.
Exit status is 2 if the arguments, the configuration or the bundle are invalid.
Exit status is 130 if the command was interrupted.
`,
		DisableAutoGenTag: true,
		Args:              cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecoverAdmin(cmd.Context(), opts, gopts)
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// RecoverAdminOptions collects all options for the recover-admin-metadata command.
type RecoverAdminOptions struct {
	Config    string
	BundleDir string
	OutputDir string
	DryRun    bool
}

func (opts *RecoverAdminOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVarP(&opts.Config, "config", "c", "", "read the configuration from `file`")
	f.StringVarP(&opts.BundleDir, "bundle-dir", "b", "", "read the bundle from `path` (zip file or directory)")
	f.StringVarP(&opts.OutputDir, "output-dir", "o", "", "restore the admin nodes below `dir`")
	f.BoolVarP(&opts.DryRun, "dry-run", "n", false, "only show what would be copied")
}

func runRecoverAdmin(ctx context.Context, opts RecoverAdminOptions, gopts *GlobalOptions) (err error) {
	if err := requireFlags("config", opts.Config, "bundle-dir", opts.BundleDir, "output-dir", opts.OutputDir); err != nil {
		return err
	}

	printer := gopts.printer()

	b, err := bundle.Open(opts.BundleDir)
	if err != nil {
		return err
	}
	printer.V("bundle for recovery point %v with stores %v", b.ART, b.StoreNames())

	cfg, err := config.Load(opts.Config, gopts.backends)
	if err != nil {
		return err
	}

	be, err := openArchive(ctx, gopts, cfg, printer)
	if err != nil {
		return err
	}
	defer closeArchive(be, &err)

	e := executor.NewAdmin(copier.New(be), printer, executor.Options{
		DryRun:      opts.DryRun,
		Parallelism: cfg.Parallelism,
	})

	res, err := e.Run(ctx, b.Stores, opts.OutputDir)
	if err != nil {
		return err
	}

	printer.P("restored admin nodes of %d stores for recovery point %v", len(res.Units()), b.ART)
	return nil
}
