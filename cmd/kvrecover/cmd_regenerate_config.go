package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/restic/kvrecover/internal/admindb"
)

func newRegenerateConfigCommand(gopts *GlobalOptions) *cobra.Command {
	var opts RegenerateConfigOptions

	cmd := &cobra.Command{
		Use:   "regenerate-config-from-admin-database [flags]",
		Short: "Write the placement descriptions stored in an admin database",
		Long: `
The "regenerate-config-from-admin-database" command reads the store topology
from the admin database in the given directory and writes a zip file holding
<store>/topology.json and one <store>/<hostname>.json placement description
per storage node host. The latter are the input of "recover-storage-node".

An admin database using an older schema is upgraded first.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
Exit status is 2 if the arguments are invalid or the admin database is missing.
`,
		DisableAutoGenTag: true,
		Args:              cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRegenerateConfig(cmd.Context(), opts, gopts)
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// RegenerateConfigOptions collects all options for the
// regenerate-config-from-admin-database command.
type RegenerateConfigOptions struct {
	AdminDBDir string
	Output     string
}

func (opts *RegenerateConfigOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVarP(&opts.AdminDBDir, "admin-db-dir", "d", "", "read the admin database from `dir`")
	f.StringVarP(&opts.Output, "output", "o", "", "write the placement descriptions to `file`")
}

func runRegenerateConfig(ctx context.Context, opts RegenerateConfigOptions, gopts *GlobalOptions) (err error) {
	if err := requireFlags("admin-db-dir", opts.AdminDBDir, "output", opts.Output); err != nil {
		return err
	}

	printer := gopts.printer()

	db, err := admindb.Open(ctx, opts.AdminDBDir)
	if err != nil {
		return err
	}
	defer func() {
		cerr := db.Close()
		if err == nil {
			err = cerr
		}
	}()

	stores, err := db.Stores(ctx)
	if err != nil {
		return err
	}
	printer.V("admin database holds stores %v", stores)

	if err := db.ExportFile(ctx, opts.Output); err != nil {
		return err
	}

	printer.P("placement descriptions of %d stores written to %v", len(stores), opts.Output)
	return nil
}
