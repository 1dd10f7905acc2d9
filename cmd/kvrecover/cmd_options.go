package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/restic/kvrecover/internal/options"
)

func newOptionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Print list of configuration file options",
		Long: `
The "options" command prints all keys that can be set in the configuration
file, grouped by namespace.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
`,
		Hidden:            true,
		DisableAutoGenTag: true,
		Args:              cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "All Configuration Options:\n")
			var maxLen int
			for _, opt := range options.List() {
				if l := len(opt.Namespace + "." + opt.Name); l > maxLen {
					maxLen = l
				}
			}
			for _, opt := range options.List() {
				_, _ = fmt.Fprintf(out, "  %*s  %s\n", -maxLen, opt.Namespace+"."+opt.Name, opt.Text)
			}
		},
	}
	return cmd
}
