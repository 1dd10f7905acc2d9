package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"
)

func init() {
	// don't import `go.uber.org/automaxprocs` to disable the log output
	_, _ = maxprocs.Set()
}

// coverageReportLines is the number of buckets listed when no consistent
// recovery point exists.
const coverageReportLines = 10

func newRootCommand(gopts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kvrecover",
		Short: "Restore a sharded key-value store to a consistent point in time",
		Long: `
kvrecover restores a sharded, replicated key-value store from the per-node
backups in an archive. It first searches the newest point in time for which
every shard has a complete backup, then copies the log segments of the
winning nodes back into place and verifies their checksums.
`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,

		Args: cobra.ArbitraryArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageErrorf("unknown command %q", args[0])
			}
			return c.Help()
		},

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return gopts.PreRun()
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	gopts.AddFlags(cmd.PersistentFlags())
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(
		newSearchCommand(gopts),
		newRecoverAdminCommand(gopts),
		newRecoverNodeCommand(gopts),
		newRegenerateConfigCommand(gopts),
		newOptionsCommand(),
		newVersionCommand(gopts),
	)

	registerProfiling(cmd)

	return cmd
}

// exitCode maps the error returned by a command to the exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case isUsageError(err), errors.IsConfiguration(err):
		return 2
	default:
		return 1
	}
}

// exitMessage formats err for the user.
func exitMessage(err error, logBuffer *bytes.Buffer) string {
	var noRecoveryPoint *errors.NoConsistentRecoveryPointError

	switch {
	case isUsageError(err):
		return fmt.Sprintf("%v\nsee 'kvrecover --help' for usage", err)
	case errors.As(err, &noRecoveryPoint):
		return fmt.Sprintf("Fatal: %v\n%s", err, noRecoveryPoint.Report(coverageReportLines))
	case errors.IsFatal(err), errors.IsConfiguration(err), errors.IsIntegrity(err):
		return fmt.Sprintf("Fatal: %v", err)
	case errors.Is(err, context.Canceled):
		return "interrupted"
	}

	msg := fmt.Sprintf("%+v", err)
	if logBuffer != nil && logBuffer.Len() > 0 {
		msg += "\nalso, the following messages were logged by a library:\n"
		sc := bufio.NewScanner(logBuffer)
		for sc.Scan() {
			msg += fmt.Sprintln(sc.Text())
		}
	}
	return msg
}

func main() {
	// install custom global logger into a buffer, if an error occurs
	// we can show the logs
	logBuffer := bytes.NewBuffer(nil)
	log.SetOutput(logBuffer)

	debug.Log("main %#v", os.Args)
	debug.Log("kvrecover %s compiled with %v on %v/%v",
		version, runtime.Version(), runtime.GOOS, runtime.GOARCH)

	gopts := newGlobalOptions()
	ctx := createGlobalContext()
	err := newRootCommand(gopts).ExecuteContext(ctx)
	if err == nil {
		err = ctx.Err()
	}

	code := exitCode(err)
	if code != 0 {
		_, _ = fmt.Fprintln(gopts.stderr, exitMessage(err, logBuffer))
	}
	Exit(code)
}
