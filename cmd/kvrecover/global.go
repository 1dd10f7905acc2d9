package main

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/azure"
	"github.com/restic/kvrecover/internal/backend/b2"
	"github.com/restic/kvrecover/internal/backend/gs"
	"github.com/restic/kvrecover/internal/backend/local"
	"github.com/restic/kvrecover/internal/backend/location"
	"github.com/restic/kvrecover/internal/backend/s3"
	"github.com/restic/kvrecover/internal/backend/sftp"
	"github.com/restic/kvrecover/internal/backend/swift"
	"github.com/restic/kvrecover/internal/config"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/ui"
)

var version = "0.3.0-dev (compiled manually)"

// GlobalOptions hold all global options for kvrecover.
type GlobalOptions struct {
	Debug   bool
	Quiet   bool
	Verbose int

	stdout io.Writer
	stderr io.Writer

	backends *location.Registry

	// verbosity is set as follows:
	//  0 means: don't print any messages except errors, this is used when --quiet is specified
	//  1 is the default: print essential messages
	//  2 means: print more messages, report minor things, this is used when --verbose is specified
	//  3 means: print very detailed debug messages, this is used when --verbose=2 is specified
	verbosity uint

	// runID identifies the run in debug logs.
	runID string
}

func newGlobalOptions() *GlobalOptions {
	return &GlobalOptions{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		backends: collectBackends(),
	}
}

func (opts *GlobalOptions) AddFlags(f *pflag.FlagSet) {
	f.BoolVar(&opts.Debug, "debug", false, "write debug messages to stderr")
	f.BoolVarP(&opts.Quiet, "quiet", "q", false, "only print errors")
	// use empty parameter name as `-v, --verbose n` instead of the correct `--verbose=n` is confusing
	f.CountVarP(&opts.Verbose, "verbose", "v", "be verbose (specify multiple times or a level using --verbose=n``, max level/times is 2)")
}

// PreRun validates the global options and sets up debug logging.
func (opts *GlobalOptions) PreRun() error {
	// set verbosity, default is one
	opts.verbosity = 1
	if opts.Quiet && opts.Verbose > 0 {
		return usageErrorf("--quiet and --verbose cannot be specified at the same time")
	}

	switch {
	case opts.Verbose >= 2:
		opts.verbosity = 3
	case opts.Verbose > 0:
		opts.verbosity = 2
	case opts.Quiet:
		opts.verbosity = 0
	}

	if opts.Debug {
		debug.Enable(opts.stderr)
	}

	opts.runID = uuid.NewString()
	debug.Log("run %v, verbosity %d", opts.runID, opts.verbosity)
	return nil
}

func (opts *GlobalOptions) printer() ui.Printer {
	return ui.NewTerminalPrinter(opts.stdout, opts.stderr, opts.verbosity)
}

func collectBackends() *location.Registry {
	backends := location.NewRegistry()
	backends.Register(azure.NewFactory())
	backends.Register(b2.NewFactory())
	backends.Register(gs.NewFactory())
	backends.Register(local.NewFactory())
	backends.Register(s3.NewFactory())
	backends.Register(sftp.NewFactory())
	backends.Register(swift.NewFactory())
	return backends
}

// openArchive opens the archive named by cfg.
func openArchive(ctx context.Context, gopts *GlobalOptions, cfg *config.Config, printer ui.Printer) (backend.Backend, error) {
	be, err := cfg.Open(ctx, printer)
	if err != nil {
		return nil, err
	}
	debug.Log("run %v: archive %v opened", gopts.runID, be.Location())

	if cfg.Retry.Unbounded() {
		printer.P("note: transient archive errors are retried without limit, interrupt to abort")
	}
	return be, nil
}

func closeArchive(be backend.Backend, err *error) {
	cerr := be.Close()
	if *err == nil && cerr != nil {
		*err = errors.Wrap(cerr, "close archive")
	}
}
