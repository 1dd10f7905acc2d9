//go:build debug || profile

package main

import (
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/restic/kvrecover/internal/errors"
)

type ProfileOptions struct {
	memPath   string
	cpuPath   string
	tracePath string
}

func (opts *ProfileOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVar(&opts.memPath, "mem-profile", "", "write memory profile to `dir`")
	f.StringVar(&opts.cpuPath, "cpu-profile", "", "write cpu profile to `dir`")
	f.StringVar(&opts.tracePath, "trace-profile", "", "write trace to `dir`")
}

func (opts *ProfileOptions) start() (interface{ Stop() }, error) {
	n := 0
	for _, p := range []string{opts.memPath, opts.cpuPath, opts.tracePath} {
		if p != "" {
			n++
		}
	}
	if n > 1 {
		return nil, usageError{errors.New("only one profile (memory, CPU or trace) may be activated at the same time")}
	}

	switch {
	case opts.memPath != "":
		return profile.Start(profile.Quiet, profile.NoShutdownHook, profile.MemProfile, profile.ProfilePath(opts.memPath)), nil
	case opts.cpuPath != "":
		return profile.Start(profile.Quiet, profile.NoShutdownHook, profile.CPUProfile, profile.ProfilePath(opts.cpuPath)), nil
	case opts.tracePath != "":
		return profile.Start(profile.Quiet, profile.NoShutdownHook, profile.TraceProfile, profile.ProfilePath(opts.tracePath)), nil
	}
	return nil, nil
}

func registerProfiling(cmd *cobra.Command) {
	var opts ProfileOptions
	var prof interface{ Stop() }

	opts.AddFlags(cmd.PersistentFlags())

	preRun := cmd.PersistentPreRunE
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := preRun(c, args); err != nil {
			return err
		}

		var err error
		prof, err = opts.start()
		return err
	}

	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if prof != nil {
			prof.Stop()
		}
	}
}
