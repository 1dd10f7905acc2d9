// Package config loads the flat key/value configuration file shared by all
// subcommands and opens the archive it describes.
package config

import (
	"context"
	"strings"
	"time"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/limiter"
	"github.com/restic/kvrecover/internal/backend/location"
	"github.com/restic/kvrecover/internal/backend/retry"
	"github.com/restic/kvrecover/internal/backend/sema"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/options"
	"github.com/restic/kvrecover/internal/textfile"
	"github.com/restic/kvrecover/internal/ui"
)

type copyOptions struct {
	Impl string `option:"impl" help:"copy implementation used to access the archive (required)"`
}

type archiveOptions struct {
	Base        string `option:"base" help:"base path of the backups within the archive"`
	CACert      string `option:"cacert" help:"file with PEM encoded root certificates to trust"`
	InsecureTLS bool   `option:"insecure-tls" help:"skip TLS certificate verification"`
}

type limitOptions struct {
	DownloadKb int `option:"download-kb" help:"limit download bandwidth to this many KiB/s (default: unlimited)"`
}

type executorOptions struct {
	Parallelism int `option:"parallelism" help:"number of nodes or stores recovered concurrently (default: 1)"`
}

func init() {
	options.Register("copy", copyOptions{})
	options.Register("archive", archiveOptions{})
	options.Register("limit", limitOptions{})
	options.Register("executor", executorOptions{})
}

// Config is the parsed configuration file.
type Config struct {
	// Base is the base path of the backups within the archive.
	Base        string
	Retry       retry.Policy
	Limits      limiter.Limits
	Parallelism int
	Transport   backend.TransportOptions
	Location    location.Location

	registry *location.Registry
}

// Load reads and parses the configuration file filename.
func Load(filename string, registry *location.Registry) (*Config, error) {
	buf, err := textfile.Read(filename)
	if err != nil {
		return nil, errors.Configuration("read config file: %v", err)
	}

	opts, err := options.ParseFile(buf)
	if err != nil {
		return nil, errors.Configuration("%v: %v", filename, err)
	}

	cfg, err := Parse(opts, registry)
	if err != nil {
		return nil, errors.Configuration("%v: %v", filename, err)
	}
	return cfg, nil
}

// Parse builds the configuration from opts. The copy implementation must be
// one of the schemes in registry.
func Parse(opts options.Options, registry *location.Registry) (*Config, error) {
	known := map[string]bool{
		"copy":     true,
		"archive":  true,
		"retry":    true,
		"limit":    true,
		"executor": true,
	}
	for _, scheme := range registry.Schemes() {
		known[scheme] = true
	}

	for key := range opts {
		ns, _, found := strings.Cut(key, ".")
		if !found || !known[ns] {
			return nil, errors.Configuration("unknown option %q", key)
		}
	}

	apply := func(ns string, dst interface{}) error {
		if err := opts.Extract(ns).Apply(ns, dst); err != nil {
			return errors.Configuration("%v", err)
		}
		return nil
	}

	var copyOpts copyOptions
	var archiveOpts archiveOptions
	var limitOpts limitOptions
	executorOpts := executorOptions{Parallelism: 1}
	policy := retry.DefaultPolicy()

	for _, sec := range []struct {
		ns  string
		dst interface{}
	}{
		{"copy", &copyOpts},
		{"archive", &archiveOpts},
		{"retry", &policy},
		{"limit", &limitOpts},
		{"executor", &executorOpts},
	} {
		if err := apply(sec.ns, sec.dst); err != nil {
			return nil, err
		}
	}

	if copyOpts.Impl == "" {
		return nil, errors.Configuration("copy.impl is required")
	}

	if executorOpts.Parallelism < 1 {
		return nil, errors.Configuration("executor.parallelism must be at least 1")
	}
	if limitOpts.DownloadKb < 0 {
		return nil, errors.Configuration("limit.download-kb must not be negative")
	}
	if policy.InitialWait <= 0 || policy.MaxWait < policy.InitialWait {
		return nil, errors.Configuration("retry.initial-wait must be positive and not exceed retry.max-wait")
	}

	loc, err := location.Parse(registry, copyOpts.Impl, opts)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Base:        strings.Trim(archiveOpts.Base, "/"),
		Retry:       policy,
		Limits:      limiter.Limits{DownloadKb: limitOpts.DownloadKb},
		Parallelism: executorOpts.Parallelism,
		Location:    loc,
		registry:    registry,
	}
	if archiveOpts.CACert != "" {
		cfg.Transport.RootCertFilenames = []string{archiveOpts.CACert}
	}
	cfg.Transport.InsecureTLS = archiveOpts.InsecureTLS

	return cfg, nil
}

// RequireBase returns an error if no base path is configured.
func (c *Config) RequireBase() error {
	if c.Base == "" {
		return errors.Configuration("archive.base is required")
	}
	return nil
}

// Open opens the archive. Transient errors are retried according to the
// configured policy, retries are reported to printer.
func (c *Config) Open(ctx context.Context, printer ui.Printer) (backend.Backend, error) {
	rt, err := backend.Transport(c.Transport)
	if err != nil {
		return nil, errors.Configuration("%v", err)
	}

	lim := limiter.NewStaticLimiter(c.Limits)

	factory := c.registry.Lookup(c.Location.Scheme)
	if factory == nil {
		return nil, errors.Configuration("invalid copy implementation: %q", c.Location.Scheme)
	}

	be, err := factory.Open(ctx, c.Location.Config, rt, lim)
	if err != nil {
		return nil, errors.Configuration("unable to open archive (%v): %v", c.Location.Scheme, err)
	}
	debug.Log("opened archive %v", be.Location())

	be = sema.NewBackend(be)

	report := func(msg string, err error, d time.Duration) {
		if d >= 0 {
			printer.E("%v returned error, retrying after %v: %v", msg, d, err)
		} else {
			printer.E("%v failed: %v", msg, err)
		}
	}
	success := func(msg string, retries int) {
		printer.E("%v operation successful after %d retries", msg, retries)
	}

	return retry.New(be, c.Retry, report, success), nil
}
