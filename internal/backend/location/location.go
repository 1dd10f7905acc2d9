// Package location selects and configures the archive backend named by the
// copy implementation identifier.
package location

import (
	"strings"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/options"
)

// Location specifies the backend and its configuration, including the
// credentials needed for access.
type Location struct {
	Scheme string
	Config interface{}
}

// Parse returns the location for the copy implementation scheme. The
// backend configuration is built from its defaults, the options in the
// scheme's namespace and, if the backend supports it, the environment.
func Parse(registry *Registry, scheme string, opts options.Options) (Location, error) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" {
		return Location{}, errors.Configuration("no copy implementation specified")
	}

	factory := registry.Lookup(scheme)
	if factory == nil {
		return Location{}, errors.Configuration("unknown copy implementation %q, supported: %v",
			scheme, strings.Join(registry.Schemes(), ", "))
	}

	cfg := factory.NewConfig()
	if err := opts.Extract(scheme).Apply(scheme, cfg); err != nil {
		return Location{}, errors.Configuration("%v", err)
	}

	if env, ok := cfg.(backend.ApplyEnvironmenter); ok {
		env.ApplyEnvironment("")
	}

	return Location{Scheme: scheme, Config: cfg}, nil
}
