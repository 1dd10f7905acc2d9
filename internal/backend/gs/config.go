package gs

import (
	"os"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/options"
)

// Config contains all configuration necessary to connect to a Google Cloud Storage
// bucket. We use Google's default application credentials to acquire an access token, so
// we don't require that calling code supply any authentication material here.
type Config struct {
	ProjectID string `option:"project-id" help:"project ID (default: $GOOGLE_PROJECT_ID)"`
	Bucket    string `option:"bucket" help:"bucket holding the archive"`
	Prefix    string `option:"prefix" help:"object name prefix inside the bucket"`

	Connections uint `option:"connections" help:"set a limit for the number of concurrent connections (default: 5)"`
}

// NewConfig returns a new Config with the default values filled in.
func NewConfig() Config {
	return Config{
		Connections: 5,
	}
}

func init() {
	options.Register("gs", Config{})
}

var _ backend.ApplyEnvironmenter = &Config{}

// ApplyEnvironment saves values from the environment to the config.
func (cfg *Config) ApplyEnvironment(prefix string) {
	if cfg.ProjectID == "" {
		cfg.ProjectID = os.Getenv(prefix + "GOOGLE_PROJECT_ID")
	}
}
