package s3

import (
	"os"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/options"
)

// Config contains all configuration necessary to connect to an s3 compatible
// server.
type Config struct {
	Endpoint      string               `option:"endpoint" help:"S3 endpoint host[:port] (default: s3.amazonaws.com)"`
	UseHTTP       bool                 `option:"use-http" help:"connect without TLS"`
	KeyID         string               `option:"key-id" help:"access key ID (default: $AWS_ACCESS_KEY_ID)"`
	Secret        options.SecretString `option:"secret" help:"secret access key (default: $AWS_SECRET_ACCESS_KEY)"`
	Bucket        string               `option:"bucket" help:"bucket holding the archive"`
	Prefix        string               `option:"prefix" help:"object name prefix inside the bucket"`
	Region        string               `option:"region" help:"set region (default: $AWS_DEFAULT_REGION)"`
	BucketLookup  string               `option:"bucket-lookup" help:"bucket lookup style: 'auto', 'dns', or 'path'"`
	ListObjectsV1 bool                 `option:"list-objects-v1" help:"use deprecated V1 api for ListObjects calls"`

	Connections uint `option:"connections" help:"set a limit for the number of concurrent connections (default: 5)"`
	MaxRetries  uint `option:"retries" help:"set the number of retries attempted"`
}

// NewConfig returns a new Config with the default values filled in.
func NewConfig() Config {
	return Config{
		Endpoint:    "s3.amazonaws.com",
		Connections: 5,
	}
}

func init() {
	options.Register("s3", Config{})
}

var _ backend.ApplyEnvironmenter = &Config{}

// ApplyEnvironment saves values from the environment to the config.
func (cfg *Config) ApplyEnvironment(prefix string) {
	if cfg.KeyID == "" {
		cfg.KeyID = os.Getenv(prefix + "AWS_ACCESS_KEY_ID")
	}

	if cfg.Secret.String() == "" {
		cfg.Secret = options.NewSecretString(os.Getenv(prefix + "AWS_SECRET_ACCESS_KEY"))
	}

	if cfg.Region == "" {
		cfg.Region = os.Getenv(prefix + "AWS_DEFAULT_REGION")
	}
}
