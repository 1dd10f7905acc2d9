package b2

import (
	"os"
	"regexp"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/options"
)

// Config contains all configuration necessary to connect to an b2 compatible
// server.
type Config struct {
	AccountID string               `option:"account-id" help:"account ID (default: $B2_ACCOUNT_ID)"`
	Key       options.SecretString `option:"key" help:"application key (default: $B2_ACCOUNT_KEY)"`
	Bucket    string               `option:"bucket" help:"bucket holding the archive"`
	Prefix    string               `option:"prefix" help:"object name prefix inside the bucket"`

	Connections uint `option:"connections" help:"set a limit for the number of concurrent connections (default: 5)"`
}

// NewConfig returns a new config with default options applied.
func NewConfig() Config {
	return Config{
		Connections: 5,
	}
}

func init() {
	options.Register("b2", Config{})
}

var bucketName = regexp.MustCompile("^[a-zA-Z0-9-]+$")

// checkBucketName tests the bucket name against the rules at
// https://help.backblaze.com/hc/en-us/articles/217666908-What-you-need-to-know-about-B2-Bucket-names
func checkBucketName(name string) error {
	if name == "" {
		return errors.New("bucket name is empty")
	}

	if len(name) < 6 {
		return errors.New("bucket name is too short")
	}

	if len(name) > 50 {
		return errors.New("bucket name is too long")
	}

	if !bucketName.MatchString(name) {
		return errors.New("bucket name contains invalid characters, allowed are: a-z, 0-9, dash (-)")
	}

	return nil
}

var _ backend.ApplyEnvironmenter = &Config{}

// ApplyEnvironment saves values from the environment to the config.
func (cfg *Config) ApplyEnvironment(prefix string) {
	if cfg.AccountID == "" {
		cfg.AccountID = os.Getenv(prefix + "B2_ACCOUNT_ID")
	}

	if cfg.Key.String() == "" {
		cfg.Key = options.NewSecretString(os.Getenv(prefix + "B2_ACCOUNT_KEY"))
	}
}
