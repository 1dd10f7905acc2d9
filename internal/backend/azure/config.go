package azure

import (
	"os"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/options"
)

// Config contains all configuration necessary to connect to an azure compatible
// server.
type Config struct {
	AccountName        string               `option:"account-name" help:"storage account name (default: $AZURE_ACCOUNT_NAME)"`
	AccountSAS         options.SecretString `option:"account-sas" help:"shared access signature (default: $AZURE_ACCOUNT_SAS)"`
	AccountKey         options.SecretString `option:"account-key" help:"storage account key (default: $AZURE_ACCOUNT_KEY)"`
	ForceCliCredential bool                 `option:"force-cli-credential" help:"Forces the use of Azure CLI credentials for authentication"`
	EndpointSuffix     string               `option:"endpoint-suffix" help:"endpoint suffix (default: $AZURE_ENDPOINT_SUFFIX or core.windows.net)"`
	Container          string               `option:"container" help:"container holding the archive"`
	Prefix             string               `option:"prefix" help:"blob name prefix inside the container"`

	Connections uint `option:"connections" help:"set a limit for the number of concurrent connections (default: 5)"`
}

// NewConfig returns a new Config with the default values filled in.
func NewConfig() Config {
	return Config{
		Connections: 5,
	}
}

func init() {
	options.Register("azure", Config{})
}

var _ backend.ApplyEnvironmenter = &Config{}

// ApplyEnvironment saves values from the environment to the config.
func (cfg *Config) ApplyEnvironment(prefix string) {
	if cfg.AccountName == "" {
		cfg.AccountName = os.Getenv(prefix + "AZURE_ACCOUNT_NAME")
	}

	if cfg.AccountKey.String() == "" {
		cfg.AccountKey = options.NewSecretString(os.Getenv(prefix + "AZURE_ACCOUNT_KEY"))
	}

	if cfg.AccountSAS.String() == "" {
		cfg.AccountSAS = options.NewSecretString(os.Getenv(prefix + "AZURE_ACCOUNT_SAS"))
	}

	if cfg.EndpointSuffix == "" {
		cfg.EndpointSuffix = os.Getenv(prefix + "AZURE_ENDPOINT_SUFFIX")
	}
}
