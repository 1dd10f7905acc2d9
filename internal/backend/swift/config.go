package swift

import (
	"os"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/options"
)

// Config contains basic configuration needed to specify swift location for a swift server
type Config struct {
	UserName       string `option:"user-name"`
	UserID         string `option:"user-id"`
	Domain         string `option:"domain"`
	DomainID       string `option:"domain-id"`
	APIKey         string `option:"api-key"`
	AuthURL        string `option:"auth-url"`
	Region         string `option:"region"`
	Tenant         string `option:"tenant"`
	TenantID       string `option:"tenant-id"`
	TenantDomain   string `option:"tenant-domain"`
	TenantDomainID string `option:"tenant-domain-id"`
	TrustID        string `option:"trust-id"`

	StorageURL string               `option:"storage-url"`
	AuthToken  options.SecretString `option:"auth-token"`

	// auth v3 only
	ApplicationCredentialID     string               `option:"application-credential-id"`
	ApplicationCredentialName   string               `option:"application-credential-name"`
	ApplicationCredentialSecret options.SecretString `option:"application-credential-secret"`

	Container string `option:"container" help:"container holding the archive"`
	Prefix    string `option:"prefix" help:"object name prefix inside the container"`

	Connections uint `option:"connections" help:"set a limit for the number of concurrent connections (default: 5)"`
}

func init() {
	options.Register("swift", Config{})
}

// NewConfig returns a new config with the default values filled in.
func NewConfig() Config {
	return Config{
		Connections: 5,
	}
}

var _ backend.ApplyEnvironmenter = &Config{}

// ApplyEnvironment saves values from the environment to the config.
func (cfg *Config) ApplyEnvironment(prefix string) {
	for _, val := range []struct {
		s   *string
		env string
	}{
		// v2/v3 specific
		{&cfg.UserName, prefix + "OS_USERNAME"},
		{&cfg.APIKey, prefix + "OS_PASSWORD"},
		{&cfg.Region, prefix + "OS_REGION_NAME"},
		{&cfg.AuthURL, prefix + "OS_AUTH_URL"},

		// v3 specific
		{&cfg.UserID, prefix + "OS_USER_ID"},
		{&cfg.Domain, prefix + "OS_USER_DOMAIN_NAME"},
		{&cfg.DomainID, prefix + "OS_USER_DOMAIN_ID"},
		{&cfg.Tenant, prefix + "OS_PROJECT_NAME"},
		{&cfg.TenantDomain, prefix + "OS_PROJECT_DOMAIN_NAME"},
		{&cfg.TenantDomainID, prefix + "OS_PROJECT_DOMAIN_ID"},
		{&cfg.TrustID, prefix + "OS_TRUST_ID"},

		// v2 specific
		{&cfg.TenantID, prefix + "OS_TENANT_ID"},
		{&cfg.Tenant, prefix + "OS_TENANT_NAME"},

		// v1 specific
		{&cfg.AuthURL, prefix + "ST_AUTH"},
		{&cfg.UserName, prefix + "ST_USER"},
		{&cfg.APIKey, prefix + "ST_KEY"},

		// Application Credential auth
		{&cfg.ApplicationCredentialID, prefix + "OS_APPLICATION_CREDENTIAL_ID"},
		{&cfg.ApplicationCredentialName, prefix + "OS_APPLICATION_CREDENTIAL_NAME"},

		// Manual authentication
		{&cfg.StorageURL, prefix + "OS_STORAGE_URL"},
	} {
		if *val.s == "" {
			*val.s = os.Getenv(val.env)
		}
	}
	for _, val := range []struct {
		s   *options.SecretString
		env string
	}{
		{&cfg.ApplicationCredentialSecret, prefix + "OS_APPLICATION_CREDENTIAL_SECRET"},
		{&cfg.AuthToken, prefix + "OS_AUTH_TOKEN"},
	} {
		if val.s.String() == "" {
			*val.s = options.NewSecretString(os.Getenv(val.env))
		}
	}
}
