package location_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/location"
	"github.com/restic/kvrecover/internal/backend/mock"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/options"
	"github.com/restic/kvrecover/internal/test"
)

type testConfig struct {
	Bucket  string `option:"bucket"`
	Retries uint   `option:"retries"`
	env     bool
}

func (cfg *testConfig) ApplyEnvironment(prefix string) {
	cfg.env = true
}

func testFactory() location.Factory {
	return location.NewHTTPBackendFactory[testConfig, *mock.Backend](
		"s3",
		func() testConfig {
			return testConfig{Retries: 3}
		},
		func(_ context.Context, _ testConfig, _ http.RoundTripper) (*mock.Backend, error) {
			return mock.NewBackend(), nil
		},
	)
}

func TestParse(t *testing.T) {
	registry := location.NewRegistry()
	registry.Register(testFactory())

	opts := options.Options{
		"s3.bucket":    "backups",
		"archive.base": "kv",
	}
	u, err := location.Parse(registry, "S3", opts)
	test.OK(t, err)
	test.Equals(t, "s3", u.Scheme)
	test.Equals(t, &testConfig{Bucket: "backups", Retries: 3, env: true}, u.Config)

	be, err := registry.Lookup(u.Scheme).Open(context.TODO(), u.Config, http.DefaultTransport, nil)
	test.OK(t, err)
	test.Assert(t, be != nil, "no backend returned")
	var _ backend.Backend = be
}

func TestParseUnknownOption(t *testing.T) {
	registry := location.NewRegistry()
	registry.Register(testFactory())

	_, err := location.Parse(registry, "s3", options.Options{"s3.foo": "bar"})
	test.Assert(t, errors.IsConfiguration(err), "expected configuration error, got %v", err)
}

func TestInvalidScheme(t *testing.T) {
	registry := location.NewRegistry()
	registry.Register(testFactory())

	for _, s := range []string{"", "foobar", "ftp"} {
		t.Run(s, func(t *testing.T) {
			_, err := location.Parse(registry, s, options.Options{})
			if err == nil {
				t.Fatalf("error for invalid scheme %q not found", s)
			}
			test.Assert(t, errors.IsConfiguration(err), "expected configuration error, got %v", err)
		})
	}
}

func TestSchemes(t *testing.T) {
	registry := location.NewRegistry()
	registry.Register(testFactory())
	test.Equals(t, []string{"s3"}, registry.Schemes())
}
