package gs

import (
	"testing"

	"github.com/restic/kvrecover/internal/options"
	rtest "github.com/restic/kvrecover/internal/test"
)

var configTests = []struct {
	opts options.Options
	cfg  Config
}{
	{options.Options{"bucket": "bucketname", "prefix": "prefix/directory"}, Config{
		Bucket:      "bucketname",
		Prefix:      "prefix/directory",
		Connections: 5,
	}},
	{options.Options{"bucket": "bucketname", "project-id": "p1", "connections": "12"}, Config{
		ProjectID:   "p1",
		Bucket:      "bucketname",
		Connections: 12,
	}},
}

func TestApplyOptions(t *testing.T) {
	for _, test := range configTests {
		t.Run("", func(t *testing.T) {
			cfg := NewConfig()
			rtest.OK(t, test.opts.Apply("gs", &cfg))
			rtest.Equals(t, test.cfg, cfg)
		})
	}
}

func TestApplyEnvironment(t *testing.T) {
	t.Setenv("GOOGLE_PROJECT_ID", "from-env")

	cfg := NewConfig()
	cfg.ApplyEnvironment("")
	rtest.Equals(t, "from-env", cfg.ProjectID)

	cfg = NewConfig()
	cfg.ProjectID = "explicit"
	cfg.ApplyEnvironment("")
	rtest.Equals(t, "explicit", cfg.ProjectID)
}
