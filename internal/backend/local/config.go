package local

import (
	"github.com/restic/kvrecover/internal/options"
)

// Config holds all information needed to open a local archive.
type Config struct {
	Path string `option:"path" help:"directory that archive paths are relative to (default: /)"`

	Connections uint `option:"connections" help:"set a limit for the number of concurrent operations (default: 2)"`
}

// NewConfig returns a new config with default options applied.
func NewConfig() Config {
	return Config{
		Path:        "/",
		Connections: 2,
	}
}

func init() {
	options.Register("local", Config{})
}
