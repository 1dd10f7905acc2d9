package sftp

import (
	"github.com/restic/kvrecover/internal/options"
)

// Config collects all information required to connect to an sftp server.
type Config struct {
	User string `option:"user" help:"remote user name"`
	Host string `option:"host" help:"remote host name or address"`
	Port string `option:"port" help:"remote ssh port"`
	Path string `option:"path" help:"directory holding the archive on the remote host"`

	Command string `option:"command" help:"specify command to create sftp connection"`
	Args    string `option:"args" help:"specify arguments for ssh"`

	Connections uint `option:"connections" help:"set a limit for the number of concurrent connections (default: 5)"`
}

// NewConfig returns a new config with default options applied.
func NewConfig() Config {
	return Config{
		Connections: 5,
	}
}

func init() {
	options.Register("sftp", Config{})
}
