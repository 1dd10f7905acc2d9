package sftp

import (
	"reflect"
	"testing"
)

var sshcmdTests = []struct {
	cfg  Config
	cmd  string
	args []string
	err  string
}{
	{
		Config{User: "user", Host: "host", Path: "dir/subdir"},
		"ssh",
		[]string{"host", "-l", "user", "-s", "sftp"},
		"",
	},
	{
		Config{Host: "host", Path: "dir/subdir"},
		"ssh",
		[]string{"host", "-s", "sftp"},
		"",
	},
	{
		Config{Host: "host", Port: "10022", Path: "/dir/subdir"},
		"ssh",
		[]string{"host", "-p", "10022", "-s", "sftp"},
		"",
	},
	{
		Config{User: "user", Host: "host", Port: "10022", Path: "/dir/subdir"},
		"ssh",
		[]string{"host", "-p", "10022", "-l", "user", "-s", "sftp"},
		"",
	},
	{
		Config{User: "user", Host: "host", Port: "10022", Path: "/dir/subdir", Args: "-i /path/to/id_rsa"},
		"ssh",
		[]string{"host", "-p", "10022", "-l", "user", "-i", "/path/to/id_rsa", "-s", "sftp"},
		"",
	},
	{
		Config{Command: "ssh something", Args: "-i /path/to/id_rsa"},
		"",
		nil,
		"cannot specify both sftp.command and sftp.args options",
	},
	{
		Config{Command: "ssh -o StrictHostKeyChecking=no archive -s sftp"},
		"ssh",
		[]string{"-o", "StrictHostKeyChecking=no", "archive", "-s", "sftp"},
		"",
	},
	{
		// IPv6 address.
		Config{User: "user", Host: "::1", Path: "dir"},
		"ssh",
		[]string{"::1", "-l", "user", "-s", "sftp"},
		"",
	},
}

func TestBuildSSHCommand(t *testing.T) {
	for i, test := range sshcmdTests {
		t.Run("", func(t *testing.T) {
			cmd, args, err := buildSSHCommand(test.cfg)
			if test.err != "" {
				if err == nil || err.Error() != test.err {
					t.Fatalf("expected error %v got %v", test.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("%v: unexpected error %v", i, err)
			}

			if cmd != test.cmd {
				t.Fatalf("cmd: want %v, got %v", test.cmd, cmd)
			}

			if !reflect.DeepEqual(test.args, args) {
				t.Fatalf("wrong args in test %d, want:\n  %v\ngot:\n  %v",
					i, test.args, args)
			}
		})
	}
}
