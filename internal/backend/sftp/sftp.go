// Package sftp provides a read-only archive backend reached through an ssh
// subprocess speaking the sftp subsystem.
package sftp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/location"
	"github.com/restic/kvrecover/internal/backend/util"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/sftp"
)

// SFTP is a backend in a directory accessed via SFTP.
type SFTP struct {
	c *sftp.Client
	p string

	cmd    *exec.Cmd
	result <-chan error

	Config
}

var _ backend.Backend = &SFTP{}

func NewFactory() location.Factory {
	return location.NewLimitedBackendFactory("sftp", NewConfig, func(ctx context.Context, cfg Config) (*SFTP, error) {
		return Open(ctx, cfg)
	})
}

func startClient(program string, args ...string) (*SFTP, error) {
	debug.Log("start client %v %v", program, args)
	// Connect to a remote host and request the sftp subsystem via the 'ssh'
	// command.  This assumes that passwordless login is correctly configured.
	cmd := exec.Command(program, args...)

	// prefix the errors with the program name
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "cmd.StderrPipe")
	}

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			fmt.Fprintf(os.Stderr, "subprocess %v: %v\n", program, sc.Text())
		}
	}()

	// get stdin and stdout
	wr, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "cmd.StdinPipe")
	}
	rd, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "cmd.StdoutPipe")
	}

	// start the process
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "cmd.Start")
	}

	// wait in a different goroutine
	ch := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		debug.Log("ssh command exited, err %v", err)
		ch <- errors.Wrap(err, "ssh command exited")
	}()

	// open the SFTP session
	client, err := sftp.NewClientPipe(rd, wr)
	if err != nil {
		return nil, errors.Errorf("unable to start the sftp session, error: %v", err)
	}

	return &SFTP{c: client, cmd: cmd, result: ch}, nil
}

// clientError returns an error if the client has exited. Otherwise, nil is
// returned immediately.
func (r *SFTP) clientError() error {
	select {
	case err := <-r.result:
		debug.Log("client has exited with err %v", err)
		return backoff.Permanent(err)
	default:
	}

	return nil
}

// Open opens an sftp backend as described by the config by running
// "ssh" with the appropriate arguments (or cfg.Command, if set).
func Open(_ context.Context, cfg Config) (*SFTP, error) {
	debug.Log("open backend with config %#v", cfg)

	cmd, args, err := buildSSHCommand(cfg)
	if err != nil {
		return nil, err
	}

	sftp, err := startClient(cmd, args...)
	if err != nil {
		debug.Log("unable to start program: %v", err)
		return nil, err
	}

	fi, err := sftp.c.Stat(cfg.Path)
	if err != nil {
		_ = sftp.Close()
		return nil, errors.Wrapf(err, "stat %v", cfg.Path)
	}
	if !fi.IsDir() {
		_ = sftp.Close()
		return nil, errors.Errorf("%v is not a directory", cfg.Path)
	}

	sftp.Config = cfg
	sftp.p = cfg.Path
	return sftp, nil
}

func buildSSHCommand(cfg Config) (cmd string, args []string, err error) {
	if cfg.Command != "" {
		if cfg.Args != "" {
			return "", nil, errors.New("cannot specify both sftp.command and sftp.args options")
		}
		args = strings.Fields(cfg.Command)
		if len(args) == 0 {
			return "", nil, errors.New("sftp.command is empty")
		}
		return args[0], args[1:], nil
	}

	cmd = "ssh"

	args = []string{cfg.Host}
	if cfg.Port != "" {
		args = append(args, "-p", cfg.Port)
	}
	if cfg.User != "" {
		args = append(args, "-l")
		args = append(args, cfg.User)
	}
	if cfg.Args != "" {
		args = append(args, strings.Fields(cfg.Args)...)
	}
	args = append(args, "-s")
	args = append(args, "sftp")
	return cmd, args, nil
}

// IsNotExist returns true if the error is caused by a not existing file.
func (r *SFTP) IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

func (r *SFTP) IsPermanentError(err error) bool {
	return r.IsNotExist(err) || errors.Is(err, os.ErrPermission)
}

func (r *SFTP) Connections() uint {
	return r.Config.Connections
}

// Location returns this backend's location (the directory name).
func (r *SFTP) Location() string {
	return r.p
}

func (r *SFTP) filename(p string) string {
	return path.Join(r.p, p)
}

// Load runs fn with a reader that yields the contents of the file at p.
func (r *SFTP) Load(ctx context.Context, p string, fn func(rd io.Reader) error) error {
	return util.DefaultLoad(ctx, p, r.openReader, fn)
}

func (r *SFTP) openReader(_ context.Context, p string) (io.ReadCloser, error) {
	if err := r.clientError(); err != nil {
		return nil, err
	}

	f, err := r.c.Open(r.filename(p))
	if err != nil {
		return nil, err
	}

	return f, nil
}

// Stat returns information about a file in the backend.
func (r *SFTP) Stat(_ context.Context, p string) (backend.FileInfo, error) {
	if err := r.clientError(); err != nil {
		return backend.FileInfo{}, err
	}

	fi, err := r.c.Lstat(r.filename(p))
	if err != nil {
		return backend.FileInfo{}, errors.Wrap(err, "Lstat")
	}

	return backend.FileInfo{Size: fi.Size(), Path: p}, nil
}

// List runs fn for each regular file below prefix.
func (r *SFTP) List(ctx context.Context, prefix string, fn func(backend.FileInfo) error) error {
	if err := r.clientError(); err != nil {
		return err
	}

	basedir := r.filename(prefix)
	debug.Log("List %v", basedir)

	if _, err := r.c.Stat(basedir); err != nil {
		return err
	}

	walker := r.c.Walk(basedir)
	for walker.Step() {
		if walker.Err() != nil {
			if r.IsNotExist(walker.Err()) {
				debug.Log("ignoring non-existing directory")
				continue
			}
			return walker.Err()
		}

		if !walker.Stat().Mode().IsRegular() {
			continue
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(walker.Path(), r.p), "/")

		err := fn(backend.FileInfo{Path: rel, Size: walker.Stat().Size()})
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return ctx.Err()
}

var closeTimeout = 2 * time.Second

// Close closes the sftp connection and terminates the underlying command.
func (r *SFTP) Close() error {
	debug.Log("Close")
	if r == nil {
		return nil
	}

	err := r.c.Close()
	debug.Log("Close returned error %v", err)

	// wait for closeTimeout before killing the process
	select {
	case err := <-r.result:
		return err
	case <-time.After(closeTimeout):
	}

	if err := r.cmd.Process.Kill(); err != nil {
		return err
	}

	// get the error, but ignore it
	<-r.result
	return nil
}
