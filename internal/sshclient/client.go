// Package sshclient launches the system ssh binary for port forwards and
// interactive sessions.
//
// It does not implement the SSH protocol. Shelling out to "ssh" means the
// user's keys, agent, ProxyCommand (e.g. the AWS SSM plugin) and known_hosts
// all apply without devdeck knowing about them.
//
// All arguments go through exec.Command's argv, never a shell, so tunnel
// names, hosts and targets cannot inject commands.
package sshclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/treykane/devdeck/internal/model"
	"github.com/treykane/devdeck/internal/util"
)

// TunnelProcess is one running ssh port-forward process.
//
// Wait may be called from several goroutines; the exit status is collected
// once and shared. Kill is a no-op once the process has exited.
type TunnelProcess struct {
	Cmd    *exec.Cmd
	stderr *lineRing

	once sync.Once
	done chan struct{}
	err  error
}

// Pid returns the OS process id.
func (p *TunnelProcess) Pid() int {
	if p.Cmd == nil || p.Cmd.Process == nil {
		return 0
	}
	return p.Cmd.Process.Pid
}

// Wait blocks until the process exits and returns its exit error.
func (p *TunnelProcess) Wait() error {
	p.once.Do(func() {
		p.err = p.Cmd.Wait()
		close(p.done)
	})
	<-p.done
	return p.err
}

// Kill sends SIGKILL to the process and its process group unless the
// process is already gone.
func (p *TunnelProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	err := killGroup(p.Cmd.Process)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// StderrTail returns the most recent stderr lines written by ssh.
func (p *TunnelProcess) StderrTail() []string {
	if p.stderr == nil {
		return nil
	}
	return p.stderr.Lines()
}

// Client creates ssh processes. It holds no state and is safe for
// concurrent use.
type Client struct{}

// New creates a new SSH client.
func New() *Client { return &Client{} }

// EnsureSSHBinary checks that "ssh" is on PATH.
func EnsureSSHBinary() error {
	_, err := exec.LookPath("ssh")
	if err != nil {
		return fmt.Errorf("ssh binary not found in PATH")
	}
	return nil
}

// BuildTunnelArgs returns the ssh argv (without the binary) for a tunnel.
//
// Example: ["-N", "-o", "ExitOnForwardFailure=yes", "-L", "33006:db:3306", "ssm-user@i-0462"]
func (c *Client) BuildTunnelArgs(spec model.TunnelSpec) []string {
	return []string{
		"-N",
		"-o", "ExitOnForwardFailure=yes",
		"-L", spec.ForwardArg(),
		spec.Target,
	}
}

// StartTunnel starts the forwarding process in the background.
//
// ExitOnForwardFailure makes ssh exit when the local port cannot be bound,
// so a failed forward shows up as a process exit instead of a live process
// that forwards nothing. Stdout is discarded and stderr is kept in a small
// ring and logged at debug level.
//
// The caller owns the returned process and must eventually Wait on it.
func (c *Client) StartTunnel(spec model.TunnelSpec) (*TunnelProcess, error) {
	cmd := exec.Command("ssh", c.BuildTunnelArgs(spec)...)
	cmd.Env = append(os.Environ(), spec.Env()...)
	return start(cmd, spec.Name)
}

// start runs cmd in its own process group with stderr captured in a ring.
// WaitDelay keeps Wait from hanging on a child that escaped the group kill
// and still holds the stderr pipe.
func start(cmd *exec.Cmd, tunnel string) (*TunnelProcess, error) {
	cmd.Stdin = nil
	cmd.Stdout = io.Discard
	ring := newLineRing(tunnel, util.StderrRingSize)
	cmd.Stderr = ring
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = util.ProcessWaitDelay

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &TunnelProcess{Cmd: cmd, stderr: ring, done: make(chan struct{})}, nil
}

// ConnectCommand builds an interactive ssh command to the tunnel's target
// with the same AWS environment the tunnel uses. It is not started.
func (c *Client) ConnectCommand(spec model.TunnelSpec) *exec.Cmd {
	cmd := exec.Command("ssh", spec.Target)
	cmd.Env = append(os.Environ(), spec.Env()...)
	return cmd
}

// RunInteractive runs an ssh session to the tunnel's target inside a PTY
// wired to the current terminal, and blocks until it ends or ctx is done.
func (c *Client) RunInteractive(ctx context.Context, spec model.TunnelSpec) error {
	return runInPTY(ctx, c.ConnectCommand(spec), os.Stdin, os.Stdout)
}

func runInPTY(ctx context.Context, cmd *exec.Cmd, in io.Reader, out io.Writer) error {
	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer f.Close()

	ended := make(chan struct{})
	defer close(ended)
	go func() {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Kill()
		case <-ended:
		}
	}()

	// The input copy is left to finish on its own: a read from the terminal
	// cannot be interrupted, and it fails on the first write after f closes.
	go func() {
		_, _ = io.Copy(f, in)
	}()
	_, _ = io.Copy(out, f)

	err = cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("interactive session: %w", ctxErr)
	}
	return err
}
