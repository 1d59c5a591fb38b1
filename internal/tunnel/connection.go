package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/treykane/devdeck/internal/events"
	"github.com/treykane/devdeck/internal/model"
)

// session is one spawned process as seen by its Connection.
//
// ctx is the cancel signal: it is cancelled either by Disconnect (meaning
// "kill it") or by the watcher after a natural exit (meaning "it is gone").
// done is closed once the watcher has confirmed the process is dead.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	pid    int
	done   chan struct{}
}

// Connection binds one TunnelSpec to at most one running process.
//
// A Connection is not safe for concurrent use; the Supervisor serializes
// every call. The watcher goroutine only touches its own session.
type Connection struct {
	spec    model.TunnelSpec
	spawner Spawner
	obs     Observer

	// active is present while a process is presumed alive.
	active *session
	// last is the most recent session, kept until its process is confirmed
	// dead so a reconnect never overlaps it on the same local port.
	last *session
}

func newConnection(spec model.TunnelSpec, spawner Spawner, obs Observer) *Connection {
	return &Connection{spec: spec, spawner: spawner, obs: obs}
}

// Spec returns the tunnel definition.
func (c *Connection) Spec() model.TunnelSpec { return c.spec }

// IsConnected reports whether a process is still presumed alive, dropping
// the session first if its cancel signal has already fired.
func (c *Connection) IsConnected() bool {
	if c.active != nil && c.active.ctx.Err() != nil {
		c.active = nil
	}
	return c.active != nil
}

// Status is IsConnected rendered for callers.
func (c *Connection) Status() model.TunnelStatus {
	if c.IsConnected() {
		return model.TunnelStatus{Name: c.spec.Name, State: model.TunnelConnected, LocalPort: c.spec.LocalPort}
	}
	return model.TunnelStatus{Name: c.spec.Name, State: model.TunnelDisconnected}
}

// Connect spawns the forwarding process unless one is already running.
//
// If a previous process is still being terminated, Connect waits for it to
// die before spawning, bounded by ctx.
func (c *Connection) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}
	if c.last != nil {
		select {
		case <-c.last.done:
			c.last = nil
		case <-ctx.Done():
			return fmt.Errorf("tunnel %s: previous process still exiting: %w", c.spec.Name, ctx.Err())
		}
	}

	proc, err := c.spawner.Spawn(c.spec)
	if err != nil {
		slog.Warn("failed to start tunnel", "tunnel", c.spec.Name, "error", err)
		c.obs.Observe(events.Event{Tunnel: c.spec.Name, Type: events.TypeSpawnFailed, Message: err.Error()})
		return &SpawnError{Tunnel: c.spec.Name, Err: err}
	}

	sctx, cancel := context.WithCancel(context.Background())
	sess := &session{ctx: sctx, cancel: cancel, pid: proc.Pid(), done: make(chan struct{})}
	c.active = sess
	c.last = sess

	slog.Info("tunnel started", "tunnel", c.spec.Name, "local_port", c.spec.LocalPort, "pid", sess.pid)
	c.obs.Observe(events.Event{Tunnel: c.spec.Name, Type: events.TypeConnect, LocalPort: c.spec.LocalPort, PID: sess.pid})

	go c.watch(sess, proc)
	return nil
}

// Disconnect fires the cancel signal and forgets the session. It does not
// wait for the process to die; the watcher kills it.
func (c *Connection) Disconnect() {
	if c.active == nil {
		return
	}
	sess := c.active
	c.active = nil
	sess.cancel()

	slog.Info("tunnel stop requested", "tunnel", c.spec.Name, "pid", sess.pid)
	c.obs.Observe(events.Event{Tunnel: c.spec.Name, Type: events.TypeDisconnect, PID: sess.pid})
}

// dying returns the done channel of a previous process that was told to stop
// but is not confirmed dead yet, or nil if there is nothing to wait for.
func (c *Connection) dying() <-chan struct{} {
	if c.IsConnected() || c.last == nil {
		return nil
	}
	select {
	case <-c.last.done:
		c.last = nil
		return nil
	default:
		return c.last.done
	}
}

// terminated is closed once the most recent process is confirmed dead.
func (c *Connection) terminated() <-chan struct{} {
	if c.last == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.last.done
}

// watch owns proc until it is dead. Whichever comes first wins: the process
// exiting on its own, or the session being cancelled.
func (c *Connection) watch(sess *session, proc Process) {
	defer close(sess.done)
	started := time.Now()

	exited := make(chan error, 1)
	go func() { exited <- proc.Wait() }()

	select {
	case err := <-exited:
		sess.cancel()
		msg := "exit 0"
		if err != nil {
			msg = err.Error()
		}
		if last := lastStderrLine(proc); last != "" {
			msg += ": " + last
		}
		slog.Info("tunnel process exited", "tunnel", c.spec.Name, "pid", sess.pid, "uptime", time.Since(started).Round(time.Second), "result", msg)
		c.obs.Observe(events.Event{Tunnel: c.spec.Name, Type: events.TypeProcessExited, PID: sess.pid, Message: msg})
	case <-sess.ctx.Done():
		if err := proc.Kill(); err != nil {
			slog.Warn("failed to kill tunnel process", "tunnel", c.spec.Name, "pid", sess.pid, "error", err)
		}
		<-exited
		slog.Debug("tunnel process killed", "tunnel", c.spec.Name, "pid", sess.pid)
		c.obs.Observe(events.Event{Tunnel: c.spec.Name, Type: events.TypeProcessKilled, PID: sess.pid})
	}
}

// lastStderrLine returns the final stderr line of processes that keep one.
// ssh prints why it gave up there ("bind: Address already in use", ...).
func lastStderrLine(proc Process) string {
	t, ok := proc.(interface{ StderrTail() []string })
	if !ok {
		return ""
	}
	lines := t.StderrTail()
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
