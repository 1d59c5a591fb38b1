// Package tunnel supervises ssh port-forward processes.
//
// A Supervisor owns one Connection per configured tunnel. Every operation
// takes the same mutex, including List, because observing a tunnel also
// reconciles it: a process that died on its own is noticed and forgotten
// the next time anyone looks.
//
// The guard is dropped only while a reconnect waits for the previous process
// of the same tunnel to die.
//
// Each running tunnel has one watcher goroutine that waits for whichever
// happens first, the process exiting or the tunnel being switched off, and
// kills the process in the second case. Process handles never leave their
// watcher.
package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/treykane/devdeck/internal/events"
	"github.com/treykane/devdeck/internal/model"
)

// Supervisor is the single point of control for all tunnels.
type Supervisor struct {
	mu      sync.Mutex
	spawner Spawner
	obs     Observer
	conns   []*Connection
	byName  map[string]*Connection
	closed  bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithObserver sends lifecycle events to obs.
func WithObserver(obs Observer) Option {
	return func(s *Supervisor) {
		if obs != nil {
			s.obs = obs
		}
	}
}

// NewSupervisor creates a supervisor for specs, in order. All tunnels start
// disconnected.
func NewSupervisor(spawner Spawner, specs []model.TunnelSpec, opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		spawner: spawner,
		obs:     Observers(),
		byName:  make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.add(specs); err != nil {
		return nil, err
	}
	return s, nil
}

// List returns the observed state of every tunnel in configured order. The
// snapshot is taken under the guard, so no toggle is half-visible.
func (s *Supervisor) List() []model.TunnelStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TunnelStatus, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c.Status())
	}
	return out
}

// Toggle switches the named tunnel on or off.
//
// Switching on a tunnel whose previous process is still dying waits for it,
// bounded by ctx, without holding up other callers.
//
// An unknown name is ignored and returns nil. Switching on an already
// connected tunnel, or off an idle one, does nothing. A spawn failure is
// returned as *SpawnError and leaves the tunnel disconnected.
func (s *Supervisor) Toggle(ctx context.Context, name string, desired model.DesiredState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byName[name]
	if !ok {
		slog.Debug("toggle for unknown tunnel ignored", "tunnel", name, "desired", desired)
		return nil
	}
	switch desired {
	case model.DesiredOn:
		return s.connect(ctx, c)
	case model.DesiredOff:
		c.Disconnect()
		return nil
	default:
		return fmt.Errorf("unknown desired state %q", desired)
	}
}

// connect must be called with s.mu held and returns with it held. While the
// previous process of c is still dying the guard is released, so List and
// toggles of other tunnels are not stuck behind one slow exit.
func (s *Supervisor) connect(ctx context.Context, c *Connection) error {
	for {
		if s.closed {
			return ErrSupervisorClosed
		}
		dying := c.dying()
		if dying == nil {
			return c.Connect(ctx)
		}
		s.mu.Unlock()
		select {
		case <-dying:
			s.mu.Lock()
		case <-ctx.Done():
			s.mu.Lock()
			return fmt.Errorf("tunnel %s: previous process still exiting: %w", c.spec.Name, ctx.Err())
		}
	}
}

// Extend appends tunnels without touching existing ones. The batch is
// validated as a whole; on error nothing is added.
func (s *Supervisor) Extend(specs []model.TunnelSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSupervisorClosed
	}
	if err := s.add(specs); err != nil {
		return err
	}
	for _, spec := range specs {
		s.obs.Observe(events.Event{Tunnel: spec.Name, Type: events.TypeExtend, LocalPort: spec.LocalPort})
	}
	return nil
}

// add must be called with s.mu held (or before s is shared).
func (s *Supervisor) add(specs []model.TunnelSpec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return err
		}
		if _, ok := s.byName[spec.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTunnel, spec.Name)
		}
		if _, ok := seen[spec.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTunnel, spec.Name)
		}
		seen[spec.Name] = struct{}{}
	}
	for _, spec := range specs {
		c := newConnection(spec, s.spawner, s.obs)
		s.conns = append(s.conns, c)
		s.byName[spec.Name] = c
	}
	return nil
}

// Spec returns the definition of the named tunnel.
func (s *Supervisor) Spec(name string) (model.TunnelSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byName[name]
	if !ok {
		return model.TunnelSpec{}, false
	}
	return c.Spec(), true
}

// Specs returns every tunnel definition in configured order.
func (s *Supervisor) Specs() []model.TunnelSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TunnelSpec, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c.Spec())
	}
	return out
}

// Shutdown switches every tunnel off and waits, still holding the guard,
// until every process is confirmed dead or ctx is done. Later attempts to
// connect fail with ErrSupervisorClosed.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	pending := make([]<-chan struct{}, 0, len(s.conns))
	for _, c := range s.conns {
		c.Disconnect()
		pending = append(pending, c.terminated())
	}

	var err error
wait:
	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("tunnel shutdown: %w", ctx.Err())
			break wait
		}
	}
	s.obs.Observe(events.Event{Type: events.TypeShutdown})
	return err
}
