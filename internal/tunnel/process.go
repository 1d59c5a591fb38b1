package tunnel

import (
	"errors"
	"fmt"

	"github.com/treykane/devdeck/internal/events"
	"github.com/treykane/devdeck/internal/model"
)

// Process is a spawned forwarding process.
//
// Wait blocks until the process exits, without polling. Kill requests
// immediate termination and must be a no-op once the process has exited.
type Process interface {
	Pid() int
	Wait() error
	Kill() error
}

// Spawner starts the forwarding process for a spec.
type Spawner interface {
	Spawn(spec model.TunnelSpec) (Process, error)
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(spec model.TunnelSpec) (Process, error)

func (f SpawnerFunc) Spawn(spec model.TunnelSpec) (Process, error) { return f(spec) }

// Observer receives lifecycle events. Observe is called from the caller's
// goroutine for connect/disconnect and from watcher goroutines for process
// exits, so implementations must be safe for concurrent use.
type Observer interface {
	Observe(evt events.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(evt events.Event)

func (f ObserverFunc) Observe(evt events.Event) { f(evt) }

type multiObserver []Observer

func (m multiObserver) Observe(evt events.Event) {
	for _, o := range m {
		o.Observe(evt)
	}
}

// Observers fans events out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

var (
	// ErrSupervisorClosed is returned for connects after Shutdown.
	ErrSupervisorClosed = errors.New("tunnel supervisor is shut down")
	// ErrDuplicateTunnel is returned when a tunnel name is already taken.
	ErrDuplicateTunnel = errors.New("duplicate tunnel name")
)

// SpawnError reports that the forwarding process could not be started.
// The tunnel stays disconnected and nothing is retried.
type SpawnError struct {
	Tunnel string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start tunnel %s: %v", e.Tunnel, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
