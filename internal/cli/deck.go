package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/treykane/devdeck/internal/appconfig"
	"github.com/treykane/devdeck/internal/events"
	"github.com/treykane/devdeck/internal/healthcheck"
	"github.com/treykane/devdeck/internal/metrics"
	"github.com/treykane/devdeck/internal/model"
	"github.com/treykane/devdeck/internal/sshclient"
	"github.com/treykane/devdeck/internal/tunnel"
)

// shutdownTimeout bounds how long exit waits for ssh processes to die.
const shutdownTimeout = 10 * time.Second

// deck is the in-process supervisor plus everything that observes it.
type deck struct {
	cfg     appconfig.Config
	sup     *tunnel.Supervisor
	metrics *metrics.Metrics
	prober  *healthcheck.Prober
	ssh     *sshclient.Client
}

func newDeck(cfg appconfig.Config) (*deck, error) {
	m := metrics.New()
	observers := []tunnel.Observer{m}
	if store, err := events.NewStore(); err != nil {
		slog.Warn("event journal disabled", "error", err)
	} else {
		observers = append(observers, store)
	}

	client := sshclient.New()
	sup, err := tunnel.NewSupervisor(sshSpawner(client), cfg.Tunnels, tunnel.WithObserver(tunnel.Observers(observers...)))
	if err != nil {
		return nil, err
	}
	return &deck{
		cfg:     cfg,
		sup:     sup,
		metrics: m,
		prober:  healthcheck.New(healthcheck.WithRecorder(m)),
		ssh:     client,
	}, nil
}

// sshSpawner adapts the ssh client to tunnel.Spawner. The explicit nil
// return keeps a nil *TunnelProcess out of the Process interface.
func sshSpawner(c *sshclient.Client) tunnel.Spawner {
	return tunnel.SpawnerFunc(func(spec model.TunnelSpec) (tunnel.Process, error) {
		p, err := c.StartTunnel(spec)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

func (d *deck) probe(ctx context.Context) []healthcheck.SectionResult {
	return d.prober.ProbeAll(ctx, d.cfg.Healthchecks)
}

func (d *deck) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.sup.Shutdown(ctx); err != nil {
		slog.Warn("tunnels did not stop in time", "error", err)
	}
}

// persistTunnels appends specs to config.yaml, skipping names it already has.
func persistTunnels(specs []model.TunnelSpec) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}
	cfg.Tunnels = append(cfg.Tunnels, appconfig.MergeTunnels(cfg.Tunnels, specs)...)
	return appconfig.Save(cfg)
}

func persistTunnel(spec model.TunnelSpec) error {
	return persistTunnels([]model.TunnelSpec{spec})
}
