package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/treykane/devdeck/internal/api"
	"github.com/treykane/devdeck/internal/appconfig"
	"github.com/treykane/devdeck/internal/sshclient"
)

func newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tunnel supervisor with the local HTTP API",
		Long: "Run the tunnel supervisor headless. The CLI's tunnel subcommands talk to it\n" +
			"over HTTP, and /metrics exposes Prometheus metrics. SIGINT or SIGTERM stops\n" +
			"every tunnel before exiting.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sshclient.EnsureSSHBinary(); err != nil {
				return err
			}
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.API.Listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "API listen address (default from config api.listen)")
	return cmd
}

// serve runs until ctx is done or the listener fails, then stops the HTTP
// server and every tunnel.
func serve(ctx context.Context, cfg appconfig.Config, listen string) error {
	d, err := newDeck(cfg)
	if err != nil {
		return err
	}
	defer d.shutdown()

	srv := &http.Server{
		Addr: listen,
		Handler: api.New(api.Config{
			Supervisor: d.sup,
			Health:     d.probe,
			Metrics:    d.metrics.Handler(),
			OnExtend:   persistTunnels,
		}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", listen, "tunnels", len(cfg.Tunnels))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api shutdown", "error", err)
	}
	return nil
}
