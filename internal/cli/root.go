// Package cli provides the command-line interface for devdeck.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/treykane/devdeck/internal/appconfig"
	"github.com/treykane/devdeck/internal/doctor"
	"github.com/treykane/devdeck/internal/healthcheck"
	"github.com/treykane/devdeck/internal/sshclient"
	"github.com/treykane/devdeck/internal/ui"
	"github.com/treykane/devdeck/internal/util"
)

type rootOptions struct {
	configPath string
	debug      bool
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "devdeck",
		Short:         "Toggle ssh port-forward tunnels and watch service health",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			appconfig.SetPath(opts.configPath)
			setupLogging(cmd.ErrOrStderr(), opts.debug)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/devdeck/config.yaml)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log at debug level")

	root.AddCommand(newServeCmd())
	root.AddCommand(newTunnelCmd())
	root.AddCommand(newSSHCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(newDoctorCmd())
	return root
}

func setupLogging(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// runDashboard owns the supervisor for the lifetime of the TUI. Logging goes
// to devdeck.log so it does not scribble over the alt screen.
func runDashboard(opts *rootOptions) error {
	if err := sshclient.EnsureSSHBinary(); err != nil {
		return err
	}
	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}

	logPath, err := appconfig.LogFilePath()
	if err != nil {
		return err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	setupLogging(logFile, opts.debug)

	rt, err := newDeck(cfg)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	var health func(ctx context.Context) []healthcheck.SectionResult
	if len(cfg.Healthchecks) > 0 {
		health = rt.probe
	}
	return ui.Run(ui.Options{
		Supervisor:     rt.sup,
		RefreshSeconds: cfg.UI.RefreshSeconds,
		Health:         health,
		ConnectCommand: rt.ssh.ConnectCommand,
		Persist:        persistTunnel,
	})
}

func newSSHCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ssh <tunnel>",
		Short: "Open an interactive ssh session to a tunnel's target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sshclient.EnsureSSHBinary(); err != nil {
				return err
			}
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			for _, spec := range cfg.Tunnels {
				if spec.Name == args[0] {
					ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGHUP)
					defer stop()
					return sshclient.New().RunInteractive(ctx, spec)
				}
			}
			return fmt.Errorf("tunnel not found: %s", args[0])
		},
	}
}

func newHealthCmd() *cobra.Command {
	var jsonOut bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the configured healthcheck URLs once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			results := healthcheck.New(healthcheck.WithTimeout(timeout)).ProbeAll(cmd.Context(), cfg.Healthchecks)
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, results)
			}
			fmt.Fprintf(out, "%-16s %-20s %-6s %-6s %-6s %s\n", "SECTION", "SERVICE", "UP", "DB", "ES", "ERROR")
			for _, sec := range results {
				for _, svc := range sec.Services {
					fmt.Fprintf(out, "%-16s %-20s %-6s %-6s %-6s %s\n", sec.Name, svc.Name, yesNo(svc.Up), optYesNo(svc.DB), optYesNo(svc.Elasticsearch), util.EmptyDash(svc.Error))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", util.HealthProbeTimeout, "per-service probe timeout")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check ssh, config.yaml and local ports for problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := doctor.Run()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, report)
			}
			if len(report.Issues) == 0 {
				fmt.Fprintln(out, "no issues found")
				return nil
			}
			for _, issue := range report.Issues {
				fmt.Fprintf(out, "[%s] %s %s: %s\n", issue.Severity, issue.Check, issue.Target, issue.Message)
				fmt.Fprintf(out, "        %s\n", issue.Recommendation)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func optYesNo(b *bool) string {
	if b == nil {
		return "-"
	}
	return yesNo(*b)
}
