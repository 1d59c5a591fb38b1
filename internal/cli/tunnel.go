package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/treykane/devdeck/internal/api"
	"github.com/treykane/devdeck/internal/appconfig"
	"github.com/treykane/devdeck/internal/events"
	"github.com/treykane/devdeck/internal/model"
	"github.com/treykane/devdeck/internal/util"
)

func newTunnelCmd() *cobra.Command {
	var addr string
	root := &cobra.Command{Use: "tunnel", Short: "Manage tunnels of a running `devdeck serve`"}
	root.PersistentFlags().StringVar(&addr, "addr", "", "API address of devdeck serve (default from config api.listen)")

	client := func() (*api.Client, error) {
		if addr != "" {
			return api.NewClient(addr), nil
		}
		cfg, err := appconfig.Load()
		if err != nil {
			return nil, err
		}
		return api.NewClient(cfg.API.Listen), nil
	}

	var listJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "Show every tunnel and whether it is connected",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			statuses, err := c.ListTunnels(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if listJSON {
				return writeJSON(out, statuses)
			}
			fmt.Fprintf(out, "%-24s %-14s %s\n", "NAME", "STATE", "LOCAL")
			for _, st := range statuses {
				local := "-"
				if st.Connected() {
					local = fmt.Sprintf("127.0.0.1:%d", st.LocalPort)
				}
				fmt.Fprintf(out, "%-24s %-14s %s\n", st.Name, st.State, local)
			}
			return nil
		},
	}
	list.Flags().BoolVar(&listJSON, "json", false, "output JSON")

	toggle := &cobra.Command{
		Use:   "toggle <name> <on|off>",
		Short: "Connect or disconnect a tunnel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			desired, err := model.ParseDesiredState(args[1])
			if err != nil {
				return err
			}
			c, err := client()
			if err != nil {
				return err
			}
			statuses, err := c.ListTunnels(cmd.Context())
			if err != nil {
				return err
			}
			if !hasTunnel(statuses, name) {
				// The supervisor ignores unknown names; say so here.
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: no tunnel named %q; nothing changed\n", name)
				return nil
			}
			if err := c.Toggle(cmd.Context(), name, desired); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, desired)
			return nil
		},
	}

	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Add tunnels from a YAML file to the running supervisor",
		Long: "Add tunnels from a YAML file with a top-level `tunnels:` list. Tunnels whose\n" +
			"names are already known are skipped. New tunnels start disconnected and are\n" +
			"also written to config.yaml.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fetched, err := appconfig.LoadTunnelFile(args[0])
			if err != nil {
				return err
			}
			c, err := client()
			if err != nil {
				return err
			}
			statuses, err := c.ListTunnels(cmd.Context())
			if err != nil {
				return err
			}
			existing := make([]model.TunnelSpec, 0, len(statuses))
			for _, st := range statuses {
				existing = append(existing, model.TunnelSpec{Name: st.Name})
			}
			fresh := appconfig.MergeTunnels(existing, fetched)
			out := cmd.OutOrStdout()
			if len(fresh) == 0 {
				fmt.Fprintf(out, "nothing to import; all %d tunnel(s) already exist\n", len(fetched))
				return nil
			}
			if _, err := c.Extend(cmd.Context(), fresh); err != nil {
				return err
			}
			fmt.Fprintf(out, "imported %d tunnel(s), skipped %d\n", len(fresh), len(fetched)-len(fresh))
			return nil
		},
	}

	var (
		evName  string
		evType  string
		evSince time.Duration
		evLimit int
		evJSON  bool
	)
	evts := &cobra.Command{
		Use:   "events",
		Short: "Show the tunnel event journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := events.NewStore()
			if err != nil {
				return err
			}
			q := events.Query{Tunnel: evName, Type: events.Type(evType), Limit: evLimit}
			if evSince > 0 {
				q.Since = time.Now().Add(-evSince)
			}
			list, err := store.Read(q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if evJSON {
				if list == nil {
					list = []events.Event{}
				}
				return writeJSON(out, list)
			}
			fmt.Fprintf(out, "%-20s %-16s %-16s %-8s %s\n", "TIME", "TUNNEL", "EVENT", "PID", "MESSAGE")
			for _, e := range list {
				pid := "-"
				if e.PID > 0 {
					pid = fmt.Sprintf("%d", e.PID)
				}
				fmt.Fprintf(out, "%-20s %-16s %-16s %-8s %s\n", e.Timestamp.Local().Format(time.DateTime), util.EmptyDash(e.Tunnel), e.Type, pid, e.Message)
			}
			return nil
		},
	}
	evts.Flags().StringVar(&evName, "name", "", "only events for this tunnel")
	evts.Flags().StringVar(&evType, "type", "", "only events of this type (connect, disconnect, process_exited, ...)")
	evts.Flags().DurationVar(&evSince, "since", 0, "only events newer than this (e.g. 1h)")
	evts.Flags().IntVar(&evLimit, "limit", 50, "show at most this many of the newest events (0 = all)")
	evts.Flags().BoolVar(&evJSON, "json", false, "output JSON")

	root.AddCommand(list, toggle, imp, evts)
	return root
}

func hasTunnel(statuses []model.TunnelStatus, name string) bool {
	for _, st := range statuses {
		if st.Name == name {
			return true
		}
	}
	return false
}
