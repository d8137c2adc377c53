package commands

import (
	"fmt"

	"github.com/livetemplate/pagebuilder/internal/config"
	"github.com/livetemplate/pagebuilder/pkg/embedded"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	port    int
	host    string
	watch   bool
	noSync  bool
	backend string
	debug   bool
}

func buildServeCmd(configPath *string) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the editor server",
		Long: `Start the editor server.

The server restores the stored snapshot (or starts from a single "# Untitled"
heading), serves the editor at / and saves after every change. Open tabs are
kept in sync over a WebSocket. Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Serve with ./pagebuilder.yaml or the defaults
  pagebuilder serve

  # Different port, reload when the snapshot file is edited by hand
  pagebuilder serve --port 3000 --watch

  # Keep the document in SQLite
  pagebuilder serve --backend sqlite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := applyServeFlags(cmd, cfg, flags); err != nil {
				return err
			}

			return embedded.ServeWithOptions(cmd.Context(), embedded.Options{
				Config: cfg,
				OnReady: func(addr string) {
					fmt.Fprintf(cmd.OutOrStdout(), "Editor running at http://%s\n", addr)
				},
			})
		},
	}

	cmd.Flags().IntVarP(&flags.port, "port", "p", 0, "Port to listen on (overrides config)")
	cmd.Flags().StringVar(&flags.host, "host", "", "Host to bind to (overrides config)")
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "Reload when the snapshot file changes on disk")
	cmd.Flags().BoolVar(&flags.noSync, "no-sync", false, "Do not broadcast changes to other open tabs")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "Storage backend: file, sqlite, postgres, redis or memory")
	cmd.Flags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// applyServeFlags lets explicitly set flags override the loaded config.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config, flags serveFlags) error {
	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Server.Port = flags.port
	}
	if changed("host") {
		cfg.Server.Host = flags.host
	}
	if changed("watch") {
		cfg.Features.Watch = flags.watch
	}
	if changed("no-sync") {
		cfg.Features.Sync = !flags.noSync
	}
	if changed("backend") {
		cfg.Storage.Backend = flags.backend
	}
	if flags.debug {
		cfg.Server.Debug = true
		cfg.Log.Level = "debug"
	}
	return cfg.Validate()
}
