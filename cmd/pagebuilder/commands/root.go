// Package commands implements the pagebuilder CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/livetemplate/pagebuilder/internal/config"
	"github.com/livetemplate/pagebuilder/internal/persist"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the pagebuilder command tree.
func NewRootCmd(version, commit string) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "pagebuilder",
		Short: "A visual page editor: pages of rows of text and image columns",
		Long: `pagebuilder serves a browser editor for pages made of rows and columns.
Each column holds markdown text or an image. The document is saved after
every change to the configured storage backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file (default: ./pagebuilder.yaml if present)")

	root.AddCommand(
		buildServeCmd(&configPath),
		buildInspectCmd(&configPath),
		buildValidateCmd(&configPath),
		buildResetCmd(&configPath),
		buildVersionCmd(version, commit),
	)
	return root
}

// loadConfig reads the configuration named by --config, or the one in the
// working directory.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromDir(".")
}

// withStore opens the configured store, runs fn and closes the store.
func withStore(ctx context.Context, configPath string, fn func(*config.Config, persist.Store) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store, err := persist.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Storage.Backend, err)
	}
	defer store.Close()
	return fn(cfg, store)
}

func buildVersionCmd(version, commit string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pagebuilder version %s (commit %s)\n", version, commit)
		},
	}
}
