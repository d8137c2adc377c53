package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/livetemplate/pagebuilder"
	"github.com/livetemplate/pagebuilder/internal/config"
	"github.com/livetemplate/pagebuilder/internal/persist"
	"github.com/spf13/cobra"
)

func buildResetCmd(configPath *string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Replace the stored document with the initial one",
		Long: `Replace the stored document with the initial one: a single page with one
row holding a centered "# Untitled" heading.

Stop any running server first; it would overwrite the reset on its next save.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *configPath, func(cfg *config.Config, store persist.Store) error {
				out := cmd.OutOrStdout()
				if !yes && !confirm(cmd, fmt.Sprintf("Replace the document in the %s backend?", store.Name())) {
					fmt.Fprintln(out, "Aborted")
					return nil
				}

				data, err := pagebuilder.New().Marshal()
				if err != nil {
					return err
				}
				if err := store.Save(cmd.Context(), data); err != nil {
					return fmt.Errorf("failed to store initial document: %w", err)
				}
				fmt.Fprintf(out, "Reset the %s snapshot to the initial document\n", store.Name())
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
