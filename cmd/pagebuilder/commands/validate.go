package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/livetemplate/pagebuilder"
	"github.com/livetemplate/pagebuilder/internal/config"
	"github.com/livetemplate/pagebuilder/internal/persist"
	"github.com/spf13/cobra"
)

func buildValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the stored document for broken references",
		Long: `Check the stored document: every referenced row and column exists,
the active and selected ids point at real entities, and a row and a column
are never active at the same time.

Exits non-zero when a problem is found. The server would replace such a
document with the initial one on startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *configPath, func(cfg *config.Config, store persist.Store) error {
				out := cmd.OutOrStdout()
				state, err := loadState(cmd, store)
				if err != nil {
					return err
				}

				if err := pagebuilder.Validate(state); err != nil {
					problems := unjoin(err)
					fmt.Fprintf(out, "Found %d problem(s) in the %s snapshot:\n", len(problems), store.Name())
					for _, p := range problems {
						fmt.Fprintf(out, "  - %s\n", p)
					}
					return fmt.Errorf("snapshot is invalid")
				}

				fmt.Fprintf(out, "Snapshot OK: %d page(s), %d row(s), %d column(s)\n",
					len(state.Pages), len(state.Rows), len(state.Columns))
				return nil
			})
		},
	}
}

// unjoin lists the errors combined by errors.Join.
func unjoin(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return strings.Split(err.Error(), "\n")
}
