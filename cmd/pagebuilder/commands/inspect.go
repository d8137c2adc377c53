package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/livetemplate/pagebuilder"
	"github.com/livetemplate/pagebuilder/internal/config"
	"github.com/livetemplate/pagebuilder/internal/persist"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// maxPreviewWidth is the maximum width of a text preview before truncation
const maxPreviewWidth = 40

func buildInspectCmd(configPath *string) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the stored document",
		Long: `Print the stored document as a page, row and column tree.

Active and selected entities are marked. Use --format yaml or json for a
machine-readable outline.`,
		Example: `  pagebuilder inspect
  pagebuilder inspect --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *configPath, func(_ *config.Config, store persist.Store) error {
				state, err := loadState(cmd, store)
				if err != nil {
					return err
				}
				return printOutline(cmd.OutOrStdout(), state, format)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "tree", "Output format: tree, yaml or json")
	return cmd
}

// loadState reads and decodes the stored snapshot. Unlike the server it does
// not fall back to the initial document.
func loadState(cmd *cobra.Command, store persist.Store) (pagebuilder.State, error) {
	data, err := store.Load(cmd.Context())
	if errors.Is(err, persist.ErrNoSnapshot) {
		return pagebuilder.State{}, fmt.Errorf("nothing stored in the %s backend yet", store.Name())
	}
	if err != nil {
		return pagebuilder.State{}, err
	}
	state, err := pagebuilder.UnmarshalState(data)
	if err != nil {
		return pagebuilder.State{}, fmt.Errorf("%w: %v", pagebuilder.ErrCorruptSnapshot, err)
	}
	return state, nil
}

// outlinePage is the yaml/json view of a page.
type outlinePage struct {
	ID     string       `yaml:"id" json:"id"`
	Active bool         `yaml:"active,omitempty" json:"active,omitempty"`
	Rows   []outlineRow `yaml:"rows" json:"rows"`
}

type outlineRow struct {
	ID       string          `yaml:"id" json:"id"`
	Active   bool            `yaml:"active,omitempty" json:"active,omitempty"`
	Selected bool            `yaml:"selected,omitempty" json:"selected,omitempty"`
	Columns  []outlineColumn `yaml:"columns" json:"columns"`
}

type outlineColumn struct {
	ID        string `yaml:"id" json:"id"`
	Active    bool   `yaml:"active,omitempty" json:"active,omitempty"`
	Type      string `yaml:"type" json:"type"`
	Alignment string `yaml:"alignment,omitempty" json:"alignment,omitempty"`
	Text      string `yaml:"text,omitempty" json:"text,omitempty"`
	ImageURL  string `yaml:"image_url,omitempty" json:"imageUrl,omitempty"`
}

// outline walks the pages in id order and rows and columns in display order.
// Dangling references are skipped.
func outline(s pagebuilder.State) []outlinePage {
	pageIDs := make([]string, 0, len(s.Pages))
	for id := range s.Pages {
		pageIDs = append(pageIDs, id)
	}
	sort.Strings(pageIDs)

	pages := make([]outlinePage, 0, len(pageIDs))
	for _, pageID := range pageIDs {
		page := s.Pages[pageID]
		op := outlinePage{ID: page.ID, Active: page.ID == s.ActivePageID, Rows: []outlineRow{}}
		for _, rowID := range page.RowIDs {
			row, ok := s.Rows[rowID]
			if !ok {
				continue
			}
			or := outlineRow{
				ID:       row.ID,
				Active:   row.ID == s.ActiveRowID,
				Selected: row.ID == s.SelectedRowID,
				Columns:  []outlineColumn{},
			}
			for _, columnID := range row.ColumnIDs {
				col, ok := s.Columns[columnID]
				if !ok {
					continue
				}
				oc := outlineColumn{ID: col.ID, Active: col.ID == s.ActiveColumnID, Type: "empty"}
				switch content := col.Content.(type) {
				case pagebuilder.TextContent:
					oc.Type = string(pagebuilder.ColumnText)
					oc.Alignment = string(col.Alignment())
					oc.Text = content.Text
				case pagebuilder.ImageContent:
					oc.Type = string(pagebuilder.ColumnImage)
					oc.ImageURL = content.URL
				}
				or.Columns = append(or.Columns, oc)
			}
			op.Rows = append(op.Rows, or)
		}
		pages = append(pages, op)
	}
	return pages
}

func printOutline(w io.Writer, s pagebuilder.State, format string) error {
	pages := outline(s)
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]interface{}{"pages": pages}); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"pages": pages})
	case "tree":
		printTree(w, pages)
		return nil
	}
	return fmt.Errorf("unknown format %q (want tree, yaml or json)", format)
}

func printTree(w io.Writer, pages []outlinePage) {
	for _, page := range pages {
		fmt.Fprintf(w, "page %s%s\n", page.ID, marks(page.Active, false))
		for _, row := range page.Rows {
			fmt.Fprintf(w, "  row %s%s\n", row.ID, marks(row.Active, row.Selected))
			for _, col := range row.Columns {
				detail := ""
				switch col.Type {
				case "text":
					detail = fmt.Sprintf(" %s %q", col.Alignment, preview(col.Text))
				case "image":
					detail = " " + col.ImageURL
				}
				fmt.Fprintf(w, "    column %s %s%s%s\n", col.ID, col.Type, detail, marks(col.Active, false))
			}
		}
	}
}

func marks(active, selected bool) string {
	var m []string
	if active {
		m = append(m, "active")
	}
	if selected {
		m = append(m, "selected")
	}
	if len(m) == 0 {
		return ""
	}
	return " [" + strings.Join(m, ", ") + "]"
}

// preview returns the first line of text, truncated.
func preview(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	if r := []rune(line); len(r) > maxPreviewWidth {
		return string(r[:maxPreviewWidth-3]) + "..."
	}
	return line
}
