// ABOUTME: CLI command to list tables and views
// ABOUTME: Shows kind, base table and column schema per entry
package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/mediaindex/internal/models"
)

// NewTablesCmd creates the tables command
func NewTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables [prefix]",
		Short: "List tables and views",
		Long: `List tables and views in the store.

An optional prefix limits the listing to one directory, such as
audio_index. to see every audio index with its views.

Examples:
  mediaindex tables
  mediaindex tables audio_index.
  mediaindex tables --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTables,
	}
}

func runTables(cmd *cobra.Command, args []string) error {
	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	tables, err := rt.engine.ListTables(ctx, prefix)
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}

	if len(tables) == 0 {
		if !quiet {
			fmt.Fprintln(cmd.OutOrStdout(), "No tables found")
		}
		return nil
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), tables)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\tKIND\tBASE\tCOLUMNS\n")
	fmt.Fprintf(w, "----\t----\t----\t-------\n")
	for _, t := range tables {
		base := t.Base
		if base == "" {
			base = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, t.Kind, base, truncate(columnSummary(t), 80))
	}
	_ = w.Flush()

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d table(s)\n", len(tables))
	}
	return nil
}

func columnSummary(t *models.TableInfo) string {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		parts = append(parts, c.Name+":"+string(c.Type))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
