// ABOUTME: CLI command to read rows from a table or view
// ABOUTME: Supports filter expressions, column selection and a row limit
package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/mediaindex/internal/core"
)

var (
	queryFilter  string
	queryColumns []string
	queryLimit   int
)

// NewQueryCmd creates the query command
func NewQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Query rows of a table or view",
		Long: `Query rows of a table or view in insertion order.

Filters use the same expression grammar as computed columns.

Examples:
  mediaindex query demo.people
  mediaindex query demo.people --filter "age >= 18" --columns name,age
  mediaindex query audio_index.talks_sentence_chunks --limit 5 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: runQuery,
	}

	cmd.Flags().StringVar(&queryFilter, "filter", "", "Boolean filter expression")
	cmd.Flags().StringSliceVar(&queryColumns, "columns", nil, "Columns to return (default all)")
	cmd.Flags().IntVar(&queryLimit, "limit", 20, "Maximum rows to return")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	if err := validatePositiveInt(queryLimit, "limit"); err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.engine.Query(ctx, args[0], core.QueryOptions{
		Filter:  queryFilter,
		Columns: queryColumns,
		Limit:   queryLimit,
	})
	if err != nil {
		return fmt.Errorf("querying %s: %w", args[0], err)
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), result)
	}

	if len(result.Rows) == 0 {
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "No rows in %s\n", result.Table)
		}
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	header := make([]string, len(result.Columns))
	for i, c := range result.Columns {
		header[i] = strings.ToUpper(c)
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(result.Columns))
		for i, c := range result.Columns {
			cells[i] = truncate(formatValue(row[c]), 60)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d row(s)\n", len(result.Rows))
	}
	return nil
}
