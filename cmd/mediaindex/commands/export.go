// ABOUTME: CLI command to export a table or view with its rows
// ABOUTME: Writes YAML, JSON or Markdown to stdout or a file
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/mediaindex/internal/storage/sqlite"
)

var (
	exportType   string
	exportOutput string
)

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <table>",
		Short: "Export a table or view",
		Long: `Export a table or view: its schema, embedding indexes and rows.

Examples:
  mediaindex export demo.people
  mediaindex export audio_index.talks --type json
  mediaindex export doc_index.minutes_chunks --type markdown -o minutes.md`,
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}

	cmd.Flags().StringVar(&exportType, "type", "yaml", "Export format: yaml, json or markdown")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	data, err := rt.engine.Export(ctx, args[0])
	if err != nil {
		return fmt.Errorf("exporting %s: %w", args[0], err)
	}

	if exportOutput != "" {
		if err := sqlite.ExportToFile(data, exportOutput, exportType); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d row(s) from %s to %s\n", len(data.Rows), args[0], exportOutput)
		}
		return nil
	}

	out := cmd.OutOrStdout()
	switch strings.ToLower(exportType) {
	case "yaml", "yml":
		return sqlite.WriteYAML(out, data)
	case "json":
		return sqlite.WriteJSON(out, data)
	case "markdown", "md":
		return sqlite.WriteMarkdown(out, data)
	}
	return fmt.Errorf("unknown export format %q: use yaml, json or markdown", exportType)
}
