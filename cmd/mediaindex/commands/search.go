// ABOUTME: CLI command to query a media index in natural language
// ABOUTME: Ranks transcript sentences, document chunks or captions by similarity
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/mediaindex/internal/models"
)

var (
	searchKind string
	searchTop  int
)

// NewSearchCmd creates the search command
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <index> <query>",
		Short: "Search a media index",
		Long: `Search a media index with a natural-language query.

Results are ranked by embedding similarity, newest upload first on
equal scores, and name the asset each match came from.

Examples:
  mediaindex search talks "what was said about the budget"
  mediaindex search --kind doc minutes "picnic date" --top 3
  mediaindex search --kind image pets "a dog outside" --format json`,
		Args: cobra.ExactArgs(2),
		RunE: runSearch,
	}

	cmd.Flags().StringVar(&searchKind, "kind", "audio", "Index kind: audio, video, image or doc")
	cmd.Flags().IntVar(&searchTop, "top", 5, "Maximum results to return")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := validatePositiveInt(searchTop, "top"); err != nil {
		return err
	}
	kind, err := models.ParseIndexKind(searchKind)
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	idx, err := rt.registry.Lookup(ctx, kind, args[0])
	if err != nil {
		return err
	}
	report, err := idx.Query(ctx, args[1], searchTop)
	if err != nil {
		return fmt.Errorf("searching %s: %w", idx.Layout.Table, err)
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	fmt.Fprint(cmd.OutOrStdout(), report.Format())
	return nil
}
