// ABOUTME: Root command and global flags for the mediaindex CLI
// ABOUTME: Registers every subcommand and validates verbose/quiet/format
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	verbose      bool
	quiet        bool
	outputFormat string
)

const banner = `
███╗   ███╗███████╗██████╗ ██╗ █████╗ ██╗███╗   ██╗██████╗ ███████╗██╗  ██╗
████╗ ████║██╔════╝██╔══██╗██║██╔══██╗██║████╗  ██║██╔══██╗██╔════╝╚██╗██╔╝
██╔████╔██║█████╗  ██║  ██║██║███████║██║██╔██╗ ██║██║  ██║█████╗   ╚███╔╝
██║╚██╔╝██║██╔══╝  ██║  ██║██║██╔══██║██║██║╚██╗██║██║  ██║██╔══╝   ██╔██╗
██║ ╚═╝ ██║███████╗██████╔╝██║██║  ██║██║██║ ╚████║██████╔╝███████╗██╔╝ ██╗
╚═╝     ╚═╝╚══════╝╚═════╝ ╚═╝╚═╝  ╚═╝╚═╝╚═╝  ╚═══╝╚═════╝ ╚══════╝╚═╝  ╚═╝`

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mediaindex",
		Short: "Multimodal media indexing over MCP",
		Long: banner + `

Index audio, video, images and documents into typed tables, derive
transcripts and captions, and answer natural-language queries by
embedding similarity. Serves the same tools over MCP stdio or SSE.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose && quiet {
				return fmt.Errorf("--verbose and --quiet are mutually exclusive")
			}
			switch outputFormat {
			case "auto", "json", "table":
				return nil
			}
			return fmt.Errorf("--format must be auto, json or table, got %q", outputFormat)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress informational output")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "auto", "Output format: auto, json or table")

	cmd.AddCommand(
		NewServeCmd(),
		NewMCPCmd(),
		NewTablesCmd(),
		NewQueryCmd(),
		NewSearchCmd(),
		NewExportCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func jsonOutput() bool {
	return outputFormat == "json"
}
