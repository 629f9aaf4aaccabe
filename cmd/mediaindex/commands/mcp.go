// ABOUTME: MCP command starts the Model Context Protocol server on stdio
// ABOUTME: Enables LLM agents to create tables and media indexes through tools
package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/harper/mediaindex/internal/models"
)

var mcpKind string

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs mediaindex as an MCP (Model Context Protocol) server over stdio,
enabling LLM agents to build typed tables, set up audio, video, image
and document indexes, and query them in natural language.`,
		RunE: runMCP,
		Example: `  # Start MCP server with every index kind
  mediaindex mcp

  # Only audio and document tools
  mediaindex mcp --kind audio,doc

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "mediaindex": {
  #       "command": "mediaindex",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	cmd.Flags().StringVar(&mcpKind, "kind", "all", "Index kinds to expose: audio, video, image, doc, a comma list, or all")

	return cmd
}

func runMCP(cmd *cobra.Command, args []string) error {
	kinds, err := parseKinds(mcpKind)
	if err != nil {
		return err
	}
	return ServeStdio(context.Background(), kinds)
}

// ServeStdio runs the MCP server on stdin/stdout until it exits or a
// shutdown signal arrives
func ServeStdio(parent context.Context, kinds []models.IndexKind) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	server := rt.newMCPServer(kinds)

	if !quiet {
		log.Println("mediaindex MCP server starting on stdio...")
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		if !quiet {
			log.Println("Shutdown signal received, gracefully shutting down...")
		}
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}
	return nil
}
