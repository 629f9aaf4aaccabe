// ABOUTME: Minimal entry point serving every index kind's MCP tools over stdio
// ABOUTME: Equivalent to `mediaindex mcp` without the CLI
package main

import (
	"context"
	"log"

	"github.com/harper/mediaindex/cmd/mediaindex/commands"
	"github.com/harper/mediaindex/internal/models"
)

func main() {
	if err := commands.ServeStdio(context.Background(), models.IndexKinds); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
