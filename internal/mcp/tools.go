// ABOUTME: MCP tool definitions and registration for the media index server
// ABOUTME: General table tools plus setup/insert/query/list tools per index kind
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/harper/mediaindex/internal/core"
	"github.com/harper/mediaindex/internal/metrics"
	"github.com/harper/mediaindex/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers the table tools and the index tools of each kind
func RegisterTools(server *mcpserver.MCPServer, registry *core.Registry, kinds []models.IndexKind) *Handlers {
	handlers := NewHandlers(registry)

	for _, t := range tableTools() {
		server.AddTool(t.tool, observed(t.tool.Name, t.handler(handlers)))
	}
	for _, kind := range kinds {
		for _, t := range indexTools(kind) {
			server.AddTool(t.tool, observed(t.tool.Name, t.handler(handlers)))
		}
	}
	return handlers
}

type toolDef struct {
	tool    mcp.Tool
	handler func(h *Handlers) mcpserver.ToolHandlerFunc
}

// observed records call counts and latency; a tool-level error counts as a failure
func observed(name string, fn mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := fn(ctx, request)
		metrics.ObserveTool(name, start, err != nil || (result != nil && result.IsError))
		return result, err
	}
}

func tableTools() []toolDef {
	return []toolDef{
		{
			tool: mcp.Tool{
				Name: "create_table",
				Description: "Create a typed table. Column types: " + models.ValidTypeNames() +
					`. Prefix a type with "required:" for a non-nullable column. Use dotted names such as "demo.people".`,
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"table_name": map[string]interface{}{
							"type":        "string",
							"description": "Name of the table to create",
						},
						"columns": map[string]interface{}{
							"type":                 "object",
							"description":          `Column name to type, e.g. {"name": "string", "age": "int"}`,
							"additionalProperties": map[string]interface{}{"type": "string"},
						},
						"if_exists": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"error", "ignore", "replace"},
							"description": "What to do when the table exists (default: error)",
							"default":     "error",
						},
					},
					Required: []string{"table_name", "columns"},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.CreateTable },
		},
		{
			tool: mcp.Tool{
				Name:        "insert_data",
				Description: "Insert rows into a table. Dependent views, computed columns and embedding indexes are updated before the call returns.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"table_name": map[string]interface{}{
							"type":        "string",
							"description": "Table to insert into",
						},
						"data": map[string]interface{}{
							"type":        "array",
							"items":       map[string]interface{}{"type": "object"},
							"description": "Rows as objects keyed by column name",
						},
					},
					Required: []string{"table_name", "data"},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.InsertData },
		},
		{
			tool: mcp.Tool{
				Name:        "query_table",
				Description: "Read rows of a table or view in insertion order, optionally filtered by an expression such as \"age >= 18 and contains(name, 'a')\".",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"table_name": map[string]interface{}{
							"type":        "string",
							"description": "Table or view to read",
						},
						"filter": map[string]interface{}{
							"type":        "string",
							"description": "Optional boolean filter expression",
						},
						"columns": map[string]interface{}{
							"type":        "array",
							"items":       map[string]interface{}{"type": "string"},
							"description": "Columns to return (default: all)",
						},
						"limit": map[string]interface{}{
							"type":        "number",
							"description": "Maximum rows to return (default: 20)",
							"default":     20,
						},
					},
					Required: []string{"table_name"},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.QueryTable },
		},
		{
			tool: mcp.Tool{
				Name:        "add_computed_column",
				Description: "Add a column computed from an expression, e.g. \"transcribe(audio_chunk, model='whisper-1')\" or \"lower(name)\". Existing rows are backfilled; failures are recorded per row.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"table_name": map[string]interface{}{
							"type":        "string",
							"description": "Table or view to extend",
						},
						"column_name": map[string]interface{}{
							"type":        "string",
							"description": "Name of the new column",
						},
						"expression": map[string]interface{}{
							"type":        "string",
							"description": "Expression over the table's columns",
						},
					},
					Required: []string{"table_name", "column_name", "expression"},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.AddComputedColumn },
		},
		{
			tool: mcp.Tool{
				Name: "create_view",
				Description: "Create a view over a table or view. Without an iterator the view mirrors its base row for row; " +
					"with one, each base row expands into many (iterators: audio_splitter, string_splitter, document_splitter).",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"view_name": map[string]interface{}{
							"type":        "string",
							"description": "Name of the view to create",
						},
						"base_table": map[string]interface{}{
							"type":        "string",
							"description": "Table or view the view derives from",
						},
						"iterator": map[string]interface{}{
							"type":        "string",
							"enum":        core.IteratorKinds(),
							"description": "Optional iterator that expands base rows",
						},
						"iterator_params": map[string]interface{}{
							"type":        "object",
							"description": `Iterator parameters, e.g. {"column": "audio_file", "chunk_duration_sec": 30} or {"column": "transcription.text", "separators": "sentence"}`,
						},
						"if_exists": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"error", "ignore", "replace"},
							"description": "What to do when the view exists (default: error)",
							"default":     "error",
						},
					},
					Required: []string{"view_name", "base_table"},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.CreateView },
		},
		{
			tool: mcp.Tool{
				Name:        "create_embedding_index",
				Description: "Create a similarity index on a string column. Existing rows are embedded now and new rows on insert.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"table_name": map[string]interface{}{
							"type":        "string",
							"description": "Table or view to index",
						},
						"column_name": map[string]interface{}{
							"type":        "string",
							"description": "String column to embed",
						},
						"model": map[string]interface{}{
							"type":        "string",
							"description": "Embedding model (default: server setting)",
						},
					},
					Required: []string{"table_name", "column_name"},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.CreateEmbeddingIndex },
		},
		{
			tool: mcp.Tool{
				Name:        "similarity_search",
				Description: "Rank rows of an indexed table by cosine similarity to a text query.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"table_name": map[string]interface{}{
							"type":        "string",
							"description": "Indexed table or view",
						},
						"column_name": map[string]interface{}{
							"type":        "string",
							"description": "Indexed column, required only when the table has several indexes",
						},
						"query_text": map[string]interface{}{
							"type":        "string",
							"description": "Text to search for",
						},
						"top_k": map[string]interface{}{
							"type":        "number",
							"description": fmt.Sprintf("Number of results (default: 5, max: %d)", core.MaxTopK),
							"default":     5,
						},
						"then_by": map[string]interface{}{
							"type":        "string",
							"description": "Column ordering equal scores, largest or newest first",
						},
					},
					Required: []string{"table_name", "query_text"},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.SimilaritySearch },
		},
		{
			tool: mcp.Tool{
				Name:        "list_tables",
				Description: "List tables and views with their kind, base and columns.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"prefix": map[string]interface{}{
							"type":        "string",
							"description": "Only list names starting with this prefix, e.g. \"audio_index.\"",
						},
					},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.ListTables },
		},
		{
			tool: mcp.Tool{
				Name:        "drop_table",
				Description: "Drop a table or view with its rows and indexes. Tables with dependent views need force.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"table_name": map[string]interface{}{
							"type":        "string",
							"description": "Table or view to drop",
						},
						"force": map[string]interface{}{
							"type":        "boolean",
							"description": "Also drop dependent views (default: false)",
							"default":     false,
						},
					},
					Required: []string{"table_name"},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.DropTable },
		},
		{
			tool: mcp.Tool{
				Name:        "export_table",
				Description: "Export a table's schema, embedding indexes and rows as json, yaml or markdown.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"table_name": map[string]interface{}{
							"type":        "string",
							"description": "Table or view to export",
						},
						"format": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"json", "yaml", "markdown"},
							"description": "Output format (default: json)",
							"default":     "json",
						},
					},
					Required: []string{"table_name"},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.ExportTable },
		},
	}
}

func indexTools(kind models.IndexKind) []toolDef {
	noun := string(kind)
	asset := string(kind.AssetType())
	location := noun + "_location"

	return []toolDef{
		{
			tool: mcp.Tool{
				Name:        core.SetupTool(kind),
				Description: fmt.Sprintf("Set up a %s index with the given name and OpenAI API key. Safe to call again: an existing index is reused.", noun),
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"table_name": map[string]interface{}{
							"type":        "string",
							"description": fmt.Sprintf("Name of the %s index (e.g., 'podcasts', 'lectures')", noun),
						},
						"openai_api_key": map[string]interface{}{
							"type":        "string",
							"description": "OpenAI API key used by this index (default: server credential)",
						},
						"replace": map[string]interface{}{
							"type":        "boolean",
							"description": "Drop and rebuild an existing index with the same name (default: false)",
							"default":     false,
						},
					},
					Required: []string{"table_name"},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.SetupIndex(kind) },
		},
		{
			tool: mcp.Tool{
				Name:        "insert_" + noun,
				Description: fmt.Sprintf("Insert a %s file into the named %s index and index its content.", asset, noun),
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"table_name": map[string]interface{}{
							"type":        "string",
							"description": fmt.Sprintf("Name of the %s index", noun),
						},
						location: map[string]interface{}{
							"type":        "string",
							"description": fmt.Sprintf("Local path or http(s) URL of the %s file", asset),
						},
					},
					Required: []string{"table_name", location},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.InsertAsset(kind, location) },
		},
		{
			tool: mcp.Tool{
				Name:        "query_" + noun,
				Description: fmt.Sprintf("Query the named %s index with a text question and return the best matching passages.", noun),
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"table_name": map[string]interface{}{
							"type":        "string",
							"description": fmt.Sprintf("Name of the %s index", noun),
						},
						"query_text": map[string]interface{}{
							"type":        "string",
							"description": "The question or text to search for",
						},
						"top_n": map[string]interface{}{
							"type":        "number",
							"description": "Number of top results to return (default: 5)",
							"default":     5,
						},
					},
					Required: []string{"table_name", "query_text"},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.QueryIndex(kind) },
		},
		{
			tool: mcp.Tool{
				Name:        "list_" + noun + "_indexes",
				Description: fmt.Sprintf("List all %s indexes currently available.", noun),
				InputSchema: mcp.ToolInputSchema{
					Type:       "object",
					Properties: map[string]interface{}{},
				},
			},
			handler: func(h *Handlers) mcpserver.ToolHandlerFunc { return h.ListIndexes(kind) },
		},
	}
}
