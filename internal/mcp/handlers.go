// ABOUTME: MCP tool handler implementations for the media index server
// ABOUTME: Every failure is returned as a tool error result naming the table, column or argument
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harper/mediaindex/internal/core"
	"github.com/harper/mediaindex/internal/models"
	"github.com/harper/mediaindex/internal/storage/sqlite"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	defaultQueryLimit = 20
	defaultTopK       = 5
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	registry *core.Registry
	engine   *core.Engine
}

// NewHandlers creates handlers over a registry and its engine
func NewHandlers(registry *core.Registry) *Handlers {
	return &Handlers{registry: registry, engine: registry.Engine()}
}

// CreateTable handles the create_table tool
func (h *Handlers) CreateTable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("table_name")
	if err != nil {
		return mcp.NewToolResultError("table_name argument is required and must be a string"), nil
	}
	args := request.GetArguments()
	columns, err := stringMap(args, "columns")
	if err != nil {
		return toolError("creating table '"+name+"'", err), nil
	}
	ifExists, err := models.ParseIfExists(request.GetString("if_exists", ""))
	if err != nil {
		return toolError("creating table '"+name+"'", err), nil
	}

	created, err := h.engine.CreateTable(ctx, name, columns, ifExists)
	if err != nil {
		return toolError("creating table '"+name+"'", err), nil
	}
	if !created {
		return mcp.NewToolResultText(fmt.Sprintf("Table %s already exists; left unchanged.", name)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Table %s created successfully.", name)), nil
}

// InsertData handles the insert_data tool
func (h *Handlers) InsertData(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("table_name")
	if err != nil {
		return mcp.NewToolResultError("table_name argument is required and must be a string"), nil
	}
	rows, err := objectList(request.GetArguments(), "data")
	if err != nil {
		return toolError("inserting into '"+name+"'", err), nil
	}

	result, err := h.engine.Insert(ctx, name, rows)
	if err != nil {
		return toolError("inserting into '"+name+"'", err), nil
	}

	response := map[string]interface{}{
		"message":  result.Summary(),
		"row_ids":  result.RowIDs,
		"derived":  result.Derived,
		"embedded": result.Embedded,
	}
	if len(result.Errors) > 0 {
		response["errors"] = result.Errors
	}
	return jsonResult(response)
}

// QueryTable handles the query_table tool
func (h *Handlers) QueryTable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("table_name")
	if err != nil {
		return mcp.NewToolResultError("table_name argument is required and must be a string"), nil
	}
	columns, err := stringList(request.GetArguments(), "columns")
	if err != nil {
		return toolError("querying '"+name+"'", err), nil
	}

	result, err := h.engine.Query(ctx, name, core.QueryOptions{
		Filter:  request.GetString("filter", ""),
		Columns: columns,
		Limit:   request.GetInt("limit", defaultQueryLimit),
	})
	if err != nil {
		return toolError("querying '"+name+"'", err), nil
	}
	return jsonResult(result)
}

// AddComputedColumn handles the add_computed_column tool
func (h *Handlers) AddComputedColumn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("table_name")
	if err != nil {
		return mcp.NewToolResultError("table_name argument is required and must be a string"), nil
	}
	column, err := request.RequireString("column_name")
	if err != nil {
		return mcp.NewToolResultError("column_name argument is required and must be a string"), nil
	}
	expression, err := request.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression argument is required and must be a string"), nil
	}

	result, err := h.engine.AddComputedColumn(ctx, name, column, expression)
	if err != nil {
		return toolError(fmt.Sprintf("adding column '%s' to '%s'", column, name), err), nil
	}

	response := map[string]interface{}{
		"message": fmt.Sprintf("Column %s added to %s; computed for %d existing row(s).", column, name, result.Rows),
	}
	if len(result.Errors) > 0 {
		response["errors"] = result.Errors
	}
	return jsonResult(response)
}

// CreateView handles the create_view tool
func (h *Handlers) CreateView(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("view_name")
	if err != nil {
		return mcp.NewToolResultError("view_name argument is required and must be a string"), nil
	}
	base, err := request.RequireString("base_table")
	if err != nil {
		return mcp.NewToolResultError("base_table argument is required and must be a string"), nil
	}
	ifExists, err := models.ParseIfExists(request.GetString("if_exists", ""))
	if err != nil {
		return toolError("creating view '"+name+"'", err), nil
	}

	var iter *models.IteratorSpec
	if kind := strings.TrimSpace(request.GetString("iterator", "")); kind != "" {
		params, err := object(request.GetArguments(), "iterator_params")
		if err != nil {
			return toolError("creating view '"+name+"'", err), nil
		}
		iter = &models.IteratorSpec{Kind: kind, Params: params}
	}

	result, err := h.engine.CreateView(ctx, name, base, iter, ifExists)
	if err != nil {
		return toolError("creating view '"+name+"'", err), nil
	}
	if !result.Created {
		return mcp.NewToolResultText(fmt.Sprintf("View %s already exists; left unchanged.", name)), nil
	}

	response := map[string]interface{}{
		"message": fmt.Sprintf("View %s created over %s with %d row(s).", name, base, result.Rows),
	}
	if len(result.Errors) > 0 {
		response["errors"] = result.Errors
	}
	return jsonResult(response)
}

// CreateEmbeddingIndex handles the create_embedding_index tool
func (h *Handlers) CreateEmbeddingIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("table_name")
	if err != nil {
		return mcp.NewToolResultError("table_name argument is required and must be a string"), nil
	}
	column, err := request.RequireString("column_name")
	if err != nil {
		return mcp.NewToolResultError("column_name argument is required and must be a string"), nil
	}

	result, err := h.engine.CreateEmbeddingIndex(ctx, name, column, request.GetString("model", ""))
	if err != nil {
		return toolError(fmt.Sprintf("indexing '%s.%s'", name, column), err), nil
	}

	response := map[string]interface{}{
		"message": fmt.Sprintf("Embedding index on %s.%s created with model %s; %d row(s) embedded.", name, column, result.Index.Model, result.Embedded),
	}
	if len(result.Errors) > 0 {
		response["errors"] = result.Errors
	}
	return jsonResult(response)
}

// SimilaritySearch handles the similarity_search tool
func (h *Handlers) SimilaritySearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("table_name")
	if err != nil {
		return mcp.NewToolResultError("table_name argument is required and must be a string"), nil
	}
	text, err := request.RequireString("query_text")
	if err != nil {
		return mcp.NewToolResultError("query_text argument is required and must be a string"), nil
	}

	results, err := h.engine.SimilaritySearch(ctx, core.SearchRequest{
		Table:  name,
		Column: request.GetString("column_name", ""),
		Text:   text,
		TopK:   request.GetInt("top_k", defaultTopK),
		ThenBy: request.GetString("then_by", ""),
	})
	if err != nil {
		return toolError("searching '"+name+"'", err), nil
	}
	return jsonResult(map[string]interface{}{
		"table":   name,
		"query":   text,
		"results": results,
	})
}

// ListTables handles the list_tables tool
func (h *Handlers) ListTables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tables, err := h.engine.ListTables(ctx, request.GetString("prefix", ""))
	if err != nil {
		return toolError("listing tables", err), nil
	}

	summaries := make([]map[string]interface{}, 0, len(tables))
	for _, t := range tables {
		columns := make(map[string]string, len(t.Columns))
		for _, c := range t.Columns {
			columns[c.Name] = string(c.Type)
		}
		s := map[string]interface{}{
			"name":    t.Name,
			"kind":    string(t.Kind),
			"columns": columns,
		}
		if t.Base != "" {
			s["base"] = t.Base
		}
		summaries = append(summaries, s)
	}
	return jsonResult(map[string]interface{}{"tables": summaries})
}

// DropTable handles the drop_table tool
func (h *Handlers) DropTable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("table_name")
	if err != nil {
		return mcp.NewToolResultError("table_name argument is required and must be a string"), nil
	}
	if err := h.engine.DropTable(ctx, name, request.GetBool("force", false)); err != nil {
		return toolError("dropping '"+name+"'", err), nil
	}
	h.registry.Forget(name)
	return mcp.NewToolResultText(fmt.Sprintf("Table %s dropped.", name)), nil
}

// ExportTable handles the export_table tool
func (h *Handlers) ExportTable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("table_name")
	if err != nil {
		return mcp.NewToolResultError("table_name argument is required and must be a string"), nil
	}
	data, err := h.engine.Export(ctx, name)
	if err != nil {
		return toolError("exporting '"+name+"'", err), nil
	}

	var buf bytes.Buffer
	switch format := request.GetString("format", "json"); format {
	case "json":
		err = sqlite.WriteJSON(&buf, data)
	case "yaml":
		err = sqlite.WriteYAML(&buf, data)
	case "markdown":
		err = sqlite.WriteMarkdown(&buf, data)
	default:
		err = models.InvalidArgument("format", fmt.Sprintf("unsupported format %q: use json, yaml or markdown", format))
	}
	if err != nil {
		return toolError("exporting '"+name+"'", err), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

// SetupIndex returns the setup_<kind>_index handler
func (h *Handlers) SetupIndex(kind models.IndexKind) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("table_name")
		if err != nil {
			return mcp.NewToolResultError("table_name argument is required and must be a string"), nil
		}
		result, err := h.registry.Setup(ctx, kind, name, request.GetString("openai_api_key", ""), request.GetBool("replace", false))
		if err != nil {
			return toolError(fmt.Sprintf("setting up %s index '%s'", kind, indexTable(kind, name)), err), nil
		}
		return mcp.NewToolResultText(result.Message()), nil
	}
}

// InsertAsset returns the insert_<kind> handler reading the asset from param
func (h *Handlers) InsertAsset(kind models.IndexKind, param string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("table_name")
		if err != nil {
			return mcp.NewToolResultError("table_name argument is required and must be a string"), nil
		}
		location, err := request.RequireString(param)
		if err != nil {
			return mcp.NewToolResultError(param + " argument is required and must be a string"), nil
		}

		idx, err := h.registry.Lookup(ctx, kind, name)
		if err != nil {
			return toolError(fmt.Sprintf("inserting %s file into '%s'", kind.AssetType(), indexTable(kind, name)), err), nil
		}
		result, err := idx.Insert(ctx, location)
		if err != nil {
			return toolError(fmt.Sprintf("inserting %s file into '%s'", kind.AssetType(), idx.Layout.Table), err), nil
		}
		return mcp.NewToolResultText(idx.InsertMessage(location, result)), nil
	}
}

// QueryIndex returns the query_<kind> handler
func (h *Handlers) QueryIndex(kind models.IndexKind) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("table_name")
		if err != nil {
			return mcp.NewToolResultError("table_name argument is required and must be a string"), nil
		}
		text, err := request.RequireString("query_text")
		if err != nil {
			return mcp.NewToolResultError("query_text argument is required and must be a string"), nil
		}

		idx, err := h.registry.Lookup(ctx, kind, name)
		if err != nil {
			return toolError(fmt.Sprintf("querying %s index '%s'", kind, indexTable(kind, name)), err), nil
		}
		report, err := idx.Query(ctx, text, request.GetInt("top_n", defaultTopK))
		if err != nil {
			return toolError(fmt.Sprintf("querying %s index '%s'", kind, idx.Layout.Table), err), nil
		}
		return mcp.NewToolResultText(report.Format()), nil
	}
}

// ListIndexes returns the list_<kind>_indexes handler
func (h *Handlers) ListIndexes(kind models.IndexKind) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names, err := h.registry.List(ctx, kind)
		if err != nil {
			return toolError(fmt.Sprintf("listing %s indexes", kind), err), nil
		}
		return mcp.NewToolResultText(core.FormatList(kind, names)), nil
	}
}

// toolError renders err with its kind so callers can tell bad input from upstream trouble
func toolError(action string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Error %s (%s): %v", action, models.KindOf(err), err))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func indexTable(kind models.IndexKind, name string) string {
	return kind.Directory() + "." + name
}
