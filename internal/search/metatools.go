package search

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Soflution1/McpHub/internal/cacheschema"
	"github.com/Soflution1/McpHub/internal/mcperr"
)

const (
	// DiscoverTool and ExecuteTool are the only two tools the host sees
	// in tool-search mode, spec §4.5.
	DiscoverTool = "discover"
	ExecuteTool  = "execute"

	minResults     = 1
	maxResults     = 30
	defaultResults = 10
)

// DiscoverArgs is reflected into discover's inputSchema via
// invopop/jsonschema, the same library the teacher used for its own
// event-schema generation (cmd/schema-gen), repurposed here for meta-tool
// schemas instead of LLM event payloads.
type DiscoverArgs struct {
	Query      string `json:"query" jsonschema:"required,description=Free-text search over tool names and descriptions"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results (1-30\\, default 10)"`
}

// ExecuteArgs is execute's inputSchema.
type ExecuteArgs struct {
	ToolName  string                 `json:"tool_name" jsonschema:"required,description=Exact tool name returned by discover"`
	Arguments map[string]interface{} `json:"arguments,omitempty" jsonschema:"description=Arguments object for the underlying tool"`
}

func reflectSchema(v any) json.RawMessage {
	r := new(jsonschema.Reflector)
	r.ExpandedStruct = true
	r.DoNotReference = true
	r.RequiredFromJSONSchemaTags = true
	schema := r.Reflect(v)
	raw, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}

// MetaTools returns the discover/execute tool descriptors the host sees
// when mode == tool-search, spec §4.4.
func MetaTools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewToolWithRawSchema(DiscoverTool, "Search for a tool across every connected MCP server by name or description. Always call this before execute when you don't already know the exact tool name.", reflectSchema(DiscoverArgs{})),
		mcp.NewToolWithRawSchema(ExecuteTool, "Invoke a tool previously found via discover, by its exact name.", reflectSchema(ExecuteArgs{})),
	}
}

// Discover implements the `discover` meta-tool contract from spec §4.5.
func Discover(idx *Index, query string, limit int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return helpMessage(idx), nil
	}
	limit = clamp(limit)

	hits := idx.Search(query, limit)
	payload := map[string]any{
		"query": query,
		"total": len(hits),
		"tools": make([]map[string]any, 0, len(hits)),
	}
	tools := payload["tools"].([]map[string]any)
	for _, hit := range hits {
		tools = append(tools, map[string]any{
			"name":        hit.Document.Tool.Name,
			"description": hit.Document.Tool.Description,
			"server":      hit.Document.Server,
			"inputSchema": json.RawMessage(hit.Document.Tool.InputSchema),
			"score":       hit.Score,
		})
	}
	payload["tools"] = tools
	payload["usage"] = fmt.Sprintf("Call %s with {\"tool_name\": <name>, \"arguments\": {...}} to invoke one of these.", ExecuteTool)

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", mcperr.NewInvalidArgumentsError("failed to render discover results")
	}
	return string(out), nil
}

func helpMessage(idx *Index) string {
	return fmt.Sprintf("discover requires a non-empty \"query\". %d tools are currently indexed across every connected server; try a keyword from the tool you're looking for, e.g. {\"query\": \"git commit\"}.", idx.Len())
}

// ResolveExecuteTarget finds the owning server for tool_name, honoring the
// case-insensitive, separator-insensitive lookup from spec §4.5 as a
// fallback once the exact routing-table key misses.
func ResolveExecuteTarget(cache *cacheschema.Cache, toolName string, prefix bool) (server, originalTool string, err error) {
	if server, ok := cache.ServerForTool(toolName); ok {
		return server, cache.OriginalToolName(toolName, prefix), nil
	}

	normalized := normalize(toolName)
	for _, tool := range cache.AllTools(prefix) {
		if normalize(tool.Name) == normalized {
			owner, _ := cache.ServerForTool(tool.Name)
			return owner, cache.OriginalToolName(tool.Name, prefix), nil
		}
	}
	return "", "", mcperr.NewUnknownToolError(toolName)
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseMaxResults clamps a raw "max_results" argument (which may arrive as
// a JSON number, string, or be entirely absent) into [1, 30], default 10.
func ParseMaxResults(raw interface{}) int {
	switch v := raw.(type) {
	case float64:
		return clamp(int(v))
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return clamp(n)
		}
	}
	return defaultResults
}

func clamp(n int) int {
	if n < minResults {
		return defaultResults
	}
	if n > maxResults {
		return maxResults
	}
	return n
}
