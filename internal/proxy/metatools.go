package proxy

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Soflution1/McpHub/internal/search"
)

// handleDiscover implements the `discover` meta-tool (spec §4.5): a
// free-text BM25 search over every connected server's tool schemas.
func (p *Proxy) handleDiscover(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	query, _ := args["query"].(string)
	limit := search.ParseMaxResults(args["max_results"])

	out, err := search.Discover(p.index, query, limit)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(out), nil
}

// handleExecute implements the `execute` meta-tool (spec §4.5): invoke a
// tool previously surfaced by discover, resolving its owning server via
// the routing table with a normalized-name fallback.
func (p *Proxy) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	toolName, _ := args["tool_name"].(string)
	if toolName == "" {
		return mcp.NewToolResultError("execute requires \"tool_name\""), nil
	}
	toolArgs, _ := args["arguments"].(map[string]interface{})

	prefix := p.settings().PrefixTools
	serverName, original, err := search.ResolveExecuteTarget(p.cache, toolName, prefix)
	if err != nil {
		return toolError(err), nil
	}

	result, err := p.manager.CallTool(ctx, serverName, original, toolArgs)
	if err != nil {
		return toolError(err), nil
	}
	return result, nil
}
