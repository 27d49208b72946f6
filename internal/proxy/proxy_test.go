package proxy

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Soflution1/McpHub/internal/cacheschema"
	"github.com/Soflution1/McpHub/internal/childmgr"
	"github.com/Soflution1/McpHub/internal/config"
	"github.com/Soflution1/McpHub/internal/mcperr"
	"github.com/Soflution1/McpHub/internal/search"
)

func testProxy(t *testing.T, mode string) (*Proxy, *cacheschema.Cache) {
	t.Helper()
	settings := config.DefaultSettings()
	settings.Mode = mode
	cache := cacheschema.New(t.TempDir(), nil)
	cfg := &config.Config{Settings: settings, Servers: map[string]config.ServerEntry{}}
	manager := childmgr.New(cfg, cache, func() config.Settings { return settings }, nil)
	idx := search.New()
	p := New(manager, cache, idx, func() config.Settings { return settings }, nil)
	return p, cache
}

func TestSyncAddsAndRemovesToolsInPassthroughMode(t *testing.T) {
	p, cache := testProxy(t, config.ModePassthrough)

	cache.UpdateServer("git", []cacheschema.ToolSchema{
		{Name: "gitCommit", Description: "commit", InputSchema: json.RawMessage(`{"type":"object"}`)},
	}, false)
	p.Sync()

	if !p.registered["gitCommit"] {
		t.Fatalf("expected gitCommit to be registered, got %+v", p.registered)
	}

	cache.InvalidateServer("git", false)
	p.Sync()

	if p.registered["gitCommit"] {
		t.Fatalf("expected gitCommit to be unregistered after invalidation")
	}
}

func TestHandlePassthroughCallUnknownToolIsStructuredError(t *testing.T) {
	p, _ := testProxy(t, config.ModePassthrough)

	req := mcp.CallToolRequest{Params: mcp.CallToolParams{Name: "nonexistent"}}
	result, err := p.handlePassthroughCall(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no Go error, got %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected an isError result for an unknown tool")
	}
}

func TestToolErrorPreservesKind(t *testing.T) {
	result := toolError(mcperr.NewUnknownToolError("foo"))
	if !result.IsError {
		t.Fatal("expected isError result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok || !strings.Contains(text.Text, string(mcperr.KindUnknownTool)) {
		t.Fatalf("expected error text to name kind %s, got %+v", mcperr.KindUnknownTool, result.Content)
	}
}

func TestHandleDiscoverEmptyQueryReturnsHelp(t *testing.T) {
	p, _ := testProxy(t, config.ModeToolSearch)

	req := mcp.CallToolRequest{Params: mcp.CallToolParams{Name: search.DiscoverTool, Arguments: map[string]interface{}{"query": ""}}}
	result, err := p.handleDiscover(context.Background(), req)
	if err != nil {
		t.Fatalf("handleDiscover: %v", err)
	}
	if result.IsError {
		t.Fatalf("empty query should be help text, not an error result")
	}
}

func TestHandleExecuteMissingToolNameIsError(t *testing.T) {
	p, _ := testProxy(t, config.ModeToolSearch)

	req := mcp.CallToolRequest{Params: mcp.CallToolParams{Name: search.ExecuteTool, Arguments: map[string]interface{}{}}}
	result, err := p.handleExecute(context.Background(), req)
	if err != nil {
		t.Fatalf("handleExecute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an isError result when tool_name is missing")
	}
}

func TestNewLeavesPassthroughRegistryEmptyInToolSearchMode(t *testing.T) {
	p, _ := testProxy(t, config.ModeToolSearch)
	if len(p.registered) != 0 {
		t.Fatalf("tool-search mode should not populate the passthrough registry, got %+v", p.registered)
	}
}

func TestSyncRebuildsIndexInToolSearchMode(t *testing.T) {
	p, cache := testProxy(t, config.ModeToolSearch)

	cache.UpdateServer("git", []cacheschema.ToolSchema{
		{Name: "gitCommit", Description: "commit", InputSchema: json.RawMessage(`{"type":"object"}`)},
	}, false)
	p.Sync()

	results := p.index.Search("commit", 10)
	if len(results) == 0 || results[0].Document.Tool.Name != "gitCommit" {
		t.Fatalf("expected Sync to rebuild the index with gitCommit, got %+v", results)
	}
}
