// Package proxy assembles the host-facing MCP server: the single
// federated surface an editor talks to, backed by the child manager and
// schema cache, spec §4.4.
package proxy

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Soflution1/McpHub/internal/cacheschema"
	"github.com/Soflution1/McpHub/internal/childmgr"
	"github.com/Soflution1/McpHub/internal/config"
	"github.com/Soflution1/McpHub/internal/search"
)

const (
	serverName    = "mcphub"
	serverVersion = "0.1.0"
)

// Logger is the minimal surface the proxy needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Proxy is the one long-lived MCP server the host sees, whatever is
// behind it (spec §1: "presents as a single MCP server").
type Proxy struct {
	mcp *mcpserver.MCPServer

	manager  *childmgr.Manager
	cache    *cacheschema.Cache
	index    *search.Index
	settings func() config.Settings
	logger   Logger

	mu         sync.Mutex
	registered map[string]bool // passthrough mode only: exposed tool name -> registered
}

// New wires a Proxy around an already-constructed child manager and
// schema cache. Tool registration happens according to the current
// mode: passthrough exposes every cached tool (spec §4.4), tool-search
// exposes only discover/execute (spec §4.5).
func New(manager *childmgr.Manager, cache *cacheschema.Cache, index *search.Index, settings func() config.Settings, logger Logger) *Proxy {
	srv := mcpserver.NewMCPServer(serverName, serverVersion,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	p := &Proxy{
		mcp:        srv,
		manager:    manager,
		cache:      cache,
		index:      index,
		settings:   settings,
		logger:     logger,
		registered: map[string]bool{},
	}

	if settings().Mode == config.ModeToolSearch {
		p.registerMetaTools()
	} else {
		p.Sync()
	}
	return p
}

// registerMetaTools wires discover/execute for tool-search mode. Unlike
// passthrough mode's tool set, these two never change, so there is
// nothing to resync.
func (p *Proxy) registerMetaTools() {
	for _, tool := range search.MetaTools() {
		tool := tool
		switch tool.Name {
		case search.DiscoverTool:
			p.mcp.AddTool(tool, p.handleDiscover)
		case search.ExecuteTool:
			p.mcp.AddTool(tool, p.handleExecute)
		}
	}
}

// Sync reconciles the host-facing surface with the schema cache's current
// contents: it rebuilds the BM25 index wholesale (spec §4.5: "rebuilt when
// the schema cache changes") and, in passthrough mode, adds newly
// discovered tools and removes ones whose server was invalidated (spec
// §4.1: "rebuilt from scratch on cache change"). In tool-search mode the
// registered tool set itself never changes (just discover/execute), so
// only the index rebuild applies.
func (p *Proxy) Sync() {
	p.index.Build(search.DocumentsFromCache(p.cache.Full()))

	if p.settings().Mode == config.ModeToolSearch {
		return
	}
	prefix := p.settings().PrefixTools
	desired := p.cache.AllTools(prefix)

	p.mu.Lock()
	defer p.mu.Unlock()

	desiredNames := make(map[string]bool, len(desired))
	var toAdd []mcpserver.ServerTool
	for _, schema := range desired {
		desiredNames[schema.Name] = true
		if p.registered[schema.Name] {
			continue
		}
		toAdd = append(toAdd, mcpserver.ServerTool{
			Tool:    mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.InputSchema),
			Handler: p.handlePassthroughCall,
		})
		p.registered[schema.Name] = true
	}

	var toRemove []string
	for name := range p.registered {
		if !desiredNames[name] {
			toRemove = append(toRemove, name)
			delete(p.registered, name)
		}
	}

	if len(toAdd) > 0 {
		p.mcp.AddTools(toAdd...)
	}
	if len(toRemove) > 0 {
		p.mcp.DeleteTools(toRemove...)
	}
}

// handlePassthroughCall forwards a host tools/call to the upstream that
// owns it, stripping the "<server>__" prefix first when prefixing is
// enabled (spec §4.4).
func (p *Proxy) handlePassthroughCall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	callID := uuid.New().String()
	exposed := req.Params.Name
	prefix := p.settings().PrefixTools

	serverName, ok := p.cache.ServerForTool(exposed)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown tool %q", exposed)), nil
	}
	original := p.cache.OriginalToolName(exposed, prefix)

	p.logger.Infof("call %s: %s -> %s.%s", callID, exposed, serverName, original)
	result, err := p.manager.CallTool(ctx, serverName, original, req.GetArguments())
	if err != nil {
		p.logger.Warnf("call %s failed: %v", callID, err)
		return toolError(err), nil
	}
	return result, nil
}

// toolError renders any internal error as a structured isError result
// rather than a protocol fault, per spec §7: "startup and upstream
// errors surface to the host as a normal tool-call result". mcperr.Error
// already renders its Kind in Error(), so there is nothing left to do
// but quote it.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// MCPServer exposes the underlying server for the stdio/SSE transport
// runners in this package.
func (p *Proxy) MCPServer() *mcpserver.MCPServer { return p.mcp }
