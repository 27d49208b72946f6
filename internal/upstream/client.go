// Package upstream implements the MCP JSON-RPC client side of a single
// running child: one Client wraps the mark3labs/mcp-go stdio client for
// exactly one upstream process, spec §4.3.
package upstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Soflution1/McpHub/internal/mcperr"
)

// DefaultCallTimeout bounds a tools/call round trip when the host request
// carries no deadline of its own (spec §5).
const DefaultCallTimeout = 2 * time.Minute

// Client is a thin, per-child wrapper: one instance per live upstream
// process, owned exclusively by the child manager's ManagedServer record.
type Client struct {
	serverName string
	inner      *client.Client
	serverInfo *mcp.Implementation
}

// clientName/clientVersion identify this proxy to upstreams during the MCP
// initialize handshake.
const (
	clientName    = "mcphub"
	clientVersion = "0.1.0"
)

// Dial spawns command/args with env appended to the proxy's own
// environment (entry values win, per spec §4.2) and performs the MCP
// initialize handshake. NewStdioMCPClient only starts the transport and
// the child process; every other mcp-go consumer treats the subsequent
// Initialize call as a separate, explicitly-timed step, and so does this
// one — a child that spawns but never answers initialize (e.g. a hung
// process) must still time out and be killed within ctx's deadline rather
// than being reported healthy the instant the OS accepts the exec.
func Dial(ctx context.Context, serverName, command string, args []string, env map[string]string) (*Client, error) {
	envPairs := make([]string, 0, len(env))
	for k, v := range env {
		envPairs = append(envPairs, fmt.Sprintf("%s=%s", k, v))
	}

	type dialResult struct {
		c    *client.Client
		info *mcp.Implementation
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		c, err := client.NewStdioMCPClient(command, envPairs, args...)
		if err != nil {
			resultCh <- dialResult{err: err}
			return
		}

		initRequest := mcp.InitializeRequest{}
		initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initRequest.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
		initRequest.Params.Capabilities = mcp.ClientCapabilities{}

		result, err := c.Initialize(ctx, initRequest)
		if err != nil {
			c.Close()
			resultCh <- dialResult{err: err}
			return
		}
		resultCh <- dialResult{c: c, info: &result.ServerInfo}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, mcperr.NewStartupError(fmt.Sprintf("initialize %q for server %q", command, serverName), res.err)
		}
		return &Client{
			serverName: serverName,
			inner:      res.c,
			serverInfo: res.info,
		}, nil
	case <-ctx.Done():
		// The goroutine may still be blocked spawning or mid-handshake; it
		// will close whatever it produces once resultCh is drained, but we
		// must not leave a child dangling while the caller moves on, so
		// drain async and close anything that does land.
		go func() {
			if res := <-resultCh; res.c != nil {
				res.c.Close()
			}
		}()
		return nil, mcperr.NewStartupError(fmt.Sprintf("startup timeout waiting for server %q to hand shake", serverName), ctx.Err())
	}
}

// ListTools returns the upstream's tool schemas.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	callCtx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()

	result, err := c.inner.ListTools(callCtx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, classifyError(c.serverName, err)
	}
	return result.Tools, nil
}

// CallTool invokes a tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	result, err := c.inner.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: arguments,
		},
	})
	if err != nil {
		return nil, classifyError(c.serverName, err)
	}
	return result, nil
}

// ServerInfo returns the cached implementation info for this child.
func (c *Client) ServerInfo() *mcp.Implementation { return c.serverInfo }

// Close closes the stdio transport, which in turn closes the child's
// stdin so it can exit gracefully before the process itself is reaped.
func (c *Client) Close() error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// classifyError maps a raw mcp-go client error into one of the kinds from
// spec §7: a closed pipe/EOF is a TransportError, anything else reported
// by the JSON-RPC layer is an UpstreamError.
func classifyError(serverName string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "eof") || strings.Contains(msg, "closed pipe") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "file already closed") {
		return mcperr.NewTransportError(fmt.Sprintf("connection to server %q closed", serverName), err)
	}
	return mcperr.NewUpstreamError(fmt.Sprintf("server %q returned an error", serverName), err)
}
