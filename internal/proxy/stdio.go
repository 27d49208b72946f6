package proxy

import (
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// ServeStdio runs the proxy over the stdio transport: stdout carries only
// JSON-RPC frames, so every log line in this process must go to stderr
// (spec §6 "host-facing MCP over stdio"). This is the default when the
// binary is invoked with no subcommand.
func (p *Proxy) ServeStdio() error {
	return mcpserver.ServeStdio(p.mcp)
}
