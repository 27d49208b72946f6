// Package tokensaving estimates the prompt-token cost difference between
// passthrough mode (every upstream tool schema sent to the host up
// front) and tool-search mode (only the two meta-tools), surfaced via
// the `status` command and debug logging. The teacher's go.mod already
// declared github.com/pkoukk/tiktoken-go for exactly this kind of
// token-accounting math; this package is where it actually gets used.
package tokensaving

import (
	"encoding/json"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Soflution1/McpHub/internal/cacheschema"
)

// encodingName is the general-purpose encoding cl100k_base covers every
// model family we might be proxying tool calls for; this estimate only
// needs to be in the right order of magnitude, not exact per-model.
const encodingName = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(encodingName)
	})
	return enc, encErr
}

// CountTokens estimates how many tokens text would cost as part of a
// prompt. Falls back to a byte-length heuristic (len/4) if the
// encoder can't be loaded, rather than failing a status report outright.
func CountTokens(text string) int {
	e, err := encoding()
	if err != nil {
		return len(text) / 4
	}
	return len(e.Encode(text, nil, nil))
}

// Estimate reports the prompt-token cost of describing every cached tool
// in full (what passthrough mode sends on every tools/list) versus the
// fixed cost of the two tool-search meta-tools.
type Estimate struct {
	ToolCount       int
	PassthroughCost int
	ToolSearchCost  int
	Saved           int
}

// metaToolsApproxCost is the fixed prompt-token footprint of the
// discover/execute descriptions and schemas, measured once and cached
// here rather than re-encoded on every Estimate call.
var metaToolsApproxCost = CountTokens(`discover: Search for a tool across every connected MCP server by name or description. execute: Invoke a tool previously found via discover, by its exact name. {"query":"string","max_results":"integer"} {"tool_name":"string","arguments":"object"}`)

// ForCache computes the estimate from a schema cache snapshot.
func ForCache(full cacheschema.FullCache) Estimate {
	cost := 0
	count := 0
	for _, server := range full.Servers {
		for _, tool := range server.Tools {
			count++
			cost += CountTokens(tool.Name) + CountTokens(tool.Description) + CountTokens(rawSchemaText(tool.InputSchema))
		}
	}

	est := Estimate{ToolCount: count, PassthroughCost: cost, ToolSearchCost: metaToolsApproxCost}
	if est.PassthroughCost > est.ToolSearchCost {
		est.Saved = est.PassthroughCost - est.ToolSearchCost
	}
	return est
}

func rawSchemaText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return string(raw)
}
