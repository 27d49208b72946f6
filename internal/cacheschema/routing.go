package cacheschema

import (
	"fmt"
	"sort"
)

// RoutingTable is the immutable, in-memory tool-name → server-name index
// derived from a FullCache (spec §3, §4.1). A new table is built whole and
// swapped in rather than mutated, so concurrent readers never observe a
// partial update (spec invariant 5).
type RoutingTable struct {
	toolToServer map[string]string
	// order preserves deterministic, declared-order server iteration so
	// collision resolution and allTools() output are reproducible.
	serverOrder []string
}

// ServerForTool returns the owning server for an exposed tool name, or
// ("", false) if absent.
func (t *RoutingTable) ServerForTool(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	s, ok := t.toolToServer[name]
	return s, ok
}

// Len reports the number of routed tool names.
func (t *RoutingTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.toolToServer)
}

// buildRoutingTable implements the tool-name collision policy from
// spec §4.1: without prefixing, the first server in serverOrder to declare
// a given tool name wins and every subsequent collision is logged via
// warnFn; with prefixing collisions cannot occur because every tool name
// is namespaced.
func buildRoutingTable(full FullCache, serverOrder []string, prefix bool, warnFn func(format string, args ...any)) *RoutingTable {
	table := &RoutingTable{toolToServer: make(map[string]string), serverOrder: append([]string(nil), serverOrder...)}

	for _, serverName := range serverOrder {
		entry, ok := full.Servers[serverName]
		if !ok {
			continue
		}
		for _, tool := range entry.Tools {
			exposed := tool.Name
			if prefix {
				exposed = PrefixedName(serverName, tool.Name)
			}
			if existing, collided := table.toolToServer[exposed]; collided {
				if !prefix && warnFn != nil {
					warnFn("tool name collision for %q: server %q already owns it, ignoring declaration from server %q", exposed, existing, serverName)
				}
				continue
			}
			table.toolToServer[exposed] = serverName
		}
	}
	return table
}

// PrefixedName implements the "<server>__<originalName>" scheme from
// spec §4.1.
func PrefixedName(server, tool string) string {
	return fmt.Sprintf("%s__%s", server, tool)
}

// OriginalToolName strips the "<server>__" prefix when prefix is enabled
// and the exposed name actually carries it; otherwise it returns exposed
// unchanged.
func OriginalToolName(exposed string, prefix bool) string {
	if !prefix {
		return exposed
	}
	for i := 0; i+1 < len(exposed); i++ {
		if exposed[i] == '_' && exposed[i+1] == '_' {
			return exposed[i+2:]
		}
	}
	return exposed
}

// sortedServerNames returns server names in deterministic (sorted) order,
// used as the declared-order tiebreak when no explicit insertion order is
// tracked elsewhere (e.g. loading a cache file whose map iteration order
// Go does not guarantee).
func sortedServerNames(full FullCache) []string {
	names := make([]string, 0, len(full.Servers))
	for name := range full.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
