package config

// MergeHostConfig merges entries parsed from a third-party host's MCP
// config (e.g. an editor's own `{"mcpServers": {...}}` document) into cfg,
// returning the names actually added. Existing entries are never
// overwritten. This is a thin seam for the out-of-scope "import from host
// config" migration command (spec §1 Non-goals) — mcphub itself does not
// ship that command, but exposes this pure function so one can be built
// without reaching into Config internals.
func MergeHostConfig(cfg *Config, incoming map[string]ServerEntry) []string {
	var added []string
	for name, entry := range incoming {
		if _, exists := cfg.Servers[name]; exists {
			continue
		}
		cfg.Servers[name] = entry
		added = append(added, name)
	}
	return added
}
