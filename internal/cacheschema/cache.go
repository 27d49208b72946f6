package cacheschema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Soflution1/McpHub/internal/mcperr"
)

// warner is the minimal logging surface the cache needs; satisfied by
// pkg/logger.Logger.
type warner interface {
	Warnf(format string, args ...interface{})
}

type snapshot struct {
	full    FullCache
	routing *RoutingTable
	order   []string // declared/insertion order of server names, frozen into this snapshot
}

// Cache is the persistent schema cache plus its derived routing table.
// Reads are lock-free via an atomic pointer swap (spec §5); writes
// serialize through mu, mirroring the cache manager singleton pattern the
// teacher's pkg/mcpcache used, generalized to a single cache file instead
// of one entry per config hash. order lives on the snapshot itself rather
// than behind mu so that a reader never needs the writers' lock to see it.
type Cache struct {
	path   string
	logger warner

	mu  sync.Mutex // serializes writers only
	ptr atomic.Pointer[snapshot]
}

// New constructs an empty, unsaved Cache backed by cacheDir/cache.json.
func New(cacheDir string, logger warner) *Cache {
	c := &Cache{path: filepath.Join(cacheDir, "cache.json"), logger: logger}
	c.ptr.Store(&snapshot{full: FullCache{Version: CacheVersion, Servers: map[string]ServerSchemaCache{}}, routing: &RoutingTable{toolToServer: map[string]string{}}})
	return c
}

// Load reads the cache file if present. A missing or corrupt file is
// reported as a CacheError but treated as a cache-miss: the cache
// continues in its current (generally empty) state rather than failing
// startup, per spec §4.1 and §7.
func (c *Cache) Load() error {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return mcperr.NewCacheError("no cache file present yet", nil)
	}
	if err != nil {
		return mcperr.NewCacheError("read cache file", err)
	}

	var full FullCache
	if err := json.Unmarshal(data, &full); err != nil {
		return mcperr.NewCacheError("cache file is corrupt", err)
	}
	if full.Servers == nil {
		full.Servers = map[string]ServerSchemaCache{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.swap(full, sortedServerNames(full), false)
	return nil
}

// Save persists the current in-memory cache atomically: write to a sibling
// temp file, then rename (spec §4.1, invariant 5).
func (c *Cache) Save() error {
	snap := c.ptr.Load()
	full := snap.full
	full.GeneratedAt = time.Now().UTC()

	data, err := json.MarshalIndent(full, "", "  ")
	if err != nil {
		return mcperr.NewCacheError("marshal cache", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return mcperr.NewCacheError("create cache dir", err)
	}
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return mcperr.NewCacheError("write temp cache file", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return mcperr.NewCacheError("rename temp cache file into place", err)
	}
	return nil
}

// UpdateServer replaces a server's cached tool list and rebuilds the
// routing table (spec §4.1). prefix controls how the NEW routing table
// exposes names; callers pass the proxy's current Settings.PrefixTools.
func (c *Cache) UpdateServer(name string, tools []ToolSchema, prefix bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.ptr.Load()
	full := snap.full.Clone()
	full.Version = CacheVersion
	full.Servers[name] = ServerSchemaCache{ServerName: name, Tools: tools, CachedAt: time.Now().UTC()}

	order := snap.order
	if !contains(order, name) {
		order = append(append([]string(nil), order...), name)
	}

	c.swap(full, order, prefix)
}

// InvalidateServer removes a server's entry entirely (used by the child
// manager when a server is removed from config; `reset` deletes the cache
// file instead).
func (c *Cache) InvalidateServer(name string, prefix bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.ptr.Load()
	full := snap.full.Clone()
	delete(full.Servers, name)
	c.swap(full, snap.order, prefix)
}

// swap must be called with mu held: it builds the next snapshot and
// publishes it atomically. order is frozen onto the new snapshot so
// AllTools never needs mu to read it back.
func (c *Cache) swap(full FullCache, order []string, prefix bool) {
	var warnFn func(string, ...any)
	if c.logger != nil {
		warnFn = c.logger.Warnf
	}
	routing := buildRoutingTable(full, order, prefix, warnFn)
	c.ptr.Store(&snapshot{full: full, routing: routing, order: order})
}

// AllTools returns every cached tool, renamed per prefix, for the host's
// tools/list response. Order is deterministic: by declared server order,
// then by tool declaration order within a server.
func (c *Cache) AllTools(prefix bool) []ToolSchema {
	snap := c.ptr.Load()
	seen := make(map[string]bool, snap.routing.Len())
	out := make([]ToolSchema, 0, snap.routing.Len())

	for _, serverName := range declaredOrder(snap) {
		entry, ok := snap.full.Servers[serverName]
		if !ok {
			continue
		}
		for _, tool := range entry.Tools {
			exposed := tool.Name
			if prefix {
				exposed = PrefixedName(serverName, tool.Name)
			}
			owner, _ := snap.routing.ServerForTool(exposed)
			if owner != serverName || seen[exposed] {
				continue
			}
			seen[exposed] = true
			out = append(out, ToolSchema{Name: exposed, Description: tool.Description, InputSchema: tool.InputSchema})
		}
	}
	return out
}

// declaredOrder reads order straight off the snapshot: no lock needed,
// since order is frozen at swap time and never mutated afterward.
func declaredOrder(snap *snapshot) []string {
	if len(snap.order) > 0 {
		return snap.order
	}
	return sortedServerNames(snap.full)
}

// ServerForTool returns the owning server for an exposed tool name.
func (c *Cache) ServerForTool(name string) (string, bool) {
	return c.ptr.Load().routing.ServerForTool(name)
}

// OriginalToolName strips the "<server>__" prefix when prefix is enabled.
func (c *Cache) OriginalToolName(exposed string, prefix bool) string {
	return OriginalToolName(exposed, prefix)
}

// ServerSchema returns the cached schema entry for a server, if any.
func (c *Cache) ServerSchema(name string) (ServerSchemaCache, bool) {
	entry, ok := c.ptr.Load().full.Servers[name]
	return entry, ok
}

// Full returns a copy of the underlying FullCache, useful for the `status`
// CLI command and for round-trip tests.
func (c *Cache) Full() FullCache {
	return c.ptr.Load().full.Clone()
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
