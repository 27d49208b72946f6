// Package childmgr implements the child lifecycle manager: spawn,
// idle-reap, restart of upstream MCP child processes, spec §4.2.
package childmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Soflution1/McpHub/internal/cacheschema"
	"github.com/Soflution1/McpHub/internal/config"
	"github.com/Soflution1/McpHub/internal/mcperr"
	"github.com/Soflution1/McpHub/internal/upstream"
)

// State is where in its lifecycle a ManagedServer currently sits
// (spec §3).
type State int

const (
	Stopped State = iota
	Starting
	Running
	Error
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

type inflight struct {
	done   chan struct{}
	client *upstream.Client
	err    error
}

// ManagedServer is the runtime record the manager owns for one configured
// upstream. It is never exposed to callers directly; they only ever see
// Client handles and Status snapshots.
type ManagedServer struct {
	name  string
	entry config.ServerEntry

	mu           sync.Mutex
	state        State
	client       *upstream.Client
	lastActivity time.Time
	idleTimer    *time.Timer
	starting     *inflight
	lastError    error
}

// Logger is the minimal surface the manager needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// SettingsProvider returns the current, possibly hot-reloaded, settings.
type SettingsProvider func() config.Settings

// Manager owns every configured ManagedServer. Reads and writes to the
// servers map itself are protected by mu; each ManagedServer additionally
// guards its own mutable fields so two different servers never contend on
// the same lock (spec §5: "Each ManagedServer record is mutated only by
// the child manager; callers receive an opaque handle back").
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*ManagedServer

	cache    *cacheschema.Cache
	settings SettingsProvider
	logger   Logger

	// statsMu/callCounts is the in-memory, per-process tool usage
	// counter read through ToolStats, which the serve/stdio commands log
	// once at shutdown (grounded on smart-mcp-proxy-mcpproxy-go's
	// handleToolsStats).
	// It never persists across restarts.
	statsMu    sync.Mutex
	callCounts map[string]int

	// onCacheChange, when set, is invoked every time this manager writes
	// to the schema cache (spec §4.5: the search index is "rebuilt when
	// the schema cache changes"). The proxy wires its own Sync, which
	// re-registers passthrough tools and rebuilds the BM25 index.
	onCacheChange func()
}

// New builds a Manager with one Stopped ManagedServer per configured
// entry.
func New(cfg *config.Config, cache *cacheschema.Cache, settings SettingsProvider, logger Logger) *Manager {
	m := &Manager{servers: make(map[string]*ManagedServer), cache: cache, settings: settings, logger: logger, callCounts: make(map[string]int)}
	m.Reload(cfg)
	return m
}

// SetOnCacheChange registers fn to be called after every cache write this
// manager performs (discovery, invalidation). Only one callback is kept;
// callers pass a closure that does everything needed (e.g. Proxy.Sync).
func (m *Manager) SetOnCacheChange(fn func()) {
	m.mu.Lock()
	m.onCacheChange = fn
	m.mu.Unlock()
}

func (m *Manager) notifyCacheChange() {
	m.mu.RLock()
	fn := m.onCacheChange
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// ToolStats returns a snapshot of how many times each "server.tool" has
// been called successfully since this process started.
func (m *Manager) ToolStats() map[string]int {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	out := make(map[string]int, len(m.callCounts))
	for k, v := range m.callCounts {
		out[k] = v
	}
	return out
}

func (m *Manager) recordCall(server, tool string) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.callCounts[server+"."+tool]++
}

// Reload reconciles the manager's server set with a freshly loaded config
// (used after the config watcher fires, spec §9 open question #2).
// Servers removed from config are stopped and dropped; new entries are
// added in Stopped state; servers present in both keep their runtime
// state but pick up the new entry (env, idle timeout, etc.) for their next
// spawn.
func (m *Manager) Reload(cfg *config.Config) {
	m.mu.Lock()

	seen := make(map[string]bool, len(cfg.Servers))
	for name, entry := range cfg.Servers {
		seen[name] = true
		if existing, ok := m.servers[name]; ok {
			existing.mu.Lock()
			existing.entry = entry
			existing.mu.Unlock()
			continue
		}
		m.servers[name] = &ManagedServer{name: name, entry: entry, state: Stopped}
	}
	var removed []string
	for name, ms := range m.servers {
		if !seen[name] {
			ms.mu.Lock()
			m.stopLocked(ms)
			ms.mu.Unlock()
			delete(m.servers, name)
			removed = append(removed, name)
		}
	}
	m.mu.Unlock()

	if len(removed) == 0 {
		return
	}
	prefix := m.settings().PrefixTools
	for _, name := range removed {
		m.cache.InvalidateServer(name, prefix)
	}
	m.notifyCacheChange()
}

func (m *Manager) lookup(name string) (*ManagedServer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.servers[name]
	return ms, ok
}

// GetClient returns a ready upstream client for server, spawning it if
// necessary. Concurrent callers for the same Stopped/Error server share
// the single in-flight spawn (spec §4.2 "concurrent-spawn coalescing").
func (m *Manager) GetClient(ctx context.Context, name string) (*upstream.Client, error) {
	ms, ok := m.lookup(name)
	if !ok {
		return nil, mcperr.NewStartupError(fmt.Sprintf("server %q is not configured", name), nil)
	}

	ms.mu.Lock()
	switch ms.state {
	case Running:
		client := ms.client
		ms.lastActivity = time.Now()
		m.armIdleTimer(ms)
		ms.mu.Unlock()
		return client, nil
	case Starting:
		wait := ms.starting
		ms.mu.Unlock()
		return m.awaitSpawn(ctx, wait)
	default: // Stopped, Error
		wait := &inflight{done: make(chan struct{})}
		ms.state = Starting
		ms.starting = wait
		ms.mu.Unlock()
		m.spawn(ms, wait)
		return m.awaitSpawn(ctx, wait)
	}
}

func (m *Manager) awaitSpawn(ctx context.Context, wait *inflight) (*upstream.Client, error) {
	select {
	case <-wait.done:
		return wait.client, wait.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// spawn performs the startup procedure from spec §4.2: transition already
// made to Starting by the caller; this races the handshake against
// startupTimeout and resolves every waiter exactly once.
func (m *Manager) spawn(ms *ManagedServer, wait *inflight) {
	go func() {
		timeout := time.Duration(m.settings().StartupTimeout) * time.Millisecond
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		env := mergedEnv(ms.entry.Env)
		client, err := upstream.Dial(ctx, ms.name, ms.entry.Command, ms.entry.Args, env)

		ms.mu.Lock()
		if err != nil {
			ms.state = Error
			ms.client = nil
			ms.lastError = err
			if m.logger != nil {
				m.logger.Errorf("server %q failed to start: %v", ms.name, err)
			}
		} else {
			ms.state = Running
			ms.client = client
			ms.lastActivity = time.Now()
			ms.lastError = nil
			m.armIdleTimer(ms)
		}
		wait.client = client
		wait.err = err
		ms.starting = nil
		ms.mu.Unlock()

		close(wait.done)
	}()
}

// DiscoverTools lists an upstream's tools and refreshes the schema cache.
func (m *Manager) DiscoverTools(ctx context.Context, name string) ([]cacheschema.ToolSchema, error) {
	client, err := m.GetClient(ctx, name)
	if err != nil {
		return nil, err
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	entry, _ := m.lookup(name)
	schemas := filterAllowedTools(toSchemas(tools), entry)
	m.cache.UpdateServer(name, schemas, m.settings().PrefixTools)
	m.notifyCacheChange()
	return schemas, nil
}

// CallTool forwards a call to the named server's tool, resetting its idle
// timer on success.
func (m *Manager) CallTool(ctx context.Context, name, tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	client, err := m.GetClient(ctx, name)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		callCtx, cancel = context.WithTimeout(ctx, upstream.DefaultCallTimeout)
		defer cancel()
	}

	result, err := client.CallTool(callCtx, tool, args)
	if err != nil {
		if kind, ok := mcperr.KindOf(err); ok && kind == mcperr.KindTransport {
			m.markStopped(name)
		}
		return nil, err
	}

	if ms, ok := m.lookup(name); ok {
		ms.mu.Lock()
		ms.lastActivity = time.Now()
		m.armIdleTimer(ms)
		ms.mu.Unlock()
	}
	m.recordCall(name, tool)
	return result, nil
}

func (m *Manager) markStopped(name string) {
	ms, ok := m.lookup(name)
	if !ok {
		return
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.state == Running {
		ms.state = Stopped
		ms.client = nil
		m.cancelIdleTimer(ms)
	}
}

// StopServer gracefully closes a running server's client and transitions
// it to Stopped.
func (m *Manager) StopServer(name string) error {
	ms, ok := m.lookup(name)
	if !ok {
		return mcperr.NewStartupError(fmt.Sprintf("server %q is not configured", name), nil)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return m.stopLocked(ms)
}

func (m *Manager) stopLocked(ms *ManagedServer) error {
	m.cancelIdleTimer(ms)
	if ms.client != nil {
		err := ms.client.Close()
		ms.client = nil
		ms.state = Stopped
		return err
	}
	ms.state = Stopped
	return nil
}

// ShutdownAll stops every running server concurrently, waiting up to
// grace before giving up on stragglers (spec §5 "Process hygiene").
func (m *Manager) ShutdownAll(grace time.Duration) {
	m.mu.RLock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	done := make(chan struct{})
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := m.StopServer(name); err != nil && m.logger != nil {
				m.logger.Warnf("error stopping server %q during shutdown: %v", name, err)
			}
		}(name)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		if m.logger != nil {
			m.logger.Warnf("shutdown grace period elapsed with servers still stopping")
		}
	}
}

// RunningCount reports how many servers are currently Running.
func (m *Manager) RunningCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, ms := range m.servers {
		ms.mu.Lock()
		if ms.state == Running {
			count++
		}
		ms.mu.Unlock()
	}
	return count
}

// Status is an introspection snapshot for one configured server.
type Status struct {
	Name         string
	State        string
	LastActivity time.Time
	LastError    error
}

// Status returns a point-in-time snapshot of every configured server.
func (m *Manager) Status() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.servers))
	for name, ms := range m.servers {
		ms.mu.Lock()
		out = append(out, Status{Name: name, State: ms.state.String(), LastActivity: ms.lastActivity, LastError: ms.lastError})
		ms.mu.Unlock()
	}
	return out
}

// Preload sequentially warms the configured servers chosen by
// Settings.Preload, pausing briefly between each to avoid a startup
// thundering herd (spec §4.2).
func (m *Manager) Preload(ctx context.Context) {
	m.mu.RLock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	m.mu.RUnlock()

	toWarm := m.settings().Preload.Resolve(names)
	for i, name := range toWarm {
		if i > 0 {
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			}
		}
		if _, err := m.DiscoverTools(ctx, name); err != nil && m.logger != nil {
			m.logger.Warnf("preload failed for server %q: %v", name, err)
		}
	}
}

func (m *Manager) armIdleTimer(ms *ManagedServer) {
	m.cancelIdleTimer(ms)
	timeout := ms.entry.EffectiveIdleTimeout(m.settings().IdleTimeout)
	if timeout <= 0 {
		return // persistent, or explicitly disabled
	}
	name := ms.name
	ms.idleTimer = time.AfterFunc(timeout, func() { m.reap(name) })
}

func (m *Manager) cancelIdleTimer(ms *ManagedServer) {
	if ms.idleTimer != nil {
		ms.idleTimer.Stop()
		ms.idleTimer = nil
	}
}

func (m *Manager) reap(name string) {
	ms, ok := m.lookup(name)
	if !ok {
		return
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.state != Running {
		return
	}
	if m.logger != nil {
		m.logger.Infof("idle-reaping server %q", name)
	}
	m.stopLocked(ms)
}

func toSchemas(tools []mcp.Tool) []cacheschema.ToolSchema {
	out := make([]cacheschema.ToolSchema, 0, len(tools))
	for _, tool := range tools {
		// inputSchema is an opaque JSON shape we only ever pass through,
		// per spec §9 "never re-serialize inputSchema" — this is the one
		// marshal that establishes the opaque raw form, not a reshaping.
		raw, _ := json.Marshal(tool.InputSchema)
		out = append(out, cacheschema.ToolSchema{Name: tool.Name, Description: tool.Description, InputSchema: raw})
	}
	return out
}

func filterAllowedTools(schemas []cacheschema.ToolSchema, ms *ManagedServer) []cacheschema.ToolSchema {
	if ms == nil || (len(ms.entry.AllowedTools) == 0 && len(ms.entry.ExcludedTools) == 0) {
		return schemas
	}
	allowed := toSet(ms.entry.AllowedTools)
	excluded := toSet(ms.entry.ExcludedTools)

	out := make([]cacheschema.ToolSchema, 0, len(schemas))
	for _, s := range schemas {
		if len(allowed) > 0 && !allowed[s.Name] {
			continue
		}
		if excluded[s.Name] {
			continue
		}
		out = append(out, s)
	}
	return out
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// mergedEnv builds the child's environment as the proxy process's
// inherited environment merged with the server entry's overrides, entry
// values winning, per spec §4.2.
func mergedEnv(overrides map[string]string) map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	for k, v := range overrides {
		env[k] = v
	}
	return env
}
