package childmgr

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Soflution1/McpHub/internal/cacheschema"
	"github.com/Soflution1/McpHub/internal/config"
)

// TestMain lets this test binary double as a throwaway MCP stdio child:
// when GO_WANT_HELPER_MCP_SERVER=1 it runs a single "ping" tool over
// stdio instead of running the test suite, the same self-exec pattern
// Go's own os/exec tests use for spawning real subprocesses.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_MCP_SERVER") == "1" {
		runHelperMCPServer()
		return
	}
	os.Exit(m.Run())
}

func runHelperMCPServer() {
	srv := mcpserver.NewMCPServer("helper", "0.0.1", mcpserver.WithToolCapabilities(true))
	tool := mcp.NewTool("ping", mcp.WithDescription("replies with the message it was given"), mcp.WithString("msg", mcp.Required()))
	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		msg, _ := req.GetArguments()["msg"].(string)
		return mcp.NewToolResultText(msg), nil
	})
	_ = mcpserver.ServeStdio(srv)
}

func helperConfig(name string) config.ServerEntry {
	return config.ServerEntry{Command: os.Args[0], Args: []string{"-test.run=TestMain"}, Env: map[string]string{"GO_WANT_HELPER_MCP_SERVER": "1"}}
}

func testManager(t *testing.T, entries map[string]config.ServerEntry, settings config.Settings) *Manager {
	t.Helper()
	cfg := &config.Config{Settings: settings, Servers: entries}
	cache := cacheschema.New(t.TempDir(), nil)
	return New(cfg, cache, func() config.Settings { return settings }, nil)
}

func TestGetClientSpawnsAndReusesRunningChild(t *testing.T) {
	settings := config.DefaultSettings()
	m := testManager(t, map[string]config.ServerEntry{"echo": helperConfig("echo")}, settings)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c1, err := m.GetClient(ctx, "echo")
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	c2, err := m.GetClient(ctx, "echo")
	if err != nil {
		t.Fatalf("second GetClient: %v", err)
	}
	if c1 != c2 {
		t.Fatalf("expected the same client once Running")
	}
	m.ShutdownAll(2 * time.Second)
}

func TestConcurrentGetClientCoalescesToOneSpawn(t *testing.T) {
	settings := config.DefaultSettings()
	m := testManager(t, map[string]config.ServerEntry{"echo": helperConfig("echo")}, settings)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const n = 8
	clients := make([]interface{ Close() error }, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := m.GetClient(ctx, "echo")
			errs[i] = err
			if c != nil {
				clients[i] = c
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("GetClient[%d]: %v", i, err)
		}
	}
	first := clients[0]
	for i, c := range clients {
		if c != first {
			t.Fatalf("expected exactly one spawn, client[%d] differs", i)
		}
	}
	m.ShutdownAll(2 * time.Second)
}

func TestCallToolDiscoverToolsRoundTrip(t *testing.T) {
	settings := config.DefaultSettings()
	m := testManager(t, map[string]config.ServerEntry{"echo": helperConfig("echo")}, settings)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tools, err := m.DiscoverTools(ctx, "echo")
	if err != nil {
		t.Fatalf("DiscoverTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "ping" {
		t.Fatalf("expected [ping], got %+v", tools)
	}

	result, err := m.CallTool(ctx, "echo", "ping", map[string]interface{}{"msg": "hi"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if got := m.ToolStats()["echo.ping"]; got != 1 {
		t.Fatalf("expected 1 recorded call for echo.ping, got %d (%+v)", got, m.ToolStats())
	}
	m.ShutdownAll(2 * time.Second)
}

func TestDiscoverToolsNotifiesCacheChangeCallback(t *testing.T) {
	settings := config.DefaultSettings()
	m := testManager(t, map[string]config.ServerEntry{"echo": helperConfig("echo")}, settings)

	notified := make(chan struct{}, 1)
	m.SetOnCacheChange(func() { notified <- struct{}{} })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := m.DiscoverTools(ctx, "echo"); err != nil {
		t.Fatalf("DiscoverTools: %v", err)
	}

	select {
	case <-notified:
	default:
		t.Fatal("expected onCacheChange to fire after DiscoverTools updated the cache")
	}
	m.ShutdownAll(2 * time.Second)
}

func TestReloadNotifiesCacheChangeOnRemoval(t *testing.T) {
	settings := config.DefaultSettings()
	m := testManager(t, map[string]config.ServerEntry{"echo": helperConfig("echo")}, settings)

	notified := make(chan struct{}, 1)
	m.SetOnCacheChange(func() { notified <- struct{}{} })

	m.Reload(&config.Config{Settings: settings, Servers: map[string]config.ServerEntry{}})

	select {
	case <-notified:
	default:
		t.Fatal("expected onCacheChange to fire after Reload dropped the echo server")
	}
}

func TestStartupTimeoutFailsCallerAndLeavesServerNotRunning(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StartupTimeout = 200 // ms
	sleepy := config.ServerEntry{Command: "sleep", Args: []string{"60"}}
	m := testManager(t, map[string]config.ServerEntry{"slow": sleepy}, settings)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := m.GetClient(ctx, "slow")
	elapsed := time.Since(start)
	if err == nil {
		t.Fatal("expected startup to fail")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("expected failure near startupTimeout, took %v", elapsed)
	}

	statuses := m.Status()
	if len(statuses) != 1 || (statuses[0].State != Error.String() && statuses[0].State != Stopped.String()) {
		t.Fatalf("expected server left in Error or Stopped, got %+v", statuses)
	}
}

func TestIdleReapStopsAfterInactivity(t *testing.T) {
	settings := config.DefaultSettings()
	settings.IdleTimeout = 1 // seconds — exercised via per-server override below
	short := 1
	entry := helperConfig("echo")
	entry.IdleTimeout = &short
	m := testManager(t, map[string]config.ServerEntry{"echo": entry}, settings)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := m.GetClient(ctx, "echo"); err != nil {
		t.Fatalf("GetClient: %v", err)
	}

	time.Sleep(2 * time.Second)

	statuses := m.Status()
	if len(statuses) != 1 || statuses[0].State != Stopped.String() {
		t.Fatalf("expected server idle-reaped to Stopped, got %+v", statuses)
	}
}

func TestPersistentServerIsNeverIdleReaped(t *testing.T) {
	settings := config.DefaultSettings()
	entry := helperConfig("echo")
	entry.Persistent = true
	m := testManager(t, map[string]config.ServerEntry{"echo": entry}, settings)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := m.GetClient(ctx, "echo"); err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	statuses := m.Status()
	if len(statuses) != 1 || statuses[0].State != Running.String() {
		t.Fatalf("expected persistent server still Running, got %+v", statuses)
	}
	m.ShutdownAll(2 * time.Second)
}
