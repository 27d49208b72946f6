package cacheschema

import (
	"path/filepath"
	"testing"
)

func rawSchema() []byte { return []byte(`{"type":"object"}`) }

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, nil)
	c.UpdateServer("echo", []ToolSchema{{Name: "ping", InputSchema: rawSchema()}}, false)

	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := New(dir, nil)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	before := c.Full()
	after := reloaded.Full()
	if len(before.Servers) != len(after.Servers) {
		t.Fatalf("server count mismatch: %d vs %d", len(before.Servers), len(after.Servers))
	}
	if after.Servers["echo"].Tools[0].Name != "ping" {
		t.Fatalf("expected ping tool to survive round trip, got %+v", after.Servers["echo"])
	}
}

func TestCacheLoadMissingFileIsCacheError(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, nil)
	err := c.Load()
	if err == nil {
		t.Fatal("expected CacheError for missing file")
	}
}

func TestRoutingUniquenessAfterUpdate(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, nil)
	c.UpdateServer("a", []ToolSchema{{Name: "list"}, {Name: "read"}}, false)
	c.UpdateServer("b", []ToolSchema{{Name: "list"}}, false)

	tools := c.AllTools(false)
	counts := map[string]int{}
	for _, tool := range tools {
		counts[tool.Name]++
	}
	if counts["list"] != 1 {
		t.Fatalf("expected exactly one \"list\" tool in tools/list, got %d", counts["list"])
	}

	owner, ok := c.ServerForTool("list")
	if !ok || owner != "a" {
		t.Fatalf("expected first-declared server \"a\" to own collision, got %q (ok=%v)", owner, ok)
	}
}

func TestPrefixRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, nil)
	c.UpdateServer("a", []ToolSchema{{Name: "list"}}, true)
	c.UpdateServer("b", []ToolSchema{{Name: "list"}}, true)

	tools := c.AllTools(true)
	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
	}
	if !names["a__list"] || !names["b__list"] {
		t.Fatalf("expected both prefixed tools present, got %+v", tools)
	}

	for _, server := range []string{"a", "b"} {
		exposed := PrefixedName(server, "list")
		if OriginalToolName(exposed, true) != "list" {
			t.Fatalf("expected original name \"list\", got %q", OriginalToolName(exposed, true))
		}
		owner, ok := c.ServerForTool(exposed)
		if !ok || owner != server {
			t.Fatalf("expected %q to own %q, got %q", server, exposed, owner)
		}
	}
}

func TestInvalidateServerRemovesItsTools(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, nil)
	c.UpdateServer("a", []ToolSchema{{Name: "ping"}}, false)
	c.InvalidateServer("a", false)

	if len(c.AllTools(false)) != 0 {
		t.Fatalf("expected no tools after invalidation")
	}
	if _, ok := c.ServerForTool("ping"); ok {
		t.Fatalf("expected ping to be unrouted after invalidation")
	}
}

func TestCacheFilePath(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, nil)
	if c.path != filepath.Join(dir, "cache.json") {
		t.Fatalf("unexpected cache path %q", c.path)
	}
}
