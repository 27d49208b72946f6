package search

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Soflution1/McpHub/internal/cacheschema"
)

func schemaFor(name, description string) cacheschema.ToolSchema {
	return cacheschema.ToolSchema{Name: name, Description: description, InputSchema: json.RawMessage(`{"type":"object"}`)}
}

func buildTestIndex() *Index {
	idx := New()
	idx.Build([]Document{
		{Server: "git", Tool: schemaFor("gitCommit", "Create a git commit with a message")},
		{Server: "git", Tool: schemaFor("gitPush", "Push commits to a remote repository")},
		{Server: "fs", Tool: schemaFor("readFile", "Read the contents of a file from disk")},
		{Server: "fs", Tool: schemaFor("writeFile", "Write data to a file on disk")},
	})
	return idx
}

func TestSearchRanksRelevantToolFirst(t *testing.T) {
	idx := buildTestIndex()
	results := idx.Search("commit message", 10)
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].Document.Tool.Name != "gitCommit" {
		t.Fatalf("expected gitCommit ranked first, got %s", results[0].Document.Tool.Name)
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	idx := buildTestIndex()
	results := idx.Search("file", 1)
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result, got %d", len(results))
	}
}

func TestSearchEmptyQueryOrIndexReturnsNil(t *testing.T) {
	idx := buildTestIndex()
	if got := idx.Search("", 10); got != nil {
		t.Fatalf("expected nil for empty query, got %+v", got)
	}
	empty := New()
	if got := empty.Search("commit", 10); got != nil {
		t.Fatalf("expected nil for empty index, got %+v", got)
	}
}

func TestTokenizeSplitsCamelCaseAndPunctuation(t *testing.T) {
	got := Tokenize("gitCommit-message_v2")
	want := []string{"git", "commit", "message", "v2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDiscoverEmptyQueryReturnsHelpNotError(t *testing.T) {
	idx := buildTestIndex()
	out, err := Discover(idx, "   ", 0)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if !strings.Contains(out, "non-empty") {
		t.Fatalf("expected help text, got %q", out)
	}
}

func TestDiscoverClampsMaxResults(t *testing.T) {
	idx := buildTestIndex()
	out, err := Discover(idx, "file", 999)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	var payload struct {
		Tools []map[string]any `json:"tools"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(payload.Tools) > maxResults {
		t.Fatalf("expected at most %d tools, got %d", maxResults, len(payload.Tools))
	}
}

func TestParseMaxResultsHandlesVariousShapes(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int
	}{
		{nil, defaultResults},
		{float64(5), 5},
		{float64(0), defaultResults},
		{float64(100), maxResults},
		{"7", 7},
		{"not a number", defaultResults},
	}
	for _, c := range cases {
		if got := ParseMaxResults(c.in); got != c.want {
			t.Fatalf("ParseMaxResults(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestExplainReportsPerTermContributions(t *testing.T) {
	idx := buildTestIndex()
	explanations := idx.Explain("commit message", 10)
	if len(explanations) == 0 {
		t.Fatal("expected at least one explanation")
	}
	top := explanations[0]
	if top.Document.Tool.Name != "gitCommit" {
		t.Fatalf("expected gitCommit ranked first, got %s", top.Document.Tool.Name)
	}
	if len(top.Terms) == 0 {
		t.Fatal("expected a per-term breakdown")
	}
	var summed float64
	for _, term := range top.Terms {
		summed += term.Contribution
	}
	if summed <= 0 {
		t.Fatalf("expected positive summed contribution, got %v", summed)
	}
}

func TestResolveExecuteTargetFallsBackToNormalizedMatch(t *testing.T) {
	cache := cacheschema.New(t.TempDir(), nil)
	cache.UpdateServer("git", []cacheschema.ToolSchema{schemaFor("gitCommit", "commit")}, false)

	server, original, err := ResolveExecuteTarget(cache, "Git-Commit", false)
	if err != nil {
		t.Fatalf("ResolveExecuteTarget: %v", err)
	}
	if server != "git" || original != "gitCommit" {
		t.Fatalf("got server=%s original=%s", server, original)
	}
}

func TestResolveExecuteTargetUnknownToolErrors(t *testing.T) {
	cache := cacheschema.New(t.TempDir(), nil)
	cache.UpdateServer("git", []cacheschema.ToolSchema{schemaFor("gitCommit", "commit")}, false)

	if _, _, err := ResolveExecuteTarget(cache, "nonexistent", false); err == nil {
		t.Fatal("expected an error for unknown tool")
	}
}
