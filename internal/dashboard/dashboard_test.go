package dashboard

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Soflution1/McpHub/internal/cacheschema"
	"github.com/Soflution1/McpHub/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testDashboard(t *testing.T) *Dashboard {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if _, err := config.Load(path); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	cache := cacheschema.New(t.TempDir(), nil)
	return New(path, cache)
}

func doJSON(t *testing.T, d *Dashboard, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	d.Engine().ServeHTTP(rec, req)
	return rec
}

func TestAddListUpdateDeleteServerRoundTrip(t *testing.T) {
	d := testDashboard(t)

	rec := doJSON(t, d, http.MethodPost, "/api/servers", addServerRequest{Name: "git", Entry: config.ServerEntry{Command: "git-mcp"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, d, http.MethodGet, "/api/servers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var listed struct {
		Servers map[string]map[string]any `json:"servers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if _, ok := listed.Servers["git"]; !ok {
		t.Fatalf("expected git in listing, got %+v", listed.Servers)
	}

	rec = doJSON(t, d, http.MethodPut, "/api/servers/git", config.ServerEntry{Command: "git-mcp", Persistent: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, d, http.MethodDelete, "/api/servers/git", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, d, http.MethodDelete, "/api/servers/git", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestAddServerRejectsMissingCommand(t *testing.T) {
	d := testDashboard(t)
	rec := doJSON(t, d, http.MethodPost, "/api/servers", addServerRequest{Name: "broken"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSetServerEnvVar(t *testing.T) {
	d := testDashboard(t)
	doJSON(t, d, http.MethodPost, "/api/servers", addServerRequest{Name: "git", Entry: config.ServerEntry{Command: "git-mcp"}})

	rec := doJSON(t, d, http.MethodPut, "/api/servers/git/env/GIT_TOKEN", map[string]string{"value": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	cfg, err := d.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Servers["git"].Env["GIT_TOKEN"] != "secret" {
		t.Fatalf("expected env var to be persisted, got %+v", cfg.Servers["git"])
	}
}

func TestUpdateSettings(t *testing.T) {
	d := testDashboard(t)
	settings := config.DefaultSettings()
	settings.Mode = config.ModeToolSearch

	rec := doJSON(t, d, http.MethodPut, "/api/settings", settings)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	cfg, err := d.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Settings.Mode != config.ModeToolSearch {
		t.Fatalf("expected mode persisted as tool-search, got %q", cfg.Settings.Mode)
	}
}

func TestImportServersOnlyAddsNewEntries(t *testing.T) {
	d := testDashboard(t)
	doJSON(t, d, http.MethodPost, "/api/servers", addServerRequest{Name: "git", Entry: config.ServerEntry{Command: "git-mcp"}})

	rec := doJSON(t, d, http.MethodPost, "/api/import", map[string]config.ServerEntry{
		"git": {Command: "should-not-win"},
		"fs":  {Command: "fs-mcp"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	cfg, err := d.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Servers["git"].Command != "git-mcp" {
		t.Fatalf("expected existing git entry untouched, got %+v", cfg.Servers["git"])
	}
	if cfg.Servers["fs"].Command != "fs-mcp" {
		t.Fatalf("expected fs entry imported, got %+v", cfg.Servers["fs"])
	}
}
