// Package dashboard is the thin REST boundary for managing the server
// list and settings while the proxy is running (spec §1: out of core
// scope, named for boundary reference in spec §6). It only ever mutates
// the config file; the running proxy picks up changes through
// internal/config.Watcher, the same separation the teacher's gin routes
// kept between HTTP handlers and the data layer they sat on top of.
package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Soflution1/McpHub/internal/cacheschema"
	"github.com/Soflution1/McpHub/internal/config"
)

// Dashboard owns the gin engine and the config path it reads/writes.
type Dashboard struct {
	engine     *gin.Engine
	configPath string
	cache      *cacheschema.Cache
}

// New builds a Dashboard wired to the config file at configPath and a
// schema cache (read-only from here, for status display). The cmd wiring
// passes the cache as loaded from disk when the dashboard process starts.
func New(configPath string, cache *cacheschema.Cache) *Dashboard {
	engine := gin.New()
	engine.Use(gin.Recovery())

	d := &Dashboard{engine: engine, configPath: configPath, cache: cache}
	d.registerRoutes()
	return d
}

// Engine exposes the underlying gin engine, e.g. for ListenAndServe.
func (d *Dashboard) Engine() *gin.Engine { return d.engine }

func (d *Dashboard) loadConfig() (*config.Config, error) {
	return config.Load(d.configPath)
}

func (d *Dashboard) saveConfig(cfg *config.Config) error {
	return config.Save(d.configPath, cfg)
}

func (d *Dashboard) registerRoutes() {
	api := d.engine.Group("/api")

	api.GET("/servers", d.listServers)
	api.POST("/servers", d.addServer)
	api.PUT("/servers/:name", d.updateServer)
	api.DELETE("/servers/:name", d.deleteServer)
	api.PUT("/servers/:name/env/:key", d.setServerEnvVar)
	api.PUT("/settings", d.updateSettings)
	api.POST("/import", d.importServers)
}

func (d *Dashboard) listServers(c *gin.Context) {
	cfg, err := d.loadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	full := d.cache.Full()
	out := make(map[string]gin.H, len(cfg.Servers))
	for name, entry := range cfg.Servers {
		schema, cached := full.Servers[name]
		status := gin.H{"command": entry.Command, "args": entry.Args, "persistent": entry.Persistent}
		if cached {
			status["toolCount"] = len(schema.Tools)
			status["cachedAt"] = schema.CachedAt
		}
		out[name] = status
	}
	c.JSON(http.StatusOK, gin.H{"servers": out, "settings": cfg.Settings})
}

type addServerRequest struct {
	Name  string            `json:"name" binding:"required"`
	Entry config.ServerEntry `json:"entry"`
}

func (d *Dashboard) addServer(c *gin.Context) {
	var req addServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Entry.Command == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entry.command is required"})
		return
	}

	cfg, err := d.loadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if _, exists := cfg.Servers[req.Name]; exists {
		c.JSON(http.StatusConflict, gin.H{"error": "server already exists"})
		return
	}
	cfg.Servers[req.Name] = req.Entry
	if err := d.saveConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

func (d *Dashboard) updateServer(c *gin.Context) {
	name := c.Param("name")
	var entry config.ServerEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if entry.Command == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	cfg, err := d.loadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	cfg.Servers[name] = entry
	if err := d.saveConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name})
}

func (d *Dashboard) deleteServer(c *gin.Context) {
	name := c.Param("name")

	cfg, err := d.loadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if _, exists := cfg.Servers[name]; !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such server"})
		return
	}
	delete(cfg.Servers, name)
	if err := d.saveConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "server removed"})
}

func (d *Dashboard) setServerEnvVar(c *gin.Context) {
	name, key := c.Param("name"), c.Param("key")
	var body struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := d.loadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	entry, ok := cfg.Servers[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such server"})
		return
	}
	if entry.Env == nil {
		entry.Env = map[string]string{}
	}
	entry.Env[key] = body.Value
	cfg.Servers[name] = entry

	if err := d.saveConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "key": key})
}

func (d *Dashboard) updateSettings(c *gin.Context) {
	var settings config.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := d.loadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	cfg.Settings = settings
	if err := d.saveConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg.Settings)
}

// importServers is the seam for the out-of-scope migration command
// (spec §1): given a foreign config shape already converted to our
// ServerEntry map by the caller, merge in only the entries that don't
// already exist.
func (d *Dashboard) importServers(c *gin.Context) {
	var incoming map[string]config.ServerEntry
	if err := c.ShouldBindJSON(&incoming); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := d.loadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	added := config.MergeHostConfig(cfg, incoming)
	if err := d.saveConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}
