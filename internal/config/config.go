// Package config loads and persists the federated-server list and the
// proxy's tuning settings. The config file is the one piece of state that
// both the proxy and the (out-of-scope) dashboard mutate, so every write
// goes through the same atomic rename the teacher's mcpclient config used.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Soflution1/McpHub/internal/mcperr"
)

// PreloadSetting is "all", "none", or an explicit list of server names.
// It accepts either a bare string or a JSON array on unmarshal.
type PreloadSetting struct {
	All   bool
	None  bool
	Names []string
}

func (p PreloadSetting) MarshalJSON() ([]byte, error) {
	switch {
	case p.All:
		return json.Marshal("all")
	case p.None:
		return json.Marshal("none")
	default:
		return json.Marshal(p.Names)
	}
}

func (p PreloadSetting) MarshalYAML() (interface{}, error) {
	switch {
	case p.All:
		return "all", nil
	case p.None:
		return "none", nil
	default:
		return p.Names, nil
	}
}

func (p *PreloadSetting) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		switch s {
		case "all":
			*p = PreloadSetting{All: true}
		case "none", "":
			*p = PreloadSetting{None: true}
		default:
			*p = PreloadSetting{Names: []string{s}}
		}
		return nil
	}
	var names []string
	if err := value.Decode(&names); err != nil {
		return fmt.Errorf("preload must be \"all\", \"none\" or a string array: %w", err)
	}
	*p = PreloadSetting{Names: names}
	return nil
}

func (p *PreloadSetting) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "all":
			*p = PreloadSetting{All: true}
		case "none", "":
			*p = PreloadSetting{None: true}
		default:
			*p = PreloadSetting{Names: []string{s}}
		}
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("preload must be \"all\", \"none\" or a string array: %w", err)
	}
	*p = PreloadSetting{Names: names}
	return nil
}

// Resolve returns the set of server names to warm, given the full
// configured server list.
func (p PreloadSetting) Resolve(configured []string) []string {
	switch {
	case p.All:
		out := append([]string(nil), configured...)
		sort.Strings(out)
		return out
	case p.None:
		return nil
	default:
		configuredSet := make(map[string]bool, len(configured))
		for _, name := range configured {
			configuredSet[name] = true
		}
		var out []string
		for _, name := range p.Names {
			if configuredSet[name] {
				out = append(out, name)
			}
		}
		return out
	}
}

// Settings holds the global tuning knobs from spec §3.
type Settings struct {
	IdleTimeout    int            `json:"idleTimeout" yaml:"idleTimeout"`       // seconds
	StartupTimeout int            `json:"startupTimeout" yaml:"startupTimeout"` // milliseconds
	Mode           string         `json:"mode" yaml:"mode"`                     // "passthrough" | "tool-search"
	Preload        PreloadSetting `json:"preload" yaml:"preload"`
	PrefixTools    bool           `json:"prefixTools" yaml:"prefixTools"`
	CacheDir       string         `json:"cacheDir" yaml:"cacheDir"`
	LogLevel       string         `json:"logLevel" yaml:"logLevel"`
}

const (
	ModePassthrough = "passthrough"
	ModeToolSearch  = "tool-search"
)

// DefaultSettings mirrors the defaults named in spec §3.
func DefaultSettings() Settings {
	return Settings{
		IdleTimeout:    300,
		StartupTimeout: 30000,
		Mode:           ModePassthrough,
		Preload:        PreloadSetting{None: true},
		PrefixTools:    false,
		CacheDir:       defaultCacheDir(),
		LogLevel:       "info",
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "mcphub")
	}
	return ".mcphub-cache"
}

// ServerEntry is the user-declared configuration for one upstream, spec §3.
type ServerEntry struct {
	Command     string            `json:"command" yaml:"command"`
	Args        []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Preload     bool              `json:"preload,omitempty" yaml:"preload,omitempty"`
	IdleTimeout *int              `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`
	Persistent  bool              `json:"persistent,omitempty" yaml:"persistent,omitempty"`

	// AllowedTools/ExcludedTools are a supplement beyond the distilled
	// spec (grounded on the gateway allow/deny-list pattern in the
	// broader retrieval pack): when non-empty they filter which of the
	// server's tools are exposed through allTools()/the routing table.
	AllowedTools  []string `json:"allowedTools,omitempty" yaml:"allowedTools,omitempty"`
	ExcludedTools []string `json:"excludedTools,omitempty" yaml:"excludedTools,omitempty"`

	// Disabled is an open question from spec §9: the source format has a
	// "disabled" flag with no enforced meaning. We preserve it on
	// write-back but never act on it; every server in the map is treated
	// as enabled.
	Disabled *bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// EffectiveIdleTimeout returns how long a server should idle before being
// reaped, honoring the per-server override; it returns 0 (never reaped)
// for a persistent server.
func (e ServerEntry) EffectiveIdleTimeout(global int) time.Duration {
	if e.Persistent {
		return 0
	}
	if e.IdleTimeout != nil {
		return time.Duration(*e.IdleTimeout) * time.Second
	}
	return time.Duration(global) * time.Second
}

// Config is the persistent document described in spec §6.
type Config struct {
	Settings Settings               `json:"settings"`
	Servers  map[string]ServerEntry `json:"servers"`

	// extra preserves unrecognized top-level keys so write-back never
	// destroys fields a newer dashboard version added.
	extra map[string]json.RawMessage `json:"-"`
}

func (c *Config) UnmarshalJSON(data []byte) error {
	type alias Config
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delete(raw, "settings")
	delete(raw, "servers")
	*c = Config(a)
	c.extra = raw
	return nil
}

func (c Config) MarshalJSON() ([]byte, error) {
	merged := make(map[string]json.RawMessage, len(c.extra)+2)
	for k, v := range c.extra {
		merged[k] = v
	}
	settingsJSON, err := json.Marshal(c.Settings)
	if err != nil {
		return nil, err
	}
	merged["settings"] = settingsJSON
	serversJSON, err := json.Marshal(c.Servers)
	if err != nil {
		return nil, err
	}
	merged["servers"] = serversJSON
	return json.Marshal(merged)
}

// New returns a defaulted, empty configuration.
func New() *Config {
	return &Config{
		Settings: DefaultSettings(),
		Servers:  map[string]ServerEntry{},
	}
}

// isYAMLPath reports whether path should be read/written as YAML rather
// than JSON, so a dashboard-managed config.json and a hand-edited
// config.yaml can sit side by side (spec is silent on file format; the
// on-disk shape is the same document either way).
func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// yamlConfig mirrors Config for the YAML codec. Unlike Config's JSON
// methods, it does not preserve unrecognized top-level keys: YAML config
// files are meant to be hand-edited, not round-tripped by the dashboard.
type yamlConfig struct {
	Settings Settings               `yaml:"settings"`
	Servers  map[string]ServerEntry `yaml:"servers"`
}

// Load reads the config file at path, creating a defaulted file if one
// does not exist yet (spec §6: "Missing file on startup causes creation of
// a defaulted file"). A present-but-corrupt file is a ConfigError.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := New()
		if err := Save(path, cfg); err != nil {
			return nil, mcperr.NewConfigError(fmt.Sprintf("create default config at %s", path), err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, mcperr.NewConfigError(fmt.Sprintf("read config at %s", path), err)
	}

	var cfg Config
	if isYAMLPath(path) {
		var yc yamlConfig
		if err := yaml.Unmarshal(data, &yc); err != nil {
			return nil, mcperr.NewConfigError(fmt.Sprintf("parse config at %s", path), err)
		}
		cfg = Config{Settings: yc.Settings, Servers: yc.Servers}
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, mcperr.NewConfigError(fmt.Sprintf("parse config at %s", path), err)
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]ServerEntry{}
	}
	applyEnvOverrides(&cfg.Settings)

	for name, entry := range cfg.Servers {
		if entry.Command == "" {
			return nil, mcperr.NewConfigError(fmt.Sprintf("server %q is missing required field \"command\"", name), nil)
		}
		if entry.Disabled != nil {
			// Open question per spec §9: surface and move on, never enforce.
			fmt.Fprintf(os.Stderr, "warn: server %q declares a \"disabled\" field; mcphub has no enforcement for it and treats every configured server as enabled\n", name)
		}
	}
	return &cfg, nil
}

// Save persists cfg to path atomically: write to a sibling temp file, then
// rename over the target. Format (JSON or YAML) follows the path's
// extension.
func Save(path string, cfg *Config) error {
	var data []byte
	var err error
	if isYAMLPath(path) {
		data, err = yaml.Marshal(yamlConfig{Settings: cfg.Settings, Servers: cfg.Servers})
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config into place: %w", err)
	}
	return nil
}

// ListServers returns configured server names in deterministic order.
func (c *Config) ListServers() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// applyEnvOverrides honors the recognized environment variables from
// spec §6.
func applyEnvOverrides(s *Settings) {
	switch os.Getenv("MCP_ON_DEMAND_MODE") {
	case "discover", ModeToolSearch:
		s.Mode = ModeToolSearch
	case ModePassthrough:
		s.Mode = ModePassthrough
	}
	switch os.Getenv("MCP_ON_DEMAND_PRELOAD") {
	case "all":
		s.Preload = PreloadSetting{All: true}
	case "none":
		s.Preload = PreloadSetting{None: true}
	}
	if os.Getenv("MCP_ON_DEMAND_DEBUG") == "1" {
		s.LogLevel = "debug"
	}
}

// DefaultConfigPath returns the stable path inside the user's config
// directory, creating no files itself.
func DefaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mcphub", "config.json")
	}
	return "mcphub-config.json"
}
