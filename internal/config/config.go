// Package config loads and persists HyQuery's on-disk configuration (spec
// §6): a single pretty-printed JSON file under <server-data>/HyQuery/,
// default-filled and rewritten on every load so an upgrade that adds a
// field doesn't require an operator to hand-edit anything.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyvote/hyquery/internal/logx"
)

// DirName is the data directory HyQuery keeps its config under.
const DirName = "HyQuery"

// LegacyDirName is renamed to DirName on load if DirName does not exist.
const LegacyDirName = "Hyvote_HyQuery"

// FileName is the config file within DirName.
const FileName = "config.json"

type PublicAccess struct {
	Basic   bool `json:"basic"`
	Players bool `json:"players"`
}

type Authentication struct {
	PublicAccess PublicAccess            `json:"publicAccess"`
	Tokens       map[string]PublicAccess `json:"tokens,omitempty"`
}

type Worker struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type PrimaryTarget struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type Redis struct {
	Host                   string `json:"host"`
	Port                   int    `json:"port"`
	Username               string `json:"username,omitempty"`
	Password               string `json:"password,omitempty"`
	Database               int    `json:"database"`
	TLS                    bool   `json:"tls"`
	ConnectTimeoutMillis   int    `json:"connectTimeoutMillis"`
	ReadTimeoutMillis      int    `json:"readTimeoutMillis"`
	PublishIntervalSeconds int    `json:"publishIntervalSeconds"`
	RequireAvailable       bool   `json:"requireAvailable"`
}

type Network struct {
	Enabled                bool          `json:"enabled"`
	Role                   string        `json:"role"` // "primary" | "worker"
	Coordinator            string        `json:"coordinator"` // "udp" | "redis"
	Namespace              string        `json:"namespace,omitempty"`
	IncludeGlobalNamespace bool          `json:"includeGlobalNamespace"`
	StaleAfterSeconds      int           `json:"staleAfterSeconds"`
	LogStatusUpdates       bool          `json:"logStatusUpdates"`

	// UDP primary.
	WorkerTimeoutSeconds int      `json:"workerTimeoutSeconds,omitempty"`
	Workers              []Worker `json:"workers,omitempty"`

	// UDP worker.
	ID                    string          `json:"id,omitempty"`
	Key                   string          `json:"key,omitempty"`
	PrimaryHost           string          `json:"primaryHost,omitempty"`
	PrimaryPort           int             `json:"primaryPort,omitempty"`
	Primaries             []PrimaryTarget `json:"primaries,omitempty"`
	UpdateIntervalSeconds int             `json:"updateIntervalSeconds,omitempty"`

	Redis Redis `json:"redis"`
}

type Observability struct {
	LogLevel      string `json:"logLevel"`
	MetricsEnabled bool  `json:"metricsEnabled"`
	MetricsDetail string `json:"metricsDetail"` // "basic" | "detailed"
}

// Config is the full HyQuery configuration file contents.
type Config struct {
	Enabled bool `json:"enabled"`

	ShowPlayerList bool   `json:"showPlayerList"`
	ShowPlugins    bool   `json:"showPlugins"`
	UseCustomMOTD  bool   `json:"useCustomMotd"`
	CustomMOTD     string `json:"customMotd"`

	RateLimitEnabled   bool    `json:"rateLimitEnabled"`
	RateLimitPerSecond float64 `json:"rateLimitPerSecond"`
	RateLimitBurst     float64 `json:"rateLimitBurst"`

	CacheEnabled    bool `json:"cacheEnabled"`
	CacheTTLSeconds int  `json:"cacheTtlSeconds"`

	V1Enabled bool `json:"v1Enabled"`
	V2Enabled bool `json:"v2Enabled"`

	ChallengeTokenValiditySeconds int    `json:"challengeTokenValiditySeconds"`
	ChallengeSecret               string `json:"challengeSecret"`

	Authentication Authentication `json:"authentication"`
	Network        Network        `json:"network"`
	Observability  Observability  `json:"observability"`

	// Warnings collects non-fatal defaulting-pass diagnostics (e.g. an
	// unrecognized enum value normalized back to its default) from the
	// most recent Load. Not persisted; callers with a logger log these
	// themselves (§9 "normalize enums ... and fall back to defaults on
	// unknowns").
	Warnings []string `json:"-"`
}

// Default returns the factory-default configuration.
func Default() *Config {
	return &Config{
		Enabled:                       true,
		ShowPlayerList:                true,
		ShowPlugins:                   false,
		UseCustomMOTD:                 false,
		CustomMOTD:                    "",
		RateLimitEnabled:              true,
		RateLimitPerSecond:            10,
		RateLimitBurst:                20,
		CacheEnabled:                  true,
		CacheTTLSeconds:               5,
		V1Enabled:                     true,
		V2Enabled:                     true,
		ChallengeTokenValiditySeconds: 30,
		ChallengeSecret:               "",
		Authentication: Authentication{
			PublicAccess: PublicAccess{Basic: true, Players: true},
		},
		Network: Network{
			Enabled:           false,
			Role:              "primary",
			Coordinator:       "udp",
			StaleAfterSeconds: 30,
			LogStatusUpdates:  false,
			WorkerTimeoutSeconds: 30,
			UpdateIntervalSeconds: 5,
			Redis: Redis{
				Port:                   6379,
				Database:               0,
				ConnectTimeoutMillis:   5000,
				ReadTimeoutMillis:      3000,
				PublishIntervalSeconds: 5,
				RequireAvailable:       true,
			},
		},
		Observability: Observability{
			LogLevel:      "info",
			MetricsEnabled: true,
			MetricsDetail: "basic",
		},
	}
}

// normalizeEnum lowercases value and checks it against valid. An empty
// value silently defaults (a missing field, not an invalid one); a
// non-empty, unrecognized value falls back to def and records a warning
// (§9 design note: "normalize enums ... and fall back to defaults on
// unknowns" — this is the permissive load pass, not Validate's hard
// failure for callers that construct a Config directly).
func normalizeEnum(warnings *[]string, field, value, def string, valid ...string) string {
	if value == "" {
		return def
	}
	lower := strings.ToLower(value)
	for _, v := range valid {
		if lower == v {
			return lower
		}
	}
	*warnings = append(*warnings, fmt.Sprintf("config: unrecognized %s %q, falling back to %q", field, value, def))
	return def
}

// applyDefaults fills any zero-valued field that JSON unmarshaling would
// have left at its Go zero value back to the factory default, so an older
// config file gains new fields without an operator hand-editing anything.
// It also normalizes the role/coordinator/logLevel enums to lowercase and
// falls unrecognized values back to their defaults, recording a warning
// on c.Warnings rather than aborting the load.
func applyDefaults(c *Config) {
	d := Default()

	if c.RateLimitPerSecond == 0 {
		c.RateLimitPerSecond = d.RateLimitPerSecond
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = d.RateLimitBurst
	}
	if c.CacheTTLSeconds == 0 {
		c.CacheTTLSeconds = d.CacheTTLSeconds
	}
	if c.ChallengeTokenValiditySeconds == 0 {
		c.ChallengeTokenValiditySeconds = d.ChallengeTokenValiditySeconds
	}
	c.Network.Role = normalizeEnum(&c.Warnings, "network.role", c.Network.Role, d.Network.Role, "primary", "worker")
	c.Network.Coordinator = normalizeEnum(&c.Warnings, "network.coordinator", c.Network.Coordinator, d.Network.Coordinator, "udp", "redis")
	if c.Network.StaleAfterSeconds == 0 {
		c.Network.StaleAfterSeconds = d.Network.StaleAfterSeconds
	}
	if c.Network.WorkerTimeoutSeconds == 0 {
		c.Network.WorkerTimeoutSeconds = d.Network.WorkerTimeoutSeconds
	}
	if c.Network.UpdateIntervalSeconds == 0 {
		c.Network.UpdateIntervalSeconds = d.Network.UpdateIntervalSeconds
	}
	if c.Network.Redis.Port == 0 {
		c.Network.Redis.Port = d.Network.Redis.Port
	}
	if c.Network.Redis.ConnectTimeoutMillis == 0 {
		c.Network.Redis.ConnectTimeoutMillis = d.Network.Redis.ConnectTimeoutMillis
	}
	if c.Network.Redis.ReadTimeoutMillis == 0 {
		c.Network.Redis.ReadTimeoutMillis = d.Network.Redis.ReadTimeoutMillis
	}
	if c.Network.Redis.PublishIntervalSeconds == 0 {
		c.Network.Redis.PublishIntervalSeconds = d.Network.Redis.PublishIntervalSeconds
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = d.Observability.LogLevel
	} else {
		lower := strings.ToLower(c.Observability.LogLevel)
		if _, ok := logx.ParseLevel(lower); ok {
			c.Observability.LogLevel = lower
		} else {
			c.Warnings = append(c.Warnings, fmt.Sprintf("config: unrecognized observability.logLevel %q, falling back to %q", c.Observability.LogLevel, d.Observability.LogLevel))
			c.Observability.LogLevel = d.Observability.LogLevel
		}
	}
	if c.Observability.MetricsDetail == "" {
		c.Observability.MetricsDetail = d.Observability.MetricsDetail
	}
}

// Dir returns the HyQuery config directory under serverData, migrating a
// legacy Hyvote_HyQuery directory in place if DirName is absent and the
// legacy directory exists (§6).
func Dir(serverData string) (string, error) {
	dir := filepath.Join(serverData, DirName)
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("config: stat %s: %w", dir, err)
	}

	legacy := filepath.Join(serverData, LegacyDirName)
	if _, err := os.Stat(legacy); err == nil {
		if err := os.Rename(legacy, dir); err != nil {
			return "", fmt.Errorf("config: migrating legacy dir %s: %w", legacy, err)
		}
		return dir, nil
	}

	return dir, nil
}

// Path returns the config file path within dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the config file at dir, creating dir and writing out factory
// defaults if absent. Missing fields in an existing file are filled from
// defaults and the file is rewritten (§6).
func Load(serverData string) (*Config, error) {
	dir, err := Dir(serverData)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("config: creating %s: %w", dir, err)
	}

	path := Path(dir)
	data, err := os.ReadFile(path) // #nosec G304 - path built from server-owned data dir
	if os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(serverData); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	applyDefaults(cfg)

	if err := cfg.Save(serverData); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save pretty-prints and writes the config file under serverData.
func (c *Config) Save(serverData string) error {
	dir, err := Dir(serverData)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: creating %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(Path(dir), data, 0o600); err != nil {
		return fmt.Errorf("config: writing: %w", err)
	}
	return nil
}

// Validate reports configuration combinations that would otherwise fail
// silently at runtime (used by both Load callers and the admin CLI's
// "config validate" subcommand).
func (c *Config) Validate() error {
	if !c.V1Enabled && !c.V2Enabled {
		return fmt.Errorf("config: at least one of v1Enabled or v2Enabled must be true")
	}
	if c.Network.Enabled {
		switch c.Network.Role {
		case "primary", "worker":
		default:
			return fmt.Errorf("config: network.role must be %q or %q, got %q", "primary", "worker", c.Network.Role)
		}
		switch c.Network.Coordinator {
		case "udp", "redis":
		default:
			return fmt.Errorf("config: network.coordinator must be %q or %q, got %q", "udp", "redis", c.Network.Coordinator)
		}
		if c.Network.Coordinator == "redis" && !c.Network.Redis.RequireAvailable {
			// requireAvailable=false is accepted but ignored: fail-closed is
			// always enforced (§6). Not an error, caller should warn.
			_ = struct{}{}
		}
	}
	return nil
}
