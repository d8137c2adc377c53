package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Add-column targeting policies.
const (
	TargetSelected = "selected"
	TargetExplicit = "explicit"
)

// DefaultKey is the key the snapshot is stored under.
const DefaultKey = "persist:editor"

// Config represents the pagebuilder configuration
type Config struct {
	Title    string         `yaml:"title"`
	Server   ServerConfig   `yaml:"server"`
	Editor   EditorConfig   `yaml:"editor"`
	Storage  StorageConfig  `yaml:"storage"`
	Features FeaturesConfig `yaml:"features"`
	API      *APIConfig     `yaml:"api,omitempty"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port  int    `yaml:"port"`
	Host  string `yaml:"host"`
	Debug bool   `yaml:"debug"`
}

// EditorConfig holds editing behaviour and rendering settings
type EditorConfig struct {
	// AddColumnTarget is "selected" (new columns go to the selected row) or
	// "explicit" (the row named by the gesture, falling back to the selected row).
	AddColumnTarget string `yaml:"add_column_target"`
	// AllowPrivateImages renders images served from localhost and private networks.
	AllowPrivateImages bool `yaml:"allow_private_images"`
	// AllowDataImages renders inline data:image URLs (default: true).
	AllowDataImages *bool       `yaml:"allow_data_images,omitempty"`
	RenderCache     RenderCache `yaml:"render_cache"`
}

// RenderCache configures the rendered markdown cache
type RenderCache struct {
	TTL        string `yaml:"ttl,omitempty"`         // e.g. "10m". Default: 10m
	MaxEntries int    `yaml:"max_entries,omitempty"` // Default: 512
}

// StorageConfig selects where the editor snapshot is persisted
type StorageConfig struct {
	Backend  string `yaml:"backend"`             // file, sqlite, postgres, redis or memory
	Path     string `yaml:"path,omitempty"`      // For file and sqlite
	DSN      string `yaml:"dsn,omitempty"`       // For postgres (env vars expanded)
	RedisURL string `yaml:"redis_url,omitempty"` // For redis (env vars expanded)
	Key      string `yaml:"key,omitempty"`       // Snapshot key (default: persist:editor)
}

// FeaturesConfig holds feature flags
type FeaturesConfig struct {
	Watch bool `yaml:"watch"` // Reload when the snapshot file changes on disk
	Sync  bool `yaml:"sync"`  // Broadcast every change to all open tabs
}

// LogConfig configures the zap logger
type LogConfig struct {
	File       string `yaml:"file,omitempty"` // Rotated JSON log file; empty disables file logging
	Production bool   `yaml:"production"`     // JSON console output instead of the development encoder
	Level      string `yaml:"level"`          // debug, info, warn or error
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// APIConfig holds JSON API configuration
type APIConfig struct {
	CORS      *CORSConfig      `yaml:"cors,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
	Auth      *AuthConfig      `yaml:"auth,omitempty"`
}

// AuthConfig holds authentication configuration for the API
type AuthConfig struct {
	// APIKey is the required API key for authentication.
	// Supports environment variable expansion (e.g., "${API_KEY}" or "$API_KEY")
	APIKey string `yaml:"api_key,omitempty"`
	// HeaderName is the HTTP header name for the API key (default: "X-API-Key")
	// Also supports "Authorization: Bearer <token>" format when set to "Authorization"
	HeaderName string `yaml:"header_name,omitempty"`
	// SessionTTL is how long the browser session cookie issued after a key
	// check stays valid (default: 12h)
	SessionTTL time.Duration `yaml:"session_ttl,omitempty"`
}

// CORSConfig holds CORS configuration for the API
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"` // Allowed origins (e.g., ["http://localhost:3000", "*"])
}

// RateLimitConfig holds rate limiting configuration for the API
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // Rate limit in requests per second (default: 10)
	Burst             int     `yaml:"burst,omitempty"`               // Burst size (default: 20)
	MaxTrackedIPs     int     `yaml:"max_tracked_ips,omitempty"`     // Per-IP limiters kept before LRU eviction (default: 10000)
}

// GetCORSOrigins returns the configured CORS origins, or nil if not configured
func (c *APIConfig) GetCORSOrigins() []string {
	if c == nil || c.CORS == nil {
		return nil
	}
	return c.CORS.Origins
}

// GetRateLimitRPS returns the rate limit in requests per second (default: 10)
func (c *APIConfig) GetRateLimitRPS() float64 {
	if c == nil || c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 20)
func (c *APIConfig) GetRateLimitBurst() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

// GetMaxTrackedIPs returns the number of per-IP limiters to keep (default: 10000)
func (c *APIConfig) GetMaxTrackedIPs() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.MaxTrackedIPs <= 0 {
		return 10000
	}
	return c.RateLimit.MaxTrackedIPs
}

// IsAuthEnabled returns true if API authentication is configured
func (c *APIConfig) IsAuthEnabled() bool {
	if c == nil || c.Auth == nil {
		return false
	}
	return c.Auth.GetAPIKey() != ""
}

// GetAPIKey returns the configured API key with environment variable expansion
func (c *AuthConfig) GetAPIKey() string {
	if c == nil || c.APIKey == "" {
		return ""
	}
	return os.ExpandEnv(c.APIKey)
}

// GetSessionTTL returns the browser session lifetime (default: 12h)
func (c *AuthConfig) GetSessionTTL() time.Duration {
	if c == nil || c.SessionTTL <= 0 {
		return 12 * time.Hour
	}
	return c.SessionTTL
}

// GetHeaderName returns the header name for authentication (default: "X-API-Key")
func (c *AuthConfig) GetHeaderName() string {
	if c == nil || c.HeaderName == "" {
		return "X-API-Key"
	}
	return c.HeaderName
}

// GetKey returns the snapshot key (default: persist:editor)
func (s StorageConfig) GetKey() string {
	if s.Key == "" {
		return DefaultKey
	}
	return s.Key
}

// GetPath returns the storage path, defaulting by backend
func (s StorageConfig) GetPath() string {
	if s.Path != "" {
		return s.Path
	}
	if s.Backend == BackendSQLite {
		return "pagebuilder.db"
	}
	return "pagebuilder.json"
}

// GetDSN returns the postgres DSN with environment variable expansion
func (s StorageConfig) GetDSN() string {
	return os.ExpandEnv(s.DSN)
}

// GetRedisURL returns the redis URL with environment variable expansion
func (s StorageConfig) GetRedisURL() string {
	return os.ExpandEnv(s.RedisURL)
}

// GetTTL returns the render cache TTL (default: 10m)
func (r RenderCache) GetTTL() time.Duration {
	if r.TTL == "" {
		return 10 * time.Minute
	}
	d, err := time.ParseDuration(r.TTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// GetMaxEntries returns the render cache size bound (default: 512)
func (r RenderCache) GetMaxEntries() int {
	if r.MaxEntries <= 0 {
		return 512
	}
	return r.MaxEntries
}

// DataImagesAllowed reports whether data:image URLs are rendered (default: true)
func (e EditorConfig) DataImagesAllowed() bool {
	return e.AllowDataImages == nil || *e.AllowDataImages
}

// Validate checks that enumerated settings hold known values.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	case BackendPostgres:
		if c.Storage.GetDSN() == "" {
			return fmt.Errorf("storage: postgres backend requires dsn")
		}
	case BackendRedis:
		if c.Storage.GetRedisURL() == "" {
			return fmt.Errorf("storage: redis backend requires redis_url")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}

	switch c.Editor.AddColumnTarget {
	case "", TargetSelected, TargetExplicit:
	default:
		return fmt.Errorf("editor: unknown add_column_target %q", c.Editor.AddColumnTarget)
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", c.Server.Port)
	}
	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title: "Page Builder",
		Server: ServerConfig{
			Port:  8080,
			Host:  "localhost",
			Debug: false,
		},
		Editor: EditorConfig{
			AddColumnTarget: TargetSelected,
		},
		Storage: StorageConfig{
			Backend: BackendFile,
			Key:     DefaultKey,
		},
		Features: FeaturesConfig{
			Watch: true,
			Sync:  true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	// If no config path provided, use default
	if configPath == "" {
		return DefaultConfig(), nil
	}

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return config, nil
}

// LoadFromDir looks for pagebuilder.yaml, then pagebuilder.yml, in the given directory.
// If neither is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	yamlPath := filepath.Join(dir, "pagebuilder.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return Load(yamlPath)
	}
	return Load(filepath.Join(dir, "pagebuilder.yml"))
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
