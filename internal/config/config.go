// Package config loads and saves the gobi TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultAttestation is the sentence a user types to declare a no-spend day.
const DefaultAttestation = "저는 오늘 소비하지 않았습니다"

// Config holds all gobi configuration.
type Config struct {
	API          APIConfig          `toml:"api"`
	Auth         AuthConfig         `toml:"auth"`
	Verification VerificationConfig `toml:"verification"`
	Events       EventsConfig       `toml:"events"`
	Daemon       DaemonConfig       `toml:"daemon"`
	Cache        CacheConfig        `toml:"cache"`
	Appearance   AppearanceConfig   `toml:"appearance"`
}

// APIConfig points at the challenge service.
type APIConfig struct {
	BaseURL    string `toml:"base_url"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// AuthConfig holds the bearer credential.
type AuthConfig struct {
	AccessToken string `toml:"access_token,omitempty"`
}

// VerificationConfig holds workflow settings.
type VerificationConfig struct {
	Attestation string `toml:"attestation"`
	Timezone    string `toml:"timezone"`
	// SessionTTLMin drops Ready sessions older than this many minutes.
	// Zero keeps them until overwritten by the next intake.
	SessionTTLMin int `toml:"session_ttl_min"`
}

// EventsConfig holds the optional Kafka publisher settings.
type EventsConfig struct {
	KafkaBrokers []string `toml:"kafka_brokers,omitempty"`
	Topic        string   `toml:"topic"`
}

// DaemonConfig holds the local HTTP API settings.
type DaemonConfig struct {
	Addr         string `toml:"addr"`
	EventsBuffer int    `toml:"events_buffer"`
}

// CacheConfig locates the local SQLite cache.
type CacheConfig struct {
	Path string `toml:"path,omitempty"`
}

// AppearanceConfig holds terminal UI settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:    "http://localhost:8001",
			TimeoutSec: 30,
		},
		Verification: VerificationConfig{
			Attestation: DefaultAttestation,
			Timezone:    "Asia/Seoul",
		},
		Events: EventsConfig{
			Topic: "expense.verified",
		},
		Daemon: DaemonConfig{
			Addr:         "127.0.0.1:8788",
			EventsBuffer: 200,
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

// Dir returns the XDG-compliant config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gobi")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gobi")
}

// Path returns the full path to the config file.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// CacheDir returns the XDG-compliant cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "gobi")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "gobi")
}

// CachePath returns the SQLite database path, honoring [cache] path.
func (c Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(CacheDir(), "gobi.db")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads the config at path, returning defaults if it doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is the user's own config file
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	return SaveTo(Path(), cfg)
}

// SaveTo writes the config to path, creating its directory.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(Path())
	return err == nil
}

// GetAccessToken returns the bearer token from env var or config, in that order.
func GetAccessToken(cfg Config) string {
	if tok := os.Getenv("GOBI_ACCESS_TOKEN"); tok != "" {
		return strings.TrimSpace(tok)
	}
	return strings.TrimSpace(cfg.Auth.AccessToken)
}

// GetBaseURL returns the API base URL from env var or config, in that order.
func GetBaseURL(cfg Config) string {
	if u := os.Getenv("GOBI_API_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return strings.TrimRight(cfg.API.BaseURL, "/")
}

// RequestTimeout returns the per-request timeout, defaulting to 30s.
func (c Config) RequestTimeout() time.Duration {
	if c.API.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// SessionTTL returns the abandoned-session eviction age; zero disables it.
func (c Config) SessionTTL() time.Duration {
	if c.Verification.SessionTTLMin <= 0 {
		return 0
	}
	return time.Duration(c.Verification.SessionTTLMin) * time.Minute
}

// Location returns the timezone that decides the submission day.
// Falls back to the local zone when the name cannot be loaded.
func (c Config) Location() *time.Location {
	if c.Verification.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Verification.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// AttestationSentence returns the configured no-spend sentence.
func (c Config) AttestationSentence() string {
	if c.Verification.Attestation == "" {
		return DefaultAttestation
	}
	return c.Verification.Attestation
}
