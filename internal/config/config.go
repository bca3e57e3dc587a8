// Package config provides configuration loading and defaults for the Jukebox
// RPC client.
//
// Configuration is loaded from a TOML file in the user's data directory. A
// config.yml written by the earlier YAML-based client is imported on first run.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/jukeboxrpc/internal/atomicfile"
	"tools.zach/dev/jukeboxrpc/internal/migrate"
	"tools.zach/dev/jukeboxrpc/internal/paths"
)

// ErrInvalid is returned by Validate and wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Discord holds Discord connection settings.
	Discord DiscordConfig `toml:"discord"`
	// Stream holds the live-update server settings.
	Stream StreamConfig `toml:"stream"`
	// Display holds window and presence display settings.
	Display DisplayConfig `toml:"display"`
	// Messages holds user-visible error texts.
	Messages MessagesConfig `toml:"messages"`
	// Behavior holds reconnect and persistence settings.
	Behavior BehaviorConfig `toml:"behavior"`
	// Privacy holds tracks that are never shown.
	Privacy PrivacyConfig `toml:"privacy"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// DiscordConfig holds Discord connection settings.
type DiscordConfig struct {
	// ClientID is the Discord application ID used for the IPC handshake.
	ClientID string `toml:"client_id"`
}

// StreamConfig holds live-update server settings.
type StreamConfig struct {
	// WebSocketURL is the base URL; the session token is appended as the last path segment.
	WebSocketURL string `toml:"websocket_url"`
	// WatchdogIntervalSeconds is how often a dropped stream is re-opened.
	WatchdogIntervalSeconds int `toml:"watchdog_interval_seconds"`
	// PingIntervalSeconds is the keepalive ping interval (0 disables pings).
	PingIntervalSeconds int `toml:"ping_interval_seconds"`
}

// DisplayConfig holds window and presence display settings.
type DisplayConfig struct {
	// Title is the window title and tray tooltip.
	Title string `toml:"title"`
	// Header is the heading shown above the token input.
	Header string `toml:"header"`
	// ToggleButtonImage is the toggle control image path or URL.
	ToggleButtonImage string `toml:"toggle_button_image"`
	// SecretInputPlaceholder is the hint shown in the empty token input.
	SecretInputPlaceholder string `toml:"secret_input_placeholder"`
	// IdleText is the state line shown while nothing is playing.
	IdleText string `toml:"idle_text"`
	// PlayingDetails is the top line while playing (supports {title}, {channel}, {url}).
	PlayingDetails string `toml:"playing_details"`
	// PlayingState is the bottom line while playing (same variables).
	PlayingState string `toml:"playing_state"`
	// ButtonLabel is the label of the link button pointing at the track URL.
	ButtonLabel string `toml:"button_label"`
	// Assets holds Discord Rich Presence asset settings.
	Assets AssetsConfig `toml:"assets"`
}

// AssetsConfig holds Discord Rich Presence asset settings.
type AssetsConfig struct {
	// LargeImageKey is the key of an asset uploaded to the Discord application.
	LargeImageKey string `toml:"large_image_key"`
	// LargeImageText is the tooltip for the large image.
	LargeImageText string `toml:"large_image_text"`
}

// MessagesConfig holds user-visible error texts.
type MessagesConfig struct {
	// ErrorText is shown when the entered token is malformed.
	ErrorText string `toml:"error_text"`
	// RPCError is shown when Discord cannot be reached.
	RPCError string `toml:"rpc_error"`
	// SocketFailure is shown when the live-update connection fails.
	SocketFailure string `toml:"socket_failure"`
	// SocketClosed is shown when the server closes the live-update connection.
	SocketClosed string `toml:"socket_closed"`
}

// BehaviorConfig holds reconnect and persistence settings.
type BehaviorConfig struct {
	// ReconnectIntervalSeconds is the Discord reconnect interval.
	ReconnectIntervalSeconds int `toml:"reconnect_interval_seconds"`
	// RememberToken persists the last accepted token in the data directory.
	RememberToken bool `toml:"remember_token"`
	// CheckUpdates looks for a newer release at startup.
	CheckUpdates bool `toml:"check_updates"`
}

// PrivacyConfig holds patterns for tracks that are shown as idle.
type PrivacyConfig struct {
	// IgnoreURLs is a list of glob patterns matched against the track URL.
	IgnoreURLs []string `toml:"ignore_urls,omitempty"`
	// IgnoreChannels is a list of glob patterns matched against the channel name.
	IgnoreChannels []string `toml:"ignore_channels,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with defaults. The client ID and
// server URL have no sensible default and are left empty.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Stream: StreamConfig{
			WatchdogIntervalSeconds: 5,
			PingIntervalSeconds:     30,
		},
		Display: DisplayConfig{
			Title:                  "Jukebox RPC",
			Header:                 "Jukebox Rich Presence",
			SecretInputPlaceholder: "Session token",
			IdleText:               "Idle",
			PlayingDetails:         "{title}",
			PlayingState:           "By {channel}",
			ButtonLabel:            "Listen along",
			Assets: AssetsConfig{
				LargeImageKey:  "jukebox",
				LargeImageText: "Jukebox",
			},
		},
		Messages: MessagesConfig{
			ErrorText:     "Token must be 16 letters or digits.",
			RPCError:      "Could not connect to Discord. Is it running?",
			SocketFailure: "Could not reach the live-update server.",
			SocketClosed:  "The live-update server closed the connection.",
		},
		Behavior: BehaviorConfig{
			ReconnectIntervalSeconds: 5,
			RememberToken:            true,
			CheckUpdates:             true,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ///////////////////////////////////////////////
// Example Configuration
// ///////////////////////////////////////////////

// ExampleConfig returns a Config suitable for generating config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes. A missing
// field means the flat pre-section layout, version 0.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 0
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses dataDir/config.toml. When it doesn't exist, a legacy
// config.yml is imported if present, otherwise DefaultConfig is returned.
func Load(dataDir string) (*Config, error) {
	dir := paths.DataDir{Root: dataDir}
	path := dir.Config()

	data, err := os.ReadFile(path)
	imported := false
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		legacy, lerr := os.ReadFile(dir.LegacyConfig())
		if lerr != nil {
			if os.IsNotExist(lerr) {
				return DefaultConfig(), nil
			}
			return nil, fmt.Errorf("read legacy config: %w", lerr)
		}
		data, err = ImportLegacy(legacy)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", paths.LegacyConfigFile, err)
		}
		slog.Info("imported legacy config", "from", dir.LegacyConfig())
		imported = true
	}

	version := PeekVersion(data)

	shouldSave := imported
	if migrate.Config.NeedsMigration(version) {
		if !imported {
			if backupErr := os.WriteFile(path+".bak", data, 0o644); backupErr != nil {
				slog.Warn("failed to write config backup", "error", backupErr)
			}
		}
		var migrateErr error
		data, _, migrateErr = migrate.Config.Run(data, version)
		if migrateErr != nil {
			return nil, fmt.Errorf("migrate config: %w", migrateErr)
		}
		shouldSave = true
	} else if version > migrate.Config.CurrentVersion {
		return nil, fmt.Errorf("config version %d is newer than supported version %d", version, migrate.Config.CurrentVersion)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if shouldSave {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}

	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// WriteDefault writes content to dataDir/config.toml unless a config (or a
// legacy config to import) already exists. It reports whether it wrote.
func WriteDefault(dataDir string, content []byte) (bool, error) {
	dir := paths.DataDir{Root: dataDir}
	for _, p := range []string{dir.Config(), dir.LegacyConfig()} {
		if _, err := os.Stat(p); err == nil {
			return false, nil
		} else if !os.IsNotExist(err) {
			return false, fmt.Errorf("stat %s: %w", filepath.Base(p), err)
		}
	}
	if err := atomicfile.Write(dir.Config(), content, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable
// ranges. Empty required keys are not an error here; see Missing.
func (c *Config) Validate() error {
	if id := c.Discord.ClientID; id != "" && !isNumeric(id) {
		return fmt.Errorf("%w: discord.client_id %q must be a numeric application ID", ErrInvalid, id)
	}

	if raw := c.Stream.WebSocketURL; raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: stream.websocket_url: %v", ErrInvalid, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("%w: stream.websocket_url %q must use ws or wss", ErrInvalid, raw)
		}
		if u.Host == "" {
			return fmt.Errorf("%w: stream.websocket_url %q has no host", ErrInvalid, raw)
		}
	}

	if c.Stream.WatchdogIntervalSeconds <= 0 {
		return fmt.Errorf("%w: watchdog_interval_seconds must be > 0, got %d", ErrInvalid, c.Stream.WatchdogIntervalSeconds)
	}

	if c.Stream.PingIntervalSeconds < 0 {
		return fmt.Errorf("%w: ping_interval_seconds must be >= 0, got %d", ErrInvalid, c.Stream.PingIntervalSeconds)
	}

	if c.Behavior.ReconnectIntervalSeconds <= 0 {
		return fmt.Errorf("%w: reconnect_interval_seconds must be > 0, got %d", ErrInvalid, c.Behavior.ReconnectIntervalSeconds)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("%w: log.level %q must be trace, debug, info, warn, or error", ErrInvalid, c.Log.Level)
	}

	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("%w: log.max_size_mb must be > 0, got %d", ErrInvalid, c.Log.MaxSizeMB)
	}

	for _, p := range slices.Concat(c.Privacy.IgnoreURLs, c.Privacy.IgnoreChannels) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("%w: invalid privacy pattern %q", ErrInvalid, p)
		}
	}

	return nil
}

// Missing returns the dotted keys of required settings that are still empty.
// The client cannot go live until both are filled in.
func (c *Config) Missing() []string {
	var keys []string
	if c.Discord.ClientID == "" {
		keys = append(keys, "discord.client_id")
	}
	if c.Stream.WebSocketURL == "" {
		keys = append(keys, "stream.websocket_url")
	}
	return keys
}

// ///////////////////////////////////////////////
// Durations
// ///////////////////////////////////////////////

// ReconnectInterval returns the Discord reconnect interval.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.Behavior.ReconnectIntervalSeconds) * time.Second
}

// WatchdogInterval returns the stream watchdog interval.
func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Stream.WatchdogIntervalSeconds) * time.Second
}

// PingInterval returns the stream keepalive interval, zero when disabled.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Stream.PingIntervalSeconds) * time.Second
}

// isNumeric reports whether s consists entirely of ASCII digits.
func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
