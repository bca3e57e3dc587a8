// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile          = "client.pid"
	ConfigFile       = "config.toml"
	LegacyConfigFile = "config.yml"
	LogFile          = "client.log"
	TokenFile        = "session.token"
)

// Application identity.
const (
	AppName    = "Jukebox RPC Client"
	AppID      = "dev.zach.jukeboxrpc"
	BinaryName = "jukeboxrpc"
	DataDirRel = ".jukeboxrpc" // relative to $HOME
)

// Remote-fetched file paths (relative to repo root).
const (
	ReleaseManifest = ".release-manifest.json"
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// LegacyConfig returns the full path to the pre-TOML YAML config.
func (d DataDir) LegacyConfig() string { return filepath.Join(d.Root, LegacyConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Token returns the full path to the persisted session token.
func (d DataDir) Token() string { return filepath.Join(d.Root, TokenFile) }
