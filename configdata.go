// Package jukeboxrpc provides embedded assets for the Jukebox RPC client.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML]. The client writes it to the data directory on first
// run so users start from a fully documented file.
package jukeboxrpc

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time. It is regenerated by cmd/genconfig from [config.ConfigDocs].
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
