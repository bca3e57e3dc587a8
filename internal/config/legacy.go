package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"slices"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// legacyKeys are the flat config.yml keys the import understands.
var legacyKeys = []string{
	"title",
	"header",
	"toggle_button_image",
	"secret_input_placeholder",
	"error_text",
	"rpc_error",
	"socket_failure",
	"socket_closed",
	"client_id",
	"websocket_url",
	"large_image_key",
	"large_image_text",
	"youtube_label",
}

// ImportLegacy converts a config.yml from the earlier YAML-based client into a flat
// version 0 TOML document that the config migrations then lift into
// sections. Scalar values are kept as strings; client IDs written as bare
// YAML integers survive the round trip. Unknown keys are dropped.
func ImportLegacy(data []byte) ([]byte, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	flat := map[string]any{"version": 0}
	for k, v := range raw {
		if !slices.Contains(legacyKeys, k) {
			slog.Debug("ignoring unknown legacy config key", "key", k)
			continue
		}
		switch v := v.(type) {
		case nil:
			continue
		case map[string]any, []any:
			return nil, fmt.Errorf("legacy key %q must be a scalar", k)
		case string:
			flat[k] = v
		default:
			flat[k] = fmt.Sprint(v)
		}
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(flat); err != nil {
		return nil, fmt.Errorf("encode toml: %w", err)
	}
	return buf.Bytes(), nil
}
