package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/jukeboxrpc/internal/migrate"
)

func init() {
	migrate.Config.Register(migrate.Migration{
		Version:     1,
		Description: "move flat keys into sections",
		Upgrade:     nestFlatKeys,
	})
}

// flatToSection maps each version 0 key to its dotted location.
var flatToSection = map[string]string{
	"title":                    "display.title",
	"header":                   "display.header",
	"toggle_button_image":      "display.toggle_button_image",
	"secret_input_placeholder": "display.secret_input_placeholder",
	"large_image_key":          "display.assets.large_image_key",
	"large_image_text":         "display.assets.large_image_text",
	"youtube_label":            "display.button_label",
	"error_text":               "messages.error_text",
	"rpc_error":                "messages.rpc_error",
	"socket_failure":           "messages.socket_failure",
	"socket_closed":            "messages.socket_closed",
	"client_id":                "discord.client_id",
	"websocket_url":            "stream.websocket_url",
}

// nestFlatKeys moves top-level legacy keys into their sections. A value
// already present in the section wins over the flat one.
func nestFlatKeys(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	for flat, dotted := range flatToSection {
		v, ok := doc[flat]
		if !ok {
			continue
		}
		delete(doc, flat)

		table := doc
		parts := strings.Split(dotted, ".")
		for _, name := range parts[:len(parts)-1] {
			next, ok := table[name].(map[string]any)
			if !ok {
				next = map[string]any{}
				table[name] = next
			}
			table = next
		}
		key := parts[len(parts)-1]
		if _, exists := table[key]; !exists {
			table[key] = v
		}
	}
	doc["version"] = 1

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}
