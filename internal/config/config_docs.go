package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "display.assets.large_image_key")
// to their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version, do not edit.",
	},

	// ── Discord ──────────────────────────────────────────────────
	"discord.client_id": {
		Comment: "Application ID of your Discord app (Developer Portal > General Information).\nRequired.",
		Alternatives: []string{
			`client_id = "1234567890123456789"`,
		},
	},

	// ── Stream ───────────────────────────────────────────────────
	"stream": {
		Comment: "Live-update server. The session token is appended as the last path segment.",
	},
	"stream.websocket_url": {
		Comment: "Required. Must start with ws:// or wss://.",
		Alternatives: []string{
			`websocket_url = "wss://jukebox.example.com/ws"`,
		},
	},
	"stream.watchdog_interval_seconds": {
		Comment: "How often a dropped connection is re-opened (seconds).",
	},
	"stream.ping_interval_seconds": {
		Comment: "Keepalive ping interval (seconds). 0 disables pings.",
	},

	// ── Display ──────────────────────────────────────────────────
	"display.title": {
		Comment: "Window title and tray tooltip.",
	},
	"display.header": {
		Comment: "Heading shown above the token input.",
	},
	"display.toggle_button_image": {
		Comment: "Image for the toggle control, shown as a tray icon override when set.",
	},
	"display.secret_input_placeholder": {
		Comment: "Hint shown in the empty token input.",
	},
	"display.idle_text": {
		Comment: "State line while nothing is playing.",
	},
	"display.playing_details": {
		Comment: "Presence lines while a track is playing.\nAvailable variables: {title}, {channel}, {url}\n\nplaying_details = top line, playing_state = bottom line",
	},
	"display.playing_state": {},
	"display.button_label": {
		Comment: "Label of the button linking to the current track. Empty hides the button.",
	},

	// ── Assets ───────────────────────────────────────────────────
	"display.assets.large_image_key": {
		Comment: "Discord image key (must match an asset uploaded to your Discord app).",
	},
	"display.assets.large_image_text": {},

	// ── Messages ─────────────────────────────────────────────────
	"messages": {
		Comment: "Texts shown when something goes wrong.",
	},
	"messages.error_text": {
		Comment: "The token is not 16 letters or digits.",
	},
	"messages.rpc_error": {
		Comment: "Discord is not running or refused the connection.",
	},
	"messages.socket_failure": {
		Comment: "The live-update server could not be reached.",
	},
	"messages.socket_closed": {
		Comment: "The live-update server closed the connection.",
	},

	// ── Behavior ─────────────────────────────────────────────────
	"behavior.reconnect_interval_seconds": {
		Comment: "Discord reconnect interval (seconds)",
	},
	"behavior.remember_token": {
		Comment: "Remember the last token that went live and reuse it on the next start.",
	},
	"behavior.check_updates": {
		Comment: "Check for a newer release at startup.",
	},

	// ── Privacy ──────────────────────────────────────────────────
	"privacy.ignore_urls": {
		Comment: "Tracks whose URL matches one of these glob patterns are shown as idle.",
		Alternatives: []string{
			`ignore_urls = ["https://www.youtube.com/watch?v=dQw4w9WgXcQ*"]`,
		},
	},
	"privacy.ignore_channels": {
		Comment: "Tracks whose channel name matches one of these glob patterns are shown as idle.",
		Alternatives: []string{
			`ignore_channels = ["*Private*"]`,
		},
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging configuration",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
}
