// Package bridge mirrors a live "now playing" feed onto Discord Rich
// Presence.
//
// The [Controller] owns every piece of session state: the user's intent,
// the accepted token, the presence connection and the event-stream
// subscription. Host surfaces drive it with [Controller.Enable] and
// [Controller.Disable] and observe it through [Status] snapshots.
//
// State machine:
//
//	Disabled -> Connecting -> Active -> {Disabled, Reconnecting}
//	Reconnecting -> {Active, Disabled}
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tools.zach/dev/jukeboxrpc/internal/discord"
	"tools.zach/dev/jukeboxrpc/internal/stream"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

var (
	// ErrConnect wraps a failed presence connection attempt.
	ErrConnect = errors.New("presence connect failed")
	// ErrCancelled is returned by Enable when Disable wins the race.
	ErrCancelled = errors.New("enable cancelled")
	// ErrAutostartUnsupported is returned when no autostart backend is set.
	ErrAutostartUnsupported = errors.New("autostart not supported")
)

// ///////////////////////////////////////////////
// Collaborators
// ///////////////////////////////////////////////

// Presence is the Discord side of the bridge. [discord.Client] satisfies it.
type Presence interface {
	Connect(ctx context.Context, clientID string) error
	SetActivity(ctx context.Context, activity *discord.Activity) error
	Close() error
	Closed() <-chan error
}

// Stream is the live-update side of the bridge. [stream.Client] satisfies
// it. Implementations must not invoke handler callbacks synchronously from
// Subscribe or Stop.
type Stream interface {
	Subscribe(endpointBase, token string, h stream.Handler) error
	Stop()
}

// Autostarter toggles launch-at-login registration.
type Autostarter interface {
	Enabled() (bool, error)
	SetEnabled(on bool) error
}

// ///////////////////////////////////////////////
// State
// ///////////////////////////////////////////////

// State is the controller's session state.
type State int

const (
	StateDisabled State = iota
	StateConnecting
	StateActive
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Intent is the user's latest toggle action. Only Enable and Disable
// change it.
type Intent int

const (
	IntentDisabled Intent = iota
	IntentEnabled
)

func (i Intent) String() string {
	if i == IntentEnabled {
		return "enabled"
	}
	return "disabled"
}

// Status is a point-in-time snapshot for host surfaces.
type Status struct {
	State     State
	Intent    Intent
	LastError string
	Autostart bool
	// NowPlaying is the title of the mirrored track, empty when idle.
	NowPlaying string
}

// ///////////////////////////////////////////////
// Settings
// ///////////////////////////////////////////////

// Messages holds the user-visible error texts.
type Messages struct {
	InvalidToken  string
	RPCError      string
	SocketFailure string
	SocketClosed  string
}

// Settings is the read-only configuration consumed by the controller.
type Settings struct {
	ClientID     string
	EndpointBase string

	IdleText string
	// DetailsFormat and StateFormat accept {title}, {channel} and {url}.
	DetailsFormat  string
	StateFormat    string
	LargeImageKey  string
	LargeImageText string
	ButtonLabel    string

	Messages Messages

	ReconnectInterval time.Duration

	// IgnoreURLs and IgnoreChannels are doublestar globs; a matching
	// Playing event is shown as Idle.
	IgnoreURLs     []string
	IgnoreChannels []string
}

// DefaultSettings returns the built-in display strings and timings.
func DefaultSettings() Settings {
	return Settings{
		IdleText:      "Idle",
		DetailsFormat: "{title}",
		StateFormat:   "By {channel}",
		ButtonLabel:   "Listen along",
		Messages: Messages{
			InvalidToken:  "Token must be 16 letters or digits.",
			RPCError:      "Could not connect to Discord. Is it running?",
			SocketFailure: "Could not reach the live-update server.",
			SocketClosed:  "The live-update server closed the connection.",
		},
		ReconnectInterval: 5 * time.Second,
	}
}
