package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode marks an inbound message that could not be decoded.
var ErrDecode = errors.New("decode stream message")

// Kind tags the variant held by an [Event].
type Kind int

const (
	// KindIdle means nothing is playing.
	KindIdle Kind = iota
	// KindPlaying carries the current [Track].
	KindPlaying
	// KindUnknown is a well-formed message with an unrecognised state.
	KindUnknown
	// KindMalformed is a message that was not valid JSON for the wire shape.
	KindMalformed
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindPlaying:
		return "playing"
	case KindUnknown:
		return "unknown"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Track describes the media currently playing.
type Track struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Channel string `json:"channel"`
}

// Event is one decoded message from the live-update channel. Only the
// fields belonging to Kind are set: Track for KindPlaying, RawState for
// KindUnknown, Err for KindMalformed.
type Event struct {
	Kind     Kind
	Track    Track
	RawState string
	Err      error
	// Synthetic is true for the Idle event emitted when the channel opens.
	Synthetic bool
}

// wireMessage is the JSON shape sent by the live-update server.
type wireMessage struct {
	State string `json:"state"`
	Data  *Track `json:"data"`
}

// Decode maps a raw message to an [Event]. It never fails: undecodable input
// yields a KindMalformed event whose Err wraps [ErrDecode].
func Decode(data []byte) Event {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{Kind: KindMalformed, Err: fmt.Errorf("%w: %w", ErrDecode, err)}
	}

	switch {
	case msg.State == "idle":
		return Event{Kind: KindIdle}
	case msg.State == "playing" && msg.Data != nil:
		return Event{Kind: KindPlaying, Track: *msg.Data}
	default:
		return Event{Kind: KindUnknown, RawState: msg.State}
	}
}
