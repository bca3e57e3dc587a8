package bridge

import (
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"tools.zach/dev/jukeboxrpc/internal/discord"
	"tools.zach/dev/jukeboxrpc/internal/stream"
)

// maxTextLen is Discord's limit for details and state strings.
const maxTextLen = 128

// Payload is the presence descriptor built for every update.
type Payload struct {
	PrimaryText    string
	SecondaryText  string
	StartTimestamp time.Time
	LargeImageKey  string
	LargeImageText string
	Buttons        []discord.Button
}

// Activity converts p into the Discord wire type, omitting empty optional
// sections.
func (p Payload) Activity() *discord.Activity {
	a := &discord.Activity{
		Details: p.PrimaryText,
		State:   p.SecondaryText,
	}
	if !p.StartTimestamp.IsZero() {
		a.Timestamps = &discord.Timestamps{Start: p.StartTimestamp.Unix()}
	}
	if p.LargeImageKey != "" || p.LargeImageText != "" {
		a.Assets = &discord.Assets{
			LargeImage: p.LargeImageKey,
			LargeText:  p.LargeImageText,
		}
	}
	if len(p.Buttons) > 0 {
		a.Buttons = append([]discord.Button(nil), p.Buttons...)
	}
	return a
}

// ///////////////////////////////////////////////
// Builders
// ///////////////////////////////////////////////

// idlePayload builds the payload shown when nothing is playing.
func idlePayload(s Settings, start time.Time) Payload {
	return Payload{
		SecondaryText:  truncate(s.IdleText),
		StartTimestamp: start,
		LargeImageKey:  s.LargeImageKey,
		LargeImageText: s.LargeImageText,
	}
}

// playingPayload builds the payload for a track.
func playingPayload(s Settings, t stream.Track, start time.Time) Payload {
	p := Payload{
		PrimaryText:    truncate(format(s.DetailsFormat, t)),
		SecondaryText:  truncate(format(s.StateFormat, t)),
		StartTimestamp: start,
		LargeImageKey:  s.LargeImageKey,
		LargeImageText: s.LargeImageText,
	}
	if t.URL != "" && s.ButtonLabel != "" {
		p.Buttons = []discord.Button{{Label: s.ButtonLabel, URL: t.URL}}
	}
	return p
}

// format expands {title}, {channel} and {url} in tmpl.
func format(tmpl string, t stream.Track) string {
	return strings.NewReplacer(
		"{title}", t.Title,
		"{channel}", t.Channel,
		"{url}", t.URL,
	).Replace(tmpl)
}

// truncate shortens s to maxTextLen runes, ending in an ellipsis.
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxTextLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxTextLen-1]) + "…"
}

// ignored reports whether a track matches any privacy glob.
func ignored(s Settings, t stream.Track) bool {
	return matchAny(s.IgnoreURLs, t.URL) || matchAny(s.IgnoreChannels, t.Channel)
}

func matchAny(patterns []string, value string) bool {
	if value == "" {
		return false
	}
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, value)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
