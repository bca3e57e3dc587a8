package logger

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"

	"tools.zach/dev/jukeboxrpc/internal/token"
)

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// timeFormat is the UTC timestamp that starts every line.
const timeFormat = "2006-01-02T15:04:05.000Z"

// lineEnding is CRLF on Windows so the file opens cleanly in Notepad.
var lineEnding = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}()

// secretKey is the attribute key whose value is always redacted.
const secretKey = "token"

// Handler writes one line per record:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, group.key=value
//
// Attributes from [Handler.WithAttrs] are rendered once, under the groups
// open at that time. Group-valued attributes are flattened with dotted keys.
type Handler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Leveler
	// fields are pre-rendered "key=value" pairs from WithAttrs.
	fields []string
	// group is the dotted prefix for attributes added from now on.
	group string
}

// NewHandler returns a Handler writing to w. level may be a *slog.LevelVar
// to change the threshold at runtime.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled reports whether level meets the threshold.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats r and writes it under the shared lock.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	fields := slices.Clip(h.fields)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendField(fields, h.group, a)
		return true
	})

	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.UTC().Format(timeFormat))
		b.WriteByte(' ')
	}
	b.WriteByte('[')
	b.WriteString(levelName(r.Level))
	b.WriteString("] ")
	b.WriteString(r.Message)
	if len(fields) > 0 {
		b.WriteString(" | ")
		b.WriteString(strings.Join(fields, ", "))
	}
	b.WriteString(lineEnding)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs returns a Handler that adds attrs to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.fields = slices.Clip(h.fields)
	for _, a := range attrs {
		h2.fields = appendField(h2.fields, h.group, a)
	}
	return &h2
}

// WithGroup returns a Handler that nests later attributes under name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.group = joinKey(h.group, name)
	return &h2
}

// appendField renders a into fields under prefix. Empty attributes and
// empty groups are dropped; a group with an empty key is inlined.
func appendField(fields []string, prefix string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return fields
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = joinKey(prefix, a.Key)
		}
		for _, ga := range a.Value.Group() {
			fields = appendField(fields, inner, ga)
		}
		return fields
	}

	v := a.Value.String()
	if a.Key == secretKey {
		v = token.Redact(v)
	}
	return append(fields, joinKey(prefix, a.Key)+"="+v)
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
