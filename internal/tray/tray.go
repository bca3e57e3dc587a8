// Package tray hosts the bridge in the system tray: a status line, a go-live
// toggle, a start-at-login switch and quit. The token comes from the token
// store since the tray has no input field.
package tray

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/getlantern/systray"
	"tools.zach/dev/jukeboxrpc/internal/bridge"
	"tools.zach/dev/jukeboxrpc/internal/token"
)

// Controller is the subset of [bridge.Controller] the tray drives.
type Controller interface {
	Enable(ctx context.Context, tok string) error
	Disable()
	SetAutostart(on bool) error
	Status() bridge.Status
}

// Options configures the tray.
type Options struct {
	// Title prefixes the tooltip.
	Title string
	// IconPath overrides the embedded icon when it names a readable file.
	IconPath string
	Version  string
	// Token returns the saved session token, or "".
	Token func() string
	// Missing returns required config keys that are still empty.
	Missing func() []string
	// OnEnabled runs after a successful go-live with the accepted token.
	OnEnabled func(tok string)
	// OnQuit runs when Quit is picked from the menu.
	OnQuit func()
}

// Tray owns the menu items. All systray calls happen after onReady.
type Tray struct {
	ctl  Controller
	opts Options

	mu     sync.Mutex
	ready  bool
	status bridge.Status
	notice string

	statusItem    *systray.MenuItem
	toggleItem    *systray.MenuItem
	autostartItem *systray.MenuItem
	quitItem      *systray.MenuItem
	done          chan struct{}
}

// New creates a tray bound to ctl.
func New(ctl Controller, opts Options) *Tray {
	if opts.Title == "" {
		opts.Title = "Jukebox RPC"
	}
	return &Tray{
		ctl:    ctl,
		opts:   opts,
		status: ctl.Status(),
		done:   make(chan struct{}),
	}
}

// Run starts the system tray and blocks until it exits. It must be called
// from the main goroutine. onStart runs once the menu exists; onExit runs as
// the tray shuts down.
func (t *Tray) Run(onStart, onExit func()) {
	systray.Run(func() {
		t.build()
		if onStart != nil {
			onStart()
		}
		go t.handleClicks()
	}, func() {
		close(t.done)
		if onExit != nil {
			onExit()
		}
	})
}

// Quit asks the tray to exit. Safe from any goroutine.
func (t *Tray) Quit() {
	systray.Quit()
}

// ///////////////////////////////////////////////
// Menu
// ///////////////////////////////////////////////

func (t *Tray) build() {
	systray.SetIcon(loadIcon(t.opts.IconPath))
	systray.SetTitle("")

	header := systray.AddMenuItem(t.opts.Title, "")
	header.Disable()

	t.statusItem = systray.AddMenuItem("", "")
	t.statusItem.Disable()

	systray.AddSeparator()

	t.toggleItem = systray.AddMenuItem("", "Start or stop Rich Presence")
	t.autostartItem = systray.AddMenuItemCheckbox("Start at login", "Launch the tray when you log in", false)

	systray.AddSeparator()

	if t.opts.Version != "" {
		v := systray.AddMenuItem("Version "+t.opts.Version, "")
		v.Disable()
	}
	t.quitItem = systray.AddMenuItem("Quit", "Stop Rich Presence and exit")

	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()
	t.render()
}

// Update refreshes the menu from a controller snapshot. Call it from the
// controller's observer.
func (t *Tray) Update(st bridge.Status) {
	t.mu.Lock()
	t.status = st
	if st.Intent == bridge.IntentEnabled {
		t.notice = ""
	}
	t.mu.Unlock()
	t.render()
}

// SetTitle replaces the tooltip prefix after a config reload.
func (t *Tray) SetTitle(title string) {
	t.mu.Lock()
	t.opts.Title = title
	t.mu.Unlock()
	t.render()
}

func (t *Tray) render() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return
	}

	line := statusLine(t.status)
	if t.notice != "" {
		line = t.notice
	}
	t.statusItem.SetTitle(line)
	t.toggleItem.SetTitle(toggleTitle(t.status))
	if t.status.Autostart {
		t.autostartItem.Check()
	} else {
		t.autostartItem.Uncheck()
	}
	systray.SetTooltip(tooltip(t.opts.Title, t.status))
}

func (t *Tray) setNotice(text string) {
	t.mu.Lock()
	t.notice = text
	t.mu.Unlock()
	t.render()
}

func (t *Tray) handleClicks() {
	for {
		select {
		case <-t.done:
			return
		case <-t.toggleItem.ClickedCh:
			t.toggle()
		case <-t.autostartItem.ClickedCh:
			on := !t.autostartItem.Checked()
			if err := t.ctl.SetAutostart(on); err != nil {
				slog.Warn("tray autostart toggle failed", "error", err)
			}
		case <-t.quitItem.ClickedCh:
			if t.opts.OnQuit != nil {
				t.opts.OnQuit()
			}
			systray.Quit()
		}
	}
}

// toggle mirrors the TUI toggle. The token must already be saved.
func (t *Tray) toggle() {
	if t.ctl.Status().Intent == bridge.IntentEnabled {
		t.ctl.Disable()
		return
	}
	if notice := t.precheck(); notice != "" {
		t.setNotice(notice)
		return
	}

	tok := t.opts.Token()
	t.setNotice("")
	go func() {
		if err := t.ctl.Enable(context.Background(), tok); err != nil {
			slog.Warn("tray enable failed", "error", err)
			return
		}
		if t.opts.OnEnabled != nil {
			t.opts.OnEnabled(tok)
		}
	}()
}

// precheck returns the reason going live is refused, or "".
func (t *Tray) precheck() string {
	if t.opts.Missing != nil {
		if missing := t.opts.Missing(); len(missing) > 0 {
			return fmt.Sprintf("Set %s in config.toml first", strings.Join(missing, " and "))
		}
	}
	if t.opts.Token == nil || !token.Valid(t.opts.Token()) {
		return "No saved token: enter one in the terminal UI"
	}
	return ""
}

// ///////////////////////////////////////////////
// Text
// ///////////////////////////////////////////////

func toggleTitle(st bridge.Status) string {
	if st.Intent == bridge.IntentEnabled {
		return "Stop Rich Presence"
	}
	return "Go live"
}

func statusLine(st bridge.Status) string {
	switch {
	case st.LastError != "":
		return st.LastError
	case st.State == bridge.StateActive && st.NowPlaying != "":
		return "Playing: " + st.NowPlaying
	case st.State == bridge.StateActive:
		return "Live"
	case st.State == bridge.StateConnecting:
		return "Connecting..."
	case st.State == bridge.StateReconnecting:
		return "Reconnecting..."
	default:
		return "Off"
	}
}

func tooltip(title string, st bridge.Status) string {
	return title + ": " + statusLine(st)
}

// loadIcon returns the override icon at path, or the embedded icon when the
// path is empty or unreadable.
func loadIcon(path string) []byte {
	if path == "" {
		return defaultIcon
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		slog.Warn("tray icon override unreadable, using default", "path", path, "error", err)
		return defaultIcon
	}
	return data
}
