// Package tui is the terminal front end: a token input, a go-live toggle, a
// start-at-login switch and a status line mirroring the bridge controller.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"tools.zach/dev/jukeboxrpc/internal/bridge"
	"tools.zach/dev/jukeboxrpc/internal/token"
)

// Controller is the subset of [bridge.Controller] the UI drives.
type Controller interface {
	Enable(ctx context.Context, tok string) error
	Disable()
	SetAutostart(on bool) error
	Status() bridge.Status
}

// Options holds the display texts and startup state.
type Options struct {
	Header      string
	Placeholder string
	// Token pre-fills the input, e.g. from the token store.
	Token string
	// Missing lists required config keys that are empty; going live is
	// refused until they are set.
	Missing []string
	// ConfigPath is shown in the missing-settings notice.
	ConfigPath string
	// InvalidText is shown while the input does not hold a well-formed
	// token.
	InvalidText string
	// OnEnabled runs after a successful go-live with the accepted token.
	OnEnabled func(tok string)
}

// ///////////////////////////////////////////////
// Messages
// ///////////////////////////////////////////////

// StatusMsg carries a controller snapshot. Send it from the controller's
// observer via tea.Program.Send.
type StatusMsg bridge.Status

// UpdateAvailableMsg announces a newer release.
type UpdateAvailableMsg struct {
	Latest string
	URL    string
}

// ConfigMsg replaces the display texts and missing keys after a reload.
type ConfigMsg struct {
	Header      string
	Placeholder string
	InvalidText string
	Missing     []string
}

type enableDoneMsg struct {
	token string
	err   error
}

type autostartDoneMsg struct {
	err error
}

// ///////////////////////////////////////////////
// Model
// ///////////////////////////////////////////////

// Model is the root Bubble Tea model.
type Model struct {
	ctl  Controller
	opts Options

	keys  KeyMap
	help  help.Model
	input textinput.Model

	status bridge.Status
	// valid tracks token.Valid for the current input, refreshed on every
	// edit.
	valid  bool
	notice string
	update *UpdateAvailableMsg
	width  int
}

// New creates the root model.
func New(ctl Controller, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = opts.Placeholder
	ti.CharLimit = token.Length
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.Prompt = ""
	ti.Width = token.Length + 1
	ti.SetValue(opts.Token)
	ti.Focus()

	m := Model{
		ctl:    ctl,
		opts:   opts,
		keys:   DefaultKeyMap(),
		help:   help.New(),
		input:  ti,
		status: ctl.Status(),
	}
	m.validate()
	return m
}

// defaultInvalidText is used when no message is configured.
const defaultInvalidText = "Token must be 16 letters or digits."

func (m *Model) validate() {
	m.valid = token.Valid(m.tokenValue())
}

func (m Model) tokenValue() string {
	return strings.TrimSpace(m.input.Value())
}

func (m Model) invalidText() string {
	if m.opts.InvalidText != "" {
		return m.opts.InvalidText
	}
	return defaultInvalidText
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case StatusMsg:
		m.status = bridge.Status(msg)
		if m.status.Intent == bridge.IntentEnabled {
			m.input.Blur()
		} else {
			m.input.Focus()
		}
		return m, nil

	case ConfigMsg:
		m.opts.Header = msg.Header
		m.opts.Placeholder = msg.Placeholder
		m.opts.Missing = msg.Missing
		m.opts.InvalidText = msg.InvalidText
		m.input.Placeholder = msg.Placeholder
		if len(msg.Missing) == 0 {
			m.notice = ""
		}
		return m, nil

	case UpdateAvailableMsg:
		m.update = &msg
		return m, nil

	case enableDoneMsg:
		if msg.err == nil && m.opts.OnEnabled != nil {
			m.opts.OnEnabled(msg.token)
		}
		return m, nil

	case autostartDoneMsg:
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.validate()
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Toggle):
		return m.toggle()

	case key.Matches(msg, m.keys.Autostart):
		ctl, on := m.ctl, !m.status.Autostart
		return m, func() tea.Msg {
			return autostartDoneMsg{err: ctl.SetAutostart(on)}
		}

	case key.Matches(msg, m.keys.Reveal):
		if m.input.EchoMode == textinput.EchoPassword {
			m.input.EchoMode = textinput.EchoNormal
		} else {
			m.input.EchoMode = textinput.EchoPassword
		}
		return m, nil
	}

	if !m.input.Focused() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.validate()
	m.notice = ""
	return m, cmd
}

// toggle goes live when the user intends the session off, and stops it
// otherwise. Stopping also cancels a connect in flight. Going live needs a
// well-formed token.
func (m Model) toggle() (tea.Model, tea.Cmd) {
	if m.status.Intent == bridge.IntentEnabled {
		m.ctl.Disable()
		return m, nil
	}
	if len(m.opts.Missing) > 0 {
		m.notice = fmt.Sprintf("Set %s in %s first.", strings.Join(m.opts.Missing, " and "), m.opts.ConfigPath)
		return m, nil
	}

	if !m.valid {
		// A non-empty input already shows the hint.
		if m.tokenValue() == "" {
			m.notice = m.invalidText()
		}
		return m, nil
	}

	tok := m.tokenValue()
	ctl := m.ctl
	m.notice = ""
	return m, func() tea.Msg {
		return enableDoneMsg{token: tok, err: ctl.Enable(context.Background(), tok)}
	}
}

// ///////////////////////////////////////////////
// View
// ///////////////////////////////////////////////

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(m.opts.Header))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center,
		inputBoxStyle.Render(m.input.View()),
		"  ",
		stateBadge(m.status.State),
	))
	b.WriteString("\n")

	if m.status.NowPlaying != "" {
		b.WriteString(playingStyle.Render("♪ " + m.status.NowPlaying))
		b.WriteString("\n")
	}
	if !m.valid && m.tokenValue() != "" {
		b.WriteString(errorStyle.Render(m.invalidText()))
		b.WriteString("\n")
	}
	if m.status.LastError != "" && m.status.LastError != m.invalidText() {
		b.WriteString(errorStyle.Render(m.status.LastError))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}

	box := "[ ]"
	if m.status.Autostart {
		box = "[x]"
	}
	b.WriteString(mutedStyle.Render(box + " Start at login"))
	b.WriteString("\n")

	if m.update != nil {
		text := "Update available: " + m.update.Latest
		if m.update.URL != "" {
			text += " (" + m.update.URL + ")"
		}
		b.WriteString(noticeStyle.Render(text))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return appStyle.Render(b.String())
}

// stateBadge renders the session state as a colored label.
func stateBadge(s bridge.State) string {
	switch s {
	case bridge.StateActive:
		return badgeStyle.Background(colorLive).Render("LIVE")
	case bridge.StateConnecting:
		return badgeStyle.Background(colorPending).Render("CONNECTING")
	case bridge.StateReconnecting:
		return badgeStyle.Background(colorPending).Render("RECONNECTING")
	default:
		return badgeStyle.Background(colorOff).Render("OFF")
	}
}
