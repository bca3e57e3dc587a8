package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keyboard bindings.
type KeyMap struct {
	Toggle    key.Binding
	Autostart key.Binding
	Reveal    key.Binding
	Quit      key.Binding
}

// DefaultKeyMap returns the default key bindings. Plain letters are left to
// the token input, so every action uses enter or a control chord.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Toggle: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "go live / stop"),
		),
		Autostart: key.NewBinding(
			key.WithKeys("ctrl+a"),
			key.WithHelp("ctrl+a", "start at login"),
		),
		Reveal: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "show token"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Autostart, k.Reveal, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
