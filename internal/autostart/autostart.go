// Package autostart registers the client to launch at login using the
// platform's native mechanism: an XDG autostart entry on Linux and the BSDs,
// a LaunchAgent on macOS and the per-user Run key on Windows.
package autostart

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnsupported is returned on platforms without a launch-at-login
// mechanism.
var ErrUnsupported = errors.New("autostart is not supported on this platform")

// Manager toggles launch-at-login for one command line. It satisfies the
// bridge's Autostarter interface.
type Manager struct {
	// exe is the absolute path of the binary to launch.
	exe string
	// args are passed to exe at login.
	args []string
	// dir overrides the platform's registration directory (file-based
	// platforms only). Empty means the user's default.
	dir string
}

// New returns a Manager that launches exe with args at login.
func New(exe string, args ...string) *Manager {
	return &Manager{exe: exe, args: args}
}

// ForCurrentExecutable returns a Manager for the running binary.
func ForCurrentExecutable(args ...string) (*Manager, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return New(exe, args...), nil
}

// Enabled reports whether the client is registered to launch at login.
func (m *Manager) Enabled() (bool, error) {
	return m.enabled()
}

// SetEnabled registers or unregisters the client. Disabling when not
// registered is not an error.
func (m *Manager) SetEnabled(on bool) error {
	if on {
		return m.enable()
	}
	return m.disable()
}

// commandLine renders exe and args as one shell-style line, quoting any
// part that contains whitespace or quotes.
func (m *Manager) commandLine() string {
	parts := make([]string, 0, len(m.args)+1)
	for _, p := range append([]string{m.exe}, m.args...) {
		parts = append(parts, quote(p))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
