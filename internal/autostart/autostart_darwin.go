//go:build darwin

package autostart

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"tools.zach/dev/jukeboxrpc/internal/atomicfile"
	"tools.zach/dev/jukeboxrpc/internal/paths"
)

// entryPath returns ~/Library/LaunchAgents/<app id>.plist.
func (m *Manager) entryPath() (string, error) {
	dir := m.dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate home: %w", err)
		}
		dir = filepath.Join(home, "Library", "LaunchAgents")
	}
	return filepath.Join(dir, paths.AppID+".plist"), nil
}

func xmlText(s string) string {
	var b bytes.Buffer
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

// launchAgent renders a property list that runs the client once at login.
func (m *Manager) launchAgent() []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">` + "\n")
	b.WriteString("<plist version=\"1.0\">\n<dict>\n")
	fmt.Fprintf(&b, "\t<key>Label</key>\n\t<string>%s</string>\n", xmlText(paths.AppID))
	b.WriteString("\t<key>ProgramArguments</key>\n\t<array>\n")
	for _, a := range append([]string{m.exe}, m.args...) {
		fmt.Fprintf(&b, "\t\t<string>%s</string>\n", xmlText(a))
	}
	b.WriteString("\t</array>\n")
	b.WriteString("\t<key>RunAtLoad</key>\n\t<true/>\n")
	b.WriteString("\t<key>ProcessType</key>\n\t<string>Interactive</string>\n")
	b.WriteString("</dict>\n</plist>\n")
	return b.Bytes()
}

func (m *Manager) enabled() (bool, error) {
	path, err := m.entryPath()
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return true, nil
}

func (m *Manager) enable() error {
	path, err := m.entryPath()
	if err != nil {
		return err
	}
	return atomicfile.Write(path, m.launchAgent(), 0o644)
}

func (m *Manager) disable() error {
	path, err := m.entryPath()
	if err != nil {
		return err
	}
	return atomicfile.Remove(path)
}
