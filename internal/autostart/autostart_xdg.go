//go:build linux || freebsd || openbsd || netbsd || dragonfly

package autostart

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tools.zach/dev/jukeboxrpc/internal/atomicfile"
	"tools.zach/dev/jukeboxrpc/internal/paths"
)

// entryPath returns $XDG_CONFIG_HOME/autostart/<binary>.desktop.
func (m *Manager) entryPath() (string, error) {
	dir := m.dir
	if dir == "" {
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("locate home: %w", err)
			}
			base = filepath.Join(home, ".config")
		}
		dir = filepath.Join(base, "autostart")
	}
	return filepath.Join(dir, paths.BinaryName+".desktop"), nil
}

func (m *Manager) desktopEntry() []byte {
	var b bytes.Buffer
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	fmt.Fprintf(&b, "Name=%s\n", paths.AppName)
	fmt.Fprintf(&b, "Exec=%s\n", m.commandLine())
	b.WriteString("Terminal=false\n")
	b.WriteString("X-GNOME-Autostart-enabled=true\n")
	return b.Bytes()
}

func (m *Manager) enabled() (bool, error) {
	path, err := m.entryPath()
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	// Desktop environments disable an entry in place with Hidden=true.
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.EqualFold(line, "Hidden=true") || strings.EqualFold(line, "X-GNOME-Autostart-enabled=false") {
			return false, nil
		}
	}
	return true, nil
}

func (m *Manager) enable() error {
	path, err := m.entryPath()
	if err != nil {
		return err
	}
	return atomicfile.Write(path, m.desktopEntry(), 0o644)
}

func (m *Manager) disable() error {
	path, err := m.entryPath()
	if err != nil {
		return err
	}
	return atomicfile.Remove(path)
}
