//go:build !linux && !freebsd && !openbsd && !netbsd && !dragonfly && !darwin && !windows

package autostart

func (m *Manager) enabled() (bool, error) { return false, ErrUnsupported }

func (m *Manager) enable() error { return ErrUnsupported }

func (m *Manager) disable() error { return ErrUnsupported }
