// Package migrate upgrades versioned on-disk documents one schema step at
// a time.
package migrate

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
)

// Migration upgrades a document to Version from the version before it.
type Migration struct {
	// Version is the schema version this step produces.
	Version int
	// Description is a short label for log output.
	Description string
	// Upgrade rewrites the raw document.
	Upgrade func(data []byte) ([]byte, error)
}

// Run applies every migration whose Version is above fromVersion, in
// ascending order. It returns the rewritten data and the version reached;
// on error the version is the last one applied successfully.
func Run(data []byte, fromVersion int, migrations []Migration) ([]byte, int, error) {
	sorted := slices.Clone(migrations)
	slices.SortFunc(sorted, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })

	version := fromVersion
	for _, m := range sorted {
		if m.Version <= version {
			continue
		}
		slog.Info("applying migration", "version", m.Version, "description", m.Description)
		out, err := m.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("migration to v%d failed: %w", m.Version, err)
		}
		data, version = out, m.Version
	}
	return data, version, nil
}

// NeedsMigration reports whether a document at fileVersion is behind
// currentVersion or has a registered step above it.
func NeedsMigration(fileVersion, currentVersion int, migrations []Migration) bool {
	if fileVersion < currentVersion {
		return true
	}
	for _, m := range migrations {
		if fileVersion < m.Version {
			return true
		}
	}
	return false
}
