package migrate

import "fmt"

// Registry holds the current version and upgrade steps for one document
// kind. Each kind gets its own instance so version numbers stay
// independent.
type Registry struct {
	// Name identifies the document kind in errors.
	Name string
	// CurrentVersion is the schema version new documents are written at.
	CurrentVersion int
	// Migrations is exported so tests can swap the list.
	Migrations []Migration
}

// Register adds m. It panics on a duplicate or out-of-range version so a
// conflicting step is caught at init.
func (r *Registry) Register(m Migration) {
	if m.Version < 1 || m.Version > r.CurrentVersion {
		panic(fmt.Sprintf("migrate: %s migration v%d outside 1..%d", r.Name, m.Version, r.CurrentVersion))
	}
	for _, existing := range r.Migrations {
		if existing.Version == m.Version {
			panic(fmt.Sprintf("migrate: duplicate %s migration version %d (description: %q)", r.Name, m.Version, m.Description))
		}
	}
	r.Migrations = append(r.Migrations, m)
}

// NeedsMigration reports whether a document at fileVersion must be
// upgraded.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	return NeedsMigration(fileVersion, r.CurrentVersion, r.Migrations)
}

// Run upgrades data from fromVersion. A document newer than
// CurrentVersion is rejected.
func (r *Registry) Run(data []byte, fromVersion int) ([]byte, int, error) {
	if fromVersion > r.CurrentVersion {
		return nil, fromVersion, fmt.Errorf("%s version %d is newer than supported version %d", r.Name, fromVersion, r.CurrentVersion)
	}
	return Run(data, fromVersion, r.Migrations)
}

// Config is the registry for config.toml. Version 0 is the flat layout
// produced by importing a legacy config.yml.
var Config = &Registry{Name: "config", CurrentVersion: 1}
