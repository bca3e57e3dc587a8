package token

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"tools.zach/dev/jukeboxrpc/internal/atomicfile"
)

// Store persists the last accepted token in a single file.
type Store struct {
	path string
}

// NewStore returns a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the stored token, or "" when nothing valid is stored. A file
// whose content fails [Valid] is treated as absent rather than an error.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if !Valid(tok) {
		slog.Warn("ignoring malformed stored token", "path", s.path)
		return "", nil
	}
	return tok, nil
}

// Save validates tok and writes it with owner-only permissions.
func (s *Store) Save(tok string) error {
	if err := Validate(tok); err != nil {
		return err
	}
	if err := atomicfile.Write(s.path, []byte(tok), 0o600); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Clear removes the stored token. Clearing an empty store is a no-op.
func (s *Store) Clear() error {
	return atomicfile.Remove(s.path)
}
