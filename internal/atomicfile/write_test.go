package atomicfile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func readString(t *testing.T, path string) string {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(got)
}

func TestWrite(t *testing.T) {
	tests := []struct {
		name   string
		rel    string
		before string
		data   string
	}{
		{"new file", "config.toml", "", "version = 1\n"},
		{"replace existing", "config.toml", "old", "new"},
		{"creates parents", filepath.Join("fresh", "data", "session.token"), "", "abcd1234EFGH5678"},
		{"empty content", "empty", "something", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.rel)
			if tt.before != "" {
				if err := os.WriteFile(path, []byte(tt.before), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			if err := Write(path, []byte(tt.data), 0o600); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if got := readString(t, path); got != tt.data {
				t.Errorf("content = %q, want %q", got, tt.data)
			}

			leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp.*"))
			if len(leftovers) > 0 {
				t.Errorf("temp files left behind: %v", leftovers)
			}
		})
	}
}

func TestWrite_Mode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Windows ignores Unix permission bits")
	}
	path := filepath.Join(t.TempDir(), "session.token")
	if err := Write(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("mode = %o, want 600", got)
	}
}

func TestWrite_ParentIsFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Write(filepath.Join(blocker, "file.txt"), []byte("data"), 0o644); err == nil {
		t.Fatal("expected error when the parent is a regular file")
	}
}

func TestWrite_TargetIsDirectoryCleansUp(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "taken")
	if err := os.MkdirAll(filepath.Join(target, "child"), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := Write(target, []byte("data"), 0o644); err == nil {
		t.Fatal("expected error replacing a non-empty directory")
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp.*"))
	if len(leftovers) > 0 {
		t.Errorf("temp file not removed after failure: %v", leftovers)
	}
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.txt")
	if err := Write(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	for i := range 2 {
		if err := Remove(path); err != nil {
			t.Fatalf("Remove #%d: %v", i+1, err)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file still present after Remove: %v", err)
	}
}
