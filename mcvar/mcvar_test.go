package mcvar

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestRegisterLogger(t *testing.T) {
	log := slog.Default()
	p := filepath.Join(t.TempDir(), "test.db")
	if l := RegisterLogger(p, log); l != nil {
		t.Fatalf("got logger for new database under test")
	}
	if err := os.WriteFile(p, nil, 0600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if l := RegisterLogger(p, log); l != log {
		t.Fatalf("got %v, expected logger for existing database", l)
	}

	quietNewDB = false
	defer func() { quietNewDB = true }()
	if l := RegisterLogger(filepath.Join(t.TempDir(), "other.db"), log); l != log {
		t.Fatalf("got %v, expected logger when not quiet", l)
	}
}

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Fatalf("empty version")
	}
}
