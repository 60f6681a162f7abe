package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteCreatesParents(t *testing.T) {
	s := New(t.TempDir())

	if err := s.Write("output/site/data.js", "const papers = [];"); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.Read("output/site/data.js")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "const papers = [];" {
		t.Errorf("unexpected content %q", got)
	}

	if _, err := os.Stat(filepath.Join(s.Root(), "output", "site")); err != nil {
		t.Errorf("expected parent dir to exist: %v", err)
	}
}

func TestReadMissing(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Read("nope.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveAbsolute(t *testing.T) {
	dir := t.TempDir()
	s := New("/somewhere/else")
	abs := filepath.Join(dir, "x.txt")
	if got := s.Resolve(abs); got != abs {
		t.Errorf("expected %s, got %s", abs, got)
	}
	if got := s.Resolve("y.txt"); got != filepath.Join("/somewhere/else", "y.txt") {
		t.Errorf("unexpected relative resolution %s", got)
	}
}
