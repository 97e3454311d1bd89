package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/JohnTocci/KnowledgeHub/internal/apperr"
)

func tempVault(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	fs := tempVault(t)
	content := []byte("# Hello\nWorld\n")
	if err := fs.Write("note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := fs.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	fs := tempVault(t)
	if err := fs.Write("topics/go/note.md", []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := fs.Read("topics/go/note.md"); err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	fs := tempVault(t)
	if _, err := fs.Read("nope.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Read missing = %v, want ErrNotFound", err)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	fs := tempVault(t)
	for _, p := range []string{"../escape.md", "a/../../escape.md", "/etc/passwd"} {
		if err := fs.Write(p, []byte("x")); err == nil {
			t.Errorf("Write(%q) succeeded, want traversal error", p)
		}
	}
}

func TestWriteUniqueNeverOverwrites(t *testing.T) {
	fs := tempVault(t)

	first, err := fs.WriteUnique("Article.md", []byte("one"))
	if err != nil {
		t.Fatalf("first WriteUnique: %v", err)
	}
	if first != "Article.md" {
		t.Errorf("first path = %q, want Article.md", first)
	}

	second, err := fs.WriteUnique("Article.md", []byte("two"))
	if err != nil {
		t.Fatalf("second WriteUnique: %v", err)
	}
	if second == first {
		t.Fatalf("second WriteUnique reused %q", first)
	}
	if second != "Article (1).md" {
		t.Errorf("second path = %q, want Article (1).md", second)
	}

	one, _ := fs.Read(first)
	two, _ := fs.Read(second)
	if string(one) != "one" || string(two) != "two" {
		t.Errorf("content clobbered: %q / %q", one, two)
	}
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	fs := tempVault(t)
	if err := fs.Delete("gone.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Delete missing = %v, want ErrNotFound", err)
	}
}

func TestListReturnsChecksums(t *testing.T) {
	fs := tempVault(t)
	if err := fs.Write("a.md", []byte("alpha")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Write("sub/b.md", []byte("beta")); err != nil {
		t.Fatal(err)
	}
	// Non-markdown files are ignored.
	if err := os.WriteFile(filepath.Join(fs.Root(), "skip.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	metas, err := fs.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(metas))
	}
	for _, m := range metas {
		if m.Checksum == "" {
			t.Errorf("missing checksum for %s", m.Path)
		}
	}
}
