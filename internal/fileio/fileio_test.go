package fileio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveFileAtomicReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "wallet_data.txt")

	if err := SaveFileAtomic(path, []byte("first"), 0o600); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := SaveFileAtomic(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("unexpected content %q", got)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}
