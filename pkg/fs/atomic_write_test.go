package fs

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func Test_WriteViaRename_Removes_Temp_File_When_Write_Fails(t *testing.T) {
	t.Parallel()

	mem := NewMemory()
	if err := mem.MkdirAll("/d", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := mem.WriteFileAtomic("/d/f", []byte("old"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	chaos := NewChaos(mem, 1, ChaosConfig{
		WriteFailRate: 1,
		Match:         func(path string) bool { return strings.Contains(path, ".tmp-") },
	})

	err := writeViaRename(chaos, "/d/f", []byte("new"), 0o644)
	if err == nil {
		t.Fatal("writeViaRename should fail")
	}

	entries, err := afero.ReadDir(mem.Unwrap(), "/d")
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}

	if len(entries) != 1 || entries[0].Name() != "f" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}

		t.Fatalf("entries=%v, want=[f]", names)
	}

	got, err := mem.ReadFile("/d/f")
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != "old" {
		t.Fatalf("content=%q, want=%q", got, "old")
	}
}

func Test_WriteViaRename_Rejects_Invalid_Arguments(t *testing.T) {
	t.Parallel()

	mem := NewMemory()

	if err := writeViaRename(mem, "", []byte("x"), 0o644); err == nil {
		t.Fatal("empty path should fail")
	}

	if err := writeViaRename(mem, "/f", []byte("x"), 0); err == nil {
		t.Fatal("zero perm should fail")
	}
}
