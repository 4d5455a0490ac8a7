package workspace

import (
	"os"
	"path/filepath"
	"testing"

	pentagonerrors "pentagon/pkg/errors"
)

func TestNewCreatesOwnerOnlyDirectory(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ws.Close()

	info, err := os.Stat(ws.Root())
	if err != nil {
		t.Fatalf("stat workspace root: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("workspace root is not a directory")
	}
	if filepath.Dir(ws.Root()) != base {
		t.Fatalf("workspace root %q not under base %q", ws.Root(), base)
	}
}

func TestNewFailsOnMissingBase(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("expected error for missing base")
	}
	if pentagonerrors.GetKind(err) != pentagonerrors.WorkspaceError {
		t.Fatalf("expected WorkspaceError, got %v", pentagonerrors.GetKind(err))
	}
}

func TestCloseRemovesDirectory(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ws.WriteFile("file.txt", []byte("hello"), false); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	root := ws.Root()
	if err := ws.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("expected workspace directory to be gone, stat err = %v", err)
	}
}

func TestResolveLocalRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ws.Close()

	cases := []string{"../escape", "../../etc/passwd", "a/../../b"}
	for _, c := range cases {
		if _, err := ws.ResolveLocal(c); err == nil {
			t.Errorf("expected traversal %q to be rejected", c)
		} else if pentagonerrors.GetKind(err) != pentagonerrors.TransferError {
			t.Errorf("expected TransferError for %q, got %v", c, pentagonerrors.GetKind(err))
		}
	}
}

func TestResolveLocalRejectsAbsolute(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ws.Close()

	if _, err := ws.ResolveLocal("/etc/passwd"); err == nil {
		t.Fatal("expected absolute path to be rejected")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ws.Close()

	want := []byte("payload bytes")
	if err := ws.WriteFile("nested/dir/file.bin", want, false); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ws.ReadFile("nested/dir/file.bin")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWriteFileExecutableBit(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteFile("run.sh", []byte("#!/bin/sh\n"), true); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	full, err := ws.ResolveLocal("run.sh")
	if err != nil {
		t.Fatalf("ResolveLocal: %v", err)
	}
	info, err := os.Stat(full)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Fatalf("expected executable bit to be set, got mode %v", info.Mode())
	}
}
