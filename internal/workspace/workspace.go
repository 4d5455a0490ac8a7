// Package workspace manages the per-request host directory that is bind
// mounted into the sandbox as /box.
package workspace

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	pentagonerrors "pentagon/pkg/errors"
)

const (
	tokenLength = 20
	tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	dirPerm       = 0o700
)

// Workspace is a handle on a request-scoped directory. It owns exactly one
// directory on disk and is responsible for its removal.
type Workspace struct {
	root string
}

// New creates a fresh, collision-free subdirectory of base and returns a
// handle owning it. base must already exist and be writable.
func New(base string) (*Workspace, error) {
	info, err := os.Stat(base)
	if err != nil {
		return nil, pentagonerrors.Wrapf(err, pentagonerrors.WorkspaceError, "workspace base %q is not accessible", base)
	}
	if !info.IsDir() {
		return nil, pentagonerrors.Newf(pentagonerrors.WorkspaceError, "workspace base %q is not a directory", base)
	}

	for attempt := 0; attempt < 8; attempt++ {
		token, err := randomToken(tokenLength)
		if err != nil {
			return nil, pentagonerrors.Wrap(err, pentagonerrors.WorkspaceError, "generate workspace token")
		}
		dir := filepath.Join(base, token)
		if err := os.Mkdir(dir, dirPerm); err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, pentagonerrors.Wrapf(err, pentagonerrors.WorkspaceError, "create workspace directory %q", dir)
		}
		return &Workspace{root: dir}, nil
	}
	return nil, pentagonerrors.New(pentagonerrors.WorkspaceError, "could not allocate a collision-free workspace directory")
}

// Root returns the absolute path of the workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// ResolveLocal normalizes a workspace-relative name and returns its
// absolute path, rejecting any name that would escape the workspace root.
func (w *Workspace) ResolveLocal(name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", pentagonerrors.Newf(pentagonerrors.TransferError, "local path %q must not be absolute", name)
	}
	cleaned := filepath.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", pentagonerrors.Newf(pentagonerrors.TransferError, "local path %q escapes the workspace", name)
	}
	full := filepath.Join(w.root, cleaned)
	rel, err := filepath.Rel(w.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", pentagonerrors.Newf(pentagonerrors.TransferError, "local path %q escapes the workspace", name)
	}
	return full, nil
}

// WriteFile writes data to a workspace-relative path, creating parent
// directories as needed, honoring an optional executable bit.
func (w *Workspace) WriteFile(name string, data []byte, executable bool) error {
	full, err := w.ResolveLocal(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return pentagonerrors.Wrapf(err, pentagonerrors.TransferError, "create parent directories for %q", name)
	}
	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}
	if err := os.WriteFile(full, data, mode); err != nil {
		return pentagonerrors.Wrapf(err, pentagonerrors.TransferError, "write %q", name)
	}
	return nil
}

// ReadFile reads a workspace-relative path.
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	full, err := w.ResolveLocal(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, pentagonerrors.Wrapf(err, pentagonerrors.TransferError, "read %q", name)
	}
	return data, nil
}

// Close recursively removes the workspace directory. It relaxes
// permissions first, since sandboxed children may leave behind files owned
// by a remapped UID that would otherwise resist unlink.
func (w *Workspace) Close() error {
	if w.root == "" {
		return nil
	}
	_ = relaxPermissions(w.root)
	if err := os.RemoveAll(w.root); err != nil {
		return pentagonerrors.Wrapf(err, pentagonerrors.WorkspaceError, "remove workspace %q", w.root)
	}
	return nil
}

func relaxPermissions(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		_ = os.Chmod(path, 0o700)
		return nil
	})
}

func randomToken(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random token byte: %w", err)
		}
		b.WriteByte(tokenAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
