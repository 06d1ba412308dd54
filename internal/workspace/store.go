package workspace

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cadence/internal/faults"
	"cadence/internal/logging"
)

// Workspace is the single-writer durable store shared by every subsystem.
// All paths are relative to a configured root; every write creates parent
// directories and holds a per-file advisory lock for its duration.
type Workspace struct {
	root   string
	logger *logging.Logger
}

// New opens a workspace rooted at root, creating the directory if needed.
func New(root string, logger *logging.Logger) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, faults.New(faults.CodeWorkspaceNotInitialized, "workspace root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, faults.Wrap(faults.CodeWorkspaceNotInitialized, root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, faults.Wrap(faults.CodeWorkspaceNotInitialized, "create workspace root", err)
	}
	return &Workspace{
		root:   abs,
		logger: logging.OrNop(logger).WithModule("workspace"),
	}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// Abs resolves a workspace-relative path for callers that need the absolute
// location (never escaping the root).
func (w *Workspace) Abs(rel string) (string, error) {
	return w.resolve(rel)
}

// ReadFile returns the UTF-8 content of a workspace file.
func (w *Workspace) ReadFile(rel string) (string, error) {
	abs, err := w.resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", faults.Newf(faults.CodeNotFound, "file %s", rel)
		}
		return "", faults.Wrap(faults.CodeReadFailed, rel, err)
	}
	return string(data), nil
}

// WriteFile writes content to a workspace file under its advisory lock,
// creating parent directories as needed.
func (w *Workspace) WriteFile(rel, content string) error {
	abs, err := w.resolve(rel)
	if err != nil {
		return err
	}
	return withLock(abs, func() error {
		return writeFileLocked(abs, rel, content)
	})
}

// writeFileLocked performs the write assuming the caller holds the lock.
func writeFileLocked(abs, rel, content string) error {
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return faults.Wrap(faults.CodeWriteFailed, rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return faults.Wrap(faults.CodeWriteFailed, rel, err)
	}
	return nil
}

// FileExists reports whether a workspace file exists.
func (w *Workspace) FileExists(rel string) (bool, error) {
	abs, err := w.resolve(rel)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(abs)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, faults.Wrap(faults.CodeReadFailed, rel, err)
}

// ListFiles returns the markdown entries of a workspace directory, sorted
// lexicographically. A missing directory lists as empty.
func (w *Workspace) ListFiles(rel string) ([]string, error) {
	return w.listByExt(rel, ".md")
}

// listByExt lists directory entries with the given extension.
func (w *Workspace) listByExt(rel, ext string) ([]string, error) {
	abs, err := w.resolve(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, faults.Wrap(faults.CodeReadFailed, rel, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ext) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// DeleteFile removes a workspace file. Deleting a missing file is not an
// error: the goal state is already reached.
func (w *Workspace) DeleteFile(rel string) error {
	abs, err := w.resolve(rel)
	if err != nil {
		return err
	}
	return withLock(abs, func() error {
		if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return faults.Wrap(faults.CodeWriteFailed, rel, err)
		}
		return nil
	})
}

// mutateFile runs an atomic read-modify-write on a workspace file while
// holding its lock for the whole span, closing the TOCTOU window between
// read and write.
func (w *Workspace) mutateFile(rel string, fn func(current string, exists bool) (string, error)) error {
	abs, err := w.resolve(rel)
	if err != nil {
		return err
	}
	return withLock(abs, func() error {
		var current string
		exists := true
		data, readErr := os.ReadFile(abs)
		if readErr != nil {
			if !errors.Is(readErr, fs.ErrNotExist) {
				return faults.Wrap(faults.CodeReadFailed, rel, readErr)
			}
			exists = false
		} else {
			current = string(data)
		}
		next, err := fn(current, exists)
		if err != nil {
			return err
		}
		return writeFileLocked(abs, rel, next)
	})
}
