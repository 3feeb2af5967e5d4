package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"pkt.systems/cellbook/internal/nbformat"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

const notebooksDir = "notebooks"

// FileStore persists notebooks as one JSON file each.
type FileStore struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a file store rooted at the given state directory.
func NewStore(dir string) (*FileStore, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a file store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	root := filepath.Join(dir, notebooksDir)
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &FileStore{dir: root, log: logger}, nil
}

// Dir returns the directory holding the notebook files.
func (s *FileStore) Dir() string {
	return s.dir
}

// Load reads a notebook from disk.
func (s *FileStore) Load(_ context.Context, id schema.NotebookID) (schema.Notebook, bool, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.debug("notebook load miss", "notebook", id)
			return schema.Notebook{}, false, nil
		}
		s.warn("notebook load failed", "notebook", id, "err", err)
		return schema.Notebook{}, false, err
	}
	nb, err := nbformat.Decode(data)
	if err != nil {
		s.warn("notebook load failed", "notebook", id, "err", err)
		return schema.Notebook{}, false, err
	}
	s.debug("notebook load ok", "notebook", id, "cells", len(nb.Cells))
	return nb, true, nil
}

// Save writes a notebook to disk atomically.
func (s *FileStore) Save(_ context.Context, nb schema.Notebook) error {
	if nb.ID == "" {
		return schema.ErrInvalidNotebook
	}
	if err := s.write(nb); err != nil {
		s.warn("notebook save failed", "notebook", nb.ID, "err", err)
		return err
	}
	if s.log != nil {
		s.log.Trace("notebook save ok", "notebook", nb.ID, "cells", len(nb.Cells))
	}
	return nil
}

func (s *FileStore) write(nb schema.Notebook) error {
	path := s.pathFor(nb.ID)
	data, err := nbformat.Encode(nb)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".notebook-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// List summarizes every readable notebook, most recently updated first.
// Unreadable files are skipped.
func (s *FileStore) List(_ context.Context) ([]schema.NotebookSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]schema.NotebookSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.warn("notebook list skip", "file", entry.Name(), "err", err)
			continue
		}
		nb, err := nbformat.Decode(data)
		if err != nil {
			s.warn("notebook list skip", "file", entry.Name(), "err", err)
			continue
		}
		out = append(out, nb.Summary())
	}
	slices.SortFunc(out, func(a, b schema.NotebookSummary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out, nil
}

// Delete removes a notebook file. Missing notebooks are not an error.
func (s *FileStore) Delete(_ context.Context, id schema.NotebookID) error {
	if err := os.Remove(s.pathFor(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.warn("notebook delete failed", "notebook", id, "err", err)
		return err
	}
	return nil
}

func (s *FileStore) pathFor(id schema.NotebookID) string {
	name := sanitize(string(id))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func (s *FileStore) debug(msg string, kv ...any) {
	if s.log != nil {
		s.log.Debug(msg, kv...)
	}
}

func (s *FileStore) warn(msg string, kv ...any) {
	if s.log != nil {
		s.log.Warn(msg, kv...)
	}
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
