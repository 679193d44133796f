package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

type Layout string

const (
	// LayoutFlat keeps every file directly under the scratch directory.
	LayoutFlat Layout = "flat"
	// LayoutPerOwner keeps files under <dir>/<owner>/.
	LayoutPerOwner Layout = "per_owner"
)

// LocalStore is the same-node fallback tier. It serves no expiring URLs and cannot enumerate
// by owner.
type LocalStore struct {
	dir    string
	layout Layout
}

func NewLocalStore(dir string, layout Layout) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("local storage dir required")
	}
	if layout == "" {
		layout = LayoutFlat
	}
	if layout != LayoutFlat && layout != LayoutPerOwner {
		return nil, fmt.Errorf("unknown local storage layout %q", layout)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage dir: %w", err)
	}
	return &LocalStore{dir: dir, layout: layout}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Layout() Layout { return s.layout }

// RelPath is where Put stores filename for owner, relative to the scratch directory.
func (s *LocalStore) RelPath(owner, filename string) (string, error) {
	if err := ValidateSegment(filename); err != nil {
		return "", err
	}
	if s.layout == LayoutFlat {
		return filename, nil
	}
	if err := ValidateSegment(owner); err != nil {
		return "", err
	}
	return path.Join(owner, filename), nil
}

// Put writes data atomically: a temp file in the destination directory is renamed into place,
// so readers see either the whole file or nothing.
func (s *LocalStore) Put(owner, filename string, data []byte) (string, error) {
	rel, err := s.RelPath(owner, filename)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(s.dir, filepath.FromSlash(rel))
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("sync %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close %s: %w", rel, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return "", fmt.Errorf("chmod %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		cleanup()
		return "", fmt.Errorf("rename into %s: %w", rel, err)
	}
	return rel, nil
}

// Open returns the stored file. owner is ignored by the flat route (empty owner).
// Missing files surface as an fs.ErrNotExist error.
func (s *LocalStore) Open(owner, filename string) (*os.File, os.FileInfo, error) {
	if err := ValidateSegment(filename); err != nil {
		return nil, nil, err
	}
	rel := filename
	if owner != "" {
		if err := ValidateSegment(owner); err != nil {
			return nil, nil, err
		}
		rel = path.Join(owner, filename)
	}
	f, err := os.Open(filepath.Join(s.dir, filepath.FromSlash(rel)))
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s: %w", rel, os.ErrNotExist)
	}
	return f, info, nil
}
