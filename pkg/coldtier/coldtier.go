// Package coldtier implements per-document file storage for values
// evicted from the hot tier: one file per document under
// cold/{TYPE}/{ID}.jss. Modeled on the teacher's checkpoint write-to-temp
// + rename idiom (pkg/storage/checkpoint.go), narrowed from one file per
// table to one file per document.
package coldtier

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bobboyms/docdb/pkg/dberrors"
	"github.com/bobboyms/docdb/pkg/dockey"
)

const fileExt = ".jss"

// Store manages the cold-tier directory tree rooted at dir.
type Store struct {
	dir string
}

// New opens (creating if needed) a cold-tier store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &dberrors.IOError{Op: "mkdir", Path: dir, Cause: err}
	}
	return &Store{dir: dir}, nil
}

func pathFor(dir string, key dockey.Key) string {
	live := key.Live()
	return filepath.Join(dir, live.Type(), live.ID()+fileExt)
}

// Write persists value under key's cold-tier path, writing to a
// temporary file and renaming over the final path so a reader never
// observes a partially-written file.
func (s *Store) Write(key dockey.Key, value string) error {
	path := pathFor(s.dir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &dberrors.IOError{Op: "mkdir", Path: filepath.Dir(path), Cause: err}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(value), 0o644); err != nil {
		return &dberrors.IOError{Op: "write", Path: tmpPath, Cause: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &dberrors.IOError{Op: "rename", Path: path, Cause: err}
	}
	return nil
}

// Read returns the raw value stored under key. found is false (no error)
// when the file does not exist.
func (s *Store) Read(key dockey.Key) (value string, found bool, err error) {
	path := pathFor(s.dir, key)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &dberrors.IOError{Op: "read", Path: path, Cause: err}
	}
	return string(data), true, nil
}

// Delete removes key's cold-tier file. Deleting a missing file is not an
// error.
func (s *Store) Delete(key dockey.Key) error {
	path := pathFor(s.dir, key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &dberrors.IOError{Op: "remove", Path: path, Cause: err}
	}
	return nil
}

// Exists reports whether key has a cold-tier file.
func (s *Store) Exists(key dockey.Key) bool {
	path := pathFor(s.dir, key)
	_, err := os.Stat(path)
	return err == nil
}

// Entry describes one cold-tier file found by List.
type Entry struct {
	Type string
	ID   string
}

// List enumerates every document currently in cold storage, ignoring
// non-segment files and non-directories.
func (s *Store) List() ([]Entry, error) {
	typeDirs, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &dberrors.IOError{Op: "readdir", Path: s.dir, Cause: err}
	}

	var out []Entry
	for _, td := range typeDirs {
		if !td.IsDir() {
			continue
		}
		typeName := td.Name()
		files, err := os.ReadDir(filepath.Join(s.dir, typeName))
		if err != nil {
			return nil, &dberrors.IOError{Op: "readdir", Path: filepath.Join(s.dir, typeName), Cause: err}
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), fileExt) {
				continue
			}
			id := strings.TrimSuffix(f.Name(), fileExt)
			out = append(out, Entry{Type: typeName, ID: id})
		}
	}
	return out, nil
}

// Stats reports cold-tier occupancy.
type Stats struct {
	FileCount int
	TypeCount int
}

// Stats computes current cold-tier occupancy by walking the directory
// tree.
func (s *Store) Stats() (Stats, error) {
	entries, err := s.List()
	if err != nil {
		return Stats{}, err
	}
	types := make(map[string]struct{})
	for _, e := range entries {
		types[e.Type] = struct{}{}
	}
	return Stats{FileCount: len(entries), TypeCount: len(types)}, nil
}
