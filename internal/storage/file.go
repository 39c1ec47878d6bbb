package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileBackend implements Backend on top of the local filesystem: each key
// maps to one file under baseDir, one path segment per key component,
// so a document chunk lands at "<baseDir>/<doc-id>/<chunk-id>".
type FileBackend struct {
	baseDir string
}

// NewFileBackend creates (if necessary) baseDir and returns a Backend
// rooted there.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, wrapErr("mkdir", nil, err)
	}
	return &FileBackend{baseDir: baseDir}, nil
}

func (f *FileBackend) path(key Key) string {
	parts := append([]string{f.baseDir}, []string(key)...)
	return filepath.Join(parts...)
}

func (f *FileBackend) Put(_ context.Context, key Key, value []byte) error {
	p := f.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return wrapErr("put", key, err)
	}
	if err := os.WriteFile(p, value, 0o644); err != nil {
		return wrapErr("put", key, err)
	}
	return nil
}

func (f *FileBackend) Get(_ context.Context, key Key) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, wrapErr("get", key, err)
	}
	return data, true, nil
}

func (f *FileBackend) ListPrefix(_ context.Context, prefix Key) ([]Entry, error) {
	root := f.path(prefix)
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapErr("list", prefix, err)
	}

	var out []Entry
	var visit func(dir string, components []string) error
	visit = func(dir string, components []string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			childComponents := append(append([]string{}, components...), e.Name())
			childPath := filepath.Join(dir, e.Name())
			if e.IsDir() {
				if err := visit(childPath, childComponents); err != nil {
					return err
				}
				continue
			}
			data, err := os.ReadFile(childPath)
			if err != nil {
				return err
			}
			key := append(append(Key{}, prefix...), childComponents...)
			out = append(out, Entry{Key: key, Value: data})
		}
		return nil
	}

	if info.IsDir() {
		if err := visit(root, nil); err != nil {
			return nil, wrapErr("list", prefix, err)
		}
	} else {
		data, err := os.ReadFile(root)
		if err != nil {
			return nil, wrapErr("list", prefix, err)
		}
		out = append(out, Entry{Key: prefix.Clone(), Value: data})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

func (f *FileBackend) Delete(_ context.Context, key Key) error {
	p := f.path(key)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return wrapErr("delete", key, err)
	}
	// Clean up now-empty parent directories up to (but not including) baseDir.
	dir := filepath.Dir(p)
	for dir != f.baseDir && strings.HasPrefix(dir, f.baseDir) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}
