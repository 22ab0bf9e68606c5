package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Op is one mutating call observed by a RecordingFileSystem.
type Op struct {
	Kind string // "create", "append", "write", "rename", "remove", "mkdir", "truncate"
	Path string
}

func (o Op) String() string { return o.Kind + " " + o.Path }

// RecordingFileSystem wraps a FileSystem and journals every mutating call in
// order. Fail, when set, is consulted before each mutating call and a non-nil
// result is returned instead of performing it. Tests use it to check the
// order in which outputs are persisted and sources consumed.
type RecordingFileSystem struct {
	FileSystem

	// Fail injects an error for the given operation kind and cleaned path.
	Fail func(kind, path string) error

	mu  sync.Mutex
	ops []Op
}

// NewRecordingFileSystem wraps inner.
func NewRecordingFileSystem(inner FileSystem) *RecordingFileSystem {
	return &RecordingFileSystem{FileSystem: inner}
}

// Ops returns a copy of the journal.
func (r *RecordingFileSystem) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Op, len(r.ops))
	copy(out, r.ops)
	return out
}

// IndexOf returns the position of the first journaled op matching kind and
// path, or -1.
func (r *RecordingFileSystem) IndexOf(kind, path string) int {
	path = filepath.Clean(path)
	for i, op := range r.Ops() {
		if op.Kind == kind && op.Path == path {
			return i
		}
	}
	return -1
}

func (r *RecordingFileSystem) record(kind, path string) error {
	path = filepath.Clean(path)
	if r.Fail != nil {
		if err := r.Fail(kind, path); err != nil {
			return fmt.Errorf("%s %s: %w", kind, path, err)
		}
	}
	r.mu.Lock()
	r.ops = append(r.ops, Op{Kind: kind, Path: path})
	r.mu.Unlock()
	return nil
}

// Create journals and delegates.
func (r *RecordingFileSystem) Create(name string) (io.WriteCloser, error) {
	if err := r.record("create", name); err != nil {
		return nil, err
	}
	return r.FileSystem.Create(name)
}

// Append journals and delegates.
func (r *RecordingFileSystem) Append(name string) (io.WriteCloser, error) {
	if err := r.record("append", name); err != nil {
		return nil, err
	}
	return r.FileSystem.Append(name)
}

// WriteFile journals and delegates.
func (r *RecordingFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	if err := r.record("write", name); err != nil {
		return err
	}
	return r.FileSystem.WriteFile(name, data, perm)
}

// MkdirAll journals and delegates.
func (r *RecordingFileSystem) MkdirAll(path string, perm os.FileMode) error {
	if err := r.record("mkdir", path); err != nil {
		return err
	}
	return r.FileSystem.MkdirAll(path, perm)
}

// Rename journals the destination and delegates.
func (r *RecordingFileSystem) Rename(oldpath, newpath string) error {
	if err := r.record("rename", newpath); err != nil {
		return err
	}
	return r.FileSystem.Rename(oldpath, newpath)
}

// Remove journals and delegates.
func (r *RecordingFileSystem) Remove(name string) error {
	if err := r.record("remove", name); err != nil {
		return err
	}
	return r.FileSystem.Remove(name)
}

// Truncate journals and delegates.
func (r *RecordingFileSystem) Truncate(name string, size int64) error {
	if err := r.record("truncate", name); err != nil {
		return err
	}
	return r.FileSystem.Truncate(name, size)
}

// ReadDir delegates without journaling.
func (r *RecordingFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	return r.FileSystem.ReadDir(name)
}
