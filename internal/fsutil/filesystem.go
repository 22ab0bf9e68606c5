// Package fsutil provides filesystem abstractions for testability.
package fsutil

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileSystem abstracts the filesystem operations the dataset pipeline needs.
// Use OSFileSystem for production; MemoryFileSystem for testing.
type FileSystem interface {
	// Open opens the named file for reading.
	Open(name string) (fs.File, error)

	// Create creates or truncates the named file.
	Create(name string) (io.WriteCloser, error)

	// Append opens the named file for appending, creating it if necessary.
	Append(name string) (io.WriteCloser, error)

	// ReadFile reads the named file and returns its contents.
	ReadFile(name string) ([]byte, error)

	// WriteFile writes data to the named file, creating it if necessary.
	WriteFile(name string, data []byte, perm os.FileMode) error

	// ReadDir lists the directory entries sorted by name.
	ReadDir(name string) ([]fs.DirEntry, error)

	// Stat returns a FileInfo describing the named file.
	Stat(name string) (fs.FileInfo, error)

	// MkdirAll creates a directory and all necessary parents.
	MkdirAll(path string, perm os.FileMode) error

	// Rename moves oldpath to newpath, replacing newpath if it exists.
	Rename(oldpath, newpath string) error

	// Remove removes the named file or empty directory.
	Remove(name string) error

	// Truncate changes the size of the named file.
	Truncate(name string, size int64) error

	// Exists checks if a file or directory exists.
	Exists(name string) bool
}

// OSFileSystem implements FileSystem using the os package.
type OSFileSystem struct{}

// Open opens the named file.
func (OSFileSystem) Open(name string) (fs.File, error) {
	return os.Open(name)
}

// Create creates the named file.
func (OSFileSystem) Create(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

// Append opens the named file in append mode.
func (OSFileSystem) Append(name string) (io.WriteCloser, error) {
	return os.OpenFile(name, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
}

// ReadFile reads the named file.
func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile writes data to the named file.
func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// ReadDir lists a directory.
func (OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

// Stat returns file info for the named file.
func (OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// MkdirAll creates a directory path.
func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Rename renames a file.
func (OSFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Remove removes the named file or directory.
func (OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// Truncate changes the size of the named file.
func (OSFileSystem) Truncate(name string, size int64) error {
	return os.Truncate(name, size)
}

// Exists checks if a file exists.
func (OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// MemoryFileSystem is an in-memory FileSystem for tests. Writing a file
// creates its parent directories, so a directory lives on after its last
// file is removed, as it would on disk.
type MemoryFileSystem struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
}

type memEntry struct {
	data []byte
	mode os.FileMode
	dir  bool
}

// NewMemoryFileSystem returns an empty filesystem holding only the roots.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{entries: map[string]*memEntry{
		"/": {dir: true, mode: fs.ModeDir | 0755},
		".": {dir: true, mode: fs.ModeDir | 0755},
	}}
}

func notExist(op, name string) error {
	return &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
}

// mkdirs marks path and its ancestors as directories. Callers hold mu.
func (m *MemoryFileSystem) mkdirs(path string) {
	for {
		if e, ok := m.entries[path]; ok && e.dir {
			return
		}
		m.entries[path] = &memEntry{dir: true, mode: fs.ModeDir | 0755}
		parent := filepath.Dir(path)
		if parent == path {
			return
		}
		path = parent
	}
}

// file returns the regular file at the cleaned name. Callers hold mu.
func (m *MemoryFileSystem) file(op, name string) (*memEntry, error) {
	e, ok := m.entries[name]
	if !ok {
		return nil, notExist(op, name)
	}
	if e.dir {
		return nil, &fs.PathError{Op: op, Path: name, Err: errors.New("is a directory")}
	}
	return e, nil
}

// put stores data at the cleaned name. Callers hold mu.
func (m *MemoryFileSystem) put(name string, data []byte, perm os.FileMode) {
	m.mkdirs(filepath.Dir(name))
	m.entries[name] = &memEntry{data: data, mode: perm}
}

// Open opens a snapshot of the file for reading.
func (m *MemoryFileSystem) Open(name string) (fs.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	e, err := m.file("open", name)
	if err != nil {
		return nil, err
	}
	return &memReader{Reader: bytes.NewReader(e.data), info: e.info(name)}, nil
}

// Create truncates or creates the file now; written bytes land on Close.
func (m *MemoryFileSystem) Create(name string) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	m.put(name, nil, 0644)
	return &memWriter{fs: m, name: name}, nil
}

// Append opens a file for appending. Appended bytes become visible on Close.
func (m *MemoryFileSystem) Append(name string) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	if _, ok := m.entries[name]; !ok {
		m.put(name, nil, 0644)
	} else if _, err := m.file("append", name); err != nil {
		return nil, err
	}
	return &memWriter{fs: m, name: name, append: true}, nil
}

// ReadFile returns a copy of the file contents.
func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	e, err := m.file("read", name)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(e.data), nil
}

// WriteFile replaces the file contents.
func (m *MemoryFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(filepath.Clean(name), bytes.Clone(data), perm)
	return nil
}

// ReadDir lists the direct children of a directory, sorted by name.
func (m *MemoryFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	if e, ok := m.entries[name]; !ok || !e.dir {
		return nil, notExist("readdir", name)
	}

	var out []fs.DirEntry
	for path, e := range m.entries {
		if path != name && filepath.Dir(path) == name {
			out = append(out, fs.FileInfoToDirEntry(e.info(path)))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// Stat describes a file or directory.
func (m *MemoryFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	e, ok := m.entries[name]
	if !ok {
		return nil, notExist("stat", name)
	}
	return e.info(name), nil
}

// MkdirAll creates path and any missing parents.
func (m *MemoryFileSystem) MkdirAll(path string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if e, ok := m.entries[path]; ok && !e.dir {
		return &fs.PathError{Op: "mkdir", Path: path, Err: fs.ErrExist}
	}
	m.mkdirs(path)
	return nil
}

// Rename moves a file, replacing the destination.
func (m *MemoryFileSystem) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldpath = filepath.Clean(oldpath)
	newpath = filepath.Clean(newpath)
	e, err := m.file("rename", oldpath)
	if err != nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrNotExist}
	}
	delete(m.entries, oldpath)
	m.put(newpath, e.data, e.mode)
	return nil
}

// Remove removes a file or an empty directory.
func (m *MemoryFileSystem) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	e, ok := m.entries[name]
	if !ok {
		return notExist("remove", name)
	}
	if e.dir {
		for path := range m.entries {
			if path != name && filepath.Dir(path) == name {
				return &fs.PathError{Op: "remove", Path: name, Err: errors.New("directory not empty")}
			}
		}
	}
	delete(m.entries, name)
	return nil
}

// Truncate cuts the file to size, or zero-extends it as os.Truncate does.
func (m *MemoryFileSystem) Truncate(name string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if size < 0 {
		return &fs.PathError{Op: "truncate", Path: name, Err: fs.ErrInvalid}
	}
	e, err := m.file("truncate", filepath.Clean(name))
	if err != nil {
		return err
	}
	if n := int(size); n <= len(e.data) {
		e.data = e.data[:n:n]
	} else {
		e.data = append(e.data, make([]byte, n-len(e.data))...)
	}
	return nil
}

// Exists reports whether a file or directory exists.
func (m *MemoryFileSystem) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[filepath.Clean(name)]
	return ok
}

func (e *memEntry) info(path string) memInfo {
	return memInfo{name: filepath.Base(path), size: int64(len(e.data)), mode: e.mode, dir: e.dir}
}

type memReader struct {
	*bytes.Reader
	info memInfo
}

func (r *memReader) Stat() (fs.FileInfo, error) { return r.info, nil }
func (r *memReader) Close() error               { return nil }

type memWriter struct {
	fs     *MemoryFileSystem
	name   string
	buf    bytes.Buffer
	append bool
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

// Close commits the buffered bytes. A file removed while open is recreated.
func (w *memWriter) Close() error {
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()

	e, ok := w.fs.entries[w.name]
	if !ok || e.dir {
		w.fs.put(w.name, bytes.Clone(w.buf.Bytes()), 0644)
		return nil
	}
	if w.append {
		e.data = append(e.data, w.buf.Bytes()...)
	} else {
		e.data = bytes.Clone(w.buf.Bytes())
	}
	return nil
}

type memInfo struct {
	name string
	size int64
	mode os.FileMode
	dir  bool
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() os.FileMode  { return i.mode }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return i.dir }
func (i memInfo) Sys() any           { return nil }
