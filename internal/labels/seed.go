package labels

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/banshee-data/motion-dataset/internal/fsutil"
)

// LabelColumn is the feature dataset column holding assigned labels.
const LabelColumn = "label"

// SeedFromDataset builds an allocator from the labels already written to
// the feature dataset at path. It always returns a usable allocator. A
// missing file yields an empty table with no error; an unreadable or
// malformed file yields an empty table and an error describing why, which
// callers treat as a warning.
func SeedFromDataset(fsys fsutil.FileSystem, path string) (*Allocator, error) {
	a := NewAllocator(nil)
	if path == "" {
		return a, nil
	}
	f, err := fsys.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return a, nil
	}
	if err != nil {
		return a, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	seen, err := readLabels(f)
	if err != nil {
		return NewAllocator(nil), fmt.Errorf("seed labels from %s: %w", path, err)
	}
	for _, label := range seen {
		a.Observe(label)
	}
	return a, nil
}

func readLabels(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	col := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == LabelColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("no %q column", LabelColumn)
	}

	var out []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if label := strings.TrimSpace(rec[col]); label != "" {
			out = append(out, label)
		}
	}
}
