// Package security guards the filesystem boundaries of a run: the pipeline
// deletes what it consumes, so nothing it writes may land where it reads.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrOutputInInput is returned when an output path lies inside the input
// directory, where it would be consumed or removed by the next run.
var ErrOutputInInput = errors.New("output path inside input directory")

// IsWithin reports whether path resolves to dir or a location beneath it.
// Symlinks are resolved on the longest existing prefix of each path, so a
// link inside dir that points elsewhere does not count as within.
func IsWithin(path, dir string) (bool, error) {
	canonicalPath, err := canonical(path)
	if err != nil {
		return false, err
	}
	canonicalDir, err := canonical(dir)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(canonicalDir, canonicalPath)
	if err != nil {
		return false, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return false, nil
	}
	return true, nil
}

// canonical returns the absolute path with symlinks resolved on its deepest
// existing ancestor.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	check := abs
	for {
		parent := filepath.Dir(check)
		if parent == check {
			return abs, nil
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, _ := filepath.Rel(parent, abs)
			return filepath.Join(resolved, rel), nil
		}
		check = parent
	}
}

// ValidateOutputs rejects any non-empty output located inside inputDir.
func ValidateOutputs(inputDir string, outputs ...string) error {
	for _, out := range outputs {
		if out == "" {
			continue
		}
		within, err := IsWithin(out, inputDir)
		if err != nil {
			return fmt.Errorf("check %s: %w", out, err)
		}
		if within {
			return fmt.Errorf("%s in %s: %w", out, inputDir, ErrOutputInInput)
		}
	}
	return nil
}

// SanitizeFilename makes a file name from a label. Letters and digits in
// any script are kept along with dot, underscore and dash; every other run
// of characters becomes a single underscore. The result is capped at 128
// bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r), r == '.' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_':
			if !lastUnderscore {
				b.WriteRune(r)
			}
			lastUnderscore = true
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unlabeled"
	}
	return out
}
