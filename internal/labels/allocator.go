// Package labels assigns globally unique segment labels of the form
// <base>_<n>, where n increases per base label across files and runs.
package labels

import (
	"fmt"
	"strconv"
	"strings"
)

// BaseLabel strips a trailing "_<digits>" suffix. Labels without such a
// suffix are their own base.
func BaseLabel(label string) string {
	base, _, ok := split(label)
	if !ok {
		return label
	}
	return base
}

// split separates "turnLeft_3" into ("turnLeft", 3, true).
func split(label string) (string, int, bool) {
	i := strings.LastIndexByte(label, '_')
	if i < 0 || i == len(label)-1 {
		return label, 0, false
	}
	suffix := label[i+1:]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return label, 0, false
		}
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return label, 0, false
	}
	return label[:i], n, true
}

// Allocator is the per-run table of base label to highest suffix used.
// Counters only ever grow. It is not safe for concurrent use.
type Allocator struct {
	counts map[string]int
}

// NewAllocator returns an allocator seeded with the given counters.
func NewAllocator(seed map[string]int) *Allocator {
	a := &Allocator{counts: make(map[string]int, len(seed))}
	for base, n := range seed {
		if n > a.counts[base] {
			a.counts[base] = n
		}
	}
	return a
}

// Next returns the next unique label for the base of label.
func (a *Allocator) Next(label string) string {
	base := BaseLabel(label)
	a.counts[base]++
	return fmt.Sprintf("%s_%d", base, a.counts[base])
}

// Observe records a label that is already in use so that Next never hands
// it out again. Labels without a numeric suffix register their base with
// no count.
func (a *Allocator) Observe(label string) {
	base, n, ok := split(label)
	if _, seen := a.counts[base]; !seen {
		a.counts[base] = 0
	}
	if ok && n > a.counts[base] {
		a.counts[base] = n
	}
}

// Snapshot copies the counter table.
func (a *Allocator) Snapshot() map[string]int {
	out := make(map[string]int, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}
