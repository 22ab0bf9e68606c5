package segment

import (
	"strings"

	"github.com/banshee-data/motion-dataset/internal/motion"
)

// Marker starts a segment after every row with a non-empty event marker and
// ends it before the next marker or at the end of the stream. Marker rows
// themselves belong to no segment, nor do rows before the first marker.
type Marker struct {
	Limits
}

func (m Marker) Segment(stream *motion.Stream) []motion.Segment {
	c := newCollector(m.Limits, stream)
	label, start := "", -1
	for i, s := range stream.Samples {
		event := strings.TrimSpace(s.Event)
		if event == "" {
			continue
		}
		if start >= 0 && !c.add(label, start, i) {
			return c.out
		}
		label, start = event, i+1
	}
	if start >= 0 {
		c.add(label, start, stream.Len())
	}
	return c.out
}

// LabelRun emits maximal runs of consecutive rows sharing one non-empty
// label. An unlabeled row closes the open run.
type LabelRun struct {
	Limits
}

func (l LabelRun) Segment(stream *motion.Stream) []motion.Segment {
	return runs(l.Limits, stream, func(s motion.Sample) (string, string) {
		label := strings.TrimSpace(s.Label)
		return label, label
	})
}

// SegmentID emits maximal runs of consecutive rows sharing one non-empty
// segment identifier. The segment takes the label of its first row, or the
// identifier itself when that row is unlabeled.
type SegmentID struct {
	Limits
}

func (p SegmentID) Segment(stream *motion.Stream) []motion.Segment {
	return runs(p.Limits, stream, func(s motion.Sample) (string, string) {
		id := strings.TrimSpace(s.SegmentID)
		label := strings.TrimSpace(s.Label)
		if label == "" {
			label = id
		}
		return id, label
	})
}

// runs groups consecutive samples by the key returned from keyOf. An empty
// key belongs to no run. The label of a run is taken from its first sample.
func runs(lim Limits, stream *motion.Stream, keyOf func(motion.Sample) (key, label string)) []motion.Segment {
	c := newCollector(lim, stream)
	key, label, start := "", "", -1
	for i, s := range stream.Samples {
		k, l := keyOf(s)
		if k == key && start >= 0 {
			continue
		}
		if start >= 0 && !c.add(label, start, i) {
			return c.out
		}
		key, label, start = k, l, i
		if k == "" {
			start = -1
		}
	}
	if start >= 0 {
		c.add(label, start, stream.Len())
	}
	return c.out
}
