// Package segment cuts labeled segments out of a conditioned stream.
//
// Three policies are available: explicit event markers, runs of identical
// labels, and runs of identical segment identifiers. Every policy drops
// segments shorter than the configured minimum and can cap how many
// segments a single stream contributes.
package segment

import (
	"fmt"

	"github.com/banshee-data/motion-dataset/internal/config"
	"github.com/banshee-data/motion-dataset/internal/motion"
)

// Policy splits a stream into segments in stream order. Label on the
// returned segments is left empty for the allocator to fill.
type Policy interface {
	Segment(stream *motion.Stream) []motion.Segment
}

// Limits bound what a policy emits.
type Limits struct {
	// MinLength is the smallest number of samples a segment may have.
	MinLength int
	// MaxPerStream caps the number of segments per stream; 0 means no cap.
	MaxPerStream int
}

// New builds the policy selected by cfg.
func New(cfg *config.PipelineConfig) (Policy, error) {
	lim := Limits{
		MinLength:    cfg.GetMinSegmentLength(),
		MaxPerStream: cfg.GetMaxSegmentsPerStream(),
	}
	switch mode := cfg.GetSegmentation(); mode {
	case config.SegmentByMarker:
		return Marker{Limits: lim}, nil
	case config.SegmentByLabelRun:
		return LabelRun{Limits: lim}, nil
	case config.SegmentBySegmentID:
		return SegmentID{Limits: lim}, nil
	default:
		return nil, fmt.Errorf("unknown segmentation %q", mode)
	}
}

// collector accumulates candidate segments and applies Limits.
type collector struct {
	lim    Limits
	stream *motion.Stream
	out    []motion.Segment
}

func newCollector(lim Limits, stream *motion.Stream) *collector {
	return &collector{lim: lim, stream: stream}
}

// add keeps samples[start:end] as a segment labeled label when it is long
// enough and the cap is not reached. It reports whether more segments may
// still be accepted.
func (c *collector) add(label string, start, end int) bool {
	if c.full() {
		return false
	}
	if end-start >= max(c.lim.MinLength, 1) {
		samples := make([]motion.Sample, end-start)
		copy(samples, c.stream.Samples[start:end])
		c.out = append(c.out, motion.Segment{
			SourceLabel: label,
			Axes:        c.stream.Axes,
			Source:      c.stream.Source,
			Samples:     samples,
		})
	}
	return !c.full()
}

func (c *collector) full() bool {
	return c.lim.MaxPerStream > 0 && len(c.out) >= c.lim.MaxPerStream
}
