package conditioner

import (
	"fmt"
	"math"

	"github.com/banshee-data/motion-dataset/internal/motion"
)

// MovingAverage replaces each reading with the mean of a centered window.
// Near the edges the window is clipped to the samples that exist. For an
// even width the window covers Width/2 samples before and Width/2-1 after.
type MovingAverage struct {
	Width int
}

// NewMovingAverage returns a moving average of the given width.
func NewMovingAverage(width int) (*MovingAverage, error) {
	if width < 1 {
		return nil, fmt.Errorf("moving average width must be >= 1, got %d", width)
	}
	return &MovingAverage{Width: width}, nil
}

// Condition smooths every present axis. When the stream carries segment
// identifiers each contiguous run of one identifier is smoothed on its own,
// so windows never straddle two recorded gestures.
func (m *MovingAverage) Condition(stream *motion.Stream) (*motion.Stream, error) {
	out := stream.Clone()
	runs := [][2]int{{0, out.Len()}}
	if stream.HasSegmentID {
		runs = segmentIDRuns(stream.Samples)
	}
	for _, a := range out.Axes.Axes() {
		col := out.Column(a)
		for _, r := range runs {
			copy(col[r[0]:r[1]], centeredMean(col[r[0]:r[1]], m.Width))
		}
		out.SetColumn(a, col)
	}
	return out, nil
}

// segmentIDRuns returns [start, end) bounds of consecutive rows sharing a
// segment identifier. Rows with an empty identifier form their own runs.
func segmentIDRuns(samples []motion.Sample) [][2]int {
	var runs [][2]int
	start := 0
	for i := 1; i <= len(samples); i++ {
		if i == len(samples) || samples[i].SegmentID != samples[start].SegmentID {
			runs = append(runs, [2]int{start, i})
			start = i
		}
	}
	return runs
}

func centeredMean(xs []float64, width int) []float64 {
	after := (width - 1) / 2
	before := width - 1 - after
	out := make([]float64, len(xs))
	for i := range xs {
		lo := max(0, i-before)
		hi := min(len(xs)-1, i+after)
		sum, n := 0.0, 0
		for j := lo; j <= hi; j++ {
			if math.IsNaN(xs[j]) {
				continue
			}
			sum += xs[j]
			n++
		}
		if n == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}
