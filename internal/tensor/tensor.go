// Package tensor turns segments into fixed-length accelerometer matrices
// and one-hot label vectors, and writes them as NumPy arrays.
package tensor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/motion-dataset/internal/labels"
	"github.com/banshee-data/motion-dataset/internal/motion"
)

// Channels is the number of columns of a tensor sample.
const Channels = len(motion.AccelAxes)

// ErrMissingChannel is returned when a segment's stream lacks an
// accelerometer axis.
var ErrMissingChannel = errors.New("missing accelerometer channel")

// Sample is one fixed-length tensor and the base label it belongs to.
type Sample struct {
	X         *mat.Dense
	BaseLabel string
	Source    string
}

// Resample returns an L×3 matrix of acc_x, acc_y, acc_z. Shorter input is
// padded with zero rows at the end, longer input is truncated to its first
// L rows. Missing readings become zero.
func Resample(samples []motion.Sample, length int) *mat.Dense {
	m := mat.NewDense(length, Channels, nil)
	for i := 0; i < length && i < len(samples); i++ {
		for c, a := range motion.AccelAxes {
			v := samples[i].Value(a)
			if math.IsNaN(v) {
				continue
			}
			m.Set(i, c, v)
		}
	}
	return m
}

// FromSegment resamples a segment, failing if its stream did not carry all
// accelerometer axes.
func FromSegment(seg motion.Segment, length int) (Sample, error) {
	for _, a := range motion.AccelAxes {
		if !seg.Axes.Has(a) {
			return Sample{}, fmt.Errorf("%s: %s: %w", seg.Source, a, ErrMissingChannel)
		}
	}
	return Sample{
		X:         Resample(seg.Samples, length),
		BaseLabel: labels.BaseLabel(seg.Label),
		Source:    seg.Source,
	}, nil
}

// OneHot returns an n×C matrix with a single one per row at the index of
// that row's label in classes, or nil when there are no labels. Labels not
// in classes yield an error.
func OneHot(baseLabels []string, classes []string) (*mat.Dense, error) {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	if len(baseLabels) == 0 {
		return nil, nil
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("no classes for %d labels", len(baseLabels))
	}
	y := mat.NewDense(len(baseLabels), len(classes), nil)
	for i, l := range baseLabels {
		col, ok := index[l]
		if !ok {
			return nil, fmt.Errorf("label %q not in classes", l)
		}
		y.Set(i, col, 1)
	}
	return y, nil
}
