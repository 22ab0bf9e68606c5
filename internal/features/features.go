// Package features computes the fixed statistical feature row of a segment
// and reads and writes the feature dataset CSV.
package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/motion-dataset/internal/labels"
	"github.com/banshee-data/motion-dataset/internal/motion"
)

// StatColumns are the statistic columns of a feature row, in order.
var StatColumns = []string{
	"num_samples",
	"mean_acc_x", "std_acc_x", "min_acc_x", "max_acc_x",
	"mean_acc_y", "std_acc_y", "min_acc_y", "max_acc_y",
	"mean_acc_z", "std_acc_z", "min_acc_z", "max_acc_z",
	"range_acc_y",
	"energy_acc_z",
	"mean_gyro_x",
	"std_gyro_y",
	"max_gyro_z",
	"mean_acc_xy", "std_acc_xy", "max_acc_xy",
}

// Label columns follow the statistics.
const (
	ColLabel        = "label"
	ColBaseLabel    = "base_label"
	ColLabelEncoded = "label_encoded"
)

// Columns returns the full header of the feature dataset.
func Columns() []string {
	out := make([]string, 0, len(StatColumns)+3)
	out = append(out, StatColumns...)
	return append(out, ColLabel, ColBaseLabel, ColLabelEncoded)
}

// Unencoded marks a row whose numeric label has not been assigned yet.
const Unencoded = -1

// Row is one feature vector. Values follow StatColumns; a statistic that
// could not be computed is NaN.
type Row struct {
	Values    []float64
	Label     string
	BaseLabel string
	Encoded   int
}

// Value returns the named statistic, or NaN for an unknown name.
func (r Row) Value(name string) float64 {
	for i, c := range StatColumns {
		if c == name {
			return r.Values[i]
		}
	}
	return math.NaN()
}

// Extract computes the feature row of a segment whose unique label has
// been assigned. It is pure: the same segment always yields the same row.
// Missing readings are skipped; an axis with no usable reading produces NaN
// statistics.
func Extract(seg motion.Segment) Row {
	v := make([]float64, 0, len(StatColumns))
	v = append(v, float64(seg.Len()))

	acc := [3][]float64{}
	for i, a := range motion.AccelAxes {
		acc[i] = finiteColumn(seg, a)
		v = append(v, mean(acc[i]), stdDev(acc[i]), minOf(acc[i]), maxOf(acc[i]))
	}
	v = append(v, maxOf(acc[1])-minOf(acc[1]))
	v = append(v, energy(acc[2]))
	v = append(v, mean(finiteColumn(seg, motion.GyroX)))
	v = append(v, stdDev(finiteColumn(seg, motion.GyroY)))
	v = append(v, maxOf(finiteColumn(seg, motion.GyroZ)))

	xy := horizontalMagnitude(seg)
	v = append(v, mean(xy), stdDev(xy), maxOf(xy))

	return Row{
		Values:    v,
		Label:     seg.Label,
		BaseLabel: labels.BaseLabel(seg.Label),
		Encoded:   Unencoded,
	}
}

func finiteColumn(seg motion.Segment, a motion.Axis) []float64 {
	col := seg.Column(a)
	if col == nil {
		return nil
	}
	return motion.Finite(col)
}

// horizontalMagnitude is sqrt(acc_x² + acc_y²) for every sample where both
// readings exist.
func horizontalMagnitude(seg motion.Segment) []float64 {
	if !seg.Axes.Has(motion.AccX) || !seg.Axes.Has(motion.AccY) {
		return nil
	}
	var out []float64
	for _, s := range seg.Samples {
		x, y := s.Value(motion.AccX), s.Value(motion.AccY)
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			continue
		}
		out = append(out, math.Hypot(x, y))
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}

// stdDev is the sample standard deviation; a single reading gives NaN.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	return stat.StdDev(xs, nil)
}

func minOf(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return floats.Min(xs)
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return floats.Max(xs)
}

func energy(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return floats.Dot(xs, xs)
}
