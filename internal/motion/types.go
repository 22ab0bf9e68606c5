// Package motion defines the recording data model shared by every stage of
// the dataset pipeline: samples, streams read from one recording file, and
// the labeled segments cut out of them.
package motion

import "math"

// Axis identifies one sensor channel.
type Axis int

const (
	AccX Axis = iota
	AccY
	AccZ
	GyroX
	GyroY
	GyroZ
)

// NumAxes is the number of sensor channels carried by a Sample.
const NumAxes = 6

var axisNames = [NumAxes]string{"acc_x", "acc_y", "acc_z", "gyro_x", "gyro_y", "gyro_z"}

// AllAxes lists the sensor channels in column order.
var AllAxes = [NumAxes]Axis{AccX, AccY, AccZ, GyroX, GyroY, GyroZ}

// AccelAxes lists the accelerometer channels; they form the tensor channels.
var AccelAxes = [3]Axis{AccX, AccY, AccZ}

func (a Axis) String() string {
	if a < 0 || int(a) >= NumAxes {
		return "unknown"
	}
	return axisNames[a]
}

// AxisSet is a bitmask of the channels present in a recording.
type AxisSet uint8

// AllAxesSet has every channel present.
const AllAxesSet AxisSet = 1<<NumAxes - 1

// Has reports whether a is in the set.
func (s AxisSet) Has(a Axis) bool { return s&(1<<uint(a)) != 0 }

// With returns the set with a added.
func (s AxisSet) With(a Axis) AxisSet { return s | 1<<uint(a) }

// Axes returns the present channels in column order.
func (s AxisSet) Axes() []Axis {
	var out []Axis
	for _, a := range AllAxes {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// Sample is one sensor reading. A missing reading is stored as NaN.
type Sample struct {
	TimeMs    float64
	Values    [NumAxes]float64
	Event     string
	Label     string
	SegmentID string
}

// Value returns the reading for one axis.
func (s Sample) Value(a Axis) float64 { return s.Values[a] }

// Stream is the ordered content of one recording file.
type Stream struct {
	Source string
	Axes   AxisSet

	HasEvent     bool
	HasLabel     bool
	HasSegmentID bool

	Samples []Sample
}

// Len returns the number of samples.
func (s *Stream) Len() int { return len(s.Samples) }

// Column copies one axis out of the stream.
func (s *Stream) Column(a Axis) []float64 {
	out := make([]float64, len(s.Samples))
	for i := range s.Samples {
		out[i] = s.Samples[i].Values[a]
	}
	return out
}

// SetColumn writes one axis back into the stream. The slice must have
// exactly Len() values.
func (s *Stream) SetColumn(a Axis, values []float64) {
	for i := range s.Samples {
		s.Samples[i].Values[a] = values[i]
	}
}

// Clone returns a deep copy so stages never mutate their input.
func (s *Stream) Clone() *Stream {
	c := *s
	c.Samples = make([]Sample, len(s.Samples))
	copy(c.Samples, s.Samples)
	return &c
}

// Segment is a contiguous run of samples sharing one semantic label.
type Segment struct {
	// SourceLabel is the label found in the recording.
	SourceLabel string
	// Label is the globally unique label assigned by the allocator.
	Label string
	// Axes are the channels the originating stream carried.
	Axes    AxisSet
	Source  string
	Samples []Sample
}

// Len returns the number of samples.
func (s Segment) Len() int { return len(s.Samples) }

// Column copies one axis out of the segment, or returns nil when the stream
// never carried that channel.
func (s Segment) Column(a Axis) []float64 {
	if !s.Axes.Has(a) {
		return nil
	}
	out := make([]float64, len(s.Samples))
	for i := range s.Samples {
		out[i] = s.Samples[i].Values[a]
	}
	return out
}

// Finite returns the finite values of xs in order.
func Finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
