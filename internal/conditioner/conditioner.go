// Package conditioner smooths recording streams before segmentation. A
// Conditioner never reorders, drops or adds samples and never touches the
// filesystem.
package conditioner

import (
	"errors"
	"fmt"

	"github.com/banshee-data/motion-dataset/internal/config"
	"github.com/banshee-data/motion-dataset/internal/motion"
)

var (
	// ErrInvalidSampleRate is returned when the rate derived from timestamps
	// is not a positive finite number.
	ErrInvalidSampleRate = errors.New("invalid sample rate")
	// ErrCutoffOutOfRange is returned when the normalized cutoff is outside (0, 1).
	ErrCutoffOutOfRange = errors.New("cutoff out of range")
	// ErrStreamTooShort is returned when a stream cannot be padded for
	// forward-backward filtering.
	ErrStreamTooShort = errors.New("stream too short for filter")
	// ErrNonFiniteSample is returned when an axis to be filtered holds NaN or Inf.
	ErrNonFiniteSample = errors.New("non-finite sample")
)

// Conditioner transforms a stream into a conditioned stream of the same
// length. The input stream is left untouched.
type Conditioner interface {
	Condition(stream *motion.Stream) (*motion.Stream, error)
}

// Func adapts a plain function to the Conditioner interface.
type Func func(stream *motion.Stream) (*motion.Stream, error)

// Condition calls f.
func (f Func) Condition(stream *motion.Stream) (*motion.Stream, error) { return f(stream) }

// PassThrough returns a copy of the stream unchanged.
var PassThrough Conditioner = Func(func(stream *motion.Stream) (*motion.Stream, error) {
	return stream.Clone(), nil
})

// New builds the conditioner selected by cfg.
func New(cfg *config.PipelineConfig) (Conditioner, error) {
	switch mode := cfg.GetFilter(); mode {
	case config.FilterMovingAverage:
		return NewMovingAverage(cfg.GetMovingAverageWindow())
	case config.FilterLowPass:
		return NewLowPass(cfg.GetLowPassCutoffHz(), cfg.GetLowPassOrder())
	case config.FilterNone:
		return PassThrough, nil
	default:
		return nil, fmt.Errorf("unknown filter %q", mode)
	}
}
