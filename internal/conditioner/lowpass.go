package conditioner

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/motion-dataset/internal/motion"
)

// LowPass is a zero-phase Butterworth low-pass filter. The sample rate is
// derived per stream from the mean timestamp spacing.
type LowPass struct {
	CutoffHz float64
	Order    int
}

// NewLowPass returns a low-pass conditioner.
func NewLowPass(cutoffHz float64, order int) (*LowPass, error) {
	if !(cutoffHz > 0) || math.IsInf(cutoffHz, 0) {
		return nil, fmt.Errorf("lowpass cutoff must be positive, got %v", cutoffHz)
	}
	if order < 1 {
		return nil, fmt.Errorf("lowpass order must be >= 1, got %d", order)
	}
	return &LowPass{CutoffHz: cutoffHz, Order: order}, nil
}

// Condition filters every present axis forward and backward. Any failure
// returns no stream at all.
func (l *LowPass) Condition(stream *motion.Stream) (*motion.Stream, error) {
	fs, err := SampleRate(stream)
	if err != nil {
		return nil, err
	}
	b, a, err := Butterworth(l.Order, l.CutoffHz/(0.5*fs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stream.Source, err)
	}

	out := stream.Clone()
	for _, axis := range out.Axes.Axes() {
		col := out.Column(axis)
		if len(motion.Finite(col)) != len(col) {
			return nil, fmt.Errorf("%s: %s: %w", stream.Source, axis, ErrNonFiniteSample)
		}
		y, err := FiltFilt(b, a, col)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", stream.Source, axis, err)
		}
		out.SetColumn(axis, y)
	}
	return out, nil
}

// SampleRate returns 1 / mean(Δt) in Hz for a stream timestamped in
// milliseconds.
func SampleRate(stream *motion.Stream) (float64, error) {
	if stream.Len() < 2 {
		return 0, fmt.Errorf("%s: %d samples: %w", stream.Source, stream.Len(), ErrInvalidSampleRate)
	}
	first := stream.Samples[0].TimeMs
	last := stream.Samples[stream.Len()-1].TimeMs
	meanDt := (last - first) / 1000 / float64(stream.Len()-1)
	fs := 1 / meanDt
	if !(fs > 0) || math.IsInf(fs, 0) || math.IsNaN(fs) {
		return 0, fmt.Errorf("%s: mean interval %vs: %w", stream.Source, meanDt, ErrInvalidSampleRate)
	}
	return fs, nil
}

// Butterworth designs a digital low-pass filter of the given order with
// normalized cutoff wn (1 is the Nyquist frequency). It returns the
// numerator b and denominator a, with a[0] == 1.
func Butterworth(order int, wn float64) (b, a []float64, err error) {
	if !(wn > 0 && wn < 1) {
		return nil, nil, fmt.Errorf("normalized cutoff %v: %w", wn, ErrCutoffOutOfRange)
	}
	const fs2 = 4.0 // bilinear transform with fs = 2
	warped := fs2 * math.Tan(math.Pi*wn/2)

	// Analog prototype poles on the left half of the unit circle, scaled to
	// the pre-warped cutoff, then mapped to the z-plane.
	poles := make([]complex128, order)
	gain := complex(1, 0)
	for k := range order {
		theta := math.Pi * float64(2*k+order+1) / float64(2*order)
		p := complex(warped, 0) * cmplx.Exp(complex(0, theta))
		gain *= complex(fs2, 0) - p
		poles[k] = (complex(fs2, 0) + p) / (complex(fs2, 0) - p)
	}
	k := math.Pow(warped, float64(order)) / real(gain)

	// All zeros sit at z = -1, so the numerator is k times the binomial row.
	b = make([]float64, order+1)
	b[0] = 1
	for i := 1; i <= order; i++ {
		for j := i; j > 0; j-- {
			b[j] += b[j-1]
		}
	}
	floats.Scale(k, b)

	a = realPoly(poles)
	return b, a, nil
}

// realPoly expands prod(z - r) for conjugate-closed roots r and returns the
// real coefficients, highest power first.
func realPoly(roots []complex128) []float64 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, v := range c {
			next[i] += v
			next[i+1] -= v * r
		}
		c = next
	}
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = real(v)
	}
	return out
}

// FiltFilt applies the filter forward and backward for zero phase. The
// signal is extended at both ends by odd reflection of 3*max(len(a), len(b))
// samples and each pass starts from the filter's steady state.
func FiltFilt(b, a, x []float64) ([]float64, error) {
	padlen := 3 * max(len(a), len(b))
	if len(x) <= padlen {
		return nil, fmt.Errorf("%d samples, need more than %d: %w", len(x), padlen, ErrStreamTooShort)
	}
	zi, err := lfilterZi(b, a)
	if err != nil {
		return nil, err
	}

	n := len(x)
	ext := make([]float64, 0, n+2*padlen)
	for i := padlen; i > 0; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-padlen; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}

	z := make([]float64, len(zi))
	floats.ScaleTo(z, ext[0], zi)
	y := lfilter(b, a, ext, z)

	reverse(y)
	floats.ScaleTo(z, y[0], zi)
	y = lfilter(b, a, y, z)
	reverse(y)

	return y[padlen : padlen+n], nil
}

// lfilter runs a direct form II transposed filter with initial state z,
// which is consumed.
func lfilter(b, a, x, z []float64) []float64 {
	y := make([]float64, len(x))
	order := len(z)
	for i, xi := range x {
		yi := b[0]*xi + z[0]
		for j := 0; j < order-1; j++ {
			z[j] = b[j+1]*xi + z[j+1] - a[j+1]*yi
		}
		z[order-1] = b[order]*xi - a[order]*yi
		y[i] = yi
	}
	return y
}

// lfilterZi returns the state that makes the filter's step response start
// at steady state: (I - Aᵀ) zi = b[1:] - a[1:]·b[0], where A is the
// companion matrix of a.
func lfilterZi(b, a []float64) ([]float64, error) {
	n := max(len(a), len(b)) - 1
	if n < 1 {
		return nil, fmt.Errorf("filter order must be >= 1")
	}
	bb := make([]float64, n+1)
	aa := make([]float64, n+1)
	copy(bb, b)
	copy(aa, a)
	if aa[0] != 1 {
		floats.Scale(1/aa[0], bb)
		floats.Scale(1/aa[0], aa)
	}

	m := mat.NewDense(n, n, nil)
	for i := range n {
		for j := range n {
			var comp float64 // companion(a)ᵀ[i][j] = companion(a)[j][i]
			switch {
			case j == 0:
				comp = -aa[i+1]
			case i == j-1:
				comp = 1
			}
			ident := 0.0
			if i == j {
				ident = 1
			}
			m.Set(i, j, ident-comp)
		}
	}
	rhs := mat.NewVecDense(n, nil)
	for i := range n {
		rhs.SetVec(i, bb[i+1]-aa[i+1]*bb[0])
	}

	var zi mat.VecDense
	if err := zi.SolveVec(m, rhs); err != nil {
		return nil, fmt.Errorf("solve initial conditions: %w", err)
	}
	return mat.Col(nil, 0, &zi), nil
}

func reverse(xs []float64) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}
