package tensor

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/motion-dataset/internal/motion"
)

func ramp(n int) []motion.Sample {
	out := make([]motion.Sample, n)
	for i := range out {
		v := float64(i + 1)
		out[i] = motion.Sample{TimeMs: float64(i * 20), Values: [motion.NumAxes]float64{v, 10 * v, 100 * v, -1, -1, -1}}
	}
	return out
}

func TestResample_Boundaries(t *testing.T) {
	t.Parallel()

	const L = 100

	t.Run("exact length unchanged", func(t *testing.T) {
		m := Resample(ramp(L), L)
		r, c := m.Dims()
		assert.Equal(t, L, r)
		assert.Equal(t, 3, c)
		assert.Equal(t, []float64{1, 10, 100}, m.RawRowView(0))
		assert.Equal(t, []float64{100, 1000, 10000}, m.RawRowView(L-1))
	})

	t.Run("one short gets a zero last row", func(t *testing.T) {
		m := Resample(ramp(L-1), L)
		assert.Equal(t, []float64{99, 990, 9900}, m.RawRowView(L-2))
		assert.Equal(t, []float64{0, 0, 0}, m.RawRowView(L-1))
	})

	t.Run("one long drops the last row", func(t *testing.T) {
		m := Resample(ramp(L+1), L)
		r, _ := m.Dims()
		assert.Equal(t, L, r)
		assert.Equal(t, []float64{100, 1000, 10000}, m.RawRowView(L-1))
	})

	t.Run("missing reading is zero", func(t *testing.T) {
		s := ramp(2)
		s[1].Values[motion.AccY] = math.NaN()
		m := Resample(s, 3)
		assert.Equal(t, 0.0, m.At(1, 1))
		assert.Equal(t, 2.0, m.At(1, 0))
	})
}

func TestFromSegment(t *testing.T) {
	t.Parallel()

	seg := motion.Segment{Label: "jump_3", Source: "a.csv", Axes: motion.AllAxesSet, Samples: ramp(5)}
	s, err := FromSegment(seg, 4)
	require.NoError(t, err)
	assert.Equal(t, "jump", s.BaseLabel)
	r, _ := s.X.Dims()
	assert.Equal(t, 4, r)

	seg.Axes = motion.AxisSet(0).With(motion.AccX).With(motion.AccY)
	_, err = FromSegment(seg, 4)
	assert.True(t, errors.Is(err, ErrMissingChannel))
	assert.Contains(t, err.Error(), "acc_z")
}

func TestOneHot(t *testing.T) {
	t.Parallel()

	y, err := OneHot([]string{"walk", "jump", "walk"}, []string{"jump", "walk"})
	require.NoError(t, err)
	want := mat.NewDense(3, 2, []float64{
		0, 1,
		1, 0,
		0, 1,
	})
	assert.True(t, mat.Equal(want, y))

	_, err = OneHot([]string{"fly"}, []string{"jump"})
	assert.Error(t, err)

	y, err = OneHot(nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, y)
}

// readNPY parses what WriteNPY produces.
func readNPY(t *testing.T, data []byte) (string, []float64) {
	t.Helper()
	require.True(t, bytes.HasPrefix(data, []byte("\x93NUMPY\x01\x00")))
	hlen := int(binary.LittleEndian.Uint16(data[8:10]))
	require.Zero(t, (10+hlen)%64, "header must align to 64 bytes")
	header := string(data[10 : 10+hlen])
	require.True(t, strings.HasSuffix(header, "\n"))

	body := data[10+hlen:]
	require.Zero(t, len(body)%8)
	vals := make([]float64, len(body)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[i*8:]))
	}
	return strings.TrimSpace(header), vals
}

func TestWriteX(t *testing.T) {
	t.Parallel()

	samples := []Sample{
		{X: Resample(ramp(2), 2), BaseLabel: "a"},
		{X: Resample(ramp(1), 2), BaseLabel: "b"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteX(&buf, samples, 2))

	header, vals := readNPY(t, buf.Bytes())
	assert.Equal(t, "{'descr': '<f8', 'fortran_order': False, 'shape': (2, 2, 3), }", header)
	assert.Equal(t, []float64{1, 10, 100, 2, 20, 200, 1, 10, 100, 0, 0, 0}, vals)
}

func TestWriteX_RejectsWrongLength(t *testing.T) {
	t.Parallel()

	err := WriteX(&bytes.Buffer{}, []Sample{{X: Resample(ramp(3), 3)}}, 2)
	assert.Error(t, err)
}

func TestWriteY(t *testing.T) {
	t.Parallel()

	y, err := OneHot([]string{"b", "a"}, []string{"a", "b"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteY(&buf, y, 2))
	header, vals := readNPY(t, buf.Bytes())
	assert.Contains(t, header, "'shape': (2, 2)")
	assert.Equal(t, []float64{0, 1, 1, 0}, vals)

	buf.Reset()
	require.NoError(t, WriteY(&buf, nil, 0))
	header, vals = readNPY(t, buf.Bytes())
	assert.Contains(t, header, "'shape': (0, 0)")
	assert.Empty(t, vals)
}

func TestWriteNPY_ShapeMismatch(t *testing.T) {
	err := WriteNPY(&bytes.Buffer{}, []int{2, 2}, []float64{1})
	assert.Error(t, err)
}

func TestWriteNPY_OneDimensional(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteNPY(&buf, []int{3}, []float64{1, 2, 3}))
	header, _ := readNPY(t, buf.Bytes())
	assert.Contains(t, header, "'shape': (3,)")
}

func TestWriteClasses(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteClasses(&buf, Classes{Classes: []string{"jump", "walk"}, Samples: 4, Length: 100, Axes: []string{"acc_x", "acc_y", "acc_z"}}))

	var got Classes
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []string{"jump", "walk"}, got.Classes)
	assert.Equal(t, 100, got.Length)
}
