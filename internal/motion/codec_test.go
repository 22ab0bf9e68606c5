package motion

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recorderCSV = `time_ms,acc_x,acc_y,acc_z,gyro_x,gyro_y,gyro_z,label,segment_id
0,0.1,0.2,9.8,1,2,3,left,left_1
20,0.2,,9.7,1,2,3,left,left_1
40,0.3,0.4,9.6,1,2,3,,
`

func TestParseCSV_RecorderExport(t *testing.T) {
	stream, err := ParseCSV(strings.NewReader(recorderCSV), "motion_anna_pixel.csv")
	require.NoError(t, err)

	assert.Equal(t, "motion_anna_pixel.csv", stream.Source)
	assert.Equal(t, AllAxesSet, stream.Axes)
	assert.False(t, stream.HasEvent)
	assert.True(t, stream.HasLabel)
	assert.True(t, stream.HasSegmentID)
	require.Equal(t, 3, stream.Len())

	first := stream.Samples[0]
	assert.Equal(t, 0.0, first.TimeMs)
	assert.Equal(t, 9.8, first.Value(AccZ))
	assert.Equal(t, "left", first.Label)
	assert.Equal(t, "left_1", first.SegmentID)

	// Empty sensor cell is a missing reading, not zero.
	assert.True(t, math.IsNaN(stream.Samples[1].Value(AccY)))
	assert.Equal(t, "", stream.Samples[2].Label)
}

func TestParseCSV_ColumnOrderAndOptionalColumns(t *testing.T) {
	data := "event, acc_z ,time_ms\nROTATION_90_LEFT,9.8,0\n,9.7,10\n"

	stream, err := ParseCSV(strings.NewReader(data), "turn.csv")
	require.NoError(t, err)

	assert.True(t, stream.HasEvent)
	assert.False(t, stream.HasLabel)
	assert.True(t, stream.Axes.Has(AccZ))
	assert.False(t, stream.Axes.Has(AccX))
	assert.Equal(t, []Axis{AccZ}, stream.Axes.Axes())
	assert.Equal(t, "ROTATION_90_LEFT", stream.Samples[0].Event)
	assert.Equal(t, 10.0, stream.Samples[1].TimeMs)
	assert.True(t, math.IsNaN(stream.Samples[0].Value(AccX)))
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"empty", "", ErrEmptyRecording},
		{"no time column", "acc_x,acc_y\n1,2\n", ErrMissingColumn},
		{"bad timestamp", "time_ms,acc_x\nabc,1\n", ErrMalformedRow},
		{"bad reading", "time_ms,acc_x\n0,fast\n", ErrMalformedRow},
		{"ragged row", "time_ms,acc_x\n0,1,2\n", ErrMalformedRow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.data), "x.csv")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDecodeRecording_PrimaryUTF8WithBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("time_ms,acc_x,label\n0,1,gehen\n")...)

	stream, enc, err := DecodeRecording(data, "bom.csv", MustLookupEncoding("utf-8"), MustLookupEncoding("iso-8859-1"))
	require.NoError(t, err)
	assert.Equal(t, "utf-8", enc)
	assert.Equal(t, "gehen", stream.Samples[0].Label)
}

func TestDecodeRecording_FallbackLatin1(t *testing.T) {
	// "drück" in ISO-8859-1; a lone 0xFC is not valid UTF-8.
	data := []byte("time_ms,acc_x,label\n0,1,dr\xfcck\n")

	stream, enc, err := DecodeRecording(data, "latin1.csv", MustLookupEncoding("utf-8"), MustLookupEncoding("iso-8859-1"))
	require.NoError(t, err)
	assert.Equal(t, "iso-8859-1", enc)
	assert.Equal(t, "drück", stream.Samples[0].Label)
}

func TestDecodeRecording_BothFail(t *testing.T) {
	// Invalid UTF-8 and, once read as Latin-1, still no time_ms column.
	data := []byte("zeit\xff,acc_x\n0,1\n")

	_, _, err := DecodeRecording(data, "broken.csv", MustLookupEncoding("utf-8"), MustLookupEncoding("iso-8859-1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidText))
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Contains(t, err.Error(), "as utf-8")
	assert.Contains(t, err.Error(), "as iso-8859-1")
}

func TestLookupEncoding_Unknown(t *testing.T) {
	_, err := LookupEncoding("klingon-8")
	assert.Error(t, err)
}

func TestWriteSamplesCSV(t *testing.T) {
	stream, err := ParseCSV(strings.NewReader(recorderCSV), "in.csv")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteSamplesCSV(&buf, stream, true))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(SampleColumns, ","), lines[0])
	assert.Equal(t, "0,0.1,0.2,9.8,1,2,3,,left,left_1", lines[1])
	assert.Equal(t, "20,0.2,,9.7,1,2,3,,left,left_1", lines[2])

	buf.Reset()
	require.NoError(t, WriteSamplesCSV(&buf, stream, false))
	assert.False(t, strings.HasPrefix(buf.String(), ColTimeMs))

	// The written file reads back to the same samples.
	buf.Reset()
	require.NoError(t, WriteSamplesCSV(&buf, stream, true))
	back, err := ParseCSV(&buf, "out.csv")
	require.NoError(t, err)
	assert.Equal(t, stream.Len(), back.Len())
	assert.Equal(t, stream.Samples[0].Values, back.Samples[0].Values)
}

func TestStreamColumnRoundTrip(t *testing.T) {
	stream := &Stream{Axes: AllAxesSet, Samples: make([]Sample, 3)}
	stream.SetColumn(GyroY, []float64{1, 2, 3})

	clone := stream.Clone()
	clone.SetColumn(GyroY, []float64{9, 9, 9})

	assert.Equal(t, []float64{1, 2, 3}, stream.Column(GyroY))
	assert.Equal(t, []float64{9, 9, 9}, clone.Column(GyroY))
}

func TestSegmentColumnAbsentAxis(t *testing.T) {
	seg := Segment{Axes: AxisSet(0).With(AccX), Samples: []Sample{{Values: [NumAxes]float64{1}}}}

	assert.Equal(t, []float64{1}, seg.Column(AccX))
	assert.Nil(t, seg.Column(GyroZ))
}

func TestAxisString(t *testing.T) {
	assert.Equal(t, "acc_x", AccX.String())
	assert.Equal(t, "gyro_z", GyroZ.String())
	assert.Equal(t, "unknown", Axis(42).String())
}

func TestFinite(t *testing.T) {
	assert.Equal(t, []float64{1, 3}, Finite([]float64{1, math.NaN(), 3, math.Inf(1)}))
}
