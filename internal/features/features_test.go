package features

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion-dataset/internal/motion"
)

func segmentOf(label string, axes motion.AxisSet, rows ...[motion.NumAxes]float64) motion.Segment {
	seg := motion.Segment{Label: label, SourceLabel: label, Axes: axes}
	for i, v := range rows {
		seg.Samples = append(seg.Samples, motion.Sample{TimeMs: float64(i * 20), Values: v})
	}
	return seg
}

func TestColumns(t *testing.T) {
	cols := Columns()
	require.Len(t, cols, len(StatColumns)+3)
	assert.Equal(t, "num_samples", cols[0])
	assert.Equal(t, []string{"label", "base_label", "label_encoded"}, cols[len(cols)-3:])
	assert.Equal(t, "range_acc_y", cols[13])
}

func TestExtract(t *testing.T) {
	t.Parallel()

	seg := segmentOf("turnLeft_4", motion.AllAxesSet,
		[motion.NumAxes]float64{3, 4, 1, 2, 1, 5},
		[motion.NumAxes]float64{0, 0, 2, 4, 3, 7},
		[motion.NumAxes]float64{6, 8, 3, 6, 5, 6},
	)
	row := Extract(seg)

	require.Len(t, row.Values, len(StatColumns))
	assert.Equal(t, "turnLeft_4", row.Label)
	assert.Equal(t, "turnLeft", row.BaseLabel)
	assert.Equal(t, Unencoded, row.Encoded)

	want := map[string]float64{
		"num_samples":  3,
		"mean_acc_x":   3,
		"std_acc_x":    3,
		"min_acc_x":    0,
		"max_acc_x":    6,
		"mean_acc_y":   4,
		"std_acc_y":    4,
		"mean_acc_z":   2,
		"std_acc_z":    1,
		"range_acc_y":  8,
		"energy_acc_z": 14,
		"mean_gyro_x":  4,
		"std_gyro_y":   2,
		"max_gyro_z":   7,
		"mean_acc_xy":  5,
		"std_acc_xy":   5,
		"max_acc_xy":   10,
	}
	for name, v := range want {
		assert.InDelta(t, v, row.Value(name), 1e-12, name)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	t.Parallel()

	seg := segmentOf("a_1", motion.AllAxesSet,
		[motion.NumAxes]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6},
		[motion.NumAxes]float64{1.1, 1.2, 1.3, 1.4, 1.5, 1.6},
	)
	if diff := cmp.Diff(Extract(seg), Extract(seg)); diff != "" {
		t.Errorf("Extract not deterministic:\n%s", diff)
	}
}

func TestExtract_MissingAxisIsNaN(t *testing.T) {
	t.Parallel()

	axes := motion.AxisSet(0).With(motion.AccX).With(motion.AccZ)
	seg := segmentOf("walk_1", axes,
		[motion.NumAxes]float64{1, 0, 2, 0, 0, 0},
		[motion.NumAxes]float64{3, 0, 4, 0, 0, 0},
	)
	row := Extract(seg)

	for _, name := range []string{
		"mean_acc_y", "std_acc_y", "min_acc_y", "max_acc_y", "range_acc_y",
		"mean_gyro_x", "std_gyro_y", "max_gyro_z",
		"mean_acc_xy", "std_acc_xy", "max_acc_xy",
	} {
		assert.True(t, math.IsNaN(row.Value(name)), "%s should be NaN, got %v", name, row.Value(name))
	}
	assert.Equal(t, 2.0, row.Value("mean_acc_x"))
	assert.Equal(t, 20.0, row.Value("energy_acc_z"))
}

func TestExtract_SkipsMissingReadings(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	seg := segmentOf("x_1", motion.AllAxesSet,
		[motion.NumAxes]float64{1, nan, nan, 0, 0, 0},
		[motion.NumAxes]float64{nan, nan, nan, 0, 0, 0},
		[motion.NumAxes]float64{3, nan, nan, 0, 0, 0},
	)
	row := Extract(seg)

	assert.Equal(t, 3.0, row.Value("num_samples"))
	assert.Equal(t, 2.0, row.Value("mean_acc_x"))
	assert.True(t, math.IsNaN(row.Value("mean_acc_y")), "all-missing axis")
	assert.True(t, math.IsNaN(row.Value("energy_acc_z")))
	assert.True(t, math.IsNaN(row.Value("mean_acc_xy")))
}

func TestExtract_SingleSampleStdIsNaN(t *testing.T) {
	t.Parallel()

	row := Extract(segmentOf("x_1", motion.AllAxesSet, [motion.NumAxes]float64{1, 2, 3, 4, 5, 6}))
	assert.True(t, math.IsNaN(row.Value("std_acc_x")))
	assert.Equal(t, 1.0, row.Value("mean_acc_x"))
}

func TestWriteRows(t *testing.T) {
	t.Parallel()

	row := Row{Values: make([]float64, len(StatColumns)), Label: "walk_2", BaseLabel: "walk", Encoded: Unencoded}
	row.Values[0] = 25
	row.Values[1] = math.NaN()

	var buf bytes.Buffer
	require.NoError(t, WriteRows(&buf, []Row{row}, true))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Columns(), ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "25,NaN,0,"))
	assert.True(t, strings.HasSuffix(lines[1], ",walk_2,walk,"))

	buf.Reset()
	row.Encoded = 3
	require.NoError(t, WriteRows(&buf, []Row{row}, false))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(buf.String()), ",walk_2,walk,3"))
}

func TestEncodeLabels(t *testing.T) {
	t.Parallel()

	classes, index := EncodeLabels([]string{"walk", "jump", "walk", "turnLeft"})
	assert.Equal(t, []string{"jump", "turnLeft", "walk"}, classes)
	assert.Equal(t, map[string]int{"jump": 0, "turnLeft": 1, "walk": 2}, index)
}

func TestReencode(t *testing.T) {
	t.Parallel()

	in := "num_samples,label,base_label,label_encoded\n" +
		"20,walk_1,walk,0\n" +
		"30,jump_1,jump,\n" +
		"25,walk_2,walk,\n"

	var out bytes.Buffer
	classes, n, err := Reencode(strings.NewReader(in), &out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"jump", "walk"}, classes)

	want := "num_samples,label,base_label,label_encoded\n" +
		"20,walk_1,walk,1\n" +
		"30,jump_1,jump,0\n" +
		"25,walk_2,walk,1\n"
	assert.Equal(t, want, out.String())
}

func TestReencode_AddsMissingColumns(t *testing.T) {
	t.Parallel()

	in := "num_samples,label\n20,turn_left_3\n"

	var out bytes.Buffer
	classes, _, err := Reencode(strings.NewReader(in), &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"turn_left"}, classes)
	assert.Equal(t, "num_samples,label,base_label,label_encoded\n20,turn_left_3,turn_left,0\n", out.String())
}

func TestReencode_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := Reencode(strings.NewReader("a,b\n1,2\n"), &bytes.Buffer{})
	assert.True(t, errors.Is(err, ErrNoLabelColumn))

	_, _, err = Reencode(strings.NewReader("label,x\nwalk_1,1\nwalk_2\n"), &bytes.Buffer{})
	assert.Error(t, err)

	classes, n, err := Reencode(strings.NewReader(""), &bytes.Buffer{})
	assert.NoError(t, err)
	assert.Empty(t, classes)
	assert.Zero(t, n)
}
