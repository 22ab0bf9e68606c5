package report

import (
	"bytes"
	"fmt"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion-dataset/internal/fsutil"
	"github.com/banshee-data/motion-dataset/internal/motion"
)

func seg(label string, axes motion.AxisSet, n int) motion.Segment {
	s := motion.Segment{Label: label, Axes: axes}
	for i := range n {
		v := float64(i)
		s.Samples = append(s.Samples, motion.Sample{TimeMs: v * 20, Values: [motion.NumAxes]float64{v, -v, 9.8, 0, 0, 0}})
	}
	return s
}

func TestCollector_CapsPerBaseLabel(t *testing.T) {
	t.Parallel()

	c := NewCollector(3)
	for i := 1; i <= 5; i++ {
		c.Add(seg(fmt.Sprintf("walk_%d", i), motion.AllAxesSet, 4))
	}
	c.Add(seg("jump_1", motion.AllAxesSet, 4))

	assert.Equal(t, []string{"jump", "walk"}, c.BaseLabels())
	walk := c.Segments("walk")
	require.Len(t, walk, 3)
	assert.Equal(t, "walk_1", walk[0].Label)
	assert.Equal(t, "walk_3", walk[2].Label)
}

func TestNewCollector_DefaultLimit(t *testing.T) {
	c := NewCollector(0)
	for i := range 30 {
		c.Add(seg(fmt.Sprintf("turn_%d", i+1), motion.AllAxesSet, 2))
	}
	assert.Len(t, c.Segments("turn"), DefaultMaxSegments)
}

func TestWriteOverlays(t *testing.T) {
	t.Parallel()

	mfs := fsutil.NewMemoryFileSystem()
	c := NewCollector(0)
	c.Add(seg("walk_1", motion.AllAxesSet, 30))
	c.Add(seg("walk_2", motion.AllAxesSet, 25))
	// No acc_z column: only two charts for this label.
	c.Add(seg("turn left_1", motion.AxisSet(0).With(motion.AccX).With(motion.AccY), 20))

	paths, err := WriteOverlays(mfs, "/reports/run", c)
	require.NoError(t, err)

	want := []string{
		filepath.Join("/reports/run", "turn_left_acc_x.png"),
		filepath.Join("/reports/run", "turn_left_acc_y.png"),
		filepath.Join("/reports/run", "walk_acc_x.png"),
		filepath.Join("/reports/run", "walk_acc_y.png"),
		filepath.Join("/reports/run", "walk_acc_z.png"),
	}
	assert.Equal(t, want, paths)

	data, err := mfs.ReadFile(want[2])
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), img.Bounds().Dy())
}

func TestWriteOverlays_Empty(t *testing.T) {
	t.Parallel()

	mfs := fsutil.NewMemoryFileSystem()
	paths, err := WriteOverlays(mfs, "/r", NewCollector(0))
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestGenerateColors(t *testing.T) {
	colors := generateColors(4)
	require.Len(t, colors, 4)
	assert.NotEqual(t, colors[0], colors[1])
	assert.Nil(t, generateColors(0))
}
