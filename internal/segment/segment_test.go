package segment

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion-dataset/internal/config"
	"github.com/banshee-data/motion-dataset/internal/motion"
)

type span struct {
	Label string
	First float64
	Len   int
}

func spans(segs []motion.Segment) []span {
	out := make([]span, len(segs))
	for i, s := range segs {
		out[i] = span{Label: s.SourceLabel, First: s.Samples[0].TimeMs, Len: s.Len()}
	}
	return out
}

// labeled builds a stream whose row i has time i and label labels[i].
func labeled(labels ...string) *motion.Stream {
	s := &motion.Stream{Source: "rec.csv", Axes: motion.AllAxesSet, HasLabel: true}
	for i, l := range labels {
		s.Samples = append(s.Samples, motion.Sample{TimeMs: float64(i), Label: l})
	}
	return s
}

func TestLabelRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		labels []string
		lim    Limits
		want   []span
	}{
		{
			name:   "gaps close runs",
			labels: []string{"", "A", "A", "", "B", "B", "B"},
			lim:    Limits{MinLength: 1},
			want:   []span{{"A", 1, 2}, {"B", 4, 3}},
		},
		{
			name:   "label change splits without gap",
			labels: []string{"A", "A", "B", "B", "A"},
			lim:    Limits{MinLength: 1},
			want:   []span{{"A", 0, 2}, {"B", 2, 2}, {"A", 4, 1}},
		},
		{
			name:   "short runs dropped",
			labels: []string{"", "A", "A", "", "B", "B", "B"},
			lim:    Limits{MinLength: 3},
			want:   []span{{"B", 4, 3}},
		},
		{
			name:   "cap keeps first segments",
			labels: []string{"A", "", "B", "", "C"},
			lim:    Limits{MinLength: 1, MaxPerStream: 2},
			want:   []span{{"A", 0, 1}, {"B", 2, 1}},
		},
		{
			name:   "whitespace label is empty",
			labels: []string{" ", "  ", "A"},
			lim:    Limits{MinLength: 1},
			want:   []span{{"A", 2, 1}},
		},
		{
			name:   "no labels",
			labels: []string{"", ""},
			lim:    Limits{MinLength: 1},
			want:   []span{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := spans(LabelRun{Limits: tt.lim}.Segment(labeled(tt.labels...)))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("segments mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMarker(t *testing.T) {
	t.Parallel()

	s := labeled(make([]string, 10)...)
	s.HasEvent = true
	s.Samples[0].Event = "X"
	s.Samples[5].Event = "Y"

	got := spans(Marker{Limits: Limits{MinLength: 1}}.Segment(s))
	want := []span{{"X", 1, 4}, {"Y", 6, 4}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
}

func TestMarker_RowsBeforeFirstMarkerIgnored(t *testing.T) {
	t.Parallel()

	s := labeled(make([]string, 8)...)
	s.Samples[3].Event = " ROTATION_90_LEFT "
	s.Samples[7].Event = "STOP"

	got := spans(Marker{Limits: Limits{MinLength: 1}}.Segment(s))
	// The trailing marker opens an empty segment, which is dropped.
	assert.Equal(t, []span{{"ROTATION_90_LEFT", 4, 3}}, got)
}

func TestMarker_AdjacentMarkersAndCap(t *testing.T) {
	t.Parallel()

	s := labeled(make([]string, 12)...)
	for _, i := range []int{0, 1, 4, 8} {
		s.Samples[i].Event = "M"
	}

	all := Marker{Limits: Limits{MinLength: 1}}.Segment(s)
	assert.Equal(t, []span{{"M", 2, 2}, {"M", 5, 3}, {"M", 9, 3}}, spans(all))

	capped := Marker{Limits: Limits{MinLength: 1, MaxPerStream: 2}}.Segment(s)
	assert.Len(t, capped, 2)
}

func TestSegmentID(t *testing.T) {
	t.Parallel()

	s := labeled("walk", "walk", "walk", "", "", "turn", "turn")
	s.HasSegmentID = true
	for i, id := range []string{"w_1", "w_1", "w_2", "u_1", "u_1", "", "t_1"} {
		s.Samples[i].SegmentID = id
	}

	got := spans(SegmentID{Limits: Limits{MinLength: 1}}.Segment(s))
	want := []span{{"walk", 0, 2}, {"walk", 2, 1}, {"u_1", 3, 2}, {"turn", 6, 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
}

func TestSegmentsCarryStreamContext(t *testing.T) {
	t.Parallel()

	s := labeled("A", "A", "A")
	s.Axes = motion.AxisSet(0).With(motion.AccX).With(motion.AccY)

	segs := LabelRun{Limits: Limits{MinLength: 1}}.Segment(s)
	require.Len(t, segs, 1)
	assert.Equal(t, s.Axes, segs[0].Axes)
	assert.Equal(t, "rec.csv", segs[0].Source)
	assert.Empty(t, segs[0].Label)

	// Segment samples are copies.
	segs[0].Samples[0].Label = "changed"
	assert.Equal(t, "A", s.Samples[0].Label)
}

func TestMinLengthInvariant(t *testing.T) {
	t.Parallel()

	labels := []string{}
	for i, n := range []int{3, 25, 19, 20, 1, 40} {
		for range n {
			labels = append(labels, string(rune('a'+i)))
		}
	}
	segs := LabelRun{Limits: Limits{MinLength: 20}}.Segment(labeled(labels...))
	require.Len(t, segs, 3)
	for _, seg := range segs {
		assert.GreaterOrEqual(t, seg.Len(), 20)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	for mode, want := range map[string]Policy{
		config.SegmentByMarker:    Marker{},
		config.SegmentByLabelRun:  LabelRun{},
		config.SegmentBySegmentID: SegmentID{},
	} {
		cfg := config.EmptyPipelineConfig()
		cfg.Segmentation = &mode
		p, err := New(cfg)
		require.NoError(t, err)
		assert.IsType(t, want, p)
	}

	bad := "windows"
	cfg := config.EmptyPipelineConfig()
	cfg.Segmentation = &bad
	_, err := New(cfg)
	assert.Error(t, err)

	p, err := New(config.DefaultPipelineConfig())
	require.NoError(t, err)
	assert.Equal(t, LabelRun{Limits: Limits{MinLength: 20}}, p)
}
