// Package report renders static overlay charts of the segments a run
// produced, one PNG per base label and accelerometer axis.
package report

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/motion-dataset/internal/fsutil"
	"github.com/banshee-data/motion-dataset/internal/labels"
	"github.com/banshee-data/motion-dataset/internal/motion"
	"github.com/banshee-data/motion-dataset/internal/security"
)

// DefaultMaxSegments caps the segments drawn per base label.
const DefaultMaxSegments = 25

// Collector keeps the first segments of each base label for plotting.
type Collector struct {
	limit   int
	byLabel map[string][]motion.Segment
}

// NewCollector returns a collector keeping at most limit segments per base
// label; limit <= 0 uses DefaultMaxSegments.
func NewCollector(limit int) *Collector {
	if limit <= 0 {
		limit = DefaultMaxSegments
	}
	return &Collector{limit: limit, byLabel: make(map[string][]motion.Segment)}
}

// Add records a segment unless its base label is already full.
func (c *Collector) Add(seg motion.Segment) {
	base := labels.BaseLabel(seg.Label)
	if len(c.byLabel[base]) >= c.limit {
		return
	}
	c.byLabel[base] = append(c.byLabel[base], seg)
}

// BaseLabels returns the collected base labels in sorted order.
func (c *Collector) BaseLabels() []string {
	out := make([]string, 0, len(c.byLabel))
	for base := range c.byLabel {
		out = append(out, base)
	}
	sort.Strings(out)
	return out
}

// Segments returns the segments kept for base.
func (c *Collector) Segments(base string) []motion.Segment {
	return c.byLabel[base]
}

// WriteOverlays writes one chart per base label and accelerometer axis into
// dir and returns the written paths. Each segment is one line, plotted
// against its sample index.
func WriteOverlays(fsys fsutil.FileSystem, dir string, c *Collector) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}

	var written []string
	for _, base := range c.BaseLabels() {
		segs := c.Segments(base)
		colors := generateColors(len(segs))
		for _, axis := range motion.AccelAxes {
			p, err := overlayPlot(base, axis, segs, colors)
			if err != nil {
				return written, fmt.Errorf("%s %s: %w", base, axis, err)
			}
			if p == nil {
				continue
			}
			path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", security.SanitizeFilename(base), axis))
			if err := savePNG(fsys, p, path); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}
	return written, nil
}

// overlayPlot returns nil when no segment carries the axis.
func overlayPlot(base string, axis motion.Axis, segs []motion.Segment, colors []color.Color) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - %s (%d segments)", base, axis, len(segs))
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = axis.String()

	lines := 0
	for i, seg := range segs {
		col := seg.Column(axis)
		if col == nil {
			continue
		}
		pts := make(plotter.XYs, 0, len(col))
		for j, v := range col {
			if math.IsNaN(v) {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(j), Y: v})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(seg.Label, line)
		lines++
	}
	if lines == 0 {
		return nil, nil
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func savePNG(fsys fsutil.FileSystem, p *plot.Plot, path string) error {
	w, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := w.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// generateColors creates a palette of n distinct colors.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
