// Package testutil provides shared test utilities and fixtures.
//
// Recording builds sensor recording CSV files the way the phone recorder
// exports them, so pipeline tests can describe inputs as labeled runs
// instead of hand-written CSV.
package testutil

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"github.com/banshee-data/motion-dataset/internal/fsutil"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

type row struct {
	timeMs    int
	values    [6]float64
	event     string
	label     string
	segmentID string
}

// Recording is a builder for recording CSV fixtures. Rows are spaced
// IntervalMs apart and carry smooth, deterministic sensor values.
type Recording struct {
	IntervalMs int
	withEvent  bool
	rows       []row
	runs       map[string]int
}

// NewRecording returns a builder for the recorder export layout:
// time_ms, six axes, label and segment_id.
func NewRecording() *Recording {
	return &Recording{IntervalMs: 20, runs: map[string]int{}}
}

// NewMarkerRecording returns a builder whose files carry an event column
// and no label or segment_id columns.
func NewMarkerRecording() *Recording {
	r := NewRecording()
	r.withEvent = true
	return r
}

func (r *Recording) add(event, label, segmentID string) {
	i := len(r.rows)
	x := float64(i) * 0.1
	r.rows = append(r.rows, row{
		timeMs: i * r.IntervalMs,
		values: [6]float64{
			round(math.Sin(x)),
			round(math.Cos(x)),
			round(9.81 + 0.1*math.Sin(2*x)),
			round(0.5 * math.Sin(x/2)),
			round(0.25 * math.Cos(x/3)),
			round(0.1 * float64(i%7)),
		},
		event:     event,
		label:     label,
		segmentID: segmentID,
	})
}

// Labeled appends n rows labeled label sharing a fresh segment id.
func (r *Recording) Labeled(label string, n int) *Recording {
	r.runs[label]++
	id := fmt.Sprintf("%s_%d", label, r.runs[label])
	for range n {
		r.add("", label, id)
	}
	return r
}

// Unlabeled appends n rows with no label or segment id.
func (r *Recording) Unlabeled(n int) *Recording {
	for range n {
		r.add("", "", "")
	}
	return r
}

// Marker appends one row carrying an event marker.
func (r *Recording) Marker(event string) *Recording {
	r.add(event, "", "")
	return r
}

// Len returns the number of rows added.
func (r *Recording) Len() int { return len(r.rows) }

// Header returns the column names the builder writes.
func (r *Recording) Header() []string {
	h := []string{"time_ms", "acc_x", "acc_y", "acc_z", "gyro_x", "gyro_y", "gyro_z"}
	if r.withEvent {
		return append(h, "event")
	}
	return append(h, "label", "segment_id")
}

// CSV renders the recording as UTF-8.
func (r *Recording) CSV() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(r.Header())
	for _, row := range r.rows {
		rec := []string{strconv.Itoa(row.timeMs)}
		for _, v := range row.values {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if r.withEvent {
			rec = append(rec, row.event)
		} else {
			rec = append(rec, row.label, row.segmentID)
		}
		w.Write(rec)
	}
	w.Flush()
	return buf.Bytes()
}

// Latin1 renders the recording as ISO-8859-1, for labels with accents.
func (r *Recording) Latin1() []byte {
	out, err := charmap.ISO8859_1.NewEncoder().Bytes(r.CSV())
	if err != nil {
		panic(fmt.Sprintf("testutil: recording not representable in latin-1: %v", err))
	}
	return out
}

// Write stores the UTF-8 recording at path.
func (r *Recording) Write(t testing.TB, fsys fsutil.FileSystem, path string) {
	t.Helper()
	AssertNoError(t, fsys.WriteFile(path, r.CSV(), 0644))
}

// Undecodable returns bytes that are invalid UTF-8 and, read as Latin-1,
// lack the time_ms column, so both decoding attempts fail.
func Undecodable() []byte {
	return []byte("zeit\xff,acc_x,acc_y\n0,1,2\n")
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
