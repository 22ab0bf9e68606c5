package motion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Column names of a recording file.
const (
	ColTimeMs    = "time_ms"
	ColEvent     = "event"
	ColLabel     = "label"
	ColSegmentID = "segment_id"
)

var (
	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("missing required column")
	// ErrEmptyRecording is returned for a file without a header row.
	ErrEmptyRecording = errors.New("empty recording")
	// ErrMalformedRow is returned when a cell cannot be parsed.
	ErrMalformedRow = errors.New("malformed row")
)

// SampleColumns is the fixed header used when conditioned samples are
// written back out.
var SampleColumns = []string{
	ColTimeMs,
	"acc_x", "acc_y", "acc_z",
	"gyro_x", "gyro_y", "gyro_z",
	ColEvent, ColLabel, ColSegmentID,
}

// ParseCSV reads a recording. Columns are matched by name; time_ms is
// required, sensor, event, label and segment_id columns are optional. An
// empty sensor cell is a missing reading (NaN).
func ParseCSV(r io.Reader, source string) (*Stream, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", source, ErrEmptyRecording)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", source, err)
	}

	idx := map[string]int{}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}

	timeCol, ok := idx[ColTimeMs]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", source, ErrMissingColumn, ColTimeMs)
	}

	stream := &Stream{Source: source}
	axisCols := [NumAxes]int{}
	for _, a := range AllAxes {
		axisCols[a] = -1
		if i, ok := idx[a.String()]; ok {
			axisCols[a] = i
			stream.Axes = stream.Axes.With(a)
		}
	}
	eventCol, hasEvent := idx[ColEvent]
	labelCol, hasLabel := idx[ColLabel]
	segCol, hasSeg := idx[ColSegmentID]
	stream.HasEvent, stream.HasLabel, stream.HasSegmentID = hasEvent, hasLabel, hasSeg

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", source, ErrMalformedRow, err)
		}
		line, _ := cr.FieldPos(0)

		var s Sample
		ts := strings.TrimSpace(rec[timeCol])
		if s.TimeMs, err = strconv.ParseFloat(ts, 64); err != nil {
			return nil, fmt.Errorf("%s:%d: %w: %s %q", source, line, ErrMalformedRow, ColTimeMs, ts)
		}
		for _, a := range AllAxes {
			col := axisCols[a]
			if col < 0 {
				s.Values[a] = math.NaN()
				continue
			}
			cell := strings.TrimSpace(rec[col])
			if cell == "" {
				s.Values[a] = math.NaN()
				continue
			}
			if s.Values[a], err = strconv.ParseFloat(cell, 64); err != nil {
				return nil, fmt.Errorf("%s:%d: %w: %s %q", source, line, ErrMalformedRow, a, cell)
			}
		}
		if hasEvent {
			s.Event = strings.TrimSpace(rec[eventCol])
		}
		if hasLabel {
			s.Label = strings.TrimSpace(rec[labelCol])
		}
		if hasSeg {
			s.SegmentID = strings.TrimSpace(rec[segCol])
		}
		stream.Samples = append(stream.Samples, s)
	}

	return stream, nil
}

// DecodeRecording decodes raw file bytes with the primary encoding and, if
// that fails, with the fallback. It returns the stream and the name of the
// encoding that succeeded. When both attempts fail the joined error carries
// both causes.
func DecodeRecording(data []byte, source string, primary, fallback TextEncoding) (*Stream, string, error) {
	stream, errPrimary := decodeWith(data, source, primary)
	if errPrimary == nil {
		return stream, primary.Name, nil
	}
	stream, errFallback := decodeWith(data, source, fallback)
	if errFallback == nil {
		return stream, fallback.Name, nil
	}
	return nil, "", errors.Join(
		fmt.Errorf("as %s: %w", primary.Name, errPrimary),
		fmt.Errorf("as %s: %w", fallback.Name, errFallback),
	)
}

func decodeWith(data []byte, source string, enc TextEncoding) (*Stream, error) {
	text, err := enc.Decode(data)
	if err != nil {
		return nil, err
	}
	return ParseCSV(bytes.NewReader(text), source)
}

// WriteSamplesCSV writes the samples of a stream using SampleColumns. The
// header is written only when withHeader is set so the output can be
// appended to. Missing readings are written as empty cells.
func WriteSamplesCSV(w io.Writer, stream *Stream, withHeader bool) error {
	cw := csv.NewWriter(w)
	if withHeader {
		if err := cw.Write(SampleColumns); err != nil {
			return err
		}
	}
	row := make([]string, len(SampleColumns))
	for _, s := range stream.Samples {
		row[0] = formatFloat(s.TimeMs)
		for _, a := range AllAxes {
			if !stream.Axes.Has(a) || math.IsNaN(s.Values[a]) {
				row[1+int(a)] = ""
				continue
			}
			row[1+int(a)] = formatFloat(s.Values[a])
		}
		row[7], row[8], row[9] = s.Event, s.Label, s.SegmentID
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
