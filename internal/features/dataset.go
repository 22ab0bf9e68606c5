package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/motion-dataset/internal/labels"
)

// ErrNoLabelColumn is returned when a feature dataset has no label column.
var ErrNoLabelColumn = errors.New("feature dataset has no label column")

// FormatRow renders a row in Columns order. Missing statistics are written
// as NaN and an unassigned encoding as an empty cell.
func FormatRow(r Row) []string {
	out := make([]string, 0, len(StatColumns)+3)
	for _, v := range r.Values {
		out = append(out, strconv.FormatFloat(v, 'g', -1, 64))
	}
	encoded := ""
	if r.Encoded != Unencoded {
		encoded = strconv.Itoa(r.Encoded)
	}
	return append(out, r.Label, r.BaseLabel, encoded)
}

// WriteRows appends rows as CSV. The header is written only when withHeader
// is set.
func WriteRows(w io.Writer, rows []Row, withHeader bool) error {
	cw := csv.NewWriter(w)
	if withHeader {
		if err := cw.Write(Columns()); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := cw.Write(FormatRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeLabels maps each distinct base label to its index in sorted order.
func EncodeLabels(bases []string) ([]string, map[string]int) {
	set := map[string]struct{}{}
	for _, b := range bases {
		set[b] = struct{}{}
	}
	classes := make([]string, 0, len(set))
	for b := range set {
		classes = append(classes, b)
	}
	sort.Strings(classes)
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	return classes, index
}

// Reencode copies a feature dataset from r to w with label_encoded
// recomputed over the whole vocabulary of base labels. Rows written before
// the base_label column existed derive it from their label. It returns the
// sorted classes and the number of rows.
func Reencode(r io.Reader, w io.Writer) ([]string, int, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	header = append([]string(nil), header...)

	colOf := func(name string) int {
		for i, h := range header {
			if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == name {
				return i
			}
		}
		return -1
	}
	labelCol := colOf(ColLabel)
	if labelCol < 0 {
		return nil, 0, ErrNoLabelColumn
	}
	baseCol := colOf(ColBaseLabel)
	if baseCol < 0 {
		baseCol = len(header)
		header = append(header, ColBaseLabel)
	}
	encCol := colOf(ColLabelEncoded)
	if encCol < 0 {
		encCol = len(header)
		header = append(header, ColLabelEncoded)
	}

	var records [][]string
	var bases []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read row %d: %w", len(records)+1, err)
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		if rec[baseCol] == "" {
			rec[baseCol] = labels.BaseLabel(strings.TrimSpace(rec[labelCol]))
		}
		records = append(records, rec)
		bases = append(bases, rec[baseCol])
	}

	classes, index := EncodeLabels(bases)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return nil, 0, err
	}
	for _, rec := range records {
		rec[encCol] = strconv.Itoa(index[rec[baseCol]])
		if err := cw.Write(rec); err != nil {
			return nil, 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, 0, err
	}
	return classes, len(records), nil
}
