package tensor

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

const (
	npyMagic     = "\x93NUMPY"
	npyAlignment = 64
)

// WriteNPY writes a little-endian float64 array in NumPy format version
// 1.0. data is in C order and must hold exactly the product of shape.
func WriteNPY(w io.Writer, shape []int, data []float64) error {
	total := 1
	for _, d := range shape {
		total *= d
	}
	if total != len(data) {
		return fmt.Errorf("npy: shape %v needs %d values, got %d", shape, total, len(data))
	}

	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	shapeText := "(" + strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeText += ","
	}
	shapeText += ")"

	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': %s, }", shapeText)
	// magic(6) + version(2) + header length(2) + header + '\n' is padded to
	// a multiple of 64 bytes.
	prefix := len(npyMagic) + 2 + 2
	pad := npyAlignment - (prefix+len(header)+1)%npyAlignment
	if pad == npyAlignment {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"
	if len(header) > math.MaxUint16 {
		return fmt.Errorf("npy: header too long (%d bytes)", len(header))
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(npyMagic)
	bw.Write([]byte{1, 0})
	var hlen [2]byte
	binary.LittleEndian.PutUint16(hlen[:], uint16(len(header)))
	bw.Write(hlen[:])
	bw.WriteString(header)

	var buf [8]byte
	for _, v := range data {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteX writes tensor samples as an n×L×3 array.
func WriteX(w io.Writer, samples []Sample, length int) error {
	data := make([]float64, 0, len(samples)*length*Channels)
	for _, s := range samples {
		r, c := s.X.Dims()
		if r != length || c != Channels {
			return fmt.Errorf("tensor sample from %s is %dx%d, want %dx%d", s.Source, r, c, length, Channels)
		}
		for i := range r {
			data = append(data, s.X.RawRowView(i)...)
		}
	}
	return WriteNPY(w, []int{len(samples), length, Channels}, data)
}

// WriteY writes one-hot labels as an n×C array. A nil matrix writes an
// empty n=0 array with numClasses columns.
func WriteY(w io.Writer, y *mat.Dense, numClasses int) error {
	if y == nil {
		return WriteNPY(w, []int{0, numClasses}, nil)
	}
	r, c := y.Dims()
	data := make([]float64, 0, r*c)
	for i := range r {
		data = append(data, y.RawRowView(i)...)
	}
	return WriteNPY(w, []int{r, c}, data)
}

// Classes describes the column order of the one-hot label array.
type Classes struct {
	Classes []string `json:"classes"`
	Samples int      `json:"samples"`
	Length  int      `json:"length"`
	Axes    []string `json:"axes"`
}

// WriteClasses writes the classes sidecar as indented JSON.
func WriteClasses(w io.Writer, c Classes) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
