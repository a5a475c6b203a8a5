// NPY (NumPy array) format parser.
package formats

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NPY format errors.
var (
	ErrInvalidNPYMagic    = errors.New("invalid NPY magic: expected '\\x93NUMPY'")
	ErrUnsupportedNPYVer  = errors.New("unsupported NPY version")
	ErrTruncatedNPYData   = errors.New("truncated NPY data")
	ErrInvalidNPYHeader   = errors.New("invalid NPY header")
	ErrUnsupportedNPYType = errors.New("unsupported NPY dtype")
)

var npyMagic = []byte("\x93NUMPY")

// NPYArray is a decoded array. Data is always row-major float64 regardless
// of the stored dtype and order.
type NPYArray struct {
	DType string // e.g. "<f8"
	Shape []int
	Data  []float64
}

// Len returns the number of elements.
func (a *NPYArray) Len() int {
	return len(a.Data)
}

// Rows splits a 2-D array into rows. A 1-D array yields one single-value row
// per element; a 0-D array yields one row. Rows never yields more rows than
// the array has elements.
func (a *NPYArray) Rows() [][]float64 {
	rows, cols := 1, len(a.Data)
	switch len(a.Shape) {
	case 1:
		rows, cols = a.Shape[0], 1
	case 0:
	default:
		rows = a.Shape[0]
		if rows > 0 {
			cols = len(a.Data) / rows
		}
	}
	if cols == 0 || rows > len(a.Data) {
		return [][]float64{}
	}
	out := make([][]float64, rows)
	for i := range out {
		out[i] = a.Data[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return out
}

// Scalar returns the single value of a 0-D or one-element array.
func (a *NPYArray) Scalar() (float64, bool) {
	if len(a.Data) != 1 {
		return 0, false
	}
	return a.Data[0], true
}

// dtype describes how to decode one element.
type dtype struct {
	order binary.ByteOrder
	kind  byte
	size  int
}

// ParseNPY parses NPY data from a byte slice.
func ParseNPY(data []byte) (*NPYArray, error) {
	if len(data) < 10 {
		return nil, ErrTruncatedNPYData
	}
	if string(data[:6]) != string(npyMagic) {
		return nil, ErrInvalidNPYMagic
	}

	major := data[6]
	var headerLen, offset int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:10]))
		offset = 10
	case 2, 3:
		if len(data) < 12 {
			return nil, ErrTruncatedNPYData
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:12]))
		offset = 12
	default:
		return nil, fmt.Errorf("%w: %d.%d", ErrUnsupportedNPYVer, major, data[7])
	}
	if len(data) < offset+headerLen {
		return nil, ErrTruncatedNPYData
	}

	header := string(data[offset : offset+headerLen])
	descr, fortran, shape, err := parseNPYHeader(header)
	if err != nil {
		return nil, err
	}
	dt, err := parseDType(descr)
	if err != nil {
		return nil, err
	}

	payload := data[offset+headerLen:]
	count, err := elementCount(shape, len(payload)/dt.size)
	if err != nil {
		return nil, err
	}

	values := make([]float64, count)
	for i := range values {
		values[i] = dt.decode(payload[i*dt.size : (i+1)*dt.size])
	}
	if fortran && len(shape) > 1 {
		values = fortranToRowMajor(values, shape)
	}

	return &NPYArray{DType: descr, Shape: shape, Data: values}, nil
}

// elementCount multiplies the shape dimensions, failing once the product
// exceeds the number of elements the payload can hold.
func elementCount(shape []int, available int) (int, error) {
	count := 1
	for _, d := range shape {
		if d == 0 {
			return 0, nil
		}
		if d > available || count > available/d {
			return 0, fmt.Errorf("%w: shape %v needs more than %d elements",
				ErrTruncatedNPYData, shape, available)
		}
		count *= d
	}
	if count > available {
		return 0, fmt.Errorf("%w: shape %v needs more than %d elements",
			ErrTruncatedNPYData, shape, available)
	}
	return count, nil
}

// parseNPYHeader extracts descr, fortran_order and shape from the header dict,
// e.g. {'descr': '<f8', 'fortran_order': False, 'shape': (100, 7), }.
func parseNPYHeader(header string) (string, bool, []int, error) {
	descrRaw, ok := dictValue(header, "descr")
	if !ok {
		return "", false, nil, fmt.Errorf("%w: missing descr", ErrInvalidNPYHeader)
	}
	descr, ok := quoted(descrRaw)
	if !ok {
		return "", false, nil, fmt.Errorf("%w: descr is not a string", ErrInvalidNPYHeader)
	}

	fortran := false
	if v, ok := dictValue(header, "fortran_order"); ok {
		fortran = strings.HasPrefix(v, "True")
	}

	shapeRaw, ok := dictValue(header, "shape")
	if !ok || !strings.HasPrefix(shapeRaw, "(") {
		return "", false, nil, fmt.Errorf("%w: missing shape", ErrInvalidNPYHeader)
	}
	end := strings.IndexByte(shapeRaw, ')')
	if end < 0 {
		return "", false, nil, fmt.Errorf("%w: unterminated shape", ErrInvalidNPYHeader)
	}

	var shape []int
	for _, part := range strings.Split(shapeRaw[1:end], ",") {
		part = strings.TrimSuffix(strings.TrimSpace(part), "L")
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 {
			return "", false, nil, fmt.Errorf("%w: bad dimension %q", ErrInvalidNPYHeader, part)
		}
		shape = append(shape, d)
	}
	return descr, fortran, shape, nil
}

// dictValue returns the text following 'key': in a Python dict literal.
func dictValue(header, key string) (string, bool) {
	for _, q := range []string{"'", "\""} {
		idx := strings.Index(header, q+key+q)
		if idx < 0 {
			continue
		}
		rest := header[idx+len(key)+2:]
		colon := strings.IndexByte(rest, ':')
		if colon < 0 {
			return "", false
		}
		return strings.TrimSpace(rest[colon+1:]), true
	}
	return "", false
}

func quoted(s string) (string, bool) {
	if len(s) < 2 || (s[0] != '\'' && s[0] != '"') {
		return "", false
	}
	end := strings.IndexByte(s[1:], s[0])
	if end < 0 {
		return "", false
	}
	return s[1 : end+1], true
}

func parseDType(descr string) (dtype, error) {
	if len(descr) < 3 {
		return dtype{}, fmt.Errorf("%w: %q", ErrUnsupportedNPYType, descr)
	}
	var dt dtype
	switch descr[0] {
	case '<', '|', '=':
		dt.order = binary.LittleEndian
	case '>':
		dt.order = binary.BigEndian
	default:
		return dtype{}, fmt.Errorf("%w: %q", ErrUnsupportedNPYType, descr)
	}
	dt.kind = descr[1]
	size, err := strconv.Atoi(descr[2:])
	if err != nil {
		return dtype{}, fmt.Errorf("%w: %q", ErrUnsupportedNPYType, descr)
	}
	dt.size = size

	valid := false
	switch dt.kind {
	case 'f':
		valid = size == 4 || size == 8
	case 'i', 'u':
		valid = size == 1 || size == 2 || size == 4 || size == 8
	case 'b':
		valid = size == 1
	}
	if !valid {
		return dtype{}, fmt.Errorf("%w: %q", ErrUnsupportedNPYType, descr)
	}
	return dt, nil
}

func (dt dtype) decode(b []byte) float64 {
	switch dt.kind {
	case 'f':
		if dt.size == 4 {
			return float64(math.Float32frombits(dt.order.Uint32(b)))
		}
		return math.Float64frombits(dt.order.Uint64(b))
	case 'i':
		switch dt.size {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(dt.order.Uint16(b)))
		case 4:
			return float64(int32(dt.order.Uint32(b)))
		default:
			return float64(int64(dt.order.Uint64(b)))
		}
	case 'u':
		switch dt.size {
		case 1:
			return float64(b[0])
		case 2:
			return float64(dt.order.Uint16(b))
		case 4:
			return float64(dt.order.Uint32(b))
		default:
			return float64(dt.order.Uint64(b))
		}
	default: // 'b'
		if b[0] != 0 {
			return 1
		}
		return 0
	}
}

// fortranToRowMajor reorders column-major values into row-major order.
func fortranToRowMajor(values []float64, shape []int) []float64 {
	out := make([]float64, len(values))
	idx := make([]int, len(shape))
	for r := range out {
		// unravel r in row-major order
		rem := r
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d] = rem % shape[d]
			rem /= shape[d]
		}
		// ravel in column-major order
		f, stride := 0, 1
		for d := 0; d < len(shape); d++ {
			f += idx[d] * stride
			stride *= shape[d]
		}
		out[r] = values[f]
	}
	return out
}
