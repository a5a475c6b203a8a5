// NPZ (zipped NumPy arrays) format parser.
package formats

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// ErrInvalidNPZ is returned when the archive cannot be opened as a zip.
var ErrInvalidNPZ = errors.New("invalid NPZ archive")

// NPZ is a set of named arrays.
type NPZ struct {
	Arrays map[string]*NPYArray
}

// Keys returns the array names in sorted order.
func (z *NPZ) Keys() []string {
	keys := make([]string, 0, len(z.Arrays))
	for k := range z.Arrays {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the named array, or nil.
func (z *NPZ) Get(name string) *NPYArray {
	return z.Arrays[name]
}

// ParseNPZ parses NPZ data from a byte slice. Archive members without the
// .npy suffix are ignored.
func ParseNPZ(data []byte) (*NPZ, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNPZ, err)
	}

	out := &NPZ{Arrays: make(map[string]*NPYArray)}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".npy") {
			continue
		}
		member, err := readZipMember(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		arr, err := ParseNPY(member)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f.Name, err)
		}
		out.Arrays[strings.TrimSuffix(path.Base(f.Name), ".npy")] = arr
	}
	return out, nil
}

func readZipMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
