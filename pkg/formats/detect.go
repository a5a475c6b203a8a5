// Trajectory file signature detection.
package formats

import (
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// Kind identifies a trajectory container format.
type Kind int

const (
	KindUnknown Kind = iota
	KindNPY
	KindNPZ
)

// String returns the conventional file extension for the kind.
func (k Kind) String() string {
	switch k {
	case KindNPY:
		return "npy"
	case KindNPZ:
		return "npz"
	default:
		return "unknown"
	}
}

var npyType = filetype.NewType("npy", "application/x-npy")

func init() {
	filetype.AddMatcher(npyType, func(buf []byte) bool {
		return len(buf) >= len(npyMagic) && string(buf[:len(npyMagic)]) == string(npyMagic)
	})
}

// Detect identifies the container format from the leading bytes. NPZ files
// are plain zip archives.
func Detect(data []byte) Kind {
	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return KindUnknown
	}
	switch kind.Extension {
	case "npy":
		return KindNPY
	case "zip":
		return KindNPZ
	default:
		return KindUnknown
	}
}
