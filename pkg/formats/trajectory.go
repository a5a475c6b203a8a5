// Trajectory loading from NPY / NPZ containers.
package formats

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
)

// DefaultFrameRate is used when a trajectory carries no frame rate.
const DefaultFrameRate = 30.0

// Trajectory errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported trajectory format")
	ErrMissingQpos       = errors.New("npz archive has no 'qpos' array")
	ErrEmptyTrajectory   = errors.New("trajectory has no frames")
)

// Source tags where a trajectory came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Trajectory is an immutable sequence of pose frames.
type Trajectory struct {
	Frames    [][]float64
	FrameRate float64
	// Aux holds optional per-frame streams (qvel, ctrl, ...) keyed by name.
	Aux    map[string][][]float64
	Source Source
}

// FrameCount returns the number of frames.
func (t *Trajectory) FrameCount() int {
	return len(t.Frames)
}

// Width returns the pose dimension of the first frame.
func (t *Trajectory) Width() int {
	if len(t.Frames) == 0 {
		return 0
	}
	return len(t.Frames[0])
}

// Duration returns the playback length in seconds at the nominal rate.
func (t *Trajectory) Duration() float64 {
	rate := t.FrameRate
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	return float64(len(t.Frames)) / rate
}

// ParseTrajectory decodes an .npy or .npz payload.
func ParseTrajectory(data []byte, source Source) (*Trajectory, error) {
	switch Detect(data) {
	case KindNPY:
		arr, err := ParseNPY(data)
		if err != nil {
			return nil, err
		}
		if len(arr.Shape) == 0 {
			return nil, ErrEmptyTrajectory
		}
		frames := arr.Rows()
		if len(frames) == 0 {
			return nil, ErrEmptyTrajectory
		}
		return &Trajectory{
			Frames:    frames,
			FrameRate: DefaultFrameRate,
			Source:    source,
		}, nil

	case KindNPZ:
		z, err := ParseNPZ(data)
		if err != nil {
			return nil, err
		}
		return trajectoryFromNPZ(z, source)

	default:
		return nil, ErrUnsupportedFormat
	}
}

func trajectoryFromNPZ(z *NPZ, source Source) (*Trajectory, error) {
	qpos := z.Get("qpos")
	if qpos == nil {
		return nil, ErrMissingQpos
	}
	if len(qpos.Shape) == 0 {
		return nil, ErrEmptyTrajectory
	}
	frames := qpos.Rows()
	if len(frames) == 0 {
		return nil, ErrEmptyTrajectory
	}

	traj := &Trajectory{
		Frames:    frames,
		FrameRate: npzFrameRate(z),
		Source:    source,
	}

	n := len(frames)
	for _, key := range z.Keys() {
		if key == "qpos" {
			continue
		}
		arr := z.Get(key)
		if len(arr.Shape) == 0 || arr.Shape[0] != n {
			continue
		}
		rows := arr.Rows()
		if len(rows) != n {
			continue
		}
		if traj.Aux == nil {
			traj.Aux = make(map[string][][]float64)
		}
		traj.Aux[key] = rows
	}
	return traj, nil
}

func npzFrameRate(z *NPZ) float64 {
	if r, ok := npzScalar(z, "frame_rate", "framerate"); ok && r > 0 {
		return r
	}
	return DefaultFrameRate
}

func npzScalar(z *NPZ, keys ...string) (float64, bool) {
	for _, k := range keys {
		if arr := z.Get(k); arr != nil {
			if v, ok := arr.Scalar(); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// Info summarizes a trajectory file without keeping its frames.
type Info struct {
	Kind       Kind
	FrameCount int
	// FrameRate is nil when the file does not declare one.
	FrameRate *float64
	// NumJoints is nil for 0-D and 1-D arrays, which have no joint axis.
	NumJoints *int
}

// Metadata extracts frame count, frame rate and joint count.
func Metadata(data []byte) (*Info, error) {
	var arr *NPYArray
	info := &Info{Kind: Detect(data)}

	switch info.Kind {
	case KindNPY:
		a, err := ParseNPY(data)
		if err != nil {
			return nil, err
		}
		arr = a
	case KindNPZ:
		z, err := ParseNPZ(data)
		if err != nil {
			return nil, err
		}
		if arr = z.Get("qpos"); arr == nil {
			return nil, ErrMissingQpos
		}
		if r, ok := npzScalar(z, "frame_rate", "framerate"); ok {
			info.FrameRate = &r
		}
	default:
		return nil, ErrUnsupportedFormat
	}

	switch len(arr.Shape) {
	case 0:
		info.FrameCount = 1
	case 1:
		info.FrameCount = arr.Shape[0]
	default:
		info.FrameCount = arr.Shape[0]
		joints := arr.Shape[1]
		info.NumJoints = &joints
	}
	return info, nil
}

// TrajectoryID returns a stable 16 hex character id for a file path
// relative to the data root.
func TrajectoryID(relPath string) string {
	sum := md5.Sum([]byte(filepath.ToSlash(relPath)))
	return hex.EncodeToString(sum[:])[:16]
}

// String implements fmt.Stringer for log output.
func (i *Info) String() string {
	rate := "unset"
	if i.FrameRate != nil {
		rate = fmt.Sprintf("%g", *i.FrameRate)
	}
	joints := "?"
	if i.NumJoints != nil {
		joints = fmt.Sprint(*i.NumJoints)
	}
	return fmt.Sprintf("%s: %d frames x %s joints @ %s fps", i.Kind, i.FrameCount, joints, rate)
}
