// Package coords converts positions and orientations between the physics
// engine's Z-up convention and the renderer's Y-up convention.
package coords

import "github.com/Faultbox/mjtraj/pkg/math"

// Mode selects how engine coordinates map onto render coordinates.
type Mode int

const (
	// Swizzle rotates Z-up engine space into Y-up render space.
	Swizzle Mode = iota
	// Passthrough keeps positions unchanged; used when the renderer is
	// configured with the engine's up axis.
	Passthrough
)

// String returns the mode name used in config files.
func (m Mode) String() string {
	if m == Passthrough {
		return "passthrough"
	}
	return "swizzle"
}

// ParseMode parses a config value. Anything but "passthrough" is Swizzle.
func ParseMode(s string) Mode {
	if s == "passthrough" {
		return Passthrough
	}
	return Swizzle
}

// Transform converts between engine and render conventions.
type Transform struct {
	Mode Mode
}

// New returns a transform for the given mode.
func New(mode Mode) Transform {
	return Transform{Mode: mode}
}

// ToRenderPosition maps an engine position to render space.
func (t Transform) ToRenderPosition(v [3]float64) math.Vec3 {
	if t.Mode == Passthrough {
		return math.V3(v[0], v[1], v[2])
	}
	return math.V3(v[0], v[2], -v[1])
}

// ToEnginePosition is the inverse of ToRenderPosition.
func (t Transform) ToEnginePosition(v math.Vec3) [3]float64 {
	x, y, z := float64(v.X), float64(v.Y), float64(v.Z)
	if t.Mode == Passthrough {
		return [3]float64{x, y, z}
	}
	return [3]float64{x, -z, y}
}

// ToRenderQuat maps an engine quaternion (w,x,y,z) to a render quaternion.
// The swizzled form is (-x, -z, y, -w), the same rotation as (x, z, -y, w).
func (t Transform) ToRenderQuat(q [4]float64) math.Quat {
	w, x, y, z := float32(q[0]), float32(q[1]), float32(q[2]), float32(q[3])
	if t.Mode == Passthrough {
		return math.Quat{X: x, Y: y, Z: z, W: w}
	}
	return math.Quat{X: -x, Y: -z, Z: y, W: -w}
}

// ToEngineQuat is the exact inverse of ToRenderQuat.
func (t Transform) ToEngineQuat(q math.Quat) [4]float64 {
	if t.Mode == Passthrough {
		return [4]float64{float64(q.W), float64(q.X), float64(q.Y), float64(q.Z)}
	}
	return [4]float64{float64(-q.W), float64(-q.X), float64(q.Z), float64(-q.Y)}
}

// ToRenderScale maps per-axis engine extents (sx, sy, sz) to render axes.
func (t Transform) ToRenderScale(s [3]float64) math.Vec3 {
	if t.Mode == Passthrough {
		return math.V3(s[0], s[1], s[2])
	}
	return math.V3(s[0], s[2], s[1])
}

// ToRenderVec maps a float32 engine vector (mesh vertex, normal) to render space.
func (t Transform) ToRenderVec(x, y, z float32) math.Vec3 {
	if t.Mode == Passthrough {
		return math.Vec3{X: x, Y: y, Z: z}
	}
	return math.Vec3{X: x, Y: z, Z: -y}
}

// Up returns the render-space up vector.
func (t Transform) Up() math.Vec3 {
	if t.Mode == Passthrough {
		return math.Vec3{Z: 1}
	}
	return math.Vec3{Y: 1}
}
