// Package lighting provides lighting utilities for 3D rendering.
package lighting

import (
	gomath "math"

	"github.com/Faultbox/mjtraj/pkg/math"
)

// Default sun placement in render space, in degrees.
const (
	DefaultSunAzimuth   = 215
	DefaultSunElevation = 65
)

// SunDirection converts azimuth/elevation angles to a light direction.
// Azimuth is rotation around the render Y axis, elevation is the height
// above the horizon. The result points from the sun into the scene.
func SunDirection(azimuth, elevation float64) math.Vec3 {
	// Convert degrees to radians
	az := azimuth * gomath.Pi / 180.0
	el := elevation * gomath.Pi / 180.0

	// Spherical to Cartesian, then flip to point away from the sun
	return math.Vec3{
		X: float32(-gomath.Cos(el) * gomath.Sin(az)),
		Y: float32(-gomath.Sin(el)),
		Z: float32(-gomath.Cos(el) * gomath.Cos(az)),
	}
}

// DefaultSun returns the direction of the default sun.
func DefaultSun() math.Vec3 {
	return SunDirection(DefaultSunAzimuth, DefaultSunElevation)
}
