// Package camera provides the viewer's orbit camera and cameras attached to
// model bodies.
package camera

import (
	gomath "math"

	"github.com/Faultbox/mjtraj/internal/engine/coords"
	"github.com/Faultbox/mjtraj/internal/engine/scene"
	"github.com/Faultbox/mjtraj/pkg/math"
)

// Default orbit parameters.
const (
	DefaultDistance  = 3.0
	DefaultAzimuth   = 45.0  // degrees
	DefaultElevation = -20.0 // degrees, negative looks down
	DefaultFovy      = 45.0  // degrees
)

// DefaultLookAt is the orbit target in engine coordinates.
var DefaultLookAt = [3]float64{0, 0, 1}

// View is anything that yields a view matrix and a vertical field of view.
type View interface {
	ViewMatrix() math.Mat4
	FovyDegrees() float32
}

// Projection returns the perspective matrix for v.
func Projection(v View, aspect, near, far float32) math.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	return math.Perspective(v.FovyDegrees()*gomath.Pi/180, aspect, near, far)
}

// ViewProjection returns projection * view.
func ViewProjection(v View, aspect float32) math.Mat4 {
	return Projection(v, aspect, 0.01, 100).Mul(v.ViewMatrix())
}

// OrbitCamera orbits a target point in render space. Y is up.
type OrbitCamera struct {
	Target math.Vec3

	Distance  float32
	Azimuth   float32 // degrees around Y
	Elevation float32 // degrees, negative is above the target
	Fovy      float32

	MinDistance  float32
	MaxDistance  float32
	MinElevation float32
	MaxElevation float32

	DragSensitivity float32 // degrees per pixel
	ZoomSensitivity float32
	PanSensitivity  float32
}

// NewOrbitCamera creates an orbit camera with the default framing.
func NewOrbitCamera(tr coords.Transform) *OrbitCamera {
	c := &OrbitCamera{
		MinDistance:     0.1,
		MaxDistance:     100,
		MinElevation:    -89,
		MaxElevation:    89,
		DragSensitivity: 0.3,
		ZoomSensitivity: 0.1,
		PanSensitivity:  0.002,
	}
	c.Reset(tr)
	return c
}

// Reset restores the default framing.
func (c *OrbitCamera) Reset(tr coords.Transform) {
	c.Target = tr.ToRenderPosition(DefaultLookAt)
	c.Distance = DefaultDistance
	c.Azimuth = DefaultAzimuth
	c.Elevation = DefaultElevation
	c.Fovy = DefaultFovy
}

// Position returns the eye position.
func (c *OrbitCamera) Position() math.Vec3 {
	az := float64(c.Azimuth) * gomath.Pi / 180
	el := float64(c.Elevation) * gomath.Pi / 180
	horiz := gomath.Cos(el)
	offset := math.Vec3{
		X: float32(horiz * gomath.Sin(az)),
		Y: float32(-gomath.Sin(el)),
		Z: float32(horiz * gomath.Cos(az)),
	}
	return c.Target.Add(offset.Scale(c.Distance))
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position(), c.Target, math.Vec3{Y: 1})
}

// FovyDegrees implements View.
func (c *OrbitCamera) FovyDegrees() float32 { return c.Fovy }

// HandleDrag rotates the camera by a mouse drag delta in pixels.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.Azimuth -= deltaX * c.DragSensitivity
	c.Elevation -= deltaY * c.DragSensitivity
	c.Azimuth = float32(gomath.Mod(float64(c.Azimuth), 360))
	c.Elevation = clamp(c.Elevation, c.MinElevation, c.MaxElevation)
}

// HandleZoom scales the distance by a scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Distance * c.ZoomSensitivity
	c.Distance = clamp(c.Distance, c.MinDistance, c.MaxDistance)
}

// HandlePan moves the target in the view plane.
func (c *OrbitCamera) HandlePan(deltaX, deltaY float32) {
	forward := c.Target.Sub(c.Position()).Normalize()
	right := forward.Cross(math.Vec3{Y: 1}).Normalize()
	up := right.Cross(forward)
	speed := c.Distance * c.PanSensitivity
	c.Target = c.Target.Add(right.Scale(-deltaX * speed)).Add(up.Scale(deltaY * speed))
}

// FitToBounds centers the target on b and backs off far enough to see it.
func (c *OrbitCamera) FitToBounds(b scene.Bounds) {
	c.Target = b.Center()
	size := math.Vec3{X: b.Max[0] - b.Min[0], Y: b.Max[1] - b.Min[1], Z: b.Max[2] - b.Min[2]}.Length()
	half := float64(c.Fovy) * gomath.Pi / 360
	d := float32(float64(size) / 2 / gomath.Tan(half))
	c.Distance = clamp(d, c.MinDistance, c.MaxDistance)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ModelCamera is a camera defined by the model and attached to a body.
type ModelCamera struct {
	Camera scene.Camera

	view math.Mat4
}

// NewModelCamera creates a camera that follows cam's body in sc.
func NewModelCamera(cam scene.Camera) *ModelCamera {
	return &ModelCamera{Camera: cam, view: math.Identity()}
}

// Update recomputes the view from the body's current world transform. The
// camera looks along its local -Z with local +Y up, in engine axes.
func (m *ModelCamera) Update(sc *scene.Scene) {
	world := math.Identity()
	if h := sc.BodyHandle(m.Camera.BodyID); h != scene.NoHandle {
		world = sc.Graph.World(h)
	}
	tr := sc.Transform
	rot := m.Camera.Orientation
	forward := rot.Rotate(tr.ToRenderVec(0, 0, -1))
	up := rot.Rotate(tr.ToRenderVec(0, 1, 0))

	eye := world.TransformPoint(m.Camera.Position)
	ahead := world.TransformPoint(m.Camera.Position.Add(forward))
	above := world.TransformPoint(m.Camera.Position.Add(up))
	m.view = math.LookAt(eye, ahead, above.Sub(eye))
}

// ViewMatrix implements View.
func (m *ModelCamera) ViewMatrix() math.Mat4 { return m.view }

// FovyDegrees implements View.
func (m *ModelCamera) FovyDegrees() float32 {
	if m.Camera.Fovy <= 0 {
		return DefaultFovy
	}
	return m.Camera.Fovy
}
