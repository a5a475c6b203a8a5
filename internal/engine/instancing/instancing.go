// Package instancing maintains the instanced cylinder and sphere buffers
// that draw tendons and flex vertices.
package instancing

import (
	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/engine/coords"
	"github.com/Faultbox/mjtraj/internal/engine/scene"
	"github.com/Faultbox/mjtraj/internal/logger"
	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/pkg/math"
)

// Capacity heuristics: a tendon is assumed to wrap through at most 21 points.
const (
	CylindersPerTendon = 20
	SpheresPerTendon   = 21

	// WrapEpsilon is the minimum magnitude of a usable wrap point; unset
	// entries sit at the origin.
	WrapEpsilon = 1e-6
)

var (
	defaultTendonColor = [4]float32{0.9, 0.3, 0.3, 1}
	defaultFlexColor   = [4]float32{0.3, 0.6, 0.9, 1}
)

// Instance is one drawn copy of a template primitive.
type Instance struct {
	Matrix math.Mat4
	Color  [4]float32
}

// Buffer is a fixed-capacity instance list. Only Items[:Active] are drawn.
type Buffer struct {
	Template *scene.Geometry
	Items    []Instance
	Active   int
}

// Capacity returns the number of preallocated instances.
func (b *Buffer) Capacity() int {
	return len(b.Items)
}

// Visible returns the instances to draw.
func (b *Buffer) Visible() []Instance {
	return b.Items[:b.Active]
}

func (b *Buffer) push(inst Instance) bool {
	if b.Active >= len(b.Items) {
		return false
	}
	b.Items[b.Active] = inst
	b.Active++
	return true
}

// Stats reports the outcome of one Update.
type Stats struct {
	Cylinders int
	Spheres   int
	// Dropped counts instances that did not fit the buffers.
	Dropped int
}

// Overflow reports whether any instance was dropped.
func (s Stats) Overflow() bool {
	return s.Dropped > 0
}

// Manager owns the tendon/flex instance buffers of one scene.
type Manager struct {
	Cylinders *Buffer
	Spheres   *Buffer

	tr       coords.Transform
	log      *zap.Logger
	overflow bool
	stats    Stats
}

// Capacities returns the buffer sizes used for a model.
func Capacities(m *physics.Model) (cylinders, spheres int) {
	cylinders = m.NTendon * CylindersPerTendon
	spheres = m.NTendon*SpheresPerTendon + m.FlexVertexCount()
	if cylinders < 1 {
		cylinders = 1
	}
	if spheres < 1 {
		spheres = 1
	}
	return cylinders, spheres
}

// NewManager preallocates buffers sized for m.
func NewManager(m *physics.Model, tr coords.Transform) *Manager {
	cyl, sph := Capacities(m)
	// Templates are built along render Y so instance matrices align Y with
	// the segment regardless of the transform mode.
	templateSpace := coords.New(coords.Swizzle)
	return &Manager{
		Cylinders: &Buffer{
			Template: scene.NewCylinder(1, 0.5, templateSpace),
			Items:    make([]Instance, cyl),
		},
		Spheres: &Buffer{
			Template: scene.NewSphere(1, templateSpace),
			Items:    make([]Instance, sph),
		},
		tr:  tr,
		log: logger.Named("instancing"),
	}
}

// Stats returns the result of the last Update.
func (mg *Manager) Stats() Stats {
	return mg.stats
}

// Update repopulates both buffers from the state. Active counts are reset
// every call, so nothing from a previous frame stays visible.
func (mg *Manager) Update(m *physics.Model, s *physics.State) Stats {
	mg.Cylinders.Active = 0
	mg.Spheres.Active = 0
	var st Stats

	for t := 0; t < m.NTendon && t < len(s.TenWrapAdr); t++ {
		width := float32(valueAt(m.TendonWidth, t))
		color := rgbaAt(m.TendonRGBA, t, defaultTendonColor)
		adr, num := s.TenWrapAdr[t], s.TenWrapNum[t]

		endWritten := false
		for j := 0; j+1 < num; j++ {
			p0, ok0 := mg.wrapPoint(s, adr+j)
			p1, ok1 := mg.wrapPoint(s, adr+j+1)
			if !ok0 || !ok1 {
				endWritten = false
				continue
			}

			if mg.Cylinders.push(Instance{Matrix: segmentMatrix(p0, p1, width), Color: color}) {
				st.Cylinders++
			} else {
				st.Dropped++
			}
			if !endWritten {
				mg.sphere(&st, p0, width, color)
			}
			mg.sphere(&st, p1, width, color)
			endWritten = true
		}
	}

	vert := 0
	for f := 0; f < m.NFlex; f++ {
		radius := float32(valueAt(m.FlexRadius, f))
		for k := 0; k < m.FlexVertNum[f]; k++ {
			i := vert + k
			if 3*i+2 >= len(s.FlexVertXpos) {
				break
			}
			p := mg.tr.ToRenderPosition([3]float64{s.FlexVertXpos[3*i], s.FlexVertXpos[3*i+1], s.FlexVertXpos[3*i+2]})
			mg.sphere(&st, p, radius, defaultFlexColor)
		}
		vert += m.FlexVertNum[f]
	}

	if st.Overflow() && !mg.overflow {
		mg.log.Warn("instance capacity exceeded, dropping excess",
			zap.Int("dropped", st.Dropped),
			zap.Int("cylinder_capacity", mg.Cylinders.Capacity()),
			zap.Int("sphere_capacity", mg.Spheres.Capacity()))
	}
	mg.overflow = st.Overflow()
	mg.stats = st
	return st
}

func (mg *Manager) sphere(st *Stats, p math.Vec3, radius float32, color [4]float32) {
	inst := Instance{
		Matrix: math.Compose(p, math.QuatIdentity(), math.Vec3{X: radius, Y: radius, Z: radius}),
		Color:  color,
	}
	if mg.Spheres.push(inst) {
		st.Spheres++
	} else {
		st.Dropped++
	}
}

// wrapPoint returns wrap point i in render space and whether it is usable.
func (mg *Manager) wrapPoint(s *physics.State, i int) (math.Vec3, bool) {
	if i < 0 || 3*i+2 >= len(s.WrapXpos) {
		return math.Vec3{}, false
	}
	p := mg.tr.ToRenderPosition(s.WrapPoint(i))
	return p, p.Length() > WrapEpsilon
}

// segmentMatrix places the unit Y-aligned cylinder between a and b.
func segmentMatrix(a, b math.Vec3, radius float32) math.Mat4 {
	d := b.Sub(a)
	length := d.Length()
	rot := math.QuatIdentity()
	if length > 0 {
		rot = math.QuatFromTo(math.Vec3{Y: 1}, d.Scale(1/length))
	}
	return math.Compose(a.Lerp(b, 0.5), rot, math.Vec3{X: radius, Y: length, Z: radius})
}

func valueAt(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func rgbaAt(s []float32, i int, fallback [4]float32) [4]float32 {
	if 4*i+3 < len(s) {
		return [4]float32{s[4*i], s[4*i+1], s[4*i+2], s[4*i+3]}
	}
	return fallback
}
