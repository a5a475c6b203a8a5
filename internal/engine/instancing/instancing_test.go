package instancing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/mjtraj/internal/engine/coords"
	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/pkg/math"
)

// tendonModel returns a model with one tendon of n wrap points and a state
// whose wrap points are spread along engine X.
func tendonModel(n int) (*physics.Model, *physics.State) {
	m := &physics.Model{
		NTendon:       1,
		TendonWidth:   []float64{0.01},
		TendonRGBA:    []float32{1, 0, 0, 1},
		TendonSiteNum: []int{n},
	}
	s := &physics.State{
		WrapXpos:   make([]float64, 3*n),
		TenWrapAdr: []int{0},
		TenWrapNum: []int{n},
	}
	for i := 0; i < n; i++ {
		s.WrapXpos[3*i] = float64(i + 1)
	}
	return m, s
}

func TestCapacities(t *testing.T) {
	cyl, sph := Capacities(&physics.Model{})
	assert.Equal(t, 1, cyl)
	assert.Equal(t, 1, sph)

	cyl, sph = Capacities(&physics.Model{NTendon: 3, NFlex: 2, FlexVertNum: []int{4, 6}})
	assert.Equal(t, 60, cyl)
	assert.Equal(t, 63+10, sph)
}

func TestTendonSegments(t *testing.T) {
	m, s := tendonModel(3)
	mg := NewManager(m, coords.New(coords.Swizzle))

	st := mg.Update(m, s)
	assert.Equal(t, 2, st.Cylinders)
	assert.Equal(t, 3, st.Spheres, "shared endpoints are drawn once")
	assert.False(t, st.Overflow())
	assert.Equal(t, 2, mg.Cylinders.Active)
	assert.Equal(t, 3, mg.Spheres.Active)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, mg.Cylinders.Visible()[0].Color)
}

func TestInvalidWrapPointsAreSkipped(t *testing.T) {
	m, s := tendonModel(4)
	// Point 1 unset.
	s.WrapXpos[3], s.WrapXpos[4], s.WrapXpos[5] = 0, 0, 0

	mg := NewManager(m, coords.New(coords.Swizzle))
	st := mg.Update(m, s)

	assert.Equal(t, 1, st.Cylinders)
	assert.Equal(t, 2, st.Spheres)
}

func TestCapacityOverflowDropsExcess(t *testing.T) {
	m, s := tendonModel(25)
	mg := NewManager(m, coords.New(coords.Swizzle))
	require.Equal(t, 20, mg.Cylinders.Capacity())
	require.Equal(t, 21, mg.Spheres.Capacity())

	st := mg.Update(m, s)

	assert.True(t, st.Overflow())
	assert.Equal(t, 20, st.Cylinders)
	assert.Equal(t, 21, st.Spheres)
	assert.Equal(t, 4+4, st.Dropped)
	assert.Equal(t, mg.Cylinders.Capacity(), mg.Cylinders.Active)
	assert.Equal(t, mg.Spheres.Capacity(), mg.Spheres.Active)
}

func TestActiveCountsResetEveryFrame(t *testing.T) {
	m, s := tendonModel(3)
	mg := NewManager(m, coords.New(coords.Swizzle))
	mg.Update(m, s)
	require.Equal(t, 2, mg.Cylinders.Active)

	for i := range s.WrapXpos {
		s.WrapXpos[i] = 0
	}
	st := mg.Update(m, s)

	assert.Equal(t, Stats{}, st)
	assert.Equal(t, 0, mg.Cylinders.Active)
	assert.Equal(t, 0, mg.Spheres.Active)
	assert.Empty(t, mg.Spheres.Visible())
}

func TestFlexVerticesFollowTendonSpheres(t *testing.T) {
	m, s := tendonModel(2)
	m.NFlex = 1
	m.FlexVertNum = []int{2}
	m.FlexRadius = []float64{0.05}
	s.FlexVertXpos = []float64{0, 0, 1, 0, 0, 2}

	mg := NewManager(m, coords.New(coords.Swizzle))
	st := mg.Update(m, s)

	assert.Equal(t, 4, st.Spheres)
	last := mg.Spheres.Visible()[3]
	// Engine (0,0,2) is render (0,2,0).
	assert.Equal(t, math.Vec3{Y: 2}, last.Matrix.Translation())
	assert.InDelta(t, 0.05, last.Matrix[0], 1e-6)
}

func TestSegmentMatrixSpansEndpoints(t *testing.T) {
	tr := coords.New(coords.Swizzle)
	a := tr.ToRenderPosition([3]float64{1, 0, 0})
	b := tr.ToRenderPosition([3]float64{1, 0, 2})

	mat := segmentMatrix(a, b, 0.1)

	top := mat.TransformPoint(math.Vec3{Y: 0.5})
	bottom := mat.TransformPoint(math.Vec3{Y: -0.5})
	assert.InDelta(t, b.X, top.X, 1e-5)
	assert.InDelta(t, b.Y, top.Y, 1e-5)
	assert.InDelta(t, b.Z, top.Z, 1e-5)
	assert.InDelta(t, a.Y, bottom.Y, 1e-5)

	side := mat.TransformPoint(math.Vec3{X: 1})
	assert.InDelta(t, 0.1, side.Sub(a.Lerp(b, 0.5)).Length(), 1e-5)
}
