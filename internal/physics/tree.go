package physics

import (
	"context"
	"fmt"
	"math"
)

// TreeEngine is a reference kinematics engine for rigid body trees described
// in YAML (see LoadDescription). It supports free, ball, slide and hinge joints,
// site-based tendon paths and body-attached flex vertices.
type TreeEngine struct{}

// NewTreeEngine returns the reference engine.
func NewTreeEngine() *TreeEngine {
	return &TreeEngine{}
}

// LoadModel compiles a YAML model description.
func (e *TreeEngine) LoadModel(ctx context.Context, data []byte) (*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadDescription(data)
}

// NewState allocates a scratch state with the rest configuration.
func (e *TreeEngine) NewState(m *Model) *State {
	return newState(m)
}

// FreeState drops the state's buffers.
func (e *TreeEngine) FreeState(s *State) {
	if s == nil {
		return
	}
	*s = State{}
}

// Forward computes body, tendon wrap point and flex vertex world positions.
// Bodies are processed in index order; parents always precede children.
func (e *TreeEngine) Forward(ctx context.Context, m *Model, s *State) error {
	if m == nil {
		return ErrNilModel
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.Qpos) != m.NQ || len(s.Xpos) != 3*m.NBody {
		return fmt.Errorf("physics: state not sized for model (qpos %d/%d)", len(s.Qpos), m.NQ)
	}

	if m.NBody > 0 {
		s.Xpos[0], s.Xpos[1], s.Xpos[2] = 0, 0, 0
		s.Xquat[0], s.Xquat[1], s.Xquat[2], s.Xquat[3] = 1, 0, 0, 0
	}

	for b := 1; b < m.NBody; b++ {
		p := m.BodyParentID[b]
		ppos := vec3At(s.Xpos, p)
		pquat := quatAt(s.Xquat, p)

		pos := add3(ppos, qrot(pquat, vec3At(m.BodyPos, b)))
		quat := qmul(pquat, quatAt(m.BodyQuat, b))

		for j := m.BodyJntAdr[b]; j < m.BodyJntAdr[b]+m.BodyJntNum[b]; j++ {
			adr := m.JntQposAdr[j]
			switch m.JntType[j] {
			case JointFree:
				pos = [3]float64{s.Qpos[adr], s.Qpos[adr+1], s.Qpos[adr+2]}
				quat = qnormalize([4]float64{s.Qpos[adr+3], s.Qpos[adr+4], s.Qpos[adr+5], s.Qpos[adr+6]})
			case JointBall:
				anchor := add3(pos, qrot(quat, vec3At(m.JntPos, j)))
				quat = qmul(quat, qnormalize([4]float64{s.Qpos[adr], s.Qpos[adr+1], s.Qpos[adr+2], s.Qpos[adr+3]}))
				pos = sub3(anchor, qrot(quat, vec3At(m.JntPos, j)))
			case JointHinge:
				anchor := add3(pos, qrot(quat, vec3At(m.JntPos, j)))
				quat = qmul(quat, qaxisAngle(vec3At(m.JntAxis, j), s.Qpos[adr]))
				pos = sub3(anchor, qrot(quat, vec3At(m.JntPos, j)))
			case JointSlide:
				axis := qrot(quat, vec3At(m.JntAxis, j))
				pos = add3(pos, scale3(axis, s.Qpos[adr]))
			}
		}

		quat = qnormalize(quat)
		copy(s.Xpos[3*b:3*b+3], pos[:])
		copy(s.Xquat[4*b:4*b+4], quat[:])
	}

	for t := 0; t < m.NTendon; t++ {
		base := s.TenWrapAdr[t]
		for k := 0; k < m.TendonSiteNum[t]; k++ {
			site := m.TendonSite[m.TendonSiteAdr[t]+k]
			world := attach(s, m.SiteBodyID[site], vec3At(m.SitePos, site))
			copy(s.WrapXpos[3*(base+k):3*(base+k)+3], world[:])
		}
	}

	for v := 0; v < len(m.FlexVertBodyID); v++ {
		world := attach(s, m.FlexVertBodyID[v], vec3At(m.FlexVertPos, v))
		copy(s.FlexVertXpos[3*v:3*v+3], world[:])
	}
	return nil
}

// attach maps a body-local offset to world coordinates.
func attach(s *State, body int, local [3]float64) [3]float64 {
	return add3(vec3At(s.Xpos, body), qrot(quatAt(s.Xquat, body), local))
}

func vec3At(a []float64, i int) [3]float64 {
	return [3]float64{a[3*i], a[3*i+1], a[3*i+2]}
}

func quatAt(a []float64, i int) [4]float64 {
	return [4]float64{a[4*i], a[4*i+1], a[4*i+2], a[4*i+3]}
}

func add3(a, b [3]float64) [3]float64 { return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func sub3(a, b [3]float64) [3]float64 { return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func scale3(a [3]float64, s float64) [3]float64 {
	return [3]float64{a[0] * s, a[1] * s, a[2] * s}
}

// Quaternions below are in w,x,y,z order.

func qmul(a, b [4]float64) [4]float64 {
	return [4]float64{
		a[0]*b[0] - a[1]*b[1] - a[2]*b[2] - a[3]*b[3],
		a[0]*b[1] + a[1]*b[0] + a[2]*b[3] - a[3]*b[2],
		a[0]*b[2] - a[1]*b[3] + a[2]*b[0] + a[3]*b[1],
		a[0]*b[3] + a[1]*b[2] - a[2]*b[1] + a[3]*b[0],
	}
}

func qrot(q [4]float64, v [3]float64) [3]float64 {
	u := [3]float64{q[1], q[2], q[3]}
	t := scale3(cross3(u, v), 2)
	return add3(add3(v, scale3(t, q[0])), cross3(u, t))
}

func cross3(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func qnormalize(q [4]float64) [4]float64 {
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if n < 1e-12 {
		return [4]float64{1, 0, 0, 0}
	}
	return [4]float64{q[0] / n, q[1] / n, q[2] / n, q[3] / n}
}

func qaxisAngle(axis [3]float64, angle float64) [4]float64 {
	n := math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	if n < 1e-12 {
		return [4]float64{1, 0, 0, 0}
	}
	s := math.Sin(angle/2) / n
	return [4]float64{math.Cos(angle / 2), axis[0] * s, axis[1] * s, axis[2] * s}
}
