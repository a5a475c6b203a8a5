// Package pose pushes configuration vectors through forward kinematics and
// copies the resulting body transforms onto scene nodes.
package pose

import (
	"context"
	"errors"
	"fmt"

	"github.com/Faultbox/mjtraj/internal/engine/coords"
	"github.com/Faultbox/mjtraj/internal/engine/scene"
	"github.com/Faultbox/mjtraj/internal/physics"
)

// ErrDimensionMismatch matches every DimensionMismatchError.
var ErrDimensionMismatch = errors.New("pose: dimension mismatch")

// DimensionMismatchError reports a pose vector whose length differs from the
// model's configuration dimension. The pose was not applied.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("pose: vector has %d values, model expects %d", e.Got, e.Want)
}

// Is makes errors.Is(err, ErrDimensionMismatch) hold.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// Applier applies poses of one model.
type Applier struct {
	engine physics.Engine
	model  *physics.Model
	tr     coords.Transform
}

// NewApplier creates an applier for model m.
func NewApplier(engine physics.Engine, m *physics.Model, tr coords.Transform) *Applier {
	return &Applier{engine: engine, model: m, tr: tr}
}

// Model returns the model poses are applied for.
func (a *Applier) Model() *physics.Model {
	return a.model
}

// Apply copies pose into s, runs forward kinematics and writes each body's
// world transform onto its group in g. On a length mismatch nothing is
// touched and a *DimensionMismatchError is returned. Only the body groups
// and their subtrees get their world matrices recomputed.
func (a *Applier) Apply(ctx context.Context, pose []float64, g *scene.Graph, bodies []scene.Handle, s *physics.State) error {
	if len(pose) != a.model.NQ {
		return &DimensionMismatchError{Got: len(pose), Want: a.model.NQ}
	}

	copy(s.Qpos, pose)
	if err := a.engine.Forward(ctx, a.model, s); err != nil {
		return fmt.Errorf("forward kinematics: %w", err)
	}

	for id, h := range bodies {
		if h == scene.NoHandle || 3*id+2 >= len(s.Xpos) {
			continue
		}
		pos, quat := s.BodyPose(id)
		g.SetTransform(h, a.tr.ToRenderPosition(pos), a.tr.ToRenderQuat(quat))
	}
	g.UpdateWorld()
	return nil
}

// ApplyScene is Apply on a built scene.
func (a *Applier) ApplyScene(ctx context.Context, pose []float64, sc *scene.Scene, s *physics.State) error {
	return a.Apply(ctx, pose, sc.Graph, sc.Bodies, s)
}
