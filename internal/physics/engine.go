package physics

import (
	"context"
	"errors"
)

// Engine errors.
var (
	ErrNilModel     = errors.New("physics: model is nil")
	ErrInvalidModel = errors.New("physics: invalid model description")
)

// Engine is the physics capability the viewer consumes: model loading and
// forward kinematics. Implementations may be native bindings; calls can block.
type Engine interface {
	// LoadModel compiles a model description.
	LoadModel(ctx context.Context, data []byte) (*Model, error)
	// NewState allocates a scratch state for m.
	NewState(m *Model) *State
	// Forward derives world transforms in s from s.Qpos.
	Forward(ctx context.Context, m *Model, s *State) error
	// FreeState releases a state obtained from NewState.
	FreeState(s *State)
}
