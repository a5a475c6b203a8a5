package playback

import (
	"github.com/Faultbox/mjtraj/internal/engine/scene"
	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/pkg/formats"
)

// GhostStyle is the look applied to ghosted instances.
type GhostStyle struct {
	Opacity     float32
	RenderOrder int
}

// DefaultGhostStyle draws ghosts at 35% opacity before opaque geometry.
var DefaultGhostStyle = GhostStyle{Opacity: 0.35, RenderOrder: -1}

// Instance is one loaded trajectory with its own copy of the body
// hierarchy and its own kinematic state.
type Instance struct {
	ID         string
	Name       string
	Trajectory *formats.Trajectory
	// Path is the file the trajectory was read from, if any.
	Path string

	// StartFrame is the local frame shown at global frame 0.
	StartFrame int
	// FrameRateOverride replaces the trajectory's rate when positive.
	FrameRateOverride float64

	Scene *scene.Scene
	State *physics.State

	ghost   bool
	visible bool
	// shared keeps the base materials of nodes that were ghosted.
	shared map[scene.Handle]*scene.Material

	lastFrame int
	mismatch  bool
}

// Ghost reports whether the instance is drawn as a ghost.
func (i *Instance) Ghost() bool { return i.ghost }

// Visible reports whether the instance is posed and drawn.
func (i *Instance) Visible() bool { return i.visible }

// LastFrame returns the local frame applied by the last update.
func (i *Instance) LastFrame() int { return i.lastFrame }

// SubtreeName returns the root name of the instance subtree.
func (i *Instance) SubtreeName() string {
	return subtreeName(i.ID, i.Name)
}

func subtreeName(id, name string) string {
	return "traj-" + id + "-" + name
}

// FrameRate returns the effective frame rate.
func (i *Instance) FrameRate() float64 {
	if i.FrameRateOverride > 0 {
		return i.FrameRateOverride
	}
	return EffectiveRate(i.Trajectory.FrameRate)
}

// Timeline returns the instance's placement on the global clock.
func (i *Instance) Timeline() Timeline {
	return Timeline{
		StartFrame: i.StartFrame,
		FrameRate:  i.FrameRate(),
		FrameCount: i.Trajectory.FrameCount(),
	}
}

// Duration returns the trajectory length in seconds at the effective rate.
func (i *Instance) Duration() float64 {
	return i.Timeline().Duration()
}

// setGhost swaps every material of the subtree for a translucent copy, or
// restores the shared materials. Ghosting never raises a material's
// opacity. Shared materials are never mutated.
func (i *Instance) setGhost(on bool, style GhostStyle) {
	if on == i.ghost {
		return
	}
	g := i.Scene.Graph
	root := g.Root()
	if on {
		if i.shared == nil {
			i.shared = make(map[scene.Handle]*scene.Material)
		}
		g.Walk(root, func(h scene.Handle, n *scene.Node) bool {
			if n.Material == nil {
				return true
			}
			i.shared[h] = n.Material
			m := n.Material.Clone()
			m.Color[3] = min(m.Color[3], style.Opacity)
			m.Transparent = true
			m.DepthWrite = false
			n.Material = m
			n.RenderOrder = style.RenderOrder
			return true
		})
	} else {
		g.Walk(root, func(h scene.Handle, n *scene.Node) bool {
			if m, ok := i.shared[h]; ok {
				n.Material = m
				n.RenderOrder = 0
			}
			return true
		})
		i.shared = nil
	}
	i.ghost = on
}
