package scene

import (
	gomath "math"

	"github.com/Faultbox/mjtraj/pkg/math"
)

// WorldBounds returns the box around every visible drawable in scenes,
// refreshing world matrices first. It reports false when nothing is drawn.
func WorldBounds(scenes []*Scene) (Bounds, bool) {
	b := Bounds{
		Min: [3]float32{gomath.MaxFloat32, gomath.MaxFloat32, gomath.MaxFloat32},
		Max: [3]float32{-gomath.MaxFloat32, -gomath.MaxFloat32, -gomath.MaxFloat32},
	}
	found := false
	for _, sc := range scenes {
		sc.Graph.UpdateWorld()
		sc.Graph.Drawables(func(_ Handle, n *Node, world math.Mat4) {
			gb := n.Geometry.Bounds
			for i := 0; i < 8; i++ {
				corner := math.Vec3{
					X: pick(i&1 != 0, gb.Max[0], gb.Min[0]),
					Y: pick(i&2 != 0, gb.Max[1], gb.Min[1]),
					Z: pick(i&4 != 0, gb.Max[2], gb.Min[2]),
				}
				p := world.TransformPoint(corner).Array()
				for k := 0; k < 3; k++ {
					b.Min[k] = min(b.Min[k], p[k])
					b.Max[k] = max(b.Max[k], p[k])
				}
			}
			found = true
		})
	}
	return b, found
}

func pick(cond bool, a, b float32) float32 {
	if cond {
		return a
	}
	return b
}
