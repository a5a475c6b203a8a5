package renderer

import (
	"sort"

	"github.com/Faultbox/mjtraj/internal/engine/scene"
	"github.com/Faultbox/mjtraj/pkg/math"
)

// Item is one drawable node in world space.
type Item struct {
	Geometry *scene.Geometry
	Material *scene.Material
	Model    math.Mat4
	Order    int
	Depth    float32
}

// Transparent reports whether the item blends with what is behind it.
func (it Item) Transparent() bool {
	return it.Material != nil && (it.Material.Transparent || it.Material.Opacity() < 1)
}

// Collect gathers every visible drawable of scenes, ordered for drawing:
// ascending render order, opaque before transparent, and transparent items
// back to front from eye.
func Collect(scenes []*scene.Scene, eye math.Vec3) []Item {
	var items []Item
	for _, sc := range scenes {
		if sc == nil {
			continue
		}
		sc.Graph.Drawables(func(h scene.Handle, n *scene.Node, world math.Mat4) {
			items = append(items, Item{
				Geometry: n.Geometry,
				Material: n.Material,
				Model:    world,
				Order:    n.RenderOrder,
				Depth:    world.Translation().Distance(eye),
			})
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		at, bt := a.Transparent(), b.Transparent()
		if at != bt {
			return !at
		}
		if at {
			return a.Depth > b.Depth
		}
		return false
	})
	return items
}
