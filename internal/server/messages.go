package server

import (
	"errors"
	"fmt"

	"github.com/Faultbox/mjtraj/internal/engine/scene"
	"github.com/Faultbox/mjtraj/internal/playback"
)

// ErrInvalidControl is returned for malformed control messages.
var ErrInvalidControl = errors.New("invalid control message")

// BodyPose is a body's transform in render space.
type BodyPose struct {
	Name     string     `json:"name"`
	Position [3]float32 `json:"position"`
	Rotation [4]float32 `json:"rotation"` // x, y, z, w
}

// InstanceFrame is the pose of one instance at a tick.
type InstanceFrame struct {
	ID       string     `json:"id"`
	Frame    int        `json:"frame"`
	Mismatch bool       `json:"mismatch,omitempty"`
	Bodies   []BodyPose `json:"bodies"`
}

// FrameMessage is broadcast to websocket clients once per tick.
type FrameMessage struct {
	Type        string          `json:"type"`
	GlobalFrame float64         `json:"global_frame"`
	Playing     bool            `json:"playing"`
	Instances   []InstanceFrame `json:"instances"`
	Dropped     int             `json:"dropped,omitempty"`
}

// ControlMessage drives the playback clock. It is accepted on the websocket
// and on POST /api/playback.
type ControlMessage struct {
	Action string   `json:"action"`
	Frame  *float64 `json:"frame,omitempty"`
	Speed  *float64 `json:"speed,omitempty"`
	Loop   *bool    `json:"loop,omitempty"`
	Steps  int      `json:"steps,omitempty"`
}

// InstancePatch updates instance settings. Nil fields are left unchanged.
type InstancePatch struct {
	Ghost      *bool    `json:"ghost,omitempty"`
	Visible    *bool    `json:"visible,omitempty"`
	StartFrame *int     `json:"start_frame,omitempty"`
	FrameRate  *float64 `json:"frame_rate,omitempty"`
}

// AddRequest loads a trajectory file below the data root.
type AddRequest struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
}

func frameMessage(v *playback.Viewer, r playback.Report) FrameMessage {
	msg := FrameMessage{
		Type:        "frame",
		GlobalFrame: v.Clock().Frame(),
		Playing:     v.Clock().Playing(),
		Dropped:     r.Instancing.Dropped,
	}
	for _, inst := range v.Instances() {
		if !inst.Visible() {
			continue
		}
		_, mismatch := r.Mismatches[inst.ID]
		msg.Instances = append(msg.Instances, InstanceFrame{
			ID:       inst.ID,
			Frame:    inst.LastFrame(),
			Mismatch: mismatch,
			Bodies:   bodyPoses(inst.Scene),
		})
	}
	return msg
}

func bodyPoses(sc *scene.Scene) []BodyPose {
	out := make([]BodyPose, 0, len(sc.Bodies))
	for _, h := range sc.Bodies {
		n := sc.Graph.Node(h)
		if n == nil {
			continue
		}
		world := sc.Graph.World(h)
		t := world.Translation()
		out = append(out, BodyPose{
			Name:     n.Name,
			Position: [3]float32{t.X, t.Y, t.Z},
			Rotation: [4]float32{n.Rotation.X, n.Rotation.Y, n.Rotation.Z, n.Rotation.W},
		})
	}
	return out
}

func applyControl(v *playback.Viewer, msg ControlMessage) error {
	c := v.Clock()
	switch msg.Action {
	case "play":
		c.Play()
	case "pause":
		c.Pause()
	case "toggle":
		c.Toggle()
	case "seek":
		if msg.Frame == nil {
			return fmt.Errorf("%w: seek needs a frame", ErrInvalidControl)
		}
		c.Seek(*msg.Frame)
	case "step":
		n := msg.Steps
		if n == 0 {
			n = 1
		}
		c.Step(n, v.LastFrame())
	case "speed":
		if msg.Speed == nil {
			return fmt.Errorf("%w: speed needs a value", ErrInvalidControl)
		}
		c.SetSpeed(*msg.Speed)
	case "loop":
		if msg.Loop == nil {
			return fmt.Errorf("%w: loop needs a value", ErrInvalidControl)
		}
		c.SetLoop(*msg.Loop)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidControl, msg.Action)
	}
	return nil
}

func applyPatch(v *playback.Viewer, id string, p InstancePatch) error {
	if p.Ghost != nil {
		if err := v.SetGhost(id, *p.Ghost); err != nil {
			return err
		}
	}
	if p.Visible != nil {
		if err := v.SetVisible(id, *p.Visible); err != nil {
			return err
		}
	}
	if p.StartFrame != nil {
		if err := v.SetStartFrame(id, *p.StartFrame); err != nil {
			return err
		}
	}
	if p.FrameRate != nil {
		if err := v.SetFrameRate(id, *p.FrameRate); err != nil {
			return err
		}
	}
	_, err := v.Instance(id)
	return err
}
