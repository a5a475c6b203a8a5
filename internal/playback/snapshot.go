package playback

// InstanceInfo is the externally visible state of one instance.
type InstanceInfo struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Ghost      bool    `json:"ghost"`
	Visible    bool    `json:"visible"`
	StartFrame int     `json:"start_frame"`
	FrameRate  float64 `json:"frame_rate"`
	FrameCount int     `json:"frame_count"`
	Frame      int     `json:"frame"`
}

// Snapshot is the externally visible playback state.
type Snapshot struct {
	Frame       float64        `json:"frame"`
	LastFrame   float64        `json:"last_frame"`
	PrimaryRate float64        `json:"primary_rate"`
	Playing     bool           `json:"playing"`
	Speed       float64        `json:"speed"`
	Loop        bool           `json:"loop"`
	Instances   []InstanceInfo `json:"instances"`
}

// Snapshot captures the current clock and instance settings.
func (v *Viewer) Snapshot() Snapshot {
	s := Snapshot{
		Frame:       v.clock.Frame(),
		LastFrame:   v.LastFrame(),
		PrimaryRate: v.PrimaryRate(),
		Playing:     v.clock.Playing(),
		Speed:       v.clock.Speed(),
		Loop:        v.clock.Loop(),
		Instances:   make([]InstanceInfo, 0, len(v.instances)),
	}
	for _, inst := range v.instances {
		s.Instances = append(s.Instances, InstanceInfo{
			ID:         inst.ID,
			Name:       inst.Name,
			Ghost:      inst.ghost,
			Visible:    inst.visible,
			StartFrame: inst.StartFrame,
			FrameRate:  inst.FrameRate(),
			FrameCount: inst.Trajectory.FrameCount(),
			Frame:      inst.lastFrame,
		})
	}
	return s
}
