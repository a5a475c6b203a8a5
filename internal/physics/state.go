package physics

// State is a forward-kinematics scratch state: the configuration vector and
// the world transforms derived from it.
type State struct {
	Qpos []float64

	// Xpos and Xquat hold per-body world position and orientation (w,x,y,z).
	Xpos  []float64
	Xquat []float64

	// Tendon wrap points: tendon i owns TenWrapNum[i] points starting at
	// point index TenWrapAdr[i] of WrapXpos.
	WrapXpos   []float64
	TenWrapAdr []int
	TenWrapNum []int

	// FlexVertXpos holds world positions of all flex vertices.
	FlexVertXpos []float64
}

// newState allocates a state sized for m with the configuration at rest.
func newState(m *Model) *State {
	s := &State{
		Qpos:         make([]float64, m.NQ),
		Xpos:         make([]float64, 3*m.NBody),
		Xquat:        make([]float64, 4*m.NBody),
		TenWrapAdr:   make([]int, m.NTendon),
		TenWrapNum:   make([]int, m.NTendon),
		FlexVertXpos: make([]float64, 3*m.FlexVertexCount()),
	}
	copy(s.Qpos, m.Qpos0)
	for b := 0; b < m.NBody; b++ {
		s.Xquat[4*b] = 1
	}

	total := 0
	for t := 0; t < m.NTendon; t++ {
		s.TenWrapAdr[t] = total
		s.TenWrapNum[t] = m.TendonSiteNum[t]
		total += m.TendonSiteNum[t]
	}
	s.WrapXpos = make([]float64, 3*total)
	return s
}

// BodyPose returns the world position and quaternion (w,x,y,z) of body b.
func (s *State) BodyPose(b int) (pos [3]float64, quat [4]float64) {
	copy(pos[:], s.Xpos[3*b:3*b+3])
	copy(quat[:], s.Xquat[4*b:4*b+4])
	return pos, quat
}

// WrapPoint returns wrap point i of the flattened wrap array.
func (s *State) WrapPoint(i int) [3]float64 {
	return [3]float64{s.WrapXpos[3*i], s.WrapXpos[3*i+1], s.WrapXpos[3*i+2]}
}
