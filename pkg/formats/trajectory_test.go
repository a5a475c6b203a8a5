package formats

import (
	"errors"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Kind
	}{
		{"npy", createTestNPY([]int{1}, []float64{0}), KindNPY},
		{"npz", createTestNPZ(map[string][]byte{"qpos": createTestNPY([]int{1}, []float64{0})}), KindNPZ},
		{"text", []byte("frame,qpos0\n0,1\n"), KindUnknown},
		{"empty", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.data); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParseTrajectory_NPY(t *testing.T) {
	data := createTestNPY([]int{90, 2}, make([]float64, 180))

	traj, err := ParseTrajectory(data, SourceLocal)
	if err != nil {
		t.Fatalf("ParseTrajectory failed: %v", err)
	}
	if traj.FrameCount() != 90 || traj.Width() != 2 {
		t.Errorf("expected 90x2, got %dx%d", traj.FrameCount(), traj.Width())
	}
	if traj.FrameRate != DefaultFrameRate {
		t.Errorf("expected default rate %v, got %v", DefaultFrameRate, traj.FrameRate)
	}
	if traj.Duration() != 3 {
		t.Errorf("expected 3s duration, got %v", traj.Duration())
	}
	if traj.Source != SourceLocal {
		t.Errorf("expected local source, got %s", traj.Source)
	}
}

func TestParseTrajectory_NPY1D(t *testing.T) {
	data := createTestNPY([]int{4}, []float64{0, 0.1, 0.2, 0.3})

	traj, err := ParseTrajectory(data, SourceRemote)
	if err != nil {
		t.Fatalf("ParseTrajectory failed: %v", err)
	}
	if traj.FrameCount() != 4 || traj.Width() != 1 {
		t.Errorf("expected 4x1, got %dx%d", traj.FrameCount(), traj.Width())
	}
	if traj.Frames[3][0] != 0.3 {
		t.Errorf("expected last value 0.3, got %v", traj.Frames[3][0])
	}
}

func TestParseTrajectory_NPZ(t *testing.T) {
	data := createTestNPZ(map[string][]byte{
		"qpos":      createTestNPY([]int{3, 2}, []float64{0, 0, 1, 1, 2, 2}),
		"qvel":      createTestNPY([]int{3, 2}, make([]float64, 6)),
		"framerate": createTestNPY(nil, []float64{60}),
		"labels":    createTestNPY([]int{5}, make([]float64, 5)),
	})

	traj, err := ParseTrajectory(data, SourceRemote)
	if err != nil {
		t.Fatalf("ParseTrajectory failed: %v", err)
	}
	if traj.FrameRate != 60 {
		t.Errorf("expected framerate fallback 60, got %v", traj.FrameRate)
	}
	if _, ok := traj.Aux["qvel"]; !ok {
		t.Error("expected qvel auxiliary stream")
	}
	if _, ok := traj.Aux["labels"]; ok {
		t.Error("labels has a different length and must not be an auxiliary stream")
	}
	if _, ok := traj.Aux["framerate"]; ok {
		t.Error("scalar framerate must not be an auxiliary stream")
	}
}

func TestParseTrajectory_FrameRatePriority(t *testing.T) {
	data := createTestNPZ(map[string][]byte{
		"qpos":       createTestNPY([]int{1, 1}, []float64{0}),
		"frame_rate": createTestNPY(nil, []float64{24}),
		"framerate":  createTestNPY(nil, []float64{60}),
	})

	traj, err := ParseTrajectory(data, SourceRemote)
	if err != nil {
		t.Fatalf("ParseTrajectory failed: %v", err)
	}
	if traj.FrameRate != 24 {
		t.Errorf("expected frame_rate to win, got %v", traj.FrameRate)
	}
}

func TestParseTrajectory_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"unknown", []byte("hello world"), ErrUnsupportedFormat},
		{"no qpos", createTestNPZ(map[string][]byte{"qvel": createTestNPY([]int{1}, []float64{0})}), ErrMissingQpos},
		{"empty", createTestNPY([]int{0, 3}, nil), ErrEmptyTrajectory},
		{"zero width", rawNPY("(1099511627776, 0)", 0), ErrEmptyTrajectory},
		{"huge shape", rawNPY("(4611686018427387904, 3)", 16), ErrTruncatedNPYData},
		{"wrapping shape", rawNPY("(2305843009213693952, 8)", 16), ErrTruncatedNPYData},
		{"huge npz qpos", createTestNPZ(map[string][]byte{"qpos": rawNPY("(4611686018427387904, 3)", 16)}), ErrTruncatedNPYData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traj, err := ParseTrajectory(tt.data, SourceLocal)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if traj != nil {
				t.Error("expected no partial result")
			}
		})
	}
}

func TestMetadata(t *testing.T) {
	info, err := Metadata(createTestNPY([]int{120, 7}, make([]float64, 840)))
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if info.FrameCount != 120 || info.NumJoints == nil || *info.NumJoints != 7 || info.FrameRate != nil {
		t.Errorf("unexpected npy metadata: %s", info)
	}

	info, err = Metadata(createTestNPZ(map[string][]byte{
		"qpos":       createTestNPY([]int{10}, make([]float64, 10)),
		"frame_rate": createTestNPY(nil, []float64{50}),
	}))
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if info.FrameCount != 10 || info.NumJoints != nil {
		t.Errorf("unexpected npz metadata: %s", info)
	}
	if info.FrameRate == nil || *info.FrameRate != 50 {
		t.Errorf("expected frame rate 50, got %s", info)
	}

	info, err = Metadata(createTestNPY(nil, []float64{1}))
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if info.FrameCount != 1 || info.NumJoints != nil {
		t.Errorf("unexpected scalar metadata: %s", info)
	}
}

func TestTrajectoryID(t *testing.T) {
	id := TrajectoryID("runs/walk.npz")
	if len(id) != 16 {
		t.Fatalf("expected 16 chars, got %q", id)
	}
	if id != TrajectoryID("runs/walk.npz") {
		t.Error("expected stable id")
	}
	if id == TrajectoryID("runs/run.npz") {
		t.Error("expected different ids for different paths")
	}
}
