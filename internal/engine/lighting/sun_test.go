package lighting

import (
	gomath "math"
	"testing"
)

func TestSunDirection(t *testing.T) {
	tests := []struct {
		name      string
		azimuth   float64
		elevation float64
		want      [3]float32
	}{
		{"overhead", 0, 90, [3]float32{0, -1, 0}},
		{"horizon north", 0, 0, [3]float32{0, 0, -1}},
		{"horizon east", 90, 0, [3]float32{-1, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SunDirection(tt.azimuth, tt.elevation).Array()
			for i := range got {
				if gomath.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("component %d: expected %f, got %f", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestDefaultSunPointsDown(t *testing.T) {
	d := DefaultSun()
	if d.Y >= 0 {
		t.Errorf("expected default sun to point downward, got %+v", d)
	}
	if l := d.Length(); gomath.Abs(float64(l)-1) > 1e-5 {
		t.Errorf("expected unit direction, got length %f", l)
	}
}
