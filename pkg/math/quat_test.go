package math

import (
	"math"
	"testing"
)

func approxVec(a, b Vec3, tol float32) bool {
	return abs32(a.X-b.X) < tol && abs32(a.Y-b.Y) < tol && abs32(a.Z-b.Z) < tol
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func TestQuatIdentityRotate(t *testing.T) {
	v := Vec3{1, 2, 3}
	got := QuatIdentity().Rotate(v)
	if got != v {
		t.Errorf("identity rotate = %v, want %v", got, v)
	}
}

func TestQuatFromAxisAngle(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{0, 0, 1}, math.Pi/2)
	got := q.Rotate(Vec3{1, 0, 0})
	if !approxVec(got, Vec3{0, 1, 0}, 1e-5) {
		t.Errorf("rotate X by 90 deg around Z = %v, want (0,1,0)", got)
	}
}

func TestQuatFromTo(t *testing.T) {
	tests := []struct {
		name     string
		from, to Vec3
	}{
		{"same", Vec3{0, 1, 0}, Vec3{0, 1, 0}},
		{"perpendicular", Vec3{0, 1, 0}, Vec3{1, 0, 0}},
		{"opposite", Vec3{0, 1, 0}, Vec3{0, -1, 0}},
		{"diagonal", Vec3{0, 1, 0}, Vec3{1, 1, 1}.Normalize()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuatFromTo(tt.from, tt.to).Rotate(tt.from)
			if !approxVec(got, tt.to, 1e-5) {
				t.Errorf("QuatFromTo(%v, %v) maps to %v", tt.from, tt.to, got)
			}
		})
	}
}

func TestQuatMulMatchesMatrix(t *testing.T) {
	a := QuatFromAxisAngle(Vec3{1, 0, 0}, 0.7)
	b := QuatFromAxisAngle(Vec3{0, 1, 0}, -1.1)
	v := Vec3{0.3, -0.5, 2}

	viaQuat := a.Mul(b).Rotate(v)
	viaMat := a.ToMat4().Mul(b.ToMat4()).TransformPoint(v)
	if !approxVec(viaQuat, viaMat, 1e-5) {
		t.Errorf("quat %v != matrix %v", viaQuat, viaMat)
	}
}

func TestQuatNormalizeDegenerate(t *testing.T) {
	if got := (Quat{}).Normalize(); got != QuatIdentity() {
		t.Errorf("Normalize(zero) = %v, want identity", got)
	}
}

func TestVec3Cross(t *testing.T) {
	got := Vec3{1, 0, 0}.Cross(Vec3{0, 1, 0})
	if got != (Vec3{0, 0, 1}) {
		t.Errorf("Vec3.Cross() = %v, want (0,0,1)", got)
	}
}
