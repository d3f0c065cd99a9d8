package math

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	// Diagonal should be 1
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	// Off-diagonal should be 0
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
}

func TestMulIdentity(t *testing.T) {
	m := Translate(1, 2, 3)
	id := Identity()
	result := m.Mul(id)

	for i := 0; i < 16; i++ {
		if result[i] != m[i] {
			t.Errorf("M * I should equal M, element %d: got %f, want %f", i, result[i], m[i])
		}
	}
}

func TestMulMatchesMathGL(t *testing.T) {
	a := Compose(Vec3{1, 2, 3}, QuatFromAxisAngle(Vec3{0, 1, 0}, 0.7), Vec3{1, 2, 1})
	b := RotateAxis(Vec3{1, 0, 0}, 0.3).Mul(Translate(-4, 0, 2))

	got := a.Mul(b)
	want := mgl32.Mat4(a).Mul4(mgl32.Mat4(b))
	if !got.ApproxEqual(Mat4(want), 1e-5) {
		t.Errorf("Mul: got %v, want %v", got, want)
	}
}

func TestTranslate(t *testing.T) {
	m := Translate(5, 10, 15)

	// Translation should be in column 4 (indices 12, 13, 14)
	if m[12] != 5 || m[13] != 10 || m[14] != 15 {
		t.Errorf("Translate: got (%f, %f, %f), want (5, 10, 15)", m[12], m[13], m[14])
	}
	if got := m.Translation(); got != (Vec3{5, 10, 15}) {
		t.Errorf("Translation() = %v", got)
	}
}

func TestTransformPoint(t *testing.T) {
	m := Translate(10, 20, 30)
	p := [3]float32{1, 2, 3}
	result := m.TransformPoint(p)

	expected := [3]float32{11, 22, 33}
	if result != expected {
		t.Errorf("TransformPoint: got %v, want %v", result, expected)
	}
}

func TestRotateY90(t *testing.T) {
	m := RotateY(float32(math.Pi / 2)) // 90 degrees
	p := [3]float32{1, 0, 0}           // Point on X axis
	result := m.TransformPoint(p)

	// After 90 degree Y rotation, (1,0,0) should become approximately (0,0,-1)
	if abs(result[0]) > 0.001 || abs(result[1]) > 0.001 || abs(result[2]+1) > 0.001 {
		t.Errorf("RotateY 90: got %v, want (0, 0, -1)", result)
	}
}

func TestInverse(t *testing.T) {
	m := Compose(Vec3{3, -1, 2}, QuatFromAxisAngle(Vec3{0, 0, 1}, 1.1), Vec3{2, 2, 2})
	got := m.Mul(m.Inverse())
	if !got.ApproxEqual(Identity(), 1e-5) {
		t.Errorf("M * M^-1 should be identity, got %v", got)
	}

	want := mgl32.Mat4(m).Inv()
	if !m.Inverse().ApproxEqual(Mat4(want), 1e-5) {
		t.Errorf("Inverse: got %v, want %v", m.Inverse(), want)
	}
}

func TestInverseSingular(t *testing.T) {
	if got := (Mat4{}).Inverse(); got != Identity() {
		t.Errorf("singular inverse should be identity, got %v", got)
	}
}

func TestTranspose(t *testing.T) {
	m := Translate(1, 2, 3)
	tr := m.Transpose()
	if tr[3] != 1 || tr[7] != 2 || tr[11] != 3 {
		t.Errorf("Transpose should move translation to bottom row, got %v", tr)
	}
	if tr.Transpose() != m {
		t.Error("double transpose should be the original")
	}
}

func TestDecompose(t *testing.T) {
	tests := []struct {
		name  string
		trans Vec3
		rot   Quat
		scale Vec3
	}{
		{"identity", Vec3{}, QuatIdentity(), Vec3{1, 1, 1}},
		{"rotated", Vec3{1, 2, 3}, QuatFromAxisAngle(Vec3{0, 1, 0}, 1.2), Vec3{1, 1, 1}},
		{"scaled", Vec3{-2, 0, 5}, QuatFromAxisAngle(Vec3{1, 0, 0}, -0.4), Vec3{2, 3, 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Compose(tt.trans, tt.rot, tt.scale)
			tr, rot, sc := m.Decompose()
			if !tr.ApproxEqual(tt.trans, 1e-5) {
				t.Errorf("translation: got %v, want %v", tr, tt.trans)
			}
			if !sc.ApproxEqual(tt.scale, 1e-4) {
				t.Errorf("scale: got %v, want %v", sc, tt.scale)
			}
			if rot.AngleTo(tt.rot) > 1e-3 {
				t.Errorf("rotation: got %v, want %v", rot, tt.rot)
			}
			if !Compose(tr, rot, sc).ApproxEqual(m, 1e-4) {
				t.Error("recompose should reproduce the matrix")
			}
		})
	}
}

func TestBoxTransform(t *testing.T) {
	b := Box{Min: Vec3{-1, -1, -1}, Max: Vec3{1, 1, 1}}
	got := b.Transform(Translate(5, 0, 0).Mul(Scale(2, 1, 1)))
	if !got.Min.ApproxEqual(Vec3{3, -1, -1}, 1e-6) || !got.Max.ApproxEqual(Vec3{7, 1, 1}, 1e-6) {
		t.Errorf("Box.Transform: got %+v", got)
	}
	if c := got.Center(); !c.ApproxEqual(Vec3{5, 0, 0}, 1e-6) {
		t.Errorf("Center: got %v", c)
	}
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
