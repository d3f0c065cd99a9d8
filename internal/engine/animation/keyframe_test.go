package animation

import (
	gomath "math"
	"testing"

	"github.com/Faultbox/midgard-rig/pkg/math"
)

func yRotation(angle float32) math.Quat {
	return math.QuatFromAxisAngle(math.Vec3{Y: 1}, angle)
}

func TestInterpolateMatrixKeysBoundaries(t *testing.T) {
	times := []float32{0.2, 0.5, 1}
	values := []math.Mat4{
		math.Compose(math.Vec3{X: 1}, yRotation(0.1), math.Vec3{X: 1, Y: 1, Z: 1}),
		math.Compose(math.Vec3{X: 2}, yRotation(0.7), math.Vec3{X: 1, Y: 1, Z: 1}),
		math.Compose(math.Vec3{X: 3}, yRotation(1.3), math.Vec3{X: 1, Y: 1, Z: 1}),
	}

	tests := []struct {
		name string
		t    float32
		want math.Mat4
	}{
		{"before first", 0, values[0]},
		{"first key", 0.2, values[0]},
		{"middle key", 0.5, values[1]},
		{"last key", 1, values[2]},
		{"past last", 1.5, values[2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InterpolateMatrixKeys(times, values, tt.t); got != tt.want {
				t.Errorf("at %v got %v, want exactly %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestInterpolateMatrixKeysPerChannel(t *testing.T) {
	times := []float32{0, 1}
	values := []math.Mat4{
		math.Compose(math.Vec3{}, yRotation(0), math.Vec3{X: 1, Y: 1, Z: 1}),
		math.Compose(math.Vec3{X: 4, Y: 2}, yRotation(float32(gomath.Pi/2)), math.Vec3{X: 3, Y: 3, Z: 3}),
	}

	got := InterpolateMatrixKeys(times, values, 0.5)
	tr, rot, scale := got.Decompose()

	if !tr.ApproxEqual(math.Vec3{X: 2, Y: 1}, 1e-4) {
		t.Errorf("translation = %v, want (2,1,0)", tr)
	}
	if !scale.ApproxEqual(math.Vec3{X: 2, Y: 2, Z: 2}, 1e-4) {
		t.Errorf("scale = %v, want (2,2,2)", scale)
	}
	// An element-wise matrix lerp would shrink the basis; slerp keeps it a rotation.
	if a := rot.AngleTo(yRotation(float32(gomath.Pi / 4))); a > 1e-3 {
		t.Errorf("rotation off by %v rad from 45 degrees", a)
	}
}

func TestInterpolateMatrixKeysEmpty(t *testing.T) {
	if got := InterpolateMatrixKeys(nil, nil, 0.5); got != math.Identity() {
		t.Errorf("empty track = %v, want identity", got)
	}
}
