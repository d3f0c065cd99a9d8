package animation

import (
	"github.com/Faultbox/midgard-rig/pkg/math"
)

type trs struct {
	translation math.Vec3
	rotation    math.Quat
	scale       math.Vec3
}

// MatrixTrack interpolates a series of matrix keyframes at normalized times.
// Channels are interpolated separately: translation and scale linearly,
// rotation by slerp.
type MatrixTrack struct {
	times  []float32
	values []math.Mat4
	keys   []trs
	apply  func(math.Mat4)
}

// NewMatrixTrack creates a track. times must be ascending and parallel to values.
// apply receives the sampled matrix; it may be nil for sample-only use.
func NewMatrixTrack(times []float32, values []math.Mat4, apply func(math.Mat4)) *MatrixTrack {
	if len(times) != len(values) {
		panic("animation: keyframe times and values differ in length")
	}
	keys := make([]trs, len(values))
	for i, v := range values {
		t, r, s := v.Decompose()
		keys[i] = trs{t, r, s}
	}
	return &MatrixTrack{times: times, values: values, keys: keys, apply: apply}
}

// Len returns the number of keyframes.
func (tr *MatrixTrack) Len() int { return len(tr.times) }

// Sample returns the interpolated value at normalized time t. Times at or
// before the first key yield the first value, at or past the last key the
// last value, and exactly on a key that key's value.
func (tr *MatrixTrack) Sample(t float32) math.Mat4 {
	n := len(tr.times)
	if n == 0 {
		return math.Identity()
	}
	if n == 1 || t <= tr.times[0] {
		return tr.values[0]
	}

	// Find surrounding keyframes
	var prev, next int
	for i := range tr.times {
		if tr.times[i] > t {
			next = i
			break
		}
		prev = i
		next = i
	}

	// At or past last key
	if prev == next {
		return tr.values[prev]
	}

	t0, t1 := tr.times[prev], tr.times[next]
	if t1 <= t0 {
		return tr.values[prev]
	}
	alpha := (t - t0) / (t1 - t0)
	if alpha <= 0 {
		return tr.values[prev]
	}
	if alpha >= 1 {
		return tr.values[next]
	}

	k0, k1 := tr.keys[prev], tr.keys[next]
	return math.Compose(
		k0.translation.Lerp(k1.translation, alpha),
		k0.rotation.Slerp(k1.rotation, alpha),
		k0.scale.Lerp(k1.scale, alpha),
	)
}

// Apply samples the track and hands the value to its target.
func (tr *MatrixTrack) Apply(progress float32) {
	if tr.apply != nil {
		tr.apply(tr.Sample(progress))
	}
}

// InterpolateMatrixKeys samples a keyframe series at normalized time t.
func InterpolateMatrixKeys(times []float32, values []math.Mat4, t float32) math.Mat4 {
	return NewMatrixTrack(times, values, nil).Sample(t)
}
