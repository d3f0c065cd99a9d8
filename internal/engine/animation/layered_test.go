package animation

import (
	"errors"
	gomath "math"
	"testing"

	"github.com/Faultbox/midgard-rig/internal/engine/scene"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

func rotationOf(m math.Mat4) math.Quat {
	_, r, _ := m.Decompose()
	return r
}

func TestBlendBoneTransformEndpoints(t *testing.T) {
	a := math.Compose(math.Vec3{X: 1}, yRotation(0.2), math.Vec3{X: 1, Y: 1, Z: 1})
	b := math.Compose(math.Vec3{Y: 3}, yRotation(1.4), math.Vec3{X: 1, Y: 1, Z: 1})

	if got := BlendBoneTransform(a, b, 0); !got.ApproxEqual(a, 1e-4) {
		t.Errorf("w=0 got %v, want a", got)
	}
	if got := BlendBoneTransform(a, b, 1); !got.ApproxEqual(b, 1e-4) {
		t.Errorf("w=1 got %v, want b", got)
	}

	prev := float32(-1)
	for _, w := range []float32{0.1, 0.3, 0.5, 0.7, 0.9} {
		d := rotationOf(BlendBoneTransform(a, b, w)).AngleTo(rotationOf(a))
		if d <= prev {
			t.Errorf("angle to a not increasing at w=%v: %v <= %v", w, d, prev)
		}
		prev = d
	}
}

func TestBlendBoneTransformsWeightScaleInvariant(t *testing.T) {
	transforms := []math.Mat4{
		math.Compose(math.Vec3{}, yRotation(0), math.Vec3{X: 1, Y: 1, Z: 1}),
		math.Compose(math.Vec3{X: 2}, yRotation(0.8), math.Vec3{X: 1, Y: 1, Z: 1}),
		math.Compose(math.Vec3{Z: 1}, math.QuatFromAxisAngle(math.Vec3{X: 1}, 0.5), math.Vec3{X: 1, Y: 1, Z: 1}),
	}
	weights := []float32{0.2, 0.5, 0.3}
	scaled := []float32{2, 5, 3}

	got := BlendBoneTransforms(transforms, weights)
	want := BlendBoneTransforms(transforms, scaled)
	if rotationOf(got).AngleTo(rotationOf(want)) > 1e-4 {
		t.Errorf("blend changed under uniform weight scaling: %v vs %v", got, want)
	}
	if !got.Translation().ApproxEqual(want.Translation(), 1e-4) {
		t.Errorf("translation changed under weight scaling")
	}
	// Translation is the weighted mean.
	if !got.Translation().ApproxEqual(math.Vec3{X: 1, Z: 0.3}, 1e-4) {
		t.Errorf("blended translation = %v, want (1,0,0.3)", got.Translation())
	}
}

func TestBlendTwoEqualWeightsIsHalfway(t *testing.T) {
	a := math.Compose(math.Vec3{}, yRotation(0), math.Vec3{X: 1, Y: 1, Z: 1})
	b := math.Compose(math.Vec3{}, yRotation(float32(gomath.Pi/2)), math.Vec3{X: 1, Y: 1, Z: 1})
	got := BlendBoneTransforms([]math.Mat4{a, b}, []float32{1, 1})
	if d := rotationOf(got).AngleTo(yRotation(float32(gomath.Pi / 4))); d > 1e-3 {
		t.Errorf("equal weights off halfway by %v", d)
	}
}

func TestNewLayeredGroupsBySkinner(t *testing.T) {
	sk := testSkinner(t)
	walk, _ := NewSkeletalAnimation(sk, translationFrames(1, math.Vec3{}, math.Vec3{Y: 2}), 1)
	wave, _ := NewSkeletalAnimation(sk, translationFrames(2, math.Vec3{}, math.Vec3{X: 2}), 3)
	prop := slide(t, scene.NewNode("prop"), math.Vec3{Z: 1}, 2)

	layered, err := NewLayered([]Layer{
		NewLayer("base", walk),
		NewLayer("upper", NewChain(ChainParallel, NewChain(ChainParallel, wave), prop)),
	})
	if err != nil {
		t.Fatal(err)
	}

	children := layered.Children()
	if len(children) != 2 {
		t.Fatalf("got %d outputs, want blended + passthrough", len(children))
	}
	if children[0].Kind() != KindLayeredSkeletal || children[1].Kind() != KindKeyframe {
		t.Errorf("output kinds = %v, %v", children[0].Kind(), children[1].Kind())
	}
	if children[0].Duration() != 3 {
		t.Errorf("blended duration = %v, want longest input 3", children[0].Duration())
	}
}

func TestNewLayeredRejectsMisalignedTimelines(t *testing.T) {
	sk := testSkinner(t)
	a, _ := NewSkeletalAnimation(sk, translationFrames(1, math.Vec3{}, math.Vec3{Y: 1}), 1)
	b, _ := NewSkeletalAnimation(sk, []SkeletalAnimationFrame{
		{Time: 0, BoneIndices: []int{1}, BoneTransforms: []math.Mat4{math.Identity()}},
		{Time: 0.5, BoneIndices: []int{1}, BoneTransforms: []math.Mat4{math.Identity()}},
	}, 1)

	_, err := NewLayered([]Layer{NewLayer("a", a), NewLayer("b", b)})
	if !errors.Is(err, ErrMisalignedLayers) {
		t.Fatalf("expected ErrMisalignedLayers, got %v", err)
	}
}

func TestLayeredExecuteBlendsPerBoneWeights(t *testing.T) {
	tests := []struct {
		name        string
		upperWeight map[int]float32
		wantSpine   math.Vec3
	}{
		{"equal weights", nil, math.Vec3{Y: 3}},
		{"upper masked out", map[int]float32{1: 0}, math.Vec3{Y: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sk := testSkinner(t)
			base, _ := NewSkeletalAnimation(sk, translationFrames(1, math.Vec3{Y: 2}, math.Vec3{Y: 2}), 1)
			upper, _ := NewSkeletalAnimation(sk, []SkeletalAnimationFrame{
				{Time: 0, BoneIndices: []int{1, 2}, BoneTransforms: []math.Mat4{math.Translate(0, 4, 0), math.Translate(1, 0, 0)}},
				{Time: 1, BoneIndices: []int{1, 2}, BoneTransforms: []math.Mat4{math.Translate(0, 4, 0), math.Translate(1, 0, 0)}},
			}, 1)

			upperLayer := NewLayer("upper", upper)
			upperLayer.BoneWeights = tt.upperWeight
			layered, err := NewLayered([]Layer{NewLayer("base", base), upperLayer})
			if err != nil {
				t.Fatal(err)
			}

			s := NewScheduler()
			layered.Execute(s, nil)
			s.Advance(0.5)

			if got := bonePosition(sk, 1); !got.ApproxEqual(tt.wantSpine, 1e-4) {
				t.Errorf("spine = %v, want %v", got, tt.wantSpine)
			}
			// Only the upper layer lists the head, so it is used unblended.
			if got := bonePosition(sk, 2); !got.ApproxEqual(math.Vec3{X: 1}, 1e-4) {
				t.Errorf("head = %v, want (1,0,0)", got)
			}
		})
	}
}
