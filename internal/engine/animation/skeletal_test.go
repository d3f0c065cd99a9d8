package animation

import (
	"testing"

	"github.com/Faultbox/midgard-rig/internal/engine/scene"
	"github.com/Faultbox/midgard-rig/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

func testSkinner(t *testing.T) *skeleton.Skinner {
	t.Helper()
	skel, err := skeleton.New([]*skeleton.Bone{
		skeleton.NewBone(0, -1, "hips", skeleton.TransformConcatenated),
		skeleton.NewBone(1, 0, "spine", skeleton.TransformConcatenated),
		skeleton.NewBone(2, 1, "head", skeleton.TransformConcatenated),
	})
	if err != nil {
		t.Fatal(err)
	}
	bind := []math.Mat4{math.Identity(), math.Identity(), math.Identity()}
	sk, err := skeleton.NewSkinner(skel, bind, nil, skeleton.VertexStreams{})
	if err != nil {
		t.Fatal(err)
	}
	return sk
}

func translationFrames(bone int, from, to math.Vec3) []SkeletalAnimationFrame {
	return []SkeletalAnimationFrame{
		{Time: 0, BoneIndices: []int{bone}, BoneTransforms: []math.Mat4{math.TranslateVec(from)}},
		{Time: 1, BoneIndices: []int{bone}, BoneTransforms: []math.Mat4{math.TranslateVec(to)}},
	}
}

func bonePosition(sk *skeleton.Skinner, bone int) math.Vec3 {
	return sk.Skeleton().Bone(bone).Transform().Translation()
}

func TestSkeletalAnimationPlayback(t *testing.T) {
	sk := testSkinner(t)
	anim, err := NewSkeletalAnimation(sk, translationFrames(1, math.Vec3{Y: 1}, math.Vec3{Y: 3}), 2)
	if err != nil {
		t.Fatal(err)
	}
	if anim.Kind() != KindSkeletal {
		t.Errorf("kind = %v", anim.Kind())
	}

	s := NewScheduler()
	done := 0
	anim.Execute(s, func() { done++ })
	if !anim.Running() {
		t.Fatal("animation should be running after Execute")
	}

	s.Advance(1)
	if got := bonePosition(sk, 1); !got.ApproxEqual(math.Vec3{Y: 2}, 1e-4) {
		t.Errorf("spine at half time = %v, want (0,2,0)", got)
	}
	if got := bonePosition(sk, 2); got != (math.Vec3{}) {
		t.Errorf("unreferenced bone moved to %v", got)
	}

	anim.SetSpeed(0.5)
	s.Advance(1)
	if got := bonePosition(sk, 1); !got.ApproxEqual(math.Vec3{Y: 2.5}, 1e-4) {
		t.Errorf("spine after slowed second = %v, want (0,2.5,0)", got)
	}

	anim.Terminate(true)
	if got := bonePosition(sk, 1); !got.ApproxEqual(math.Vec3{Y: 3}, 1e-4) {
		t.Errorf("spine after jump to end = %v, want (0,3,0)", got)
	}
	if done != 1 || anim.Running() {
		t.Errorf("finish: callbacks=%d running=%v", done, anim.Running())
	}
}

func TestSkeletalAnimationPauseResume(t *testing.T) {
	sk := testSkinner(t)
	anim, err := NewSkeletalAnimation(sk, translationFrames(2, math.Vec3{}, math.Vec3{X: 4}), 1)
	if err != nil {
		t.Fatal(err)
	}
	s := NewScheduler()
	anim.Execute(s, nil)
	s.Advance(0.25)
	anim.Pause()
	s.Advance(10)
	if got := bonePosition(sk, 2); !got.ApproxEqual(math.Vec3{X: 1}, 1e-4) {
		t.Errorf("paused head = %v, want (1,0,0)", got)
	}
	anim.Resume()
	s.Advance(0.25)
	if got := bonePosition(sk, 2); !got.ApproxEqual(math.Vec3{X: 2}, 1e-4) {
		t.Errorf("resumed head = %v, want (2,0,0)", got)
	}
}

func TestNewSkeletalAnimationValidation(t *testing.T) {
	sk := testSkinner(t)
	tests := []struct {
		name   string
		frames []SkeletalAnimationFrame
	}{
		{"bone out of range", translationFrames(7, math.Vec3{}, math.Vec3{})},
		{"mismatched arrays", []SkeletalAnimationFrame{{Time: 0, BoneIndices: []int{0, 1}, BoneTransforms: []math.Mat4{math.Identity()}}}},
		{"times out of order", []SkeletalAnimationFrame{{Time: 0.5}, {Time: 0.2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSkeletalAnimation(sk, tt.frames, 1); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestKeyframeAnimationDrivesNode(t *testing.T) {
	node := scene.NewNode("door")
	anim, err := NewKeyframeAnimation(node,
		[]float32{0, 1},
		[]math.Mat4{math.Identity(), math.Translate(0, 0, 2)},
		1)
	if err != nil {
		t.Fatal(err)
	}

	s := NewScheduler()
	anim.Execute(s, nil)
	s.Advance(0.5)
	if got := node.Position(); !got.ApproxEqual(math.Vec3{Z: 1}, 1e-4) {
		t.Errorf("node position = %v, want (0,0,1)", got)
	}

	node.Destroy()
	s.Advance(0.25)
	if got := node.Position(); !got.ApproxEqual(math.Vec3{Z: 1}, 1e-4) {
		t.Errorf("destroyed node moved to %v", got)
	}
}
