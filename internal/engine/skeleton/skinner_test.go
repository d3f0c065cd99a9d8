package skeleton

import (
	"testing"

	"github.com/Faultbox/midgard-rig/pkg/math"
)

func TestModelTransformIsIdentityAtBindPose(t *testing.T) {
	tests := []struct {
		tt    TransformType
		setup func(*Skeleton)
	}{
		{TransformLegacy, func(*Skeleton) {}},
		{TransformConcatenated, func(s *Skeleton) {
			s.Bone(1).SetTransform(math.Translate(0, 1, 0))
			s.Bone(2).SetTransform(math.Translate(0, 2, 0))
		}},
		{TransformLocal, func(s *Skeleton) {
			s.Bone(1).SetTransform(math.Translate(0, 1, 0))
			s.Bone(2).SetTransform(math.Translate(0, 1, 0))
		}},
	}

	for _, tc := range tests {
		t.Run(tc.tt.String(), func(t *testing.T) {
			skel, sk := chainSkeleton(t, tc.tt)
			tc.setup(skel)
			for i, m := range sk.ModelTransforms() {
				if !m.ApproxEqual(math.Identity(), tolerance) {
					t.Errorf("bone %d model transform = %v, want identity", i, m)
				}
			}
		})
	}
}

func TestModelTransformFollowsBone(t *testing.T) {
	skel, sk := chainSkeleton(t, TransformConcatenated)
	skel.Bone(1).SetTransform(math.Translate(0, 1, 0))
	skel.Bone(2).SetTransform(math.Translate(1, 2, 0))

	// A vertex at the tip's bind position moves with the tip.
	got := sk.ModelTransform(2).TransformVec3(math.Vec3{Y: 2.5})
	if !got.ApproxEqual(math.Vec3{X: 1, Y: 2.5}, tolerance) {
		t.Errorf("skinned vertex = %v, want (1,2.5,0)", got)
	}
}

func TestSkinPoint(t *testing.T) {
	transforms := []math.Mat4{math.Identity(), math.Translate(2, 0, 0)}
	p := math.Vec3{Y: 1}

	got := SkinPoint(p, [4]uint16{0, 1}, [4]float32{0.5, 0.5}, transforms)
	if !got.ApproxEqual(math.Vec3{X: 1, Y: 1}, tolerance) {
		t.Errorf("half-weighted point = %v, want (1,1,0)", got)
	}

	if got := SkinPoint(p, [4]uint16{}, [4]float32{}, transforms); got != p {
		t.Errorf("unweighted point = %v, want unchanged", got)
	}
}

func TestNewSkinnerValidation(t *testing.T) {
	skel, err := New([]*Bone{NewBone(0, -1, "root", TransformConcatenated)})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewSkinner(skel, nil, nil, VertexStreams{}); err == nil {
		t.Error("expected error for missing bind transforms")
	}
	streams := VertexStreams{
		BoneIndices: [][4]uint16{{3, 0, 0, 0}},
		BoneWeights: [][4]float32{{1, 0, 0, 0}},
	}
	if _, err := NewSkinner(skel, []math.Mat4{math.Identity()}, nil, streams); err == nil {
		t.Error("expected error for vertex referencing unknown bone")
	}

	sk, err := NewSkinner(skel, []math.Mat4{math.Translate(0, -1, 0)}, nil, VertexStreams{})
	if err != nil {
		t.Fatal(err)
	}
	if got := sk.InverseBindTransform(0); !got.ApproxEqual(math.Translate(0, 1, 0), tolerance) {
		t.Errorf("derived inverse bind = %v", got)
	}
}
