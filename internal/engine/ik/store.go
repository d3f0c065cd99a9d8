package ik

import (
	"weak"

	"github.com/Faultbox/midgard-rig/internal/engine/scene"
	"github.com/Faultbox/midgard-rig/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// poseStore reads and writes the world pose of whatever a joint targets.
type poseStore interface {
	// valid reports whether the backing object still exists.
	valid() bool
	read(j *joint) (world math.Mat4, rotation math.Quat, ok bool)
	write(j *joint, world math.Mat4, rotation math.Quat)
	captureRoot(root *joint)
	rootPosition(root *joint) math.Vec3
}

// nodeStore drives scene nodes through SetWorldTransform.
type nodeStore struct {
	root weak.Pointer[scene.Node]
}

func liveNode(p weak.Pointer[scene.Node]) *scene.Node {
	n := p.Value()
	if n == nil || n.Destroyed() {
		return nil
	}
	return n
}

func (s *nodeStore) valid() bool { return liveNode(s.root) != nil }

func (s *nodeStore) read(j *joint) (math.Mat4, math.Quat, bool) {
	n := liveNode(j.node)
	if n == nil {
		return math.Identity(), math.QuatIdentity(), false
	}
	return n.WorldTransform(), n.WorldRotation(), true
}

// write keeps the node's world scale; only position and rotation are applied.
func (s *nodeStore) write(j *joint, world math.Mat4, rotation math.Quat) {
	if n := liveNode(j.node); n != nil {
		n.SetWorldTransform(world.Translation(), rotation)
	}
}

func (s *nodeStore) captureRoot(*joint) {}

func (s *nodeStore) rootPosition(root *joint) math.Vec3 {
	if n := liveNode(root.node); n != nil {
		return n.WorldPosition()
	}
	return root.position
}

// skinnerStore drives skeleton bones through the skeleton's world-transform setter.
type skinnerStore struct {
	skinner weak.Pointer[skeleton.Skinner]
	// Root bone relative to the skinner root node, captured at initialization.
	rootOffset math.Mat4
}

func (s *skinnerStore) valid() bool { return s.skinner.Value() != nil }

func (s *skinnerStore) read(j *joint) (math.Mat4, math.Quat, bool) {
	sk := s.skinner.Value()
	if sk == nil || sk.Skeleton().Bone(j.bone) == nil {
		return math.Identity(), math.QuatIdentity(), false
	}
	m := sk.Skeleton().CurrentBoneWorldTransform(j.bone)
	return m, m.ExtractRotation(m.ExtractScale()), true
}

func (s *skinnerStore) write(j *joint, world math.Mat4, _ math.Quat) {
	if sk := s.skinner.Value(); sk != nil {
		sk.Skeleton().SetCurrentBoneWorldTransform(j.bone, world, false)
	}
}

func (s *skinnerStore) rootNodeWorld() math.Mat4 {
	if sk := s.skinner.Value(); sk != nil {
		if n := sk.Skeleton().RootNode(); n != nil {
			return n.WorldTransform()
		}
	}
	return math.Identity()
}

func (s *skinnerStore) captureRoot(root *joint) {
	boneWorld, _, _ := s.read(root)
	s.rootOffset = s.rootNodeWorld().Inverse().Mul(boneWorld)
}

func (s *skinnerStore) rootPosition(*joint) math.Vec3 {
	return s.rootNodeWorld().Mul(s.rootOffset).Translation()
}
