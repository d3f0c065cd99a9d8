// Package skeleton provides bones, skeletons and skinners for skeletal animation.
package skeleton

import (
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// TransformType tags how a bone's transform matrix is interpreted.
type TransformType int

const (
	// TransformLegacy is a delta in bone-local bind space; the skinner's
	// inverse-bind matrix takes it to model space.
	TransformLegacy TransformType = iota
	// TransformConcatenated already contains the full chain from the root.
	TransformConcatenated
	// TransformLocal is relative to the parent bone only.
	TransformLocal
)

// String returns the name of the transform type.
func (t TransformType) String() string {
	switch t {
	case TransformLegacy:
		return "legacy"
	case TransformConcatenated:
		return "concatenated"
	case TransformLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Bone is a single joint of a skeleton.
type Bone struct {
	name          string
	index         int
	parentIndex   int
	transformType TransformType
	transform     math.Mat4
}

// NewBone creates a bone with an identity transform.
// A parentIndex of -1 (or the bone's own index) marks a root.
func NewBone(index, parentIndex int, name string, transformType TransformType) *Bone {
	return &Bone{
		name:          name,
		index:         index,
		parentIndex:   parentIndex,
		transformType: transformType,
		transform:     math.Identity(),
	}
}

// Name returns the bone name.
func (b *Bone) Name() string { return b.name }

// Index returns the bone's index in its skeleton.
func (b *Bone) Index() int { return b.index }

// ParentIndex returns the parent bone index, -1 or the bone's own index for a root.
func (b *Bone) ParentIndex() int { return b.parentIndex }

// IsRoot reports whether the bone has no parent.
func (b *Bone) IsRoot() bool {
	return b.parentIndex < 0 || b.parentIndex == b.index
}

// TransformType returns how Transform is interpreted.
func (b *Bone) TransformType() TransformType { return b.transformType }

// Transform returns the raw bone transform.
func (b *Bone) Transform() math.Mat4 { return b.transform }

// SetTransform replaces the raw bone transform. Animations write through here.
func (b *Bone) SetTransform(m math.Mat4) { b.transform = m }
