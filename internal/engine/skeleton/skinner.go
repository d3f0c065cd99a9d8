package skeleton

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rig/internal/logger"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// VertexStreams are the per-vertex skinning inputs of one mesh.
type VertexStreams struct {
	BoneIndices [][4]uint16
	BoneWeights [][4]float32
}

// Skinner binds a skeleton to one mesh.
//
// bind maps model space into a bone's bind space (glTF's inverse-bind
// matrix); inverseBind maps back out.
type Skinner struct {
	skeleton    *Skeleton
	bind        []math.Mat4
	inverseBind []math.Mat4
	streams     VertexStreams
}

// NewSkinner creates a skinner over skel. inverseBind may be nil, in which
// case it is derived from bind. The first skinner of a skeleton becomes its
// source of bind matrices.
func NewSkinner(skel *Skeleton, bind, inverseBind []math.Mat4, streams VertexStreams) (*Skinner, error) {
	if skel == nil {
		return nil, fmt.Errorf("skinner requires a skeleton")
	}
	if len(bind) != skel.NumBones() {
		return nil, fmt.Errorf("skinner has %d bind transforms for %d bones", len(bind), skel.NumBones())
	}
	if inverseBind == nil {
		inverseBind = make([]math.Mat4, len(bind))
		for i, m := range bind {
			inverseBind[i] = m.Inverse()
		}
	}
	if len(inverseBind) != len(bind) {
		return nil, fmt.Errorf("skinner has %d inverse bind transforms for %d bones", len(inverseBind), len(bind))
	}
	if len(streams.BoneIndices) != len(streams.BoneWeights) {
		return nil, fmt.Errorf("vertex streams differ in length: %d indices, %d weights",
			len(streams.BoneIndices), len(streams.BoneWeights))
	}
	for v, idx := range streams.BoneIndices {
		for _, b := range idx {
			if int(b) >= skel.NumBones() {
				return nil, fmt.Errorf("vertex %d references bone %d of %d", v, b, skel.NumBones())
			}
		}
	}

	sk := &Skinner{
		skeleton:    skel,
		bind:        bind,
		inverseBind: inverseBind,
		streams:     streams,
	}
	skel.setBindSource(sk)
	return sk, nil
}

// Skeleton returns the driven skeleton.
func (sk *Skinner) Skeleton() *Skeleton { return sk.skeleton }

// Streams returns the vertex skinning streams.
func (sk *Skinner) Streams() VertexStreams { return sk.streams }

// BindTransform returns the bind matrix of a bone, identity if out of range.
func (sk *Skinner) BindTransform(index int) math.Mat4 {
	if index < 0 || index >= len(sk.bind) {
		return math.Identity()
	}
	return sk.bind[index]
}

// InverseBindTransform returns the inverse bind matrix of a bone, identity if out of range.
func (sk *Skinner) InverseBindTransform(index int) math.Mat4 {
	if index < 0 || index >= len(sk.inverseBind) {
		return math.Identity()
	}
	return sk.inverseBind[index]
}

// ModelTransform returns the matrix taking a vertex from its bind-pose
// position to its animated position in model space.
func (sk *Skinner) ModelTransform(index int) math.Mat4 {
	b := sk.skeleton.Bone(index)
	if b == nil {
		logger.Named("skinner").Warn("model transform requested for unknown bone", zap.Int("bone", index))
		return math.Identity()
	}
	switch b.transformType {
	case TransformLegacy:
		return sk.inverseBind[index].Mul(b.transform).Mul(sk.bind[index])
	case TransformConcatenated:
		return b.transform.Mul(sk.bind[index])
	case TransformLocal:
		return sk.skeleton.accumulateLocal(b).Mul(sk.bind[index])
	default:
		return math.Identity()
	}
}

// ModelTransforms returns ModelTransform for every bone, in index order.
func (sk *Skinner) ModelTransforms() []math.Mat4 {
	out := make([]math.Mat4, sk.skeleton.NumBones())
	for i := range out {
		out[i] = sk.ModelTransform(i)
	}
	return out
}

// SkinPoint applies linear blend skinning to p with the given influences.
func SkinPoint(p math.Vec3, indices [4]uint16, weights [4]float32, transforms []math.Mat4) math.Vec3 {
	var out math.Vec3
	var total float32
	for k := 0; k < 4; k++ {
		w := weights[k]
		if w == 0 || int(indices[k]) >= len(transforms) {
			continue
		}
		out = out.Add(transforms[indices[k]].TransformVec3(p).Scale(w))
		total += w
	}
	if total == 0 {
		return p
	}
	return out.Scale(1 / total)
}

// SkinVertex skins vertex v of the mesh at its bind-pose position p.
func (sk *Skinner) SkinVertex(v int, p math.Vec3, transforms []math.Mat4) math.Vec3 {
	if v < 0 || v >= len(sk.streams.BoneIndices) {
		return p
	}
	return SkinPoint(p, sk.streams.BoneIndices[v], sk.streams.BoneWeights[v], transforms)
}
