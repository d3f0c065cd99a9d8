package loader

import (
	"fmt"

	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rig/internal/engine/scene"
	"github.com/Faultbox/midgard-rig/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// buildSkin turns a glTF skin into a skeleton of concatenated bones and the
// skinner that binds it. Bone i is the skin's joint i, its transform the
// joint's rest pose relative to root, and its bind matrix the joint's
// inverse-bind matrix.
func (s *Session) buildSkin(index int, root *scene.Node) (*skeleton.Skinner, error) {
	skin := s.doc.Skins[index]
	if len(skin.Joints) == 0 {
		return nil, fmt.Errorf("%w: skin has no joints", ErrMalformed)
	}

	boneOf := make(map[int]int, len(skin.Joints))
	for b, n := range skin.Joints {
		if n < 0 || n >= len(s.nodes) {
			return nil, fmt.Errorf("%w: joint %d references node %d out of range", ErrMalformed, b, n)
		}
		if _, dup := boneOf[n]; dup {
			return nil, fmt.Errorf("%w: node %d listed twice as a joint", ErrMalformed, n)
		}
		boneOf[n] = b
	}

	bones := make([]*skeleton.Bone, len(skin.Joints))
	for b, n := range skin.Joints {
		parent := -1
		for p := s.parents[n]; p != -1; p = s.parents[p] {
			if pb, ok := boneOf[p]; ok {
				parent = pb
				break
			}
		}
		bones[b] = skeleton.NewBone(b, parent, s.nodes[n].Name, skeleton.TransformConcatenated)
	}
	skel, err := skeleton.New(bones)
	if err != nil {
		return nil, err
	}
	skel.SetRootNode(root)

	rootInverse := root.WorldTransform().Inverse()
	for b, n := range skin.Joints {
		bones[b].SetTransform(rootInverse.Mul(s.nodes[n].WorldTransform()))
	}

	var bind []math.Mat4
	if skin.InverseBindMatrices != nil {
		bind, err = s.readMat4s(*skin.InverseBindMatrices)
		if err != nil {
			return nil, err
		}
		if len(bind) != len(skin.Joints) {
			return nil, fmt.Errorf("%w: %d inverse bind matrices for %d joints", ErrMalformed, len(bind), len(skin.Joints))
		}
	} else {
		// Without explicit matrices the rest pose is the bind pose.
		bind = make([]math.Mat4, len(bones))
		for b, bone := range bones {
			bind[b] = bone.Transform().Inverse()
		}
	}

	streams, err := s.skinStreams(index)
	if err != nil {
		return nil, err
	}
	sk, err := skeleton.NewSkinner(skel, bind, nil, streams)
	if err != nil {
		return nil, err
	}

	for b, n := range skin.Joints {
		s.jointOf[n] = append(s.jointOf[n], jointRef{skin: index, bone: b})
	}
	s.log.Debug("skin loaded",
		zap.Int("skin", index),
		zap.Int("bones", len(bones)),
		zap.Int("vertices", len(streams.BoneIndices)))
	return sk, nil
}

// skinStreams gathers JOINTS_0/WEIGHTS_0 from every primitive of every mesh
// instanced with the skin.
func (s *Session) skinStreams(skin int) (skeleton.VertexStreams, error) {
	var streams skeleton.VertexStreams
	for ni, n := range s.doc.Nodes {
		if n.Skin == nil || *n.Skin != skin || n.Mesh == nil {
			continue
		}
		if *n.Mesh < 0 || *n.Mesh >= len(s.doc.Meshes) {
			return streams, fmt.Errorf("%w: node %d references mesh %d out of range", ErrMalformed, ni, *n.Mesh)
		}
		for pi, prim := range s.doc.Meshes[*n.Mesh].Primitives {
			ji, hasJoints := prim.Attributes["JOINTS_0"]
			wi, hasWeights := prim.Attributes["WEIGHTS_0"]
			if !hasJoints || !hasWeights {
				s.log.Warn("skinned primitive without joint streams",
					zap.Int("node", ni), zap.Int("primitive", pi))
				continue
			}
			jacr, err := s.accessor(ji)
			if err != nil {
				return streams, err
			}
			wacr, err := s.accessor(wi)
			if err != nil {
				return streams, err
			}
			joints, err := modeler.ReadJoints(s.doc, jacr, nil)
			if err != nil {
				return streams, fmt.Errorf("reading joints: %w", err)
			}
			weights, err := modeler.ReadWeights(s.doc, wacr, nil)
			if err != nil {
				return streams, fmt.Errorf("reading weights: %w", err)
			}
			if len(joints) != len(weights) {
				return streams, fmt.Errorf("%w: %d joint tuples for %d weight tuples", ErrMalformed, len(joints), len(weights))
			}
			streams.BoneIndices = append(streams.BoneIndices, joints...)
			streams.BoneWeights = append(streams.BoneWeights, weights...)
		}
	}
	return streams, nil
}
