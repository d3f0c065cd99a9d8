package loader

import (
	"fmt"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/midgard-rig/internal/engine/scene"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// buildNodes mirrors the document's node tree under a synthetic root.
func (s *Session) buildNodes(name string) (*scene.Node, error) {
	count := len(s.doc.Nodes)
	s.parents = make([]int, count)
	for i := range s.parents {
		s.parents[i] = -1
	}
	for i, n := range s.doc.Nodes {
		for _, c := range n.Children {
			if c < 0 || c >= count {
				return nil, fmt.Errorf("%w: node %d has child %d out of range", ErrMalformed, i, c)
			}
			if c == i || s.parents[c] != -1 {
				return nil, fmt.Errorf("%w: node %d has more than one parent", ErrMalformed, c)
			}
			s.parents[c] = i
		}
	}
	// A node whose ancestor walk never ends is part of a cycle.
	for i := range s.parents {
		steps := 0
		for p := s.parents[i]; p != -1; p = s.parents[p] {
			if steps++; steps > count {
				return nil, fmt.Errorf("%w: node %d is part of a cycle", ErrMalformed, i)
			}
		}
	}

	s.nodes = make([]*scene.Node, count)
	for i, n := range s.doc.Nodes {
		nodeName := n.Name
		if nodeName == "" {
			nodeName = fmt.Sprintf("node_%d", i)
		}
		sn := scene.NewNode(nodeName)
		sn.SetLocalTransform(localMatrix(n))
		s.nodes[i] = sn
	}
	for i, n := range s.doc.Nodes {
		for _, c := range n.Children {
			s.nodes[i].AddChild(s.nodes[c])
		}
	}

	root := scene.NewNode(name)
	for _, i := range s.sceneRoots() {
		if s.parents[i] != -1 {
			return nil, fmt.Errorf("%w: scene root %d has a parent", ErrMalformed, i)
		}
		root.AddChild(s.nodes[i])
	}
	root.UpdateTransforms()
	return root, nil
}

// sceneRoots lists the top-level nodes of the default scene, or every
// parentless node when the document has no scenes.
func (s *Session) sceneRoots() []int {
	if len(s.doc.Scenes) > 0 {
		sc := 0
		if s.doc.Scene != nil && *s.doc.Scene < len(s.doc.Scenes) {
			sc = *s.doc.Scene
		}
		return s.doc.Scenes[sc].Nodes
	}
	var roots []int
	for i, p := range s.parents {
		if p == -1 {
			roots = append(roots, i)
		}
	}
	return roots
}

var identity64 = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// localMatrix returns a node's rest transform relative to its parent.
func localMatrix(n *gltf.Node) math.Mat4 {
	if mat := n.MatrixOrDefault(); mat != identity64 {
		var m math.Mat4
		for i, v := range mat {
			m[i] = float32(v)
		}
		return m
	}
	return math.Compose(vec3From64(n.TranslationOrDefault()), quatFrom64(n.RotationOrDefault()), vec3From64(n.ScaleOrDefault()))
}

func vec3From64(v [3]float64) math.Vec3 {
	return math.Vec3{X: float32(v[0]), Y: float32(v[1]), Z: float32(v[2])}
}

func quatFrom64(q [4]float64) math.Quat {
	return math.Quat{X: float32(q[0]), Y: float32(q[1]), Z: float32(q[2]), W: float32(q[3])}.Normalize()
}

func vec3From32(v [3]float32) math.Vec3 { return math.Vec3FromArray(v) }

func quatFrom32(q [4]float32) math.Quat {
	return math.Quat{X: q[0], Y: q[1], Z: q[2], W: q[3]}
}
