// Package scene provides the hierarchical transform nodes that skeletons and IK rigs drive.
package scene

import (
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// Geometry is the renderable payload of a node. Only its bounds matter here.
type Geometry interface {
	Bounds() math.Box
}

// Node is a hierarchical transform node.
//
// Local state (position, rotation, scale, pivots) is authored by callers and
// animations; derived state (local/world matrices, world rotation, bounds) is
// refreshed by ComputeTransforms, normally once per frame from the root.
type Node struct {
	Name string

	position math.Vec3
	rotation math.Quat
	scale    math.Vec3

	// Optional pivots: local = T * [Rp] * R * [Rp^-1] * [Sp] * S * [Sp^-1]
	rotationPivot    math.Mat4
	scalePivot       math.Mat4
	hasRotationPivot bool
	hasScalePivot    bool

	parent   *Node
	children []*Node
	geometry Geometry

	local         math.Mat4
	world         math.Mat4
	worldPosition math.Vec3
	// Tracked separately from world so that non-uniform scale does not
	// leak into orientation queries.
	worldRotation math.Quat

	localBounds math.Box
	worldBounds math.Box

	destroyed bool
}

// NewNode creates a node at the origin with identity rotation and unit scale.
func NewNode(name string) *Node {
	return &Node{
		Name:          name,
		rotation:      math.QuatIdentity(),
		scale:         math.Vec3{X: 1, Y: 1, Z: 1},
		local:         math.Identity(),
		world:         math.Identity(),
		worldRotation: math.QuatIdentity(),
	}
}

// Position returns the local position.
func (n *Node) Position() math.Vec3 { return n.position }

// Rotation returns the local rotation.
func (n *Node) Rotation() math.Quat { return n.rotation }

// Scale returns the local scale.
func (n *Node) Scale() math.Vec3 { return n.scale }

// SetPosition sets the local position.
func (n *Node) SetPosition(p math.Vec3) { n.position = p }

// SetRotation sets the local rotation.
func (n *Node) SetRotation(q math.Quat) { n.rotation = q.Normalize() }

// SetScale sets the local scale.
func (n *Node) SetScale(s math.Vec3) { n.scale = s }

// SetRotationPivot sets the pivot that rotation is applied about.
func (n *Node) SetRotationPivot(pivot math.Mat4) {
	n.rotationPivot = pivot
	n.hasRotationPivot = true
}

// SetScalePivot sets the pivot that scale is applied about.
func (n *Node) SetScalePivot(pivot math.Mat4) {
	n.scalePivot = pivot
	n.hasScalePivot = true
}

// SetLocalTransform replaces position, rotation and scale with the decomposition of m.
func (n *Node) SetLocalTransform(m math.Mat4) {
	t, r, s := m.Decompose()
	n.position = t
	n.rotation = r
	n.scale = s
}

// SetGeometry attaches renderable geometry used for bounds.
func (n *Node) SetGeometry(g Geometry) { n.geometry = g }

// Geometry returns the attached geometry, if any.
func (n *Node) Geometry() Geometry { return n.geometry }

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// AddChild attaches child to n, detaching it from any previous parent.
func (n *Node) AddChild(child *Node) {
	if child.parent != nil {
		child.RemoveFromParent()
	}
	child.parent = n
	n.children = append(n.children, child)
}

// RemoveFromParent detaches n from its parent.
func (n *Node) RemoveFromParent() {
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// Destroy detaches n and marks it and its subtree as destroyed.
// Weak handles held by skeletons and rigs resolve to absent afterwards.
func (n *Node) Destroy() {
	n.RemoveFromParent()
	n.Traverse(func(c *Node) { c.destroyed = true })
}

// Destroyed reports whether Destroy was called on n or an ancestor.
func (n *Node) Destroyed() bool { return n.destroyed }

// LocalTransform returns the last computed local matrix.
func (n *Node) LocalTransform() math.Mat4 { return n.local }

// WorldTransform returns the last computed world matrix.
func (n *Node) WorldTransform() math.Mat4 { return n.world }

// WorldPosition returns the translation of the world matrix.
func (n *Node) WorldPosition() math.Vec3 { return n.worldPosition }

// WorldRotation returns the accumulated world rotation.
func (n *Node) WorldRotation() math.Quat { return n.worldRotation }

// LocalBounds returns the geometry bounds under the local matrix.
func (n *Node) LocalBounds() math.Box { return n.localBounds }

// WorldBounds returns the geometry bounds under the world matrix.
func (n *Node) WorldBounds() math.Box { return n.worldBounds }

// computeLocal builds T * [Rp] * R * [Rp^-1] * [Sp] * S * [Sp^-1].
func (n *Node) computeLocal() math.Mat4 {
	m := math.TranslateVec(n.position)
	if n.hasRotationPivot {
		m = m.Mul(n.rotationPivot).Mul(n.rotation.ToMat4()).Mul(n.rotationPivot.Inverse())
	} else {
		m = m.Mul(n.rotation.ToMat4())
	}
	if n.hasScalePivot {
		m = m.Mul(n.scalePivot).Mul(math.ScaleVec(n.scale)).Mul(n.scalePivot.Inverse())
	} else {
		m = m.Mul(math.ScaleVec(n.scale))
	}
	return m
}

// ComputeTransforms recomputes n and its subtree, depth-first, given the
// parent's world matrix and world rotation.
func (n *Node) ComputeTransforms(parentWorld math.Mat4, parentRotation math.Quat) {
	n.local = n.computeLocal()
	n.world = parentWorld.Mul(n.local)
	n.worldPosition = n.world.Translation()
	n.worldRotation = parentRotation.Mul(n.rotation).Normalize()

	if n.geometry != nil {
		b := n.geometry.Bounds()
		n.localBounds = b.Transform(n.local)
		n.worldBounds = b.Transform(n.world)
	} else {
		n.localBounds = math.BoxAt(n.position)
		n.worldBounds = math.BoxAt(n.worldPosition)
	}

	for _, c := range n.children {
		c.ComputeTransforms(n.world, n.worldRotation)
	}
}

// UpdateTransforms recomputes n's subtree from its parent's cached world state.
// A missing parent is treated as identity.
func (n *Node) UpdateTransforms() {
	if n.parent == nil {
		n.ComputeTransforms(math.Identity(), math.QuatIdentity())
		return
	}
	n.ComputeTransforms(n.parent.world, n.parent.worldRotation)
}

// SetWorldTransform moves n so that its world position and world rotation
// become the given values. Local scale is untouched, which holds world scale
// constant. The subtree is recomputed immediately so that writes made
// top-down through a hierarchy see fresh parent state.
func (n *Node) SetWorldTransform(position math.Vec3, rotation math.Quat) {
	parentWorld := math.Identity()
	parentRotation := math.QuatIdentity()
	if n.parent != nil {
		parentWorld = n.parent.world
		parentRotation = n.parent.worldRotation
	}

	local := parentWorld.Inverse().TransformVec3(position)
	n.rotation = parentRotation.Conjugate().Mul(rotation.Normalize()).Normalize()

	// Pivots add a translation of their own; take it out of the position.
	n.position = math.Vec3{}
	n.position = local.Sub(n.computeLocal().Translation())
	n.UpdateTransforms()
}

// SetWorldTransformMatrix is SetWorldTransform with position and rotation
// taken from a world matrix.
func (n *Node) SetWorldTransformMatrix(m math.Mat4) {
	n.SetWorldTransform(m.Translation(), m.ExtractRotation(m.ExtractScale()))
}

// Traverse visits n and its subtree depth-first.
func (n *Node) Traverse(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.Traverse(fn)
	}
}

// Find returns the first node in the subtree with the given name.
func (n *Node) Find(name string) *Node {
	if n.Name == name {
		return n
	}
	for _, c := range n.children {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}
