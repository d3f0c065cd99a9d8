package skeleton

import (
	"errors"
	"fmt"
	"weak"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/Faultbox/midgard-rig/internal/engine/scene"
	"github.com/Faultbox/midgard-rig/internal/logger"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// ErrCyclicBones is returned when bone parent indices form a cycle.
var ErrCyclicBones = errors.New("bone hierarchy contains a cycle")

// Attachment is a node rigidly offset from a bone. The skeleton does not own it.
type Attachment struct {
	Name   string
	Node   *scene.Node
	Offset math.Mat4
}

// Skeleton owns an ordered array of bones.
type Skeleton struct {
	bones    []*Bone
	byName   map[string]int
	children [][]int
	// Parents before children, whatever the storage order.
	order []int

	rootNode    weak.Pointer[scene.Node]
	bindSource  *Skinner
	attachments map[int][]Attachment
}

// New builds a skeleton from loader data. Bone i must have Index() == i,
// and parent indices must be in range and acyclic.
func New(bones []*Bone) (*Skeleton, error) {
	s := &Skeleton{
		bones:       bones,
		byName:      make(map[string]int, len(bones)),
		children:    make([][]int, len(bones)),
		attachments: make(map[int][]Attachment),
	}

	g := simple.NewDirectedGraph()
	for i, b := range bones {
		if b == nil {
			return nil, fmt.Errorf("bone %d is nil", i)
		}
		if b.index != i {
			return nil, fmt.Errorf("bone %q stored at %d reports index %d", b.name, i, b.index)
		}
		g.AddNode(simple.Node(i))
		if b.name != "" {
			s.byName[b.name] = i
		}
	}

	unsorted := 0
	for i, b := range bones {
		if b.IsRoot() {
			continue
		}
		p := b.parentIndex
		if p >= len(bones) {
			return nil, fmt.Errorf("bone %d: parent index %d out of range", i, p)
		}
		if p > i {
			unsorted++
		}
		g.SetEdge(g.NewEdge(simple.Node(p), simple.Node(i)))
		s.children[p] = append(s.children[p], i)
	}

	sorted, err := topo.Sort(g)
	if err != nil {
		return nil, fmt.Errorf("validating skeleton: %w", ErrCyclicBones)
	}
	s.order = make([]int, len(sorted))
	for i, n := range sorted {
		s.order[i] = int(n.ID())
	}

	if unsorted > 0 {
		logger.Named("skeleton").Warn("bones are not stored parents-first",
			zap.Int("bones", len(bones)),
			zap.Int("outOfOrder", unsorted))
	}
	return s, nil
}

// NumBones returns the number of bones.
func (s *Skeleton) NumBones() int { return len(s.bones) }

// Bone returns the bone at index, or nil if out of range.
func (s *Skeleton) Bone(index int) *Bone {
	if index < 0 || index >= len(s.bones) {
		return nil
	}
	return s.bones[index]
}

// BoneIndex looks a bone up by name.
func (s *Skeleton) BoneIndex(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// Children returns the indices of bones whose parent is index.
func (s *Skeleton) Children(index int) []int {
	if index < 0 || index >= len(s.children) {
		return nil
	}
	return s.children[index]
}

// TopologicalOrder returns bone indices with every parent before its children.
func (s *Skeleton) TopologicalOrder() []int {
	out := make([]int, len(s.order))
	copy(out, s.order)
	return out
}

// SetRootNode records the node this skeleton animates. The reference is weak.
func (s *Skeleton) SetRootNode(n *scene.Node) {
	if n == nil {
		s.rootNode = weak.Pointer[scene.Node]{}
		return
	}
	s.rootNode = weak.Make(n)
}

// RootNode returns the skinner root node, or nil if unset, collected or destroyed.
func (s *Skeleton) RootNode() *scene.Node {
	n := s.rootNode.Value()
	if n == nil || n.Destroyed() {
		return nil
	}
	return n
}

func (s *Skeleton) rootWorld() math.Mat4 {
	if n := s.RootNode(); n != nil {
		return n.WorldTransform()
	}
	return math.Identity()
}

func (s *Skeleton) setBindSource(sk *Skinner) {
	if s.bindSource == nil {
		s.bindSource = sk
	}
}

func (s *Skeleton) bindTransform(index int) math.Mat4 {
	if s.bindSource != nil {
		return s.bindSource.BindTransform(index)
	}
	return math.Identity()
}

func (s *Skeleton) inverseBindTransform(index int) math.Mat4 {
	if s.bindSource != nil {
		return s.bindSource.InverseBindTransform(index)
	}
	return math.Identity()
}

// CurrentBoneWorldTransform resolves a bone's transform to world space
// according to its transform type. Unknown bones log and yield identity.
func (s *Skeleton) CurrentBoneWorldTransform(index int) math.Mat4 {
	b := s.Bone(index)
	if b == nil {
		logger.Named("skeleton").Warn("world transform requested for unknown bone", zap.Int("bone", index))
		return math.Identity()
	}
	return s.rootWorld().Mul(s.modelTransform(b))
}

// CurrentBoneWorldTransformByName is CurrentBoneWorldTransform keyed by bone name.
func (s *Skeleton) CurrentBoneWorldTransformByName(name string) math.Mat4 {
	i, ok := s.byName[name]
	if !ok {
		logger.Named("skeleton").Warn("world transform requested for unknown bone", zap.String("name", name))
		return math.Identity()
	}
	return s.CurrentBoneWorldTransform(i)
}

// modelTransform returns the bone's transform in skeleton model space.
func (s *Skeleton) modelTransform(b *Bone) math.Mat4 {
	switch b.transformType {
	case TransformLegacy:
		return s.inverseBindTransform(b.index).Mul(b.transform)
	case TransformConcatenated:
		return b.transform
	case TransformLocal:
		return s.accumulateLocal(b)
	default:
		return math.Identity()
	}
}

// accumulateLocal walks from b up to bone 0, left-multiplying each ancestor's transform.
func (s *Skeleton) accumulateLocal(b *Bone) math.Mat4 {
	acc := b.transform
	cur := b
	for steps := 0; cur.index != 0 && steps < len(s.bones); steps++ {
		p := cur.parentIndex
		if p < 0 || p == cur.index || p >= len(s.bones) {
			break
		}
		cur = s.bones[p]
		acc = cur.transform.Mul(acc)
	}
	return acc
}

// SetCurrentBoneWorldTransform stores world as the bone's transform, converted
// into the bone's own convention. With recurse, descendants keep their pose
// relative to this bone and move rigidly with it. Local bones cannot be driven.
func (s *Skeleton) SetCurrentBoneWorldTransform(index int, world math.Mat4, recurse bool) {
	b := s.Bone(index)
	if b == nil {
		logger.Named("skeleton").Warn("world transform set on unknown bone", zap.Int("bone", index))
		return
	}
	if b.transformType == TransformLocal {
		logger.Named("skeleton").Warn("cannot set world transform on local bone", zap.Int("bone", index))
		return
	}
	if !recurse {
		s.storeWorld(b, world)
		return
	}

	type pending struct {
		index    int
		relative math.Mat4
	}
	oldInverse := s.CurrentBoneWorldTransform(index).Inverse()
	var rel []pending
	for _, c := range s.children[index] {
		rel = append(rel, pending{c, oldInverse.Mul(s.CurrentBoneWorldTransform(c))})
	}

	s.storeWorld(b, world)
	for _, p := range rel {
		s.SetCurrentBoneWorldTransform(p.index, world.Mul(p.relative), true)
	}
}

func (s *Skeleton) storeWorld(b *Bone, world math.Mat4) {
	model := s.rootWorld().Inverse().Mul(world)
	switch b.transformType {
	case TransformLegacy:
		b.SetTransform(s.bindTransform(b.index).Mul(model))
	case TransformConcatenated:
		b.SetTransform(model)
	}
}

// AddAttachment attaches a node to a bone.
func (s *Skeleton) AddAttachment(boneIndex int, a Attachment) {
	if s.Bone(boneIndex) == nil {
		logger.Named("skeleton").Warn("attachment on unknown bone",
			zap.Int("bone", boneIndex),
			zap.String("attachment", a.Name))
		return
	}
	s.attachments[boneIndex] = append(s.attachments[boneIndex], a)
}

// Attachments returns the attachments of a bone.
func (s *Skeleton) Attachments(boneIndex int) []Attachment {
	return s.attachments[boneIndex]
}

// UpdateAttachments places every attachment node at boneWorld * offset.
// Bones are visited parents first, so an attachment node parented under
// another bone's attachment is placed after it.
func (s *Skeleton) UpdateAttachments() {
	for _, boneIndex := range s.order {
		list := s.attachments[boneIndex]
		if len(list) == 0 {
			continue
		}
		boneWorld := s.CurrentBoneWorldTransform(boneIndex)
		for _, a := range list {
			if a.Node == nil || a.Node.Destroyed() {
				continue
			}
			a.Node.SetWorldTransformMatrix(boneWorld.Mul(a.Offset))
		}
	}
}
