package scene

import (
	gomath "math"
	"testing"

	"github.com/Faultbox/midgard-rig/pkg/math"
)

type boxGeometry struct {
	box math.Box
}

func (g boxGeometry) Bounds() math.Box { return g.box }

func TestComputeTransformsHierarchy(t *testing.T) {
	root := NewNode("root")
	root.SetPosition(math.Vec3{X: 1})

	arm := NewNode("arm")
	arm.SetPosition(math.Vec3{Y: 2})
	arm.SetRotation(math.QuatFromAxisAngle(math.Vec3{Z: 1}, float32(gomath.Pi/2)))
	root.AddChild(arm)

	hand := NewNode("hand")
	hand.SetPosition(math.Vec3{Y: 1})
	arm.AddChild(hand)

	root.ComputeTransforms(math.Identity(), math.QuatIdentity())

	if got := arm.WorldPosition(); !got.ApproxEqual(math.Vec3{X: 1, Y: 2}, 1e-5) {
		t.Errorf("arm world position = %v, want (1,2,0)", got)
	}
	// The arm is rotated 90 degrees about Z, so +Y in arm space points to -X.
	if got := hand.WorldPosition(); !got.ApproxEqual(math.Vec3{X: 0, Y: 2}, 1e-5) {
		t.Errorf("hand world position = %v, want (0,2,0)", got)
	}
	if got := hand.WorldRotation(); got.AngleTo(arm.Rotation()) > 1e-4 {
		t.Errorf("hand world rotation = %v, want arm rotation", got)
	}
}

func TestComputeTransformsRotationPivot(t *testing.T) {
	n := NewNode("door")
	n.SetRotationPivot(math.Translate(1, 0, 0))
	n.SetRotation(math.QuatFromAxisAngle(math.Vec3{Z: 1}, float32(gomath.Pi/2)))
	n.UpdateTransforms()

	if got := n.WorldPosition(); !got.ApproxEqual(math.Vec3{X: 1, Y: -1}, 1e-5) {
		t.Errorf("pivoted world position = %v, want (1,-1,0)", got)
	}
}

func TestComputeTransformsScalePivot(t *testing.T) {
	n := NewNode("block")
	n.SetScalePivot(math.Translate(0, 1, 0))
	n.SetScale(math.Vec3{X: 2, Y: 2, Z: 2})
	n.UpdateTransforms()

	// Scaling about (0,1,0) moves the origin to (0,-1,0).
	if got := n.WorldPosition(); !got.ApproxEqual(math.Vec3{Y: -1}, 1e-5) {
		t.Errorf("scale-pivoted world position = %v, want (0,-1,0)", got)
	}
}

func TestWorldRotationIgnoresNonUniformScale(t *testing.T) {
	parent := NewNode("parent")
	parent.SetScale(math.Vec3{X: 3, Y: 1, Z: 1})
	child := NewNode("child")
	rot := math.QuatFromAxisAngle(math.Vec3{Z: 1}, 0.5)
	child.SetRotation(rot)
	parent.AddChild(child)

	parent.UpdateTransforms()

	if got := child.WorldRotation(); got.AngleTo(rot) > 1e-4 {
		t.Errorf("world rotation = %v, want %v", got, rot)
	}
}

func TestBounds(t *testing.T) {
	root := NewNode("root")
	root.SetPosition(math.Vec3{X: 10})

	mesh := NewNode("mesh")
	mesh.SetPosition(math.Vec3{Y: 1})
	mesh.SetGeometry(boxGeometry{math.Box{Min: math.Vec3{X: -1, Y: -1, Z: -1}, Max: math.Vec3{X: 1, Y: 1, Z: 1}}})
	root.AddChild(mesh)

	empty := NewNode("empty")
	empty.SetPosition(math.Vec3{Z: 4})
	root.AddChild(empty)

	root.UpdateTransforms()

	wb := mesh.WorldBounds()
	if !wb.Min.ApproxEqual(math.Vec3{X: 9, Y: 0, Z: -1}, 1e-5) || !wb.Max.ApproxEqual(math.Vec3{X: 11, Y: 2, Z: 1}, 1e-5) {
		t.Errorf("mesh world bounds = %+v", wb)
	}
	lb := mesh.LocalBounds()
	if !lb.Min.ApproxEqual(math.Vec3{X: -1, Y: 0, Z: -1}, 1e-5) {
		t.Errorf("mesh local bounds = %+v", lb)
	}

	eb := empty.WorldBounds()
	if eb.Min != eb.Max || !eb.Min.ApproxEqual(math.Vec3{X: 10, Z: 4}, 1e-5) {
		t.Errorf("empty node should collapse to a point at its position, got %+v", eb)
	}
}

func TestSetWorldTransform(t *testing.T) {
	root := NewNode("root")
	root.SetPosition(math.Vec3{X: 5})
	root.SetRotation(math.QuatFromAxisAngle(math.Vec3{Y: 1}, 0.8))
	root.SetScale(math.Vec3{X: 2, Y: 2, Z: 2})

	child := NewNode("child")
	child.SetScale(math.Vec3{X: 0.5, Y: 0.5, Z: 0.5})
	root.AddChild(child)

	grandchild := NewNode("grandchild")
	grandchild.SetPosition(math.Vec3{Y: 1})
	child.AddChild(grandchild)

	root.UpdateTransforms()
	scaleBefore := child.WorldTransform().ExtractScale()

	wantPos := math.Vec3{X: -1, Y: 3, Z: 2}
	wantRot := math.QuatFromAxisAngle(math.Vec3{X: 1}, 1.2)
	child.SetWorldTransform(wantPos, wantRot)

	if got := child.WorldPosition(); !got.ApproxEqual(wantPos, 1e-4) {
		t.Errorf("world position = %v, want %v", got, wantPos)
	}
	if got := child.WorldRotation(); got.AngleTo(wantRot) > 1e-3 {
		t.Errorf("world rotation = %v, want %v", got, wantRot)
	}
	if got := child.WorldTransform().ExtractScale(); !got.ApproxEqual(scaleBefore, 1e-4) {
		t.Errorf("world scale changed: %v -> %v", scaleBefore, got)
	}
	// Subtree follows immediately.
	want := wantPos.Add(wantRot.Rotate(math.Vec3{Y: 1}))
	if got := grandchild.WorldPosition(); !got.ApproxEqual(want, 1e-4) {
		t.Errorf("grandchild world position = %v, want %v", got, want)
	}
}

func TestSetWorldTransformWithPivots(t *testing.T) {
	tests := []struct {
		name  string
		setup func(n *Node)
	}{
		{"rotation pivot", func(n *Node) { n.SetRotationPivot(math.Translate(1, 0, 0)) }},
		{"scale pivot", func(n *Node) {
			n.SetScalePivot(math.Translate(0, 1, 0))
			n.SetScale(math.Vec3{X: 2, Y: 2, Z: 2})
		}},
		{"both pivots under a parent", func(n *Node) {
			n.SetRotationPivot(math.Translate(1, 0, 0))
			n.SetScalePivot(math.Translate(0, 1, 0))
			n.SetScale(math.Vec3{X: 0.5, Y: 0.5, Z: 0.5})
			parent := NewNode("parent")
			parent.SetPosition(math.Vec3{X: -2, Z: 1})
			parent.SetRotation(math.QuatFromAxisAngle(math.Vec3{Y: 1}, 0.7))
			parent.AddChild(n)
			parent.UpdateTransforms()
		}},
	}

	wantPos := math.Vec3{X: 2, Y: 3}
	wantRot := math.QuatFromAxisAngle(math.Vec3{Z: 1}, 0.5)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNode("pivoted")
			tt.setup(n)
			n.UpdateTransforms()

			n.SetWorldTransform(wantPos, wantRot)

			if got := n.WorldPosition(); !got.ApproxEqual(wantPos, 1e-4) {
				t.Errorf("world position = %v, want %v", got, wantPos)
			}
			if got := n.WorldRotation(); got.AngleTo(wantRot) > 1e-3 {
				t.Errorf("world rotation = %v, want %v", got, wantRot)
			}
		})
	}
}

func TestDestroy(t *testing.T) {
	root := NewNode("root")
	child := NewNode("child")
	leaf := NewNode("leaf")
	root.AddChild(child)
	child.AddChild(leaf)

	child.Destroy()

	if len(root.Children()) != 0 {
		t.Error("destroyed child should be detached from its parent")
	}
	if !child.Destroyed() || !leaf.Destroyed() {
		t.Error("destroy should mark the whole subtree")
	}
	if root.Destroyed() {
		t.Error("parent should not be destroyed")
	}
}

func TestFindAndReparent(t *testing.T) {
	a := NewNode("a")
	b := NewNode("b")
	c := NewNode("c")
	a.AddChild(c)
	b.AddChild(c)

	if len(a.Children()) != 0 {
		t.Error("reparenting should remove the node from its old parent")
	}
	if c.Parent() != b {
		t.Error("reparented node should point at new parent")
	}
	if b.Find("c") != c || a.Find("c") != nil {
		t.Error("Find should search only the subtree")
	}
}
