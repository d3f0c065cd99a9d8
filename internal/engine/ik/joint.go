// Package ik implements a FABRIK inverse-kinematics rig over scene nodes or
// skeleton bones.
//
// A rig collapses the driven hierarchy into joints that matter (the root,
// branch points and effectors), partitions them into chains between those
// points, and solves chain positions iteratively. Solved positions are then
// turned back into rotations on the underlying nodes or bones.
package ik

import (
	"weak"

	"github.com/Faultbox/midgard-rig/internal/engine/scene"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// joint is one vertex of the solve graph. It targets either a node or a bone.
type joint struct {
	id       int
	position math.Vec3

	node weak.Pointer[scene.Node]
	bone int

	parent   *joint
	children []*joint

	// Runs of pass-through joints collapsed below this joint, one run per
	// child path, in order from this joint downward.
	lockedRuns [][]lockedJoint

	effector     string
	intermediary bool
	centroid     bool
}

// lockedJoint is a collapsed joint and its transform relative to the
// previous joint in its run.
type lockedJoint struct {
	joint *joint
	local math.Mat4
}

func newNodeJoint(n *scene.Node) *joint {
	return &joint{node: weak.Make(n), bone: -1}
}

func newBoneJoint(bone int) *joint {
	return &joint{bone: bone}
}

func (j *joint) isEffector() bool { return j.effector != "" }

func (j *joint) addChild(c *joint) {
	for _, existing := range j.children {
		if existing == c {
			return
		}
	}
	c.parent = j
	j.children = append(j.children, c)
}

// lockable reports whether j lies on an unbranched pass-through run.
func (j *joint) lockable() bool {
	return j.parent != nil && !j.isEffector() && len(j.children) == 1
}

// chain is a run of joints between two of root, branch point, effector or leaf.
type chain struct {
	joints []*joint
	// lengths[i] is the rigid distance between joints[i] and joints[i+1].
	lengths []float32

	parent   *chain
	children []*chain
}

func (c *chain) first() *joint { return c.joints[0] }
func (c *chain) last() *joint  { return c.joints[len(c.joints)-1] }

func (c *chain) add(j *joint) {
	if n := len(c.joints); n > 0 {
		c.lengths = append(c.lengths, c.joints[n-1].position.Distance(j.position))
	}
	c.joints = append(c.joints, j)
}
