package ik

import (
	"github.com/Faultbox/midgard-rig/pkg/math"
)

type pose struct {
	world    math.Mat4
	rotation math.Quat
	scale    math.Vec3
	ok       bool
}

// sync turns solved joint positions back into world transforms, parents
// before children, and writes them to the backing store.
func (r *Rig) sync() {
	order := r.topDown()

	// Snapshot before any write: node writes move their subtrees.
	old := make(map[*joint]pose, len(order))
	for _, j := range order {
		m, q, ok := r.store.read(j)
		old[j] = pose{world: m, rotation: q, scale: m.ExtractScale(), ok: ok}
	}

	newRotation := make(map[*joint]math.Quat, len(order))
	for _, j := range order {
		before := old[j]
		if !before.ok {
			continue
		}

		rotation := before.rotation
		switch len(j.children) {
		case 0:
			if j.parent != nil {
				parentRotation, ok := newRotation[j.parent]
				if !ok {
					parentRotation = old[j.parent].rotation
				}
				rotation = parentRotation.Mul(r.leafRotations[j]).Normalize()
			}
		case 1:
			c := j.children[0]
			oldDir := old[c].world.Translation().Sub(before.world.Translation())
			newDir := c.position.Sub(j.position)
			delta := math.QuatFromTo(oldDir.Normalize(), newDir.Normalize())
			if delta.IsFinite() && oldDir.Length() > 0 && newDir.Length() > 0 {
				rotation = delta.Mul(before.rotation).Normalize()
			}
		}
		newRotation[j] = rotation

		world := math.Compose(j.position, rotation, before.scale)
		r.store.write(j, world, rotation)
		r.syncLockedJoints(j, world)
	}
}

// syncLockedJoints re-applies each collapsed run below j, each joint using
// the freshly computed transform of its predecessor.
func (r *Rig) syncLockedJoints(j *joint, world math.Mat4) {
	for _, run := range j.lockedRuns {
		prev := world
		for _, lj := range run {
			m := prev.Mul(lj.local)
			r.store.write(lj.joint, m, m.ExtractRotation(m.ExtractScale()))
			prev = m
		}
	}
}

// topDown lists solve-graph joints breadth-first from the root.
func (r *Rig) topDown() []*joint {
	order := []*joint{r.root}
	for i := 0; i < len(order); i++ {
		order = append(order, order[i].children...)
	}
	return order
}
