package ik

import (
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// solvePass holds the scratch state of one FABRIK iteration.
type solvePass struct {
	processed map[*chain]bool
	// Positions proposed for a centroid joint by each chain that ends on it
	// from below, averaged before the chain above it is solved.
	centroidSubLocations map[*joint][]math.Vec3
}

func newSolvePass() *solvePass {
	return &solvePass{
		processed:            make(map[*chain]bool),
		centroidSubLocations: make(map[*joint][]math.Vec3),
	}
}

// solve runs FABRIK until every effector is within the threshold or the
// iteration cap is reached. Non-convergence keeps the best pose found.
func (r *Rig) solve() {
	r.met = false
	r.iterations = 0
	for iter := 0; iter < r.opts.MaxIterations; iter++ {
		p := newSolvePass()

		for _, key := range r.effectorKeys {
			j := r.effectors[key]
			if !j.intermediary {
				j.position = r.desired[key]
			}
		}

		for _, key := range r.effectorKeys {
			if c := r.effectorChains[key]; c != nil && !p.processed[c] {
				r.towardsRoot(p, c, true)
			}
		}

		r.root.position = r.rootOrigin

		for _, c := range r.rootChains {
			r.towardsEffectors(c)
		}

		r.iterations = iter + 1
		if r.effectorsMetTarget() {
			r.met = true
			return
		}
	}
}

// towardsRoot solves c and everything below it before c itself, then
// optionally climbs to the parent chain.
func (r *Rig) towardsRoot(p *solvePass, c *chain, climb bool) {
	for _, child := range c.children {
		if !p.processed[child] {
			r.towardsRoot(p, child, false)
		}
	}

	if end := c.last(); end.centroid {
		if subs := p.centroidSubLocations[end]; len(subs) > 0 {
			var sum math.Vec3
			for _, s := range subs {
				sum = sum.Add(s)
			}
			end.position = sum.Scale(1 / float32(len(subs)))
		}
	}

	r.backward(p, c)
	p.processed[c] = true

	if climb && c.parent != nil && !p.processed[c.parent] {
		r.towardsRoot(p, c.parent, true)
	}
}

// backward walks from the chain end to its start, pulling each joint onto
// the line toward its already-placed successor.
func (r *Rig) backward(p *solvePass, c *chain) {
	for i := len(c.joints) - 2; i >= 0; i-- {
		cur := c.joints[i]
		next := c.joints[i+1]
		pos := reposition(next.position, cur.position, c.lengths[i])
		if !pos.IsFinite() {
			continue
		}
		if i == 0 && cur.centroid {
			p.centroidSubLocations[cur] = append(p.centroidSubLocations[cur], pos)
			continue
		}
		cur.position = pos
	}
}

// towardsEffectors solves c from its start outward, then its child chains.
func (r *Rig) towardsEffectors(c *chain) {
	r.forward(c)
	for _, child := range c.children {
		r.towardsEffectors(child)
	}
}

func (r *Rig) forward(c *chain) {
	for i := 1; i < len(c.joints); i++ {
		prev := c.joints[i-1]
		cur := c.joints[i]
		pull := cur.position
		if cur.intermediary {
			pull = r.desired[cur.effector]
		}
		pos := reposition(prev.position, pull, c.lengths[i-1])
		if !pos.IsFinite() {
			continue
		}
		cur.position = pos
	}
}

// reposition places a point at length from anchor toward toward.
// A zero-length direction yields a non-finite result.
func reposition(anchor, toward math.Vec3, length float32) math.Vec3 {
	return anchor.Add(toward.Sub(anchor).Normalize().Scale(length))
}

func (r *Rig) effectorsMetTarget() bool {
	for _, key := range r.effectorKeys {
		target, ok := r.desired[key]
		if !ok {
			continue
		}
		if r.effectors[key].position.Distance(target) > r.opts.ReachThreshold {
			return false
		}
	}
	return true
}
