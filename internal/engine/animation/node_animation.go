package animation

import (
	"fmt"
	"weak"

	"github.com/Faultbox/midgard-rig/internal/engine/scene"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// KeyframeAnimation drives a scene node's local transform from matrix keyframes.
// The node is referenced weakly; once it is gone the animation has no effect.
type KeyframeAnimation struct {
	playback
	Name   string
	node   weak.Pointer[scene.Node]
	times  []float32
	values []math.Mat4
}

// NewKeyframeAnimation creates a node animation over normalized key times.
func NewKeyframeAnimation(node *scene.Node, times []float32, values []math.Mat4, duration float32) (*KeyframeAnimation, error) {
	if node == nil {
		return nil, fmt.Errorf("keyframe animation requires a node")
	}
	if len(times) != len(values) {
		return nil, fmt.Errorf("keyframe animation has %d times for %d values", len(times), len(values))
	}
	for i := 1; i < len(times); i++ {
		if times[i] < times[i-1] {
			return nil, fmt.Errorf("keyframe %d: time %g precedes previous key", i, times[i])
		}
	}
	return &KeyframeAnimation{
		playback: newPlayback(duration),
		node:     weak.Make(node),
		times:    times,
		values:   values,
	}, nil
}

// Kind returns KindKeyframe.
func (a *KeyframeAnimation) Kind() Kind { return KindKeyframe }

// Execute schedules the node track.
func (a *KeyframeAnimation) Execute(s *Scheduler, onFinish func()) {
	track := NewMatrixTrack(a.times, a.values, func(m math.Mat4) {
		n := a.node.Value()
		if n == nil || n.Destroyed() {
			return
		}
		n.SetLocalTransform(m)
	})
	a.run(s, []Track{track}, onFinish)
}
