// Package frame sequences one engine frame: animation, IK, transform
// propagation, attachments, then skinning palettes.
package frame

import (
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rig/internal/engine/animation"
	"github.com/Faultbox/midgard-rig/internal/engine/ik"
	"github.com/Faultbox/midgard-rig/internal/engine/scene"
	"github.com/Faultbox/midgard-rig/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rig/internal/logger"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// Loop owns the per-frame ordering. It is not safe for concurrent use.
type Loop struct {
	scheduler *animation.Scheduler

	roots     []*scene.Node
	rigs      []*ik.Rig
	skeletons []*skeleton.Skeleton
	skinners  []*skeleton.Skinner

	palettes map[*skeleton.Skinner][]math.Mat4
	frames   uint64
	elapsed  float32

	log *zap.Logger
}

// New creates a loop driving the given scheduler. A nil scheduler gets a
// fresh one.
func New(s *animation.Scheduler) *Loop {
	if s == nil {
		s = animation.NewScheduler()
	}
	return &Loop{
		scheduler: s,
		palettes:  make(map[*skeleton.Skinner][]math.Mat4),
		log:       logger.Named("frame"),
	}
}

// Scheduler returns the animation scheduler advanced by Step.
func (l *Loop) Scheduler() *animation.Scheduler { return l.scheduler }

// AddRoot registers a scene root whose subtree is propagated each frame.
func (l *Loop) AddRoot(n *scene.Node) {
	if n == nil {
		return
	}
	l.roots = append(l.roots, n)
}

// AddRig registers an IK rig processed after animation.
func (l *Loop) AddRig(r *ik.Rig) {
	if r == nil {
		return
	}
	l.rigs = append(l.rigs, r)
	l.log.Debug("rig registered", zap.Strings("effectors", r.Effectors()))
}

// AddSkeleton registers a skeleton whose attachments follow its bones.
func (l *Loop) AddSkeleton(s *skeleton.Skeleton) {
	if s == nil {
		return
	}
	l.skeletons = append(l.skeletons, s)
}

// AddSkinner registers a skinner whose palette is rebuilt every frame. Its
// skeleton is registered too.
func (l *Loop) AddSkinner(sk *skeleton.Skinner) {
	if sk == nil {
		return
	}
	l.skinners = append(l.skinners, sk)
	for _, s := range l.skeletons {
		if s == sk.Skeleton() {
			return
		}
	}
	l.AddSkeleton(sk.Skeleton())
}

// Step runs one frame of dt seconds.
func (l *Loop) Step(dt float32) {
	if dt < 0 {
		l.log.Warn("negative frame delta", zap.Float32("dt", dt))
		dt = 0
	}

	l.scheduler.Advance(dt)

	for _, r := range l.rigs {
		r.ProcessRig()
	}

	for _, n := range l.roots {
		if !n.Destroyed() {
			n.UpdateTransforms()
		}
	}

	for _, s := range l.skeletons {
		s.UpdateAttachments()
	}

	for _, sk := range l.skinners {
		l.palettes[sk] = sk.ModelTransforms()
	}

	l.frames++
	l.elapsed += dt
}

// Run steps the loop at a fixed rate until duration seconds have elapsed and
// returns the number of frames stepped.
func (l *Loop) Run(duration float32, fps int) int {
	if fps <= 0 || duration <= 0 {
		return 0
	}
	dt := 1 / float32(fps)
	n := 0
	for t := float32(0); t < duration-dt*0.5; t += dt {
		l.Step(dt)
		n++
	}
	return n
}

// Palette returns the skinning matrices computed for sk by the last Step.
func (l *Loop) Palette(sk *skeleton.Skinner) []math.Mat4 { return l.palettes[sk] }

// Frames returns how many frames have been stepped.
func (l *Loop) Frames() uint64 { return l.frames }

// Elapsed returns the total simulated time in seconds.
func (l *Loop) Elapsed() float32 { return l.elapsed }
