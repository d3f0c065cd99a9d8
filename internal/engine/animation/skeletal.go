package animation

import (
	"fmt"
	"sort"

	"github.com/Faultbox/midgard-rig/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// SkeletalAnimationFrame is one keyframe. Only bones that change need be listed.
type SkeletalAnimationFrame struct {
	// Time is normalized to [0,1] of the animation duration.
	Time           float32
	BoneIndices    []int
	BoneTransforms []math.Mat4
}

// SkeletalAnimation drives the bones of a skinner's skeleton from keyframes.
type SkeletalAnimation struct {
	playback
	Name    string
	skinner *skeleton.Skinner
	frames  []SkeletalAnimationFrame
}

// NewSkeletalAnimation validates frames against the skinner's skeleton.
func NewSkeletalAnimation(skinner *skeleton.Skinner, frames []SkeletalAnimationFrame, duration float32) (*SkeletalAnimation, error) {
	if skinner == nil {
		return nil, fmt.Errorf("skeletal animation requires a skinner")
	}
	numBones := skinner.Skeleton().NumBones()
	last := float32(-1)
	for f, fr := range frames {
		if len(fr.BoneIndices) != len(fr.BoneTransforms) {
			return nil, fmt.Errorf("frame %d: %d bone indices for %d transforms", f, len(fr.BoneIndices), len(fr.BoneTransforms))
		}
		if fr.Time < last {
			return nil, fmt.Errorf("frame %d: time %g precedes previous frame", f, fr.Time)
		}
		last = fr.Time
		for _, b := range fr.BoneIndices {
			if b < 0 || b >= numBones {
				return nil, fmt.Errorf("frame %d: bone %d out of range [0,%d)", f, b, numBones)
			}
		}
	}
	return &SkeletalAnimation{
		playback: newPlayback(duration),
		skinner:  skinner,
		frames:   frames,
	}, nil
}

// Kind returns KindSkeletal.
func (a *SkeletalAnimation) Kind() Kind { return KindSkeletal }

// Skinner returns the skinner whose skeleton is animated.
func (a *SkeletalAnimation) Skinner() *skeleton.Skinner { return a.skinner }

// Frames returns the keyframes.
func (a *SkeletalAnimation) Frames() []SkeletalAnimationFrame { return a.frames }

// boneKeys is one bone's keyframe series.
type boneKeys struct {
	times  []float32
	values []math.Mat4
}

// boneKeyframes gathers each referenced bone's (time, transform) series.
func (a *SkeletalAnimation) boneKeyframes() map[int]*boneKeys {
	out := make(map[int]*boneKeys)
	for _, fr := range a.frames {
		for k, b := range fr.BoneIndices {
			keys := out[b]
			if keys == nil {
				keys = &boneKeys{}
				out[b] = keys
			}
			keys.times = append(keys.times, fr.Time)
			keys.values = append(keys.values, fr.BoneTransforms[k])
		}
	}
	return out
}

// Execute schedules one keyframe track per referenced bone in a single transaction.
func (a *SkeletalAnimation) Execute(s *Scheduler, onFinish func()) {
	a.run(s, boneTracks(a.skinner.Skeleton(), a.boneKeyframes()), onFinish)
}

func boneTracks(skel *skeleton.Skeleton, keys map[int]*boneKeys) []Track {
	indices := make([]int, 0, len(keys))
	for b := range keys {
		indices = append(indices, b)
	}
	sort.Ints(indices)

	tracks := make([]Track, 0, len(indices))
	for _, b := range indices {
		bone := skel.Bone(b)
		if bone == nil {
			continue
		}
		tracks = append(tracks, NewMatrixTrack(keys[b].times, keys[b].values, bone.SetTransform))
	}
	return tracks
}
