package animation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Faultbox/midgard-rig/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// timelineTolerance is how far layer keyframe times may drift and still be
// treated as the same frame.
const timelineTolerance = 1e-4

// ErrMisalignedLayers is returned when layers driving one skinner do not
// share a keyframe timeline.
var ErrMisalignedLayers = errors.New("layer keyframe timelines differ")

// Layer is one named input to a layered animation.
type Layer struct {
	Name      string
	Animation Executable
	// DefaultWeight applies to bones without an override. 0..1.
	DefaultWeight float32
	// BoneWeights overrides DefaultWeight per bone index.
	BoneWeights map[int]float32
}

// NewLayer creates a layer with full default weight.
func NewLayer(name string, anim Executable) Layer {
	return Layer{Name: name, Animation: anim, DefaultWeight: 1}
}

// skeletalLayer is one skeletal leaf of a Layer, carrying that layer's weights.
type skeletalLayer struct {
	name          string
	animation     *SkeletalAnimation
	defaultWeight float32
	boneWeights   map[int]float32
}

func (l skeletalLayer) boneWeight(bone int) float32 {
	if w, ok := l.boneWeights[bone]; ok {
		return w
	}
	return l.defaultWeight
}

// LayeredSkeletalAnimation blends several skeletal animations of one skinner
// into a single pose per keyframe.
type LayeredSkeletalAnimation struct {
	playback
	skinner *skeleton.Skinner
	layers  []skeletalLayer
}

// NewLayered flattens the layers' animations, blends skeletal leaves per
// skinner and runs the blended results alongside any non-skeletal leaves.
// All outputs share the longest input duration.
func NewLayered(layers []Layer) (*Chain, error) {
	type group struct {
		skinner *skeleton.Skinner
		layers  []skeletalLayer
	}
	var (
		groups      []*group
		bySkinner   = make(map[*skeleton.Skinner]*group)
		passthrough []Executable
		duration    float32
	)

	for _, l := range layers {
		if l.Animation == nil {
			continue
		}
		if d := l.Animation.Duration(); d > duration {
			duration = d
		}
		for _, leaf := range flatten(l.Animation, nil) {
			if leaf.Kind() != KindSkeletal {
				passthrough = append(passthrough, leaf)
				continue
			}
			anim := leaf.(*SkeletalAnimation)
			g := bySkinner[anim.skinner]
			if g == nil {
				g = &group{skinner: anim.skinner}
				bySkinner[anim.skinner] = g
				groups = append(groups, g)
			}
			g.layers = append(g.layers, skeletalLayer{
				name:          l.Name,
				animation:     anim,
				defaultWeight: l.DefaultWeight,
				boneWeights:   l.BoneWeights,
			})
		}
	}

	children := make([]Executable, 0, len(groups)+len(passthrough))
	for _, g := range groups {
		la, err := newLayeredSkeletal(g.skinner, g.layers, duration)
		if err != nil {
			return nil, err
		}
		children = append(children, la)
	}
	children = append(children, passthrough...)
	return NewChain(ChainParallel, children...), nil
}

// flatten expands chains recursively into their leaves.
func flatten(e Executable, out []Executable) []Executable {
	if e.Kind() == KindChain {
		for _, c := range e.(*Chain).Children() {
			out = flatten(c, out)
		}
		return out
	}
	return append(out, e)
}

func newLayeredSkeletal(skinner *skeleton.Skinner, layers []skeletalLayer, duration float32) (*LayeredSkeletalAnimation, error) {
	master := layers[0].animation.frames
	for _, l := range layers[1:] {
		frames := l.animation.frames
		if len(frames) != len(master) {
			return nil, fmt.Errorf("layer %q has %d frames, layer %q has %d: %w",
				l.name, len(frames), layers[0].name, len(master), ErrMisalignedLayers)
		}
		for f := range frames {
			if d := frames[f].Time - master[f].Time; d > timelineTolerance || d < -timelineTolerance {
				return nil, fmt.Errorf("layer %q frame %d at %g, master at %g: %w",
					l.name, f, frames[f].Time, master[f].Time, ErrMisalignedLayers)
			}
		}
	}
	return &LayeredSkeletalAnimation{
		playback: newPlayback(duration),
		skinner:  skinner,
		layers:   layers,
	}, nil
}

// Kind returns KindLayeredSkeletal.
func (a *LayeredSkeletalAnimation) Kind() Kind { return KindLayeredSkeletal }

// Skinner returns the blended skinner.
func (a *LayeredSkeletalAnimation) Skinner() *skeleton.Skinner { return a.skinner }

// Execute blends every layer per master keyframe and schedules the result
// as one track per bone in a shared transaction.
func (a *LayeredSkeletalAnimation) Execute(s *Scheduler, onFinish func()) {
	a.run(s, boneTracks(a.skinner.Skeleton(), a.blendedKeyframes()), onFinish)
}

func (a *LayeredSkeletalAnimation) blendedKeyframes() map[int]*boneKeys {
	skel := a.skinner.Skeleton()

	// Per layer, per frame: bone -> transform.
	scattered := make([][]map[int]math.Mat4, len(a.layers))
	for l, layer := range a.layers {
		scattered[l] = make([]map[int]math.Mat4, len(layer.animation.frames))
		for f, fr := range layer.animation.frames {
			m := make(map[int]math.Mat4, len(fr.BoneIndices))
			for k, b := range fr.BoneIndices {
				m[b] = fr.BoneTransforms[k]
			}
			scattered[l][f] = m
		}
	}

	rest := make(map[int]math.Mat4)
	restTransform := func(b int) math.Mat4 {
		if m, ok := rest[b]; ok {
			return m
		}
		m := math.Identity()
		if bone := skel.Bone(b); bone != nil {
			m = bone.Transform()
		}
		rest[b] = m
		return m
	}

	out := make(map[int]*boneKeys)
	var transforms []math.Mat4
	var weights []float32
	for f, mf := range a.layers[0].animation.frames {
		for _, b := range framesBones(scattered, f) {
			transforms = transforms[:0]
			weights = weights[:0]
			for l, layer := range a.layers {
				m, ok := scattered[l][f][b]
				if !ok {
					continue
				}
				if w := layer.boneWeight(b); w > 0 {
					transforms = append(transforms, m)
					weights = append(weights, w)
				}
			}

			var value math.Mat4
			switch len(transforms) {
			case 0:
				value = restTransform(b)
			case 1:
				value = transforms[0]
			default:
				value = BlendBoneTransforms(transforms, weights)
			}

			keys := out[b]
			if keys == nil {
				keys = &boneKeys{}
				out[b] = keys
			}
			keys.times = append(keys.times, mf.Time)
			keys.values = append(keys.values, value)
		}
	}
	return out
}

// framesBones returns the sorted union of bones listed in frame f of any layer.
func framesBones(scattered [][]map[int]math.Mat4, f int) []int {
	seen := make(map[int]struct{})
	for l := range scattered {
		for b := range scattered[l][f] {
			seen[b] = struct{}{}
		}
	}
	bones := make([]int, 0, len(seen))
	for b := range seen {
		bones = append(bones, b)
	}
	sort.Ints(bones)
	return bones
}

// BlendBoneTransforms blends N transforms by weight. Weights are normalized
// to sum to one, then folded pairwise so that each step's weight is the
// incoming weight over the weight accumulated so far.
func BlendBoneTransforms(transforms []math.Mat4, weights []float32) math.Mat4 {
	if len(transforms) != len(weights) {
		panic("animation: blend transforms and weights differ in length")
	}
	if len(transforms) == 0 {
		return math.Identity()
	}
	var total float32
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return transforms[0]
	}

	acc := transforms[0]
	accWeight := weights[0] / total
	for i := 1; i < len(transforms); i++ {
		w := weights[i] / total
		if accWeight+w <= 0 {
			continue
		}
		acc = BlendBoneTransform(acc, transforms[i], w/(accWeight+w))
		accWeight += w
	}
	return acc
}

// BlendBoneTransform slerps rotation and lerps translation from a to b by w.
// Scale is not carried into the result.
func BlendBoneTransform(a, b math.Mat4, w float32) math.Mat4 {
	ta, ra, _ := a.Decompose()
	tb, rb, _ := b.Decompose()
	return math.TranslateVec(ta.Lerp(tb, w)).Mul(ra.Slerp(rb, w).ToMat4())
}
