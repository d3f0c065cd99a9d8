package loader

import (
	"fmt"
	"sort"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rig/internal/engine/animation"
	"github.com/Faultbox/midgard-rig/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// channelTrack is one decoded glTF channel. Vec3 values leave W unused.
type channelTrack struct {
	node   int
	path   gltf.TRSProperty
	interp gltf.Interpolation
	times  []float32
	values [][4]float32
}

// sample evaluates the channel at absolute time t, holding the end values
// outside the keyed range.
func (c *channelTrack) sample(t float32) [4]float32 {
	n := len(c.times)
	if n == 1 || t <= c.times[0] {
		return c.values[0]
	}

	var prev, next int
	for i := range c.times {
		if c.times[i] > t {
			next = i
			break
		}
		prev = i
		next = i
	}
	if prev == next || c.interp == gltf.InterpolationStep {
		return c.values[prev]
	}

	alpha := (t - c.times[prev]) / (c.times[next] - c.times[prev])
	a, b := c.values[prev], c.values[next]
	if c.path == gltf.TRSRotation {
		q := quatFrom32(a).Slerp(quatFrom32(b), alpha)
		return [4]float32{q.X, q.Y, q.Z, q.W}
	}
	v := vec3From32([3]float32{a[0], a[1], a[2]}).Lerp(vec3From32([3]float32{b[0], b[1], b[2]}), alpha)
	return [4]float32{v.X, v.Y, v.Z, 0}
}

// readChannel decodes a channel. It returns nil for channels the engine does
// not animate.
func (s *Session) readChannel(a *gltf.Animation, ch *gltf.AnimationChannel) (*channelTrack, error) {
	if ch.Target.Node == nil {
		return nil, nil
	}
	node := *ch.Target.Node
	if node < 0 || node >= len(s.nodes) {
		return nil, fmt.Errorf("%w: channel targets node %d out of range", ErrMalformed, node)
	}
	if ch.Target.Path == gltf.TRSWeights {
		s.log.Debug("skipping morph weight channel", zap.Int("node", node))
		return nil, nil
	}
	if ch.Sampler < 0 || ch.Sampler >= len(a.Samplers) {
		return nil, fmt.Errorf("%w: channel sampler %d out of range", ErrMalformed, ch.Sampler)
	}
	sm := a.Samplers[ch.Sampler]

	times, err := s.readFloats(sm.Input)
	if err != nil {
		return nil, err
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: sampler without keys", ErrMalformed)
	}

	var values [][4]float32
	switch ch.Target.Path {
	case gltf.TRSRotation:
		values, err = s.readVec4s(sm.Output)
	default:
		var v3 [][3]float32
		v3, err = s.readVec3s(sm.Output)
		values = make([][4]float32, len(v3))
		for i, v := range v3 {
			values[i] = [4]float32{v[0], v[1], v[2], 0}
		}
	}
	if err != nil {
		return nil, err
	}

	interp := sm.Interpolation
	if interp == gltf.InterpolationCubicSpline {
		// Keep the key values and drop the tangents.
		if len(values) != 3*len(times) {
			return nil, fmt.Errorf("%w: cubic sampler has %d outputs for %d keys", ErrMalformed, len(values), len(times))
		}
		keys := make([][4]float32, len(times))
		for i := range keys {
			keys[i] = values[3*i+1]
		}
		values = keys
		interp = gltf.InterpolationLinear
	}
	if len(values) != len(times) {
		return nil, fmt.Errorf("%w: sampler has %d outputs for %d keys", ErrMalformed, len(values), len(times))
	}

	return &channelTrack{node: node, path: ch.Target.Path, interp: interp, times: times, values: values}, nil
}

// buildAnimation resamples a glTF animation into per-skin skeletal animations
// and per-node keyframe animations.
func (s *Session) buildAnimation(a *gltf.Animation, skinners []*skeleton.Skinner) (*AnimationSet, error) {
	set := &AnimationSet{Name: a.Name}

	byNode := make(map[int][]*channelTrack)
	for _, ch := range a.Channels {
		track, err := s.readChannel(a, ch)
		if err != nil {
			return nil, err
		}
		if track == nil {
			continue
		}
		byNode[track.node] = append(byNode[track.node], track)
		if last := track.times[len(track.times)-1]; last > set.Duration {
			set.Duration = last
		}
	}
	if len(byNode) == 0 {
		return set, nil
	}

	for skin, sk := range skinners {
		anim, err := s.skeletalAnimation(skin, sk, byNode, set.Duration)
		if err != nil {
			return nil, err
		}
		if anim != nil {
			anim.Name = a.Name
			set.Skeletal = append(set.Skeletal, anim)
		}
	}

	nodes := make([]int, 0, len(byNode))
	for n := range byNode {
		if len(s.jointOf[n]) == 0 {
			nodes = append(nodes, n)
		}
	}
	sort.Ints(nodes)
	for _, n := range nodes {
		times := unionTimes(byNode[n])
		values := make([]math.Mat4, len(times))
		for i, t := range times {
			values[i] = s.animatedLocal(n, t, byNode)
		}
		ka, err := animation.NewKeyframeAnimation(s.nodes[n], normalize(times, set.Duration), values, set.Duration)
		if err != nil {
			return nil, err
		}
		ka.Name = a.Name + "/" + s.nodes[n].Name
		set.Nodes = append(set.Nodes, ka)
	}
	return set, nil
}

// skeletalAnimation bakes every bone of the skin influenced by an animated
// node into concatenated keyframes. It returns nil when nothing moves.
func (s *Session) skeletalAnimation(skin int, sk *skeleton.Skinner, byNode map[int][]*channelTrack, duration float32) (*animation.SkeletalAnimation, error) {
	joints := s.doc.Skins[skin].Joints

	var bones []int
	var tracks []*channelTrack
	seen := make(map[int]bool)
	for b, n := range joints {
		moved := false
		for p := n; p != -1; p = s.parents[p] {
			if ts, ok := byNode[p]; ok {
				moved = true
				if !seen[p] {
					seen[p] = true
					tracks = append(tracks, ts...)
				}
			}
		}
		if moved {
			bones = append(bones, b)
		}
	}
	if len(bones) == 0 {
		return nil, nil
	}

	times := unionTimes(tracks)
	frames := make([]animation.SkeletalAnimationFrame, len(times))
	for i, t := range times {
		memo := make(map[int]math.Mat4)
		f := animation.SkeletalAnimationFrame{
			Time:           normalizeTime(t, duration),
			BoneIndices:    make([]int, len(bones)),
			BoneTransforms: make([]math.Mat4, len(bones)),
		}
		for k, b := range bones {
			f.BoneIndices[k] = b
			f.BoneTransforms[k] = s.animatedModel(joints[b], t, byNode, memo)
		}
		frames[i] = f
	}
	return animation.NewSkeletalAnimation(sk, frames, duration)
}

// animatedModel returns node n's transform relative to the model root at time t.
func (s *Session) animatedModel(n int, t float32, byNode map[int][]*channelTrack, memo map[int]math.Mat4) math.Mat4 {
	if m, ok := memo[n]; ok {
		return m
	}
	m := s.animatedLocal(n, t, byNode)
	if p := s.parents[n]; p != -1 {
		m = s.animatedModel(p, t, byNode, memo).Mul(m)
	}
	memo[n] = m
	return m
}

// animatedLocal returns node n's parent-relative transform at time t, with
// unanimated channels taken from the rest pose.
func (s *Session) animatedLocal(n int, t float32, byNode map[int][]*channelTrack) math.Mat4 {
	translation, rotation, scale := localMatrix(s.doc.Nodes[n]).Decompose()
	for _, c := range byNode[n] {
		v := c.sample(t)
		switch c.path {
		case gltf.TRSTranslation:
			translation = vec3From32([3]float32{v[0], v[1], v[2]})
		case gltf.TRSRotation:
			rotation = quatFrom32(v).Normalize()
		case gltf.TRSScale:
			scale = vec3From32([3]float32{v[0], v[1], v[2]})
		}
	}
	return math.Compose(translation, rotation, scale)
}

// unionTimes merges the key times of tracks into one ascending list.
func unionTimes(tracks []*channelTrack) []float32 {
	set := make(map[float32]struct{})
	for _, tr := range tracks {
		for _, t := range tr.times {
			set[t] = struct{}{}
		}
	}
	out := make([]float32, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func normalize(times []float32, duration float32) []float32 {
	out := make([]float32, len(times))
	for i, t := range times {
		out[i] = normalizeTime(t, duration)
	}
	return out
}

func normalizeTime(t, duration float32) float32 {
	if duration <= 0 {
		return 0
	}
	return t / duration
}
