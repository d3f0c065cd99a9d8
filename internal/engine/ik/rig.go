package ik

import (
	"errors"
	"fmt"
	"sort"
	"weak"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rig/internal/engine/scene"
	"github.com/Faultbox/midgard-rig/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rig/internal/logger"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// Defaults for Options.
const (
	DefaultMaxIterations  = 50
	DefaultReachThreshold = 0.005
)

// Options tunes a rig.
type Options struct {
	// MaxIterations caps FABRIK retries per solve.
	MaxIterations int
	// ReachThreshold is how close, in meters, every effector must be to its
	// target for the solve to stop early.
	ReachThreshold float32
	// LockIntermediaryJoints collapses pass-through joints out of the solve.
	LockIntermediaryJoints bool
}

// DefaultOptions returns 50 iterations, a 5mm threshold and joint locking.
func DefaultOptions() Options {
	return Options{
		MaxIterations:          DefaultMaxIterations,
		ReachThreshold:         DefaultReachThreshold,
		LockIntermediaryJoints: true,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.ReachThreshold <= 0 {
		o.ReachThreshold = DefaultReachThreshold
	}
	return o
}

// State is the rig lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateSolving
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateSolving:
		return "solving"
	default:
		return "unknown"
	}
}

// ErrTooFewJoints is returned when a rig would have nothing to solve.
var ErrTooFewJoints = errors.New("rig needs at least two joints")

// Rig is an IK rig over a node subtree or a skinner's skeleton. It holds only
// weak references into the scene; once those are gone the rig is inert.
// A Rig is not safe for concurrent use.
type Rig struct {
	opts  Options
	store poseStore
	log   *zap.Logger

	root   *joint
	joints []*joint

	effectors      map[string]*joint
	effectorKeys   []string
	effectorChains map[string]*chain
	desired        map[string]math.Vec3

	chains     []*chain
	rootChains []*chain

	rootOrigin    math.Vec3
	leafRotations map[*joint]math.Quat

	state      State
	processed  bool
	met        bool
	iterations int
}

// NewNodeRig creates a rig over the subtree of root. effectors maps caller
// keys to nodes inside that subtree.
func NewNodeRig(root *scene.Node, effectors map[string]*scene.Node, opts Options) (*Rig, error) {
	if root == nil {
		return nil, fmt.Errorf("node rig requires a root node")
	}
	for key, n := range effectors {
		if n == nil {
			return nil, fmt.Errorf("effector %q has no node", key)
		}
	}

	parentOf := func(n *scene.Node) (*scene.Node, bool) {
		p := n.Parent()
		return p, p != nil
	}
	rootJoint, joints, eff, err := buildJointGraph(root, effectors, parentOf, newNodeJoint)
	if err != nil {
		return nil, fmt.Errorf("building node rig: %w", err)
	}
	return newRig(&nodeStore{root: weak.Make(root)}, rootJoint, joints, eff, opts), nil
}

// NewSkinnerRig creates a rig over the skinner's skeleton rooted at bone 0.
// effectors maps caller keys to bone indices.
func NewSkinnerRig(skinner *skeleton.Skinner, effectors map[string]int, opts Options) (*Rig, error) {
	if skinner == nil {
		return nil, fmt.Errorf("skinner rig requires a skinner")
	}
	skel := skinner.Skeleton()
	if skel.NumBones() == 0 {
		return nil, fmt.Errorf("skinner rig: %w", ErrTooFewJoints)
	}
	for key, b := range effectors {
		if skel.Bone(b) == nil {
			return nil, fmt.Errorf("effector %q: bone %d out of range [0,%d)", key, b, skel.NumBones())
		}
	}

	parentOf := func(b int) (int, bool) {
		bone := skel.Bone(b)
		if bone.IsRoot() {
			return 0, false
		}
		return bone.ParentIndex(), true
	}
	rootJoint, joints, eff, err := buildJointGraph(0, effectors, parentOf, newBoneJoint)
	if err != nil {
		return nil, fmt.Errorf("building skinner rig: %w", err)
	}
	for _, j := range joints {
		if skel.Bone(j.bone).TransformType() == skeleton.TransformLocal {
			return nil, fmt.Errorf("bone %d uses local transforms, which cannot be driven", j.bone)
		}
	}
	return newRig(&skinnerStore{skinner: weak.Make(skinner)}, rootJoint, joints, eff, opts), nil
}

// buildJointGraph creates the root joint and, for every effector, walks upward
// creating joints until it meets one that already exists.
func buildJointGraph[K comparable](rootKey K, effectors map[string]K, parentOf func(K) (K, bool), mk func(K) *joint) (*joint, []*joint, map[string]*joint, error) {
	root := mk(rootKey)
	known := map[K]*joint{rootKey: root}
	joints := []*joint{root}
	byKey := make(map[string]*joint, len(effectors))

	keys := make([]string, 0, len(effectors))
	for k := range effectors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		at := effectors[key]
		if at == rootKey {
			return nil, nil, nil, fmt.Errorf("effector %q is the rig root", key)
		}
		j, exists := known[at]
		if exists && j.isEffector() {
			return nil, nil, nil, fmt.Errorf("effectors %q and %q share a target", j.effector, key)
		}
		if !exists {
			j = mk(at)
			known[at] = j
			joints = append(joints, j)

			child, cur := j, at
			for {
				p, ok := parentOf(cur)
				if !ok {
					return nil, nil, nil, fmt.Errorf("effector %q is not below the rig root", key)
				}
				pj, seen := known[p]
				if !seen {
					pj = mk(p)
					known[p] = pj
					joints = append(joints, pj)
				}
				pj.addChild(child)
				if seen {
					break
				}
				child, cur = pj, p
			}
		}
		j.effector = key
		byKey[key] = j
	}

	if len(joints) < 2 {
		return nil, nil, nil, ErrTooFewJoints
	}
	for i, j := range joints {
		j.id = i
	}
	return root, joints, byKey, nil
}

func newRig(store poseStore, root *joint, joints []*joint, effectors map[string]*joint, opts Options) *Rig {
	keys := make([]string, 0, len(effectors))
	for k := range effectors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &Rig{
		opts:           opts.withDefaults(),
		store:          store,
		log:            logger.Named("ik"),
		root:           root,
		joints:         joints,
		effectors:      effectors,
		effectorKeys:   keys,
		effectorChains: make(map[string]*chain),
		desired:        make(map[string]math.Vec3),
		leafRotations:  make(map[*joint]math.Quat),
	}
}

// State returns the lifecycle state.
func (r *Rig) State() State { return r.state }

// Options returns the rig options.
func (r *Rig) Options() Options { return r.opts }

// Effectors returns the effector keys in sorted order.
func (r *Rig) Effectors() []string {
	out := make([]string, len(r.effectorKeys))
	copy(out, r.effectorKeys)
	return out
}

// SetPositionForEffector queues a new world-space target. It is solved on the
// next ProcessRig.
func (r *Rig) SetPositionForEffector(key string, position math.Vec3) {
	if _, ok := r.effectors[key]; !ok {
		r.log.Warn("unknown effector", zap.String("effector", key))
		return
	}
	if !position.IsFinite() {
		r.log.Warn("ignoring non-finite effector target", zap.String("effector", key))
		return
	}
	r.desired[key] = position
	r.processed = false
}

// EffectorPosition returns the current solved position of an effector.
func (r *Rig) EffectorPosition(key string) (math.Vec3, bool) {
	j, ok := r.effectors[key]
	if !ok {
		return math.Vec3{}, false
	}
	return j.position, true
}

// HasEffectorsMetTarget reports whether the last solve brought every effector
// within the reach threshold of its target.
func (r *Rig) HasEffectorsMetTarget() bool { return r.met }

// Iterations returns how many FABRIK iterations the last solve used.
func (r *Rig) Iterations() int { return r.iterations }

// ProcessRig advances the rig by one frame. The first call only initializes.
// Later calls track the root and solve when a target changed since the last solve.
func (r *Rig) ProcessRig() {
	if !r.store.valid() {
		return
	}

	if r.state == StateUninitialized {
		r.state = StateInitializing
		r.initialize()
		r.state = StateReady
		return
	}

	r.root.position = r.store.rootPosition(r.root)
	r.rootOrigin = r.root.position

	if r.processed {
		return
	}

	r.state = StateSolving
	r.solve()
	r.sync()
	r.processed = true
	r.state = StateReady
}

func (r *Rig) initialize() {
	world := make(map[*joint]math.Mat4, len(r.joints))
	rotation := make(map[*joint]math.Quat, len(r.joints))
	for _, j := range r.joints {
		m, q, ok := r.store.read(j)
		if !ok {
			r.log.Warn("joint target missing at initialization", zap.Int("joint", j.id))
		}
		world[j] = m
		rotation[j] = q
		j.position = m.Translation()
	}

	if r.opts.LockIntermediaryJoints {
		r.flagLockedJoints(r.root, world)
	}
	r.formChains()
	r.formChainDependencies()

	for _, j := range r.joints {
		if len(j.children) == 0 && j.parent != nil {
			r.leafRotations[j] = rotation[j.parent].Conjugate().Mul(rotation[j]).Normalize()
		}
	}

	r.store.captureRoot(r.root)
	r.rootOrigin = r.root.position
	for key, j := range r.effectors {
		if _, ok := r.desired[key]; !ok {
			r.desired[key] = j.position
		}
	}

	r.log.Debug("rig initialized",
		zap.Int("joints", len(r.joints)),
		zap.Int("chains", len(r.chains)),
		zap.Int("effectors", len(r.effectors)))
}

// flagLockedJoints collapses every pass-through run below j into j, keeping
// each locked joint's transform relative to its predecessor in the run.
func (r *Rig) flagLockedJoints(j *joint, world map[*joint]math.Mat4) {
	for i, c := range j.children {
		var run []lockedJoint
		prev := world[j]
		for c.lockable() {
			run = append(run, lockedJoint{joint: c, local: prev.Inverse().Mul(world[c])})
			prev = world[c]
			next := c.children[0]
			c.parent, c.children = nil, nil
			c = next
		}
		if len(run) > 0 {
			c.parent = j
			j.children[i] = c
			j.lockedRuns = append(j.lockedRuns, run)
		}
		r.flagLockedJoints(c, world)
	}

	if j == r.root {
		kept := r.joints[:0]
		for _, jj := range r.joints {
			if jj == r.root || jj.parent != nil {
				kept = append(kept, jj)
			}
		}
		r.joints = kept
	}
}

// formChains partitions the solve graph depth-first from the root.
func (r *Rig) formChains() {
	r.chains = nil
	for _, c := range r.root.children {
		r.buildChain(r.root, c)
	}
}

func (r *Rig) buildChain(start, next *joint) {
	c := &chain{}
	c.add(start)
	cur := next
	for {
		c.add(cur)
		if len(cur.children) != 1 || cur.isEffector() {
			break
		}
		cur = cur.children[0]
	}
	r.chains = append(r.chains, c)
	for _, child := range cur.children {
		r.buildChain(cur, child)
	}
}

// formChainDependencies links chains end-to-start and flags centroid and
// intermediary joints.
func (r *Rig) formChainDependencies() {
	r.rootChains = nil
	for _, a := range r.chains {
		a.children = nil
		for _, b := range r.chains {
			if a != b && b.first() == a.last() {
				a.children = append(a.children, b)
				b.parent = a
			}
		}
		a.last().centroid = len(a.children) > 1
	}
	for _, c := range r.chains {
		if c.parent == nil {
			r.rootChains = append(r.rootChains, c)
		}
	}

	for key, j := range r.effectors {
		j.intermediary = len(j.children) > 0
		for _, c := range r.chains {
			if c.last() == j {
				r.effectorChains[key] = c
				break
			}
		}
	}
}
