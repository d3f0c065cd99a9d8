// Package loader imports glTF documents into scene nodes, skeletons, skinners
// and animations.
//
// All state built while reading one document lives in a Session, so separate
// loads never share caches and may run concurrently.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rig/internal/engine/animation"
	"github.com/Faultbox/midgard-rig/internal/engine/scene"
	"github.com/Faultbox/midgard-rig/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rig/internal/logger"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

// ErrMalformed is wrapped by every error caused by inconsistent document data.
var ErrMalformed = errors.New("malformed glTF document")

// Model is the result of one load.
type Model struct {
	Name string
	// Root parents every top-level node of the document's default scene.
	Root *scene.Node
	// Nodes is index-aligned with the document's nodes.
	Nodes []*scene.Node
	// Skinners is index-aligned with the document's skins.
	Skinners   []*skeleton.Skinner
	Animations []*AnimationSet
}

// AnimationSet is one glTF animation split into the engine's kinds.
type AnimationSet struct {
	Name     string
	Duration float32
	// Skeletal holds one animation per skin whose joints are animated.
	Skeletal []*animation.SkeletalAnimation
	// Nodes animates channels on nodes that are not skin joints.
	Nodes []*animation.KeyframeAnimation
}

// Executable returns all parts of the set as one parallel chain.
func (a *AnimationSet) Executable() *animation.Chain {
	children := make([]animation.Executable, 0, len(a.Skeletal)+len(a.Nodes))
	for _, s := range a.Skeletal {
		children = append(children, s)
	}
	for _, n := range a.Nodes {
		children = append(children, n)
	}
	return animation.NewChain(animation.ChainParallel, children...)
}

// Animation returns the set with the given name.
func (m *Model) Animation(name string) *AnimationSet {
	for _, a := range m.Animations {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Session holds the per-load state of one document.
type Session struct {
	doc *gltf.Document
	log *zap.Logger

	accessors map[int]any
	parents   []int
	nodes     []*scene.Node
	// jointOf maps a node index to its (skin, bone) pairs.
	jointOf map[int][]jointRef
}

type jointRef struct {
	skin int
	bone int
}

// NewSession prepares a load of doc.
func NewSession(doc *gltf.Document) *Session {
	return &Session{
		doc:       doc,
		log:       logger.Named("loader"),
		accessors: make(map[int]any),
		jointOf:   make(map[int][]jointRef),
	}
}

// Open reads a .gltf or .glb file and loads it.
func Open(path string) (*Model, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return NewSession(doc).Load(filepath.Base(path))
}

// Load builds the model. A Session is meant to be loaded once.
func (s *Session) Load(name string) (*Model, error) {
	if s.doc == nil {
		return nil, fmt.Errorf("%w: no document", ErrMalformed)
	}

	root, err := s.buildNodes(name)
	if err != nil {
		return nil, err
	}

	m := &Model{Name: name, Root: root, Nodes: s.nodes}

	for i := range s.doc.Skins {
		sk, err := s.buildSkin(i, root)
		if err != nil {
			return nil, fmt.Errorf("skin %d: %w", i, err)
		}
		m.Skinners = append(m.Skinners, sk)
	}

	for i, a := range s.doc.Animations {
		set, err := s.buildAnimation(a, m.Skinners)
		if err != nil {
			return nil, fmt.Errorf("animation %d (%s): %w", i, a.Name, err)
		}
		m.Animations = append(m.Animations, set)
	}

	s.log.Info("model loaded",
		zap.String("name", name),
		zap.Int("nodes", len(m.Nodes)),
		zap.Int("skins", len(m.Skinners)),
		zap.Int("animations", len(m.Animations)))
	return m, nil
}

func (s *Session) accessor(index int) (*gltf.Accessor, error) {
	if index < 0 || index >= len(s.doc.Accessors) {
		return nil, fmt.Errorf("%w: accessor %d out of range", ErrMalformed, index)
	}
	return s.doc.Accessors[index], nil
}

// read returns the decoded contents of an accessor, cached for the session.
func (s *Session) read(index int) (any, error) {
	if data, ok := s.accessors[index]; ok {
		return data, nil
	}
	acr, err := s.accessor(index)
	if err != nil {
		return nil, err
	}
	data, err := modeler.ReadAccessor(s.doc, acr, nil)
	if err != nil {
		return nil, fmt.Errorf("reading accessor %d: %w", index, err)
	}
	s.accessors[index] = data
	return data, nil
}

func (s *Session) readFloats(index int) ([]float32, error) {
	data, err := s.read(index)
	if err != nil {
		return nil, err
	}
	v, ok := data.([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: accessor %d holds %T, want float scalars", ErrMalformed, index, data)
	}
	return v, nil
}

func (s *Session) readVec3s(index int) ([][3]float32, error) {
	data, err := s.read(index)
	if err != nil {
		return nil, err
	}
	v, ok := data.([][3]float32)
	if !ok {
		return nil, fmt.Errorf("%w: accessor %d holds %T, want float vec3", ErrMalformed, index, data)
	}
	return v, nil
}

func (s *Session) readVec4s(index int) ([][4]float32, error) {
	data, err := s.read(index)
	if err != nil {
		return nil, err
	}
	v, ok := data.([][4]float32)
	if !ok {
		return nil, fmt.Errorf("%w: accessor %d holds %T, want float vec4", ErrMalformed, index, data)
	}
	return v, nil
}

func (s *Session) readMat4s(index int) ([]math.Mat4, error) {
	data, err := s.read(index)
	if err != nil {
		return nil, err
	}
	v, ok := data.([][4][4]float32)
	if !ok {
		return nil, fmt.Errorf("%w: accessor %d holds %T, want float mat4", ErrMalformed, index, data)
	}
	out := make([]math.Mat4, len(v))
	for i, cols := range v {
		for c := 0; c < 4; c++ {
			for r := 0; r < 4; r++ {
				out[i][c*4+r] = cols[c][r]
			}
		}
	}
	return out, nil
}
