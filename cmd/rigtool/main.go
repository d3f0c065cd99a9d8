// rigtool is a CLI utility for inspecting and exercising skeletal rigs.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rig/internal/config"
	"github.com/Faultbox/midgard-rig/internal/engine/animation"
	"github.com/Faultbox/midgard-rig/internal/engine/frame"
	"github.com/Faultbox/midgard-rig/internal/engine/ik"
	"github.com/Faultbox/midgard-rig/internal/engine/scene"
	"github.com/Faultbox/midgard-rig/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rig/internal/loader"
	"github.com/Faultbox/midgard-rig/internal/logger"
	"github.com/Faultbox/midgard-rig/pkg/math"
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.Logging.LogFile != "" {
		err = logger.InitWithFileConfig(cfg.Logging.Level, cfg.Logging.FileConfig(), true)
	} else {
		err = logger.Init(cfg.Logging.Level, "")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	args = args[1:]

	switch command {
	case "info":
		cmdInfo(args)
	case "play":
		cmdPlay(cfg, args)
	case "blend":
		cmdBlend(cfg, args)
	case "ik":
		cmdIK(cfg, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`rigtool - skeletal animation and IK rig utility

Usage:
  rigtool [global options] <command> [options]

Global options:
  -config <file>    Config file (default ./rig.yaml, then the user config dir)
  -debug            Debug logging
  -iterations N     FABRIK iteration cap
  -threshold M      Effector reach threshold in meters
  -no-lock          Keep pass-through joints in the solve
  -fps N            Playback frame rate

Commands:
  info <file.glb>                          Show nodes, skins and animations
  play <file.glb> [-anim name] [-every N]  Play an animation and print bone positions
  blend <file.glb> <anim> <anim> [-w W]    Blend two animations and print bone positions
  ik [-segments N] [-length L] [-target x,y,z]
                                           Solve a vertical demo chain toward a target

Examples:
  rigtool info character.glb
  rigtool -fps 30 play character.glb -anim walk
  rigtool blend character.glb walk wave -w 0.25
  rigtool -no-lock ik -segments 5 -target 0.5,0.5,0`)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: rigtool info <file.glb>")
		os.Exit(1)
	}

	m, err := loader.Open(args[0])
	if err != nil {
		fail(err)
	}

	fmt.Printf("Model:      %s\n", m.Name)
	fmt.Printf("Nodes:      %d\n", len(m.Nodes))
	fmt.Printf("Skins:      %d\n", len(m.Skinners))
	fmt.Printf("Animations: %d\n", len(m.Animations))

	for i, sk := range m.Skinners {
		skel := sk.Skeleton()
		fmt.Printf("\nSkin %d (%d bones, %d vertices):\n", i, skel.NumBones(), len(sk.Streams().BoneIndices))
		for _, b := range skel.TopologicalOrder() {
			bone := skel.Bone(b)
			pos := skel.CurrentBoneWorldTransform(b).Translation()
			fmt.Printf("  %s%-20s %-12s (%.3f, %.3f, %.3f)\n",
				strings.Repeat("  ", boneDepth(skel, b)), bone.Name(), bone.TransformType(), pos.X, pos.Y, pos.Z)
		}
	}

	if len(m.Animations) > 0 {
		fmt.Println("\nAnimations:")
		for _, a := range m.Animations {
			frames := 0
			for _, s := range a.Skeletal {
				frames += len(s.Frames())
			}
			fmt.Printf("  %-20s %.2fs  skeletal=%d node=%d frames=%d\n",
				a.Name, a.Duration, len(a.Skeletal), len(a.Nodes), frames)
		}
	}
}

func cmdPlay(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	name := fs.String("anim", "", "Animation name (default: first)")
	every := fs.Int("every", 0, "Print every N frames (default: once per second)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: rigtool play <file.glb> [-anim name] [-every N]")
		os.Exit(1)
	}

	m, err := loader.Open(fs.Arg(0))
	if err != nil {
		fail(err)
	}
	set := pickAnimation(m, *name)
	for _, s := range set.Skeletal {
		s.SetSpeed(cfg.Animation.DefaultSpeed)
	}
	for _, n := range set.Nodes {
		n.SetSpeed(cfg.Animation.DefaultSpeed)
	}

	loop := newLoop(m)
	done := false
	set.Executable().Execute(loop.Scheduler(), func() { done = true })
	runAndPrint(loop, m, cfg.Animation.FrameRate, *every, set.Duration, &done)
}

func cmdBlend(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("blend", flag.ExitOnError)
	weight := fs.Float64("w", -1, "Weight of the second animation (default: config layer weight)")
	every := fs.Int("every", 0, "Print every N frames (default: once per second)")
	fs.Parse(args)

	if fs.NArg() < 3 {
		fmt.Fprintln(os.Stderr, "Usage: rigtool blend <file.glb> <anim> <anim> [-w W]")
		os.Exit(1)
	}

	m, err := loader.Open(fs.Arg(0))
	if err != nil {
		fail(err)
	}
	base := pickAnimation(m, fs.Arg(1))
	over := pickAnimation(m, fs.Arg(2))

	top := animation.NewLayer(over.Name, over.Executable())
	top.DefaultWeight = cfg.Animation.DefaultLayerWeight
	if *weight >= 0 {
		top.DefaultWeight = float32(*weight)
	}
	bottom := animation.NewLayer(base.Name, base.Executable())
	bottom.DefaultWeight = cfg.Animation.DefaultLayerWeight

	blended, err := animation.NewLayered([]animation.Layer{bottom, top})
	if err != nil {
		fail(err)
	}
	logger.Info("blending",
		zap.String("base", base.Name), zap.String("over", over.Name),
		zap.Float32("weight", top.DefaultWeight))

	loop := newLoop(m)
	done := false
	blended.Execute(loop.Scheduler(), func() { done = true })
	runAndPrint(loop, m, cfg.Animation.FrameRate, *every, blended.Duration(), &done)
}

func cmdIK(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("ik", flag.ExitOnError)
	segments := fs.Int("segments", 5, "Number of chain segments")
	length := fs.Float64("length", 0.2, "Segment length in meters")
	target := fs.String("target", "0,1,0", "Effector target x,y,z")
	fs.Parse(args)

	goal, err := parseVec3(*target)
	if err != nil {
		fail(err)
	}
	if *segments < 1 || *length <= 0 {
		fail(fmt.Errorf("need at least one segment of positive length"))
	}

	root := scene.NewNode("root")
	nodes := []*scene.Node{root}
	for i := 1; i <= *segments; i++ {
		n := scene.NewNode(fmt.Sprintf("joint%d", i))
		n.SetPosition(math.Vec3{Y: float32(*length)})
		nodes[i-1].AddChild(n)
		nodes = append(nodes, n)
	}
	root.UpdateTransforms()

	rig, err := ik.NewNodeRig(root, map[string]*scene.Node{"tip": nodes[len(nodes)-1]}, cfg.IK.Options())
	if err != nil {
		fail(err)
	}

	loop := frame.New(nil)
	loop.AddRoot(root)
	loop.AddRig(rig)
	loop.Step(0)
	rig.SetPositionForEffector("tip", goal)
	loop.Step(1 / float32(cfg.Animation.FrameRate))

	fmt.Printf("Target:     (%.3f, %.3f, %.3f)\n", goal.X, goal.Y, goal.Z)
	fmt.Printf("Converged:  %v after %d iterations\n", rig.HasEffectorsMetTarget(), rig.Iterations())
	fmt.Println("Joints:")
	for _, n := range nodes {
		p := n.WorldPosition()
		fmt.Printf("  %-10s (%.4f, %.4f, %.4f)\n", n.Name, p.X, p.Y, p.Z)
	}
}

// boneDepth counts ancestors; skeletons are acyclic by construction.
func boneDepth(skel *skeleton.Skeleton, b int) int {
	depth := 0
	for bone := skel.Bone(b); !bone.IsRoot(); bone = skel.Bone(bone.ParentIndex()) {
		depth++
	}
	return depth
}

func pickAnimation(m *loader.Model, name string) *loader.AnimationSet {
	if len(m.Animations) == 0 {
		fail(fmt.Errorf("%s has no animations", m.Name))
	}
	if name == "" {
		return m.Animations[0]
	}
	set := m.Animation(name)
	if set == nil {
		fail(fmt.Errorf("animation %q not found", name))
	}
	return set
}

func newLoop(m *loader.Model) *frame.Loop {
	loop := frame.New(nil)
	loop.AddRoot(m.Root)
	for _, sk := range m.Skinners {
		loop.AddSkinner(sk)
	}
	return loop
}

func runAndPrint(loop *frame.Loop, m *loader.Model, fps, every int, duration float32, done *bool) {
	if every <= 0 {
		every = fps
	}
	dt := 1 / float32(fps)
	for f := 0; !*done; f++ {
		loop.Step(dt)
		if f%every == 0 || *done {
			printPose(loop.Elapsed(), m)
		}
		// Guard against animations that never finish, e.g. zero speed.
		if duration > 0 && loop.Elapsed() > duration*4+1 {
			logger.Warn("animation did not finish", zap.Float32("elapsed", loop.Elapsed()))
			break
		}
	}
}

func printPose(at float32, m *loader.Model) {
	fmt.Printf("t=%.3fs\n", at)
	for i, sk := range m.Skinners {
		skel := sk.Skeleton()
		for b := 0; b < skel.NumBones(); b++ {
			p := skel.CurrentBoneWorldTransform(b).Translation()
			fmt.Printf("  skin%d %-20s (%.3f, %.3f, %.3f)\n", i, skel.Bone(b).Name(), p.X, p.Y, p.Z)
		}
	}
}

func parseVec3(s string) (math.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return math.Vec3{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var v [3]float32
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return math.Vec3{}, fmt.Errorf("bad coordinate %q: %w", p, err)
		}
		v[i] = float32(f)
	}
	return math.Vec3FromArray(v), nil
}
