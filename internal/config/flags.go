package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagLogFile    = flag.String("log", "", "Write logs to this file")
	flagIterations = flag.Int("iterations", 0, "Maximum FABRIK iterations per solve")
	flagThreshold  = flag.Float64("threshold", 0, "Effector reach threshold in meters")
	flagNoLock     = flag.Bool("no-lock", false, "Keep pass-through joints in the IK solve")
	flagFPS        = flag.Int("fps", 0, "Playback frame rate")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the positional arguments left after flag parsing.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagIterations > 0 {
		cfg.IK.MaxIterations = *flagIterations
	}
	if *flagThreshold > 0 {
		cfg.IK.ReachThreshold = float32(*flagThreshold)
	}
	if *flagNoLock {
		cfg.IK.LockIntermediaryJoints = false
	}
	if *flagFPS > 0 {
		cfg.Animation.FrameRate = *flagFPS
	}
}
