package animation

// Kind identifies the concrete type of an Executable.
type Kind int

const (
	KindSkeletal Kind = iota
	KindKeyframe
	KindChain
	KindLayeredSkeletal
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSkeletal:
		return "skeletal"
	case KindKeyframe:
		return "keyframe"
	case KindChain:
		return "chain"
	case KindLayeredSkeletal:
		return "layered-skeletal"
	default:
		return "unknown"
	}
}

// Executable is anything that can be scheduled and controlled as one animation.
type Executable interface {
	Kind() Kind
	// Duration is the length in seconds the normalized timeline maps to.
	Duration() float32
	// Execute schedules the animation. onFinish, if non-nil, runs exactly
	// once when it completes or is terminated.
	Execute(s *Scheduler, onFinish func())
	Pause()
	Resume()
	Terminate(jumpToEnd bool)
}

// playback holds the controls shared by leaf animations.
type playback struct {
	duration   float32
	speed      float32
	timeOffset float32
	tx         *Transaction
}

func newPlayback(duration float32) playback {
	return playback{duration: duration, speed: 1}
}

// Duration returns the length in seconds.
func (p *playback) Duration() float32 { return p.duration }

// SetDuration sets the length in seconds. Read when Execute is called.
func (p *playback) SetDuration(d float32) { p.duration = d }

// Speed returns the playback rate.
func (p *playback) Speed() float32 { return p.speed }

// SetSpeed changes the playback rate, live if the animation is running.
func (p *playback) SetSpeed(speed float32) {
	p.speed = speed
	if p.tx != nil {
		p.tx.SetSpeed(speed)
	}
}

// TimeOffset returns the start offset in seconds.
func (p *playback) TimeOffset() float32 { return p.timeOffset }

// SetTimeOffset sets the start offset. Negative values delay the start.
// Read when Execute is called.
func (p *playback) SetTimeOffset(offset float32) { p.timeOffset = offset }

// Running reports whether a transaction is in flight.
func (p *playback) Running() bool { return p.tx != nil }

// Pause pauses the running transaction.
func (p *playback) Pause() {
	if p.tx != nil {
		p.tx.Pause()
	}
}

// Resume resumes the running transaction.
func (p *playback) Resume() {
	if p.tx != nil {
		p.tx.Resume()
	}
}

// Terminate ends the running transaction.
func (p *playback) Terminate(jumpToEnd bool) {
	if p.tx != nil {
		p.tx.Terminate(jumpToEnd)
	}
}

func (p *playback) run(s *Scheduler, tracks []Track, onFinish func()) {
	if p.tx != nil {
		p.tx.Terminate(false)
	}
	tx := NewTransaction(p.duration, tracks...)
	tx.SetSpeed(p.speed)
	tx.SetTimeOffset(p.timeOffset)
	tx.OnFinish(func() {
		if p.tx == tx {
			p.tx = nil
		}
		if onFinish != nil {
			onFinish()
		}
	})
	p.tx = tx
	s.Start(tx)
}
