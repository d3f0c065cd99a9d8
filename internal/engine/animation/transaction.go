// Package animation drives bone and node transforms over time.
//
// Animations are scheduled as transactions on a Scheduler that the frame
// loop advances once per frame. A transaction maps elapsed seconds onto a
// normalized [0,1] timeline with linear timing and hands that progress to
// each of its tracks.
package animation

// State is the lifecycle state of a transaction.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateFinished
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Track receives normalized progress in [0,1].
type Track interface {
	Apply(progress float32)
}

// Transaction is a time-bounded group of tracks that advance together.
type Transaction struct {
	duration float32
	elapsed  float32
	speed    float32
	state    State
	tracks   []Track
	onFinish func()
}

// NewTransaction creates an idle transaction lasting duration seconds.
func NewTransaction(duration float32, tracks ...Track) *Transaction {
	return &Transaction{
		duration: duration,
		speed:    1,
		tracks:   tracks,
	}
}

// State returns the current lifecycle state.
func (tx *Transaction) State() State { return tx.state }

// Duration returns the total length in seconds.
func (tx *Transaction) Duration() float32 { return tx.duration }

// Speed returns the playback rate.
func (tx *Transaction) Speed() float32 { return tx.speed }

// SetSpeed rescales the playback rate, taking effect on the next advance.
func (tx *Transaction) SetSpeed(speed float32) {
	if speed < 0 {
		speed = 0
	}
	tx.speed = speed
}

// SetTimeOffset positions the clock before the transaction starts. A
// negative offset delays the start; a positive one skips into the timeline.
func (tx *Transaction) SetTimeOffset(offset float32) {
	if tx.state == StateIdle {
		tx.elapsed = offset
	}
}

// OnFinish registers the completion callback. It runs exactly once, on
// natural completion or on Terminate.
func (tx *Transaction) OnFinish(fn func()) { tx.onFinish = fn }

// Progress returns normalized progress in [0,1].
func (tx *Transaction) Progress() float32 {
	if tx.duration <= 0 {
		if tx.elapsed >= 0 && tx.state != StateIdle {
			return 1
		}
		return 0
	}
	p := tx.elapsed / tx.duration
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Pause freezes a running transaction.
func (tx *Transaction) Pause() {
	if tx.state == StateRunning {
		tx.state = StatePaused
	}
}

// Resume continues a paused transaction.
func (tx *Transaction) Resume() {
	if tx.state == StatePaused {
		tx.state = StateRunning
	}
}

// Terminate ends the transaction immediately. With jumpToEnd every track is
// snapped to its final value first; otherwise values stay where they are.
func (tx *Transaction) Terminate(jumpToEnd bool) {
	if tx.state == StateFinished {
		return
	}
	if jumpToEnd {
		tx.apply(1)
	}
	tx.finish()
}

func (tx *Transaction) start() {
	if tx.state != StateIdle {
		return
	}
	tx.state = StateRunning
	if tx.elapsed >= 0 && tx.duration > 0 {
		tx.apply(tx.Progress())
	}
}

// advance moves the clock by dt seconds of wall time.
func (tx *Transaction) advance(dt float32) {
	if tx.state != StateRunning {
		return
	}
	tx.elapsed += dt * tx.speed
	if tx.elapsed < 0 {
		return
	}
	p := tx.Progress()
	tx.apply(p)
	if p >= 1 {
		tx.finish()
	}
}

func (tx *Transaction) apply(p float32) {
	for _, tr := range tx.tracks {
		tr.Apply(p)
	}
}

func (tx *Transaction) finish() {
	tx.state = StateFinished
	if fn := tx.onFinish; fn != nil {
		tx.onFinish = nil
		fn()
	}
}

// Scheduler owns the running transactions and advances them from the frame loop.
// It is not safe for concurrent use.
type Scheduler struct {
	active []*Transaction
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Start begins a transaction and takes ownership of it until it finishes.
func (s *Scheduler) Start(tx *Transaction) {
	tx.start()
	if tx.state != StateFinished {
		s.active = append(s.active, tx)
	}
}

// Advance steps every active transaction by dt seconds and drops finished ones.
// Transactions started by finish callbacks begin advancing on the next call.
func (s *Scheduler) Advance(dt float32) {
	current := s.active
	s.active = nil
	for _, tx := range current {
		tx.advance(dt)
	}
	started := s.active
	s.active = nil
	for _, tx := range append(current, started...) {
		if tx.state != StateFinished {
			s.active = append(s.active, tx)
		}
	}
}

// Len returns the number of unfinished transactions.
func (s *Scheduler) Len() int {
	n := 0
	for _, tx := range s.active {
		if tx.state != StateFinished {
			n++
		}
	}
	return n
}
