package animation

// ChainMode selects how a chain runs its children.
type ChainMode int

const (
	ChainParallel ChainMode = iota
	ChainSerial
)

// Chain groups animations that run together or one after another.
type Chain struct {
	mode     ChainMode
	children []Executable

	sched      *Scheduler
	running    bool
	current    int
	terminated bool
	jumpToEnd  bool
	onFinish   func()
}

// NewChain creates a chain of children.
func NewChain(mode ChainMode, children ...Executable) *Chain {
	return &Chain{mode: mode, children: children}
}

// Kind returns KindChain.
func (c *Chain) Kind() Kind { return KindChain }

// Mode returns whether children run in parallel or serially.
func (c *Chain) Mode() ChainMode { return c.mode }

// Children returns the direct children.
func (c *Chain) Children() []Executable { return c.children }

// Duration is the longest child for a parallel chain, the sum for a serial one.
func (c *Chain) Duration() float32 {
	var d float32
	for _, child := range c.children {
		cd := child.Duration()
		if c.mode == ChainSerial {
			d += cd
		} else if cd > d {
			d = cd
		}
	}
	return d
}

// Execute starts the chain. onFinish runs once every child has finished.
func (c *Chain) Execute(s *Scheduler, onFinish func()) {
	c.sched = s
	c.running = true
	c.onFinish = onFinish
	c.terminated = false
	c.jumpToEnd = false

	if len(c.children) == 0 {
		c.done()
		return
	}

	if c.mode == ChainSerial {
		c.runSerial(0)
		return
	}

	remaining := len(c.children)
	for _, child := range c.children {
		child.Execute(s, func() {
			remaining--
			if remaining == 0 {
				c.done()
			}
		})
	}
}

func (c *Chain) runSerial(i int) {
	if c.terminated {
		// Children that never started are snapped too when jumping to the end.
		if c.jumpToEnd {
			for _, child := range c.children[i:] {
				child.Execute(c.sched, nil)
				child.Terminate(true)
			}
		}
		c.done()
		return
	}
	if i >= len(c.children) {
		c.done()
		return
	}
	c.current = i
	c.children[i].Execute(c.sched, func() { c.runSerial(i + 1) })
}

func (c *Chain) done() {
	c.running = false
	fn := c.onFinish
	c.onFinish = nil
	if fn != nil {
		fn()
	}
}

// Pause pauses the running children.
func (c *Chain) Pause() {
	if c.mode == ChainSerial {
		if c.current < len(c.children) {
			c.children[c.current].Pause()
		}
		return
	}
	for _, child := range c.children {
		child.Pause()
	}
}

// Resume resumes the running children.
func (c *Chain) Resume() {
	if c.mode == ChainSerial {
		if c.current < len(c.children) {
			c.children[c.current].Resume()
		}
		return
	}
	for _, child := range c.children {
		child.Resume()
	}
}

// Terminate ends every running child.
func (c *Chain) Terminate(jumpToEnd bool) {
	if !c.running {
		return
	}
	if c.mode == ChainSerial {
		c.terminated = true
		c.jumpToEnd = jumpToEnd
		c.children[c.current].Terminate(jumpToEnd)
		return
	}
	for _, child := range c.children {
		child.Terminate(jumpToEnd)
	}
}
