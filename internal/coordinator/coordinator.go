// Package coordinator implements the attach coordinator: the state machine
// that follows a watch-attach parent session, polls for the watched process
// and attaches a child debug session to it every time it (re)starts.
//
// A Coordinator owns one goroutine. Host lifecycle events and the results
// of blocking work (probing, starting a debug session, running the
// companion task) are delivered to it as messages, so its state is never
// shared. Results are tagged with the attach sequence that requested them
// and dropped once that sequence has been superseded.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vburojevic/watchattach/internal/domain"
	"github.com/vburojevic/watchattach/internal/eventbus"
	"github.com/vburojevic/watchattach/internal/gateway"
	"github.com/vburojevic/watchattach/internal/logging"
	"github.com/vburojevic/watchattach/internal/task"
)

// ErrRetryBudgetExhausted is logged when an attach sequence gives up
var ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

const (
	// DefaultPollingInterval is the wait between attach attempts.
	DefaultPollingInterval = 100 * time.Millisecond
	// DefaultMaxFailures is the number of consecutive failed attempts
	// after which a sequence gives up.
	DefaultMaxFailures = 5
	// DefaultTerminateTimeout bounds how long Dispose waits for companion
	// tasks to be terminated.
	DefaultTerminateTimeout = 10 * time.Second
)

// State is the coordinator's position in the attach lifecycle
type State int32

const (
	// Idle: no parent session.
	Idle State = iota
	// Armed: parent session held, nothing in flight.
	Armed
	// Attempting: an attach sequence is probing or retrying.
	Attempting
	// Attached: the last attempt succeeded. Transient, followed by Armed.
	Attached
	// GivenUp: the retry budget ran out. Re-armed by a child restart or a
	// new parent session.
	GivenUp
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Attempting:
		return "attempting"
	case Attached:
		return "attached"
	case GivenUp:
		return "given_up"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// StateChange describes one transition
type StateChange struct {
	From    State
	To      State
	Attempt int // 1-based attempt number while Attempting
	Reason  string
}

// StateListener observes transitions. It runs on the coordinator goroutine
// and must not block.
type StateListener func(StateChange)

// Prober reports whether a process with the given image name is running
type Prober interface {
	IsRunning(ctx context.Context, name string) (bool, error)
}

// Dependencies are the capabilities the coordinator drives
type Dependencies struct {
	Gateway  gateway.Gateway
	Notifier gateway.Notifier
	Prober   Prober
	// Tasks may be nil when no companion tasks are available.
	Tasks task.Runner
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithClock sets the clock driving the polling timer
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithPollingInterval sets the wait between attempts
func WithPollingInterval(d time.Duration) Option {
	return func(co *Coordinator) {
		if d > 0 {
			co.interval = d
		}
	}
}

// WithMaxFailures sets the retry ceiling
func WithMaxFailures(n int) Option {
	return func(co *Coordinator) {
		if n > 0 {
			co.maxFailures = n
		}
	}
}

// WithTerminateTimeout bounds the wait for task termination in Dispose
func WithTerminateTimeout(d time.Duration) Option {
	return func(co *Coordinator) {
		if d > 0 {
			co.terminateTimeout = d
		}
	}
}

// WithLogger sets the status log. Defaults to the process-wide logger.
func WithLogger(l *logging.Logger) Option {
	return func(co *Coordinator) { co.logger = l }
}

// WithStateListener registers a transition observer
func WithStateListener(fn StateListener) Option {
	return func(co *Coordinator) { co.listener = fn }
}

// Coordinator is the attach state machine for one host
type Coordinator struct {
	deps        Dependencies
	clock       clock.Clock
	interval    time.Duration
	maxFailures int
	logger      *logging.Logger
	listener    StateListener

	terminateTimeout time.Duration
	taskOps          sync.WaitGroup

	ctx     context.Context
	stop    context.CancelFunc
	inbox   chan message
	stopped chan struct{}
	subs    []eventbus.Subscription
	once    sync.Once

	current atomic.Int32

	// owned by the run goroutine
	state      State
	parent     *domain.Session
	config     domain.WatchAttachConfiguration
	child      domain.ChildDebugConfiguration
	taskHandle task.Handle
	failures   int
	gen        uint64
	attempt    context.Context
	cancel     context.CancelFunc
	timer      *clock.Timer
}

// New creates a Coordinator, subscribes it to bus and starts its loop.
// Call Dispose to release it.
func New(bus *eventbus.Bus[domain.SessionEvent], deps Dependencies, opts ...Option) *Coordinator {
	c := &Coordinator{
		deps:             deps,
		clock:            clock.New(),
		interval:         DefaultPollingInterval,
		maxFailures:      DefaultMaxFailures,
		terminateTimeout: DefaultTerminateTimeout,
		inbox:            make(chan message, 64),
		stopped:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.deps.Notifier == nil {
		c.deps.Notifier = gateway.NotifierFunc(func(string) {})
	}
	c.ctx, c.stop = context.WithCancel(context.Background())

	c.subs = append(c.subs, bus.Subscribe(func(ev domain.SessionEvent) {
		if ev.Session == nil {
			return
		}
		switch ev.Kind {
		case domain.SessionStarted:
			c.post(sessionStarted{session: ev.Session})
		case domain.SessionTerminated:
			c.post(sessionTerminated{session: ev.Session})
		}
	}))

	go c.run()
	return c
}

// State returns the current state
func (c *Coordinator) State() State {
	return State(c.current.Load())
}

// Dispose unsubscribes from the bus, runs parent cleanup and stops the
// loop. It returns once the companion task has been terminated, or after
// the terminate timeout. A debug session start already in flight is not
// waited for.
func (c *Coordinator) Dispose() {
	c.once.Do(func() {
		for _, s := range c.subs {
			s.Unsubscribe()
		}
		c.stop()
		<-c.stopped

		done := make(chan struct{})
		go func() {
			c.taskOps.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(c.terminateTimeout):
			c.log("Timed out waiting for task termination")
		}

		// a task that started while the loop was stopping
		for {
			select {
			case m := <-c.inbox:
				if r, ok := m.(taskResult); ok && r.handle != nil {
					c.terminate(r.handle)
				}
			default:
				return
			}
		}
	})
}

// post delivers m to the loop. It reports false once the coordinator is
// disposed.
func (c *Coordinator) post(m message) bool {
	select {
	case c.inbox <- m:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Coordinator) log(format string, args ...any) {
	if c.logger != nil {
		c.logger.Log(format, args...)
		return
	}
	logging.Log(format, args...)
}

func (c *Coordinator) run() {
	defer close(c.stopped)
	for {
		select {
		case m := <-c.inbox:
			c.handle(m)
		case <-c.ctx.Done():
			c.releaseParent("coordinator disposed")
			return
		}
	}
}

func (c *Coordinator) handle(m message) {
	switch m := m.(type) {
	case sessionStarted:
		c.onSessionStarted(m.session)
	case sessionTerminated:
		c.onSessionTerminated(m.session)
	case taskResult:
		c.onTaskResult(m)
	case retryTick:
		if c.wanted(m.gen, m.parent) {
			c.setState(Attempting, c.failures+1, "retry")
			c.probe(m.gen, m.parent)
		}
	case probeResult:
		c.onProbeResult(m)
	case startResult:
		c.onStartResult(m)
	}
}

func (c *Coordinator) setState(to State, attempt int, reason string) {
	from := c.state
	c.state = to
	c.current.Store(int32(to))
	if c.listener != nil {
		c.listener(StateChange{From: from, To: to, Attempt: attempt, Reason: reason})
	}
}

func (c *Coordinator) onSessionStarted(s *domain.Session) {
	if !s.IsWatchAttach() {
		return
	}
	cfg, err := domain.DecodeConfiguration(s.Configuration)
	if err != nil {
		c.log("Invalid configuration for '%s': %v", s.Name, err)
		c.deps.Notifier.ShowError(userMessage(err))
		c.stopSession(s)
		return
	}
	if c.parent != nil && c.parent.ID != s.ID {
		c.releaseParent("replaced by " + s.Name)
	}

	c.parent = s
	c.config = cfg
	c.child = domain.BuildChildConfiguration(cfg)
	c.failures = 0
	c.log("Watching for '%s' (session '%s')", cfg.Program, s.Name)
	c.setState(Armed, 0, "session started")

	if cfg.Task != "" {
		c.startTask(s, cfg.Task)
		return
	}
	c.beginSequence(s, "session started")
}

func (c *Coordinator) onSessionTerminated(s *domain.Session) {
	if c.parent == nil {
		return
	}
	if s.IsChildAttach() && (s.ParentID == "" || s.ParentID == c.parent.ID) {
		c.log("Child session ended, re-attaching to '%s'", c.config.Program)
		c.beginSequence(c.parent, "child terminated")
		return
	}
	if s.IsWatchAttach() && s.ID == c.parent.ID {
		c.log("Session '%s' ended", s.Name)
		c.releaseParent("parent terminated")
	}
}

// releaseParent forgets the held parent and terminates the companion task.
// Safe to call with no parent held.
func (c *Coordinator) releaseParent(reason string) {
	c.cancelAttempt()
	c.gen++
	if h := c.taskHandle; h != nil {
		c.taskHandle = nil
		c.terminateTask(h)
	}
	if c.parent == nil {
		return
	}
	c.parent = nil
	c.config = domain.WatchAttachConfiguration{}
	c.child = nil
	c.failures = 0
	c.setState(Idle, 0, reason)
}

// terminateTask stops h off the loop; Dispose waits for it
func (c *Coordinator) terminateTask(h task.Handle) {
	c.taskOps.Add(1)
	go func() {
		defer c.taskOps.Done()
		c.terminate(h)
	}()
}

func (c *Coordinator) terminate(h task.Handle) {
	var err error
	if c.deps.Tasks != nil {
		err = c.deps.Tasks.Terminate(h)
	} else {
		err = h.Terminate()
	}
	if err != nil {
		c.log("Failed to terminate task '%s': %v", h.Task().Label, err)
		return
	}
	c.log("Terminated task '%s'", h.Task().Label)
}

func (c *Coordinator) stopSession(s *domain.Session) {
	go func() {
		if err := c.deps.Gateway.Stop(c.ctx, s); err != nil {
			c.log("Failed to stop session '%s': %v", s.Name, err)
		}
	}()
}

func (c *Coordinator) startTask(parent *domain.Session, name string) {
	ctx := c.ctx
	c.taskOps.Add(1)
	go func() {
		defer c.taskOps.Done()
		if c.deps.Tasks == nil {
			c.post(taskResult{parent: parent, name: name, err: fmt.Errorf("%q: %w", name, task.ErrTaskNotFound)})
			return
		}
		t, err := c.deps.Tasks.FindByName(ctx, name)
		if err != nil {
			c.post(taskResult{parent: parent, name: name, err: err})
			return
		}
		h, err := c.deps.Tasks.Execute(ctx, t)
		if !c.post(taskResult{parent: parent, name: name, handle: h, err: err}) && h != nil {
			c.terminate(h)
		}
	}()
}

func (c *Coordinator) onTaskResult(m taskResult) {
	if c.parent == nil || c.parent.ID != m.parent.ID {
		if m.handle != nil {
			c.terminateTask(m.handle)
		}
		return
	}
	if m.err != nil {
		msg := fmt.Sprintf("Could not find task '%s'", m.name)
		if !errors.Is(m.err, task.ErrTaskNotFound) {
			msg = fmt.Sprintf("Could not start task '%s': %v", m.name, m.err)
		}
		c.log("%s", msg)
		c.deps.Notifier.ShowError(msg)
		c.stopSession(m.parent)
		return
	}
	c.taskHandle = m.handle
	c.log("Started task '%s'", m.name)
	c.beginSequence(m.parent, "task started")
}

// beginSequence supersedes any pending attempt and starts a fresh sequence
func (c *Coordinator) beginSequence(parent *domain.Session, reason string) {
	c.cancelAttempt()
	c.gen++
	c.failures = 0
	c.attempt, c.cancel = context.WithCancel(c.ctx)
	c.setState(Attempting, 1, reason)
	c.probe(c.gen, parent)
}

func (c *Coordinator) cancelAttempt() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.attempt = nil
	}
}

// wanted reports whether a result for (gen, parent) still belongs to the
// live sequence
func (c *Coordinator) wanted(gen uint64, parent *domain.Session) bool {
	return gen == c.gen && c.parent != nil && parent != nil && parent.ID == c.parent.ID
}
