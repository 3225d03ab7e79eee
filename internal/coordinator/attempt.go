package coordinator

import (
	"errors"
	"fmt"

	"github.com/vburojevic/watchattach/internal/domain"
	"github.com/vburojevic/watchattach/internal/gateway"
	"github.com/vburojevic/watchattach/internal/probe"
	"github.com/vburojevic/watchattach/internal/task"
)

type message interface{ isMessage() }

type sessionStarted struct{ session *domain.Session }

type sessionTerminated struct{ session *domain.Session }

type taskResult struct {
	parent *domain.Session
	name   string
	handle task.Handle
	err    error
}

type retryTick struct {
	gen    uint64
	parent *domain.Session
}

type probeResult struct {
	gen     uint64
	parent  *domain.Session
	running bool
	err     error
}

type startResult struct {
	gen    uint64
	parent *domain.Session
	err    error
}

func (sessionStarted) isMessage()    {}
func (sessionTerminated) isMessage() {}
func (taskResult) isMessage()        {}
func (retryTick) isMessage()         {}
func (probeResult) isMessage()       {}
func (startResult) isMessage()       {}

// probe checks for the watched process off the loop
func (c *Coordinator) probe(gen uint64, parent *domain.Session) {
	ctx, program := c.attempt, c.config.Program
	go func() {
		running, err := c.deps.Prober.IsRunning(ctx, program)
		c.post(probeResult{gen: gen, parent: parent, running: running, err: err})
	}()
}

func (c *Coordinator) onProbeResult(m probeResult) {
	if !c.wanted(m.gen, m.parent) {
		return
	}
	switch {
	case m.err != nil:
		c.fail(m.gen, m.parent, fmt.Errorf("probe %s: %w", c.config.Program, m.err))
		return
	case !m.running:
		c.fail(m.gen, m.parent, fmt.Errorf("%s: %w", c.config.Program, probe.ErrProcessNotFound))
		return
	}

	ctx, cfg := c.attempt, c.child
	go func() {
		err := c.deps.Gateway.Start(ctx, m.parent, cfg, gateway.DefaultLinkOptions())
		c.post(startResult{gen: m.gen, parent: m.parent, err: err})
	}()
}

func (c *Coordinator) onStartResult(m startResult) {
	if !c.wanted(m.gen, m.parent) {
		return
	}
	if m.err != nil {
		c.log("Failed to start debug session (attempt %d/%d): %v", c.failures+1, c.maxFailures, m.err)
		c.fail(m.gen, m.parent, m.err)
		return
	}
	attempt := c.failures + 1
	c.failures = 0
	c.log("Attached to '%s'", c.config.Program)
	c.setState(Attached, attempt, "debug session started")
	c.setState(Armed, 0, "attached")
}

// fail records one failed attempt and either schedules the next one or
// gives the sequence up
func (c *Coordinator) fail(gen uint64, parent *domain.Session, err error) {
	c.failures++
	if c.failures >= c.maxFailures {
		c.cancelAttempt()
		c.log("Giving up on '%s' after %d attempts: %v", c.config.Program, c.failures, ErrRetryBudgetExhausted)
		c.setState(GivenUp, c.failures, err.Error())
		return
	}
	c.timer = c.clock.AfterFunc(c.interval, func() {
		c.post(retryTick{gen: gen, parent: parent})
	})
}

func userMessage(err error) string {
	if errors.Is(err, domain.ErrMissingProgram) {
		return "Cannot find a program to debug"
	}
	return err.Error()
}
