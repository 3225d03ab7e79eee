package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vburojevic/watchattach/internal/domain"
	"github.com/vburojevic/watchattach/internal/eventbus"
	"github.com/vburojevic/watchattach/internal/logging"
)

// PIDFinder resolves a process image name to a PID
type PIDFinder interface {
	FindPID(ctx context.Context, name string) (int, error)
}

// HostConfig configures a Host
type HostConfig struct {
	// Adapters maps debugger types to adapter argv templates.
	Adapters map[string][]string
	// Stdout and Stderr form the parent console.
	Stdout io.Writer
	Stderr io.Writer
	// StartupGrace is how long Start watches a new adapter for an early
	// exit. An adapter that dies within it counts as a failed start.
	StartupGrace time.Duration
	// StopGrace bounds how long Stop waits for an adapter to exit.
	StopGrace time.Duration
	// Logger receives status lines. Nil uses the process-wide logger.
	Logger *logging.Logger
}

// DefaultHostConfig returns the host defaults
func DefaultHostConfig() HostConfig {
	return HostConfig{
		Adapters:     DefaultAdapters(),
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		StartupGrace: 300 * time.Millisecond,
		StopGrace:    5 * time.Second,
	}
}

// Host is an in-process debugging host. Parent sessions are bookkeeping
// only; child sessions are debugger adapter processes attached by PID.
// Lifecycle changes are published on the event bus.
type Host struct {
	config HostConfig
	bus    *eventbus.Bus[domain.SessionEvent]
	pids   PIDFinder

	mu       sync.Mutex
	sessions map[string]*hostSession
	order    []string
}

type hostSession struct {
	session  *domain.Session
	compact  bool
	cmd      *exec.Cmd
	pid      int
	children []string
	stopping bool
	exited   chan struct{} // adapter process exited
	finished chan struct{} // termination published
}

// NewHost creates a Host publishing on bus
func NewHost(bus *eventbus.Bus[domain.SessionEvent], pids PIDFinder, config HostConfig) *Host {
	if config.Adapters == nil {
		config.Adapters = DefaultAdapters()
	}
	if config.Stdout == nil {
		config.Stdout = io.Discard
	}
	if config.Stderr == nil {
		config.Stderr = io.Discard
	}
	if config.StopGrace <= 0 {
		config.StopGrace = 5 * time.Second
	}
	return &Host{
		config:   config,
		bus:      bus,
		pids:     pids,
		sessions: make(map[string]*hostSession),
	}
}

func (h *Host) log(format string, args ...any) {
	if h.config.Logger != nil {
		h.config.Logger.Log(format, args...)
		return
	}
	logging.Log(format, args...)
}

// StartParent registers a top-level session and announces it
func (h *Host) StartParent(ctx context.Context, sessionType, name string, configuration map[string]any) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &domain.Session{
		ID:            uuid.NewString(),
		Type:          sessionType,
		Name:          name,
		Configuration: configuration,
	}
	hs := &hostSession{session: s, exited: make(chan struct{}), finished: make(chan struct{})}

	h.mu.Lock()
	h.sessions[s.ID] = hs
	h.order = append(h.order, s.ID)
	h.mu.Unlock()

	h.bus.Publish(domain.SessionEvent{Kind: domain.SessionStarted, Session: s})
	return s, nil
}

// Start attaches a debugger adapter to the process named in cfg
func (h *Host) Start(ctx context.Context, parent *domain.Session, cfg domain.ChildDebugConfiguration, opts LinkOptions) error {
	if parent == nil {
		return errors.New("parent session is required")
	}
	h.mu.Lock()
	p, ok := h.sessions[parent.ID]
	active := ok && !p.stopping
	h.mu.Unlock()
	if !active {
		return fmt.Errorf("parent session %s is not active", parent.ID)
	}

	pid, err := h.pids.FindPID(ctx, cfg.ProcessName())
	if err != nil {
		return fmt.Errorf("resolve %s: %w", cfg.ProcessName(), err)
	}
	argv, err := AdapterCommand(h.config.Adapters, cfg.Type(), pid, cfg.ProcessName())
	if err != nil {
		return err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if opts.ConsoleMode == ConsoleMergeWithParent {
		cmd.Stdout = h.config.Stdout
		cmd.Stderr = h.config.Stderr
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start debugger %s: %w", argv[0], err)
	}

	child := &hostSession{
		session: &domain.Session{
			ID:            uuid.NewString(),
			Type:          cfg.Type(),
			Name:          cfg.Name(),
			ParentID:      parent.ID,
			Configuration: map[string]any(cfg),
		},
		compact:  opts.Compact,
		cmd:      cmd,
		pid:      pid,
		exited:   make(chan struct{}),
		finished: make(chan struct{}),
	}
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(child.exited)
	}()

	if h.config.StartupGrace > 0 {
		select {
		case <-child.exited:
			return fmt.Errorf("debugger %s exited during startup: %v", argv[0], waitErr)
		case <-time.After(h.config.StartupGrace):
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			<-child.exited
			return ctx.Err()
		}
	}

	h.mu.Lock()
	// parent may have been stopped while the adapter was starting
	p, ok = h.sessions[parent.ID]
	if !ok || p.stopping {
		h.mu.Unlock()
		_ = cmd.Process.Kill()
		<-child.exited
		return fmt.Errorf("parent session %s ended during attach", parent.ID)
	}
	h.sessions[child.session.ID] = child
	h.order = append(h.order, child.session.ID)
	p.children = append(p.children, child.session.ID)
	h.mu.Unlock()

	h.log("Attached %s to %s (PID %d)", argv[0], cfg.ProcessName(), pid)
	h.bus.Publish(domain.SessionEvent{Kind: domain.SessionStarted, Session: child.session, PID: pid})

	go func() {
		<-child.exited
		h.remove(child.session.ID)
		h.bus.Publish(domain.SessionEvent{Kind: domain.SessionTerminated, Session: child.session, PID: pid})
		close(child.finished)
	}()
	return nil
}

// Stop ends a session. Stopping a parent stops its children first.
func (h *Host) Stop(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return nil
	}
	h.mu.Lock()
	hs, ok := h.sessions[session.ID]
	if !ok || hs.stopping {
		h.mu.Unlock()
		return nil
	}
	hs.stopping = true
	var children []*hostSession
	for _, id := range hs.children {
		if c, ok := h.sessions[id]; ok {
			children = append(children, c)
		}
	}
	h.mu.Unlock()

	if hs.cmd != nil {
		return h.stopAdapter(ctx, hs)
	}

	var errs []error
	for _, c := range children {
		if err := h.stopAdapter(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	h.remove(hs.session.ID)
	h.bus.Publish(domain.SessionEvent{Kind: domain.SessionTerminated, Session: hs.session})
	close(hs.finished)
	return errors.Join(errs...)
}

func (h *Host) stopAdapter(ctx context.Context, hs *hostSession) error {
	if err := hs.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("stop debugger for %s: %w", hs.session.Name, err)
	}
	select {
	case <-hs.finished:
		return nil
	case <-time.After(h.config.StopGrace):
		return fmt.Errorf("debugger for %s did not exit", hs.session.Name)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Sessions lists active sessions in start order, hiding compact children
func (h *Host) Sessions() []*domain.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*domain.Session
	for _, id := range h.order {
		hs := h.sessions[id]
		if hs.compact {
			continue
		}
		out = append(out, hs.session)
	}
	return out
}

// Children returns the active child sessions of parent
func (h *Host) Children(parent *domain.Session) []*domain.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.sessions[parent.ID]
	if !ok {
		return nil
	}
	var out []*domain.Session
	for _, id := range p.children {
		if c, ok := h.sessions[id]; ok {
			out = append(out, c.session)
		}
	}
	return out
}

// Shutdown stops every top-level session
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	var parents []*domain.Session
	for _, id := range h.order {
		if hs := h.sessions[id]; hs.session.ParentID == "" {
			parents = append(parents, hs.session)
		}
	}
	h.mu.Unlock()

	var errs []error
	for _, p := range parents {
		if err := h.Stop(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
