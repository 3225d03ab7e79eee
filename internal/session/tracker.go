package session

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vburojevic/watchattach/internal/domain"
)

// Tracker follows child attaches of one parent session and numbers them as
// cycles. A new PID on reattach means the watched app was relaunched.
type Tracker struct {
	mu    sync.Mutex
	clock clock.Clock

	program string
	parent  string

	currentSession int
	currentPID     int
	sessionStart   time.Time
	active         bool

	// attempts made since the previous attach
	pendingAttempts int
	pendingFailures int
	// attempts that led to the current cycle
	attempts int
	failures int
}

// SessionChange contains events emitted when a cycle starts or ends
type SessionChange struct {
	EndSession   *domain.SessionEnd
	StartSession *domain.SessionStart
}

// NewTracker creates a tracker for program under parent
func NewTracker(program, parent string, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{program: program, parent: parent, clock: clk}
}

// RecordAttempt counts an attach attempt when it begins. The attach that
// succeeds is therefore credited to the cycle it opens.
func (t *Tracker) RecordAttempt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingAttempts++
}

// RecordFailure marks the latest attempt as failed
func (t *Tracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingFailures++
}

// Attached starts a new cycle for pid. An unfinished cycle is closed first.
func (t *Tracker) Attached(pid int) *SessionChange {
	t.mu.Lock()
	defer t.mu.Unlock()

	change := &SessionChange{}
	if t.active {
		change.EndSession = t.endLocked()
	}

	previousPID := 0
	if t.currentSession > 0 && t.currentPID > 0 && pid != t.currentPID {
		previousPID = t.currentPID
	}

	t.currentSession++
	t.currentPID = pid
	t.sessionStart = t.clock.Now()
	t.active = true
	t.attempts, t.failures = t.pendingAttempts, t.pendingFailures
	t.pendingAttempts, t.pendingFailures = 0, 0

	change.StartSession = domain.NewSessionStart(t.currentSession, pid, previousPID, t.program, t.parent, t.sessionStart)
	return change
}

// Detached ends the current cycle. It returns nil when no cycle is open.
func (t *Tracker) Detached() *SessionChange {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return nil
	}
	return &SessionChange{EndSession: t.endLocked()}
}

func (t *Tracker) endLocked() *domain.SessionEnd {
	t.active = false
	return domain.NewSessionEnd(t.currentSession, t.currentPID, t.summaryLocked())
}

func (t *Tracker) summaryLocked() domain.SessionSummary {
	return domain.SessionSummary{
		Attempts:        t.attempts,
		Failures:        t.failures,
		DurationSeconds: int(t.clock.Since(t.sessionStart).Seconds()),
	}
}

// CurrentSession returns the current cycle number
func (t *Tracker) CurrentSession() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentSession
}

// GetFinalSummary returns the end record for an open cycle (for shutdown)
func (t *Tracker) GetFinalSummary() *domain.SessionEnd {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return nil
	}
	return domain.NewSessionEnd(t.currentSession, t.currentPID, t.summaryLocked())
}

// Stats returns current cycle statistics
func (t *Tracker) Stats() (session, pid, attempts, failures int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentSession, t.currentPID, t.attempts, t.failures
}
