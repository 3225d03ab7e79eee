package session

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerFirstAttach(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker("MyApp", "parent-1", clk)

	tr.RecordAttempt()
	tr.RecordFailure()
	tr.RecordAttempt()
	tr.RecordFailure()
	tr.RecordAttempt()
	change := tr.Attached(111)

	require.NotNil(t, change.StartSession)
	assert.Nil(t, change.EndSession)
	assert.Equal(t, 1, change.StartSession.Session)
	assert.Equal(t, 111, change.StartSession.PID)
	assert.Empty(t, change.StartSession.Alert)
	assert.Equal(t, "MyApp", change.StartSession.Program)
	assert.Equal(t, "parent-1", change.StartSession.Parent)

	session, pid, attempts, failures := tr.Stats()
	assert.Equal(t, 1, session)
	assert.Equal(t, 111, pid)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, failures)
}

func TestTrackerDetectsRelaunch(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker("MyApp", "parent-1", clk)

	tr.RecordAttempt()
	tr.Attached(111)
	clk.Add(42 * time.Second)

	change := tr.Detached()
	require.NotNil(t, change)
	require.NotNil(t, change.EndSession)
	assert.Equal(t, 1, change.EndSession.Session)
	assert.Equal(t, 111, change.EndSession.PID)
	assert.Equal(t, 42, change.EndSession.Summary.DurationSeconds)
	assert.Equal(t, 1, change.EndSession.Summary.Attempts)
	assert.Nil(t, tr.Detached(), "already closed")

	tr.RecordAttempt()
	tr.RecordFailure()
	tr.RecordAttempt()
	change = tr.Attached(222)
	assert.Nil(t, change.EndSession)
	assert.Equal(t, 2, change.StartSession.Session)
	assert.Equal(t, "APP_RELAUNCHED", change.StartSession.Alert)
	assert.Equal(t, 111, change.StartSession.PreviousPID)
	assert.Equal(t, 2, tr.CurrentSession())
}

func TestTrackerReattachSamePID(t *testing.T) {
	tr := NewTracker("MyApp", "parent-1", clock.NewMock())
	tr.Attached(111)

	// debugger restarted without a detach being seen
	change := tr.Attached(111)
	require.NotNil(t, change.EndSession)
	assert.Equal(t, 1, change.EndSession.Session)
	assert.Empty(t, change.StartSession.Alert)
	assert.Zero(t, change.StartSession.PreviousPID)
}

func TestTrackerFinalSummary(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker("MyApp", "parent-1", clk)
	assert.Nil(t, tr.GetFinalSummary())

	tr.Attached(111)
	clk.Add(5 * time.Second)
	end := tr.GetFinalSummary()
	require.NotNil(t, end)
	assert.Equal(t, "session_end", end.Type)
	assert.Equal(t, 5, end.Summary.DurationSeconds)
}

func TestTrackerCreditsSuccessfulAttemptToNewCycle(t *testing.T) {
	clk := clock.NewMock()
	tr := NewTracker("MyApp", "parent-1", clk)

	// the attempt begins before the child session is reported
	tr.RecordAttempt()
	tr.Attached(111)
	clk.Add(time.Second)

	change := tr.Detached()
	require.NotNil(t, change)
	assert.Equal(t, 1, change.EndSession.Summary.Attempts)
	assert.Zero(t, change.EndSession.Summary.Failures)

	// nothing leaks into the next cycle
	tr.RecordAttempt()
	change = tr.Attached(111)
	_, _, attempts, failures := tr.Stats()
	assert.Equal(t, 1, attempts)
	assert.Zero(t, failures)
	assert.Empty(t, change.StartSession.Alert)
}
