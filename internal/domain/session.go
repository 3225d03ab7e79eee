package domain

import "time"

const (
	// WatchAttachType tags parent "watch attach" sessions.
	WatchAttachType = "dotnetwatchattach"

	// ChildSessionName is the display name given to every auto-created child
	// session. Terminations carrying this name mean the watched process cycled.
	ChildSessionName = ".NET Watch Attach (Child attach)"
)

// Session identifies a debug session owned by the host.
type Session struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Name          string         `json:"name"`
	ParentID      string         `json:"parent_id,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// IsWatchAttach reports whether s is a parent watch-attach session
func (s *Session) IsWatchAttach() bool {
	return s != nil && s.Type == WatchAttachType
}

// IsChildAttach reports whether s is an auto-created child session
func (s *Session) IsChildAttach() bool {
	return s != nil && s.Name == ChildSessionName
}

// SessionStart is emitted when an attach cycle begins (a child debugger attached)
type SessionStart struct {
	Type          string `json:"type"`                   // "session_start"
	SchemaVersion int    `json:"schemaVersion"`          // 1
	Alert         string `json:"alert,omitempty"`        // "APP_RELAUNCHED" when a previous cycle existed
	Session       int    `json:"session"`                // Cycle number (1, 2, 3...)
	PID           int    `json:"pid"`                    // Attached process ID
	PreviousPID   int    `json:"previous_pid,omitempty"` // Previous PID (if app relaunched)
	Program       string `json:"program"`                // Watched process image name
	Parent        string `json:"parent"`                 // Parent session ID
	Timestamp     string `json:"timestamp"`              // ISO8601 timestamp
}

// SessionEnd is emitted when an attach cycle ends (child detached or parent stopped)
type SessionEnd struct {
	Type          string         `json:"type"`          // "session_end"
	SchemaVersion int            `json:"schemaVersion"` // 1
	Session       int            `json:"session"`       // Cycle number that ended
	PID           int            `json:"pid"`           // Process ID that ended
	Summary       SessionSummary `json:"summary"`       // Summary of the cycle
}

// SessionSummary contains statistics about a completed attach cycle
type SessionSummary struct {
	Attempts        int `json:"attempts"`
	Failures        int `json:"failures"`
	DurationSeconds int `json:"duration_seconds"`
}

// NewSessionStart creates a new SessionStart event
func NewSessionStart(session, pid, previousPID int, program, parent string, now time.Time) *SessionStart {
	s := &SessionStart{
		Type:          "session_start",
		SchemaVersion: 1,
		Session:       session,
		PID:           pid,
		Program:       program,
		Parent:        parent,
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
	if previousPID > 0 {
		s.Alert = "APP_RELAUNCHED"
		s.PreviousPID = previousPID
	}
	return s
}

// NewSessionEnd creates a new SessionEnd event
func NewSessionEnd(session, pid int, summary SessionSummary) *SessionEnd {
	return &SessionEnd{
		Type:          "session_end",
		SchemaVersion: 1,
		Session:       session,
		PID:           pid,
		Summary:       summary,
	}
}
