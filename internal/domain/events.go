package domain

// SessionEventKind distinguishes host lifecycle events
type SessionEventKind string

const (
	SessionStarted    SessionEventKind = "session_started"
	SessionTerminated SessionEventKind = "session_terminated"
)

// SessionEvent is published by the host whenever a debug session starts or ends
type SessionEvent struct {
	Kind    SessionEventKind
	Session *Session
	// PID is the attached process for child sessions, 0 when unknown.
	PID int
}
