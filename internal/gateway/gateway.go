// Package gateway is the boundary between the attach coordinator and the
// debugging host: starting and stopping debug sessions, and showing
// user-facing errors.
package gateway

import (
	"context"

	"github.com/vburojevic/watchattach/internal/domain"
)

// ConsoleMode controls where a child session's console output goes
type ConsoleMode int

const (
	// ConsoleSeparate gives the child its own console.
	ConsoleSeparate ConsoleMode = iota
	// ConsoleMergeWithParent writes the child's output to the parent's console.
	ConsoleMergeWithParent
)

// LinkOptions describes how a child session relates to its parent
type LinkOptions struct {
	ConsoleMode ConsoleMode
	// Compact hides the child from the top-level session list.
	Compact bool
}

// DefaultLinkOptions is the fixed presentation of auto-attached children
func DefaultLinkOptions() LinkOptions {
	return LinkOptions{ConsoleMode: ConsoleMergeWithParent, Compact: true}
}

// Gateway starts and stops debug sessions on the host
type Gateway interface {
	// Start launches a child debug session linked to parent. A non-nil
	// error means the host could not start it.
	Start(ctx context.Context, parent *domain.Session, cfg domain.ChildDebugConfiguration, opts LinkOptions) error
	// Stop ends session. Stopping an unknown session is a no-op.
	Stop(ctx context.Context, session *domain.Session) error
}

// Notifier shows blocking, user-facing messages
type Notifier interface {
	ShowError(message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(message string)

// ShowError calls f
func (f NotifierFunc) ShowError(message string) { f(message) }
