package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vburojevic/watchattach/internal/domain"
)

const rule = "══════════════════════════════════════════════════════════════"

// TextWriter renders run events as human-readable lines
type TextWriter struct {
	mu sync.Mutex
	w  io.Writer
	// Debug includes attach_debug transitions
	Debug bool
}

// NewTextWriter creates a text writer on w
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

func (t *TextWriter) printf(format string, args ...any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.w, format, args...)
	return err
}

func (t *TextWriter) WriteReady(r *Ready) error {
	line := fmt.Sprintf("Watching for %s (%s)", r.Program, r.Configuration)
	if r.Task != "" {
		line += fmt.Sprintf(" with task '%s'", r.Task)
	}
	return t.printf("%s\n", line)
}

// WriteSessionStart writes a banner for a new attach cycle
func (t *TextWriter) WriteSessionStart(s *domain.SessionStart) error {
	detail := fmt.Sprintf("  Attached at %s", s.Timestamp)
	if s.Alert != "" {
		detail = fmt.Sprintf("  %s: previous PID %d | Attached at %s", s.Alert, s.PreviousPID, s.Timestamp)
	}
	return t.printf("\n%s\n  SESSION %d: %s (PID: %d)\n%s\n%s\n", rule, s.Session, s.Program, s.PID, detail, rule)
}

func (t *TextWriter) WriteSessionEnd(e *domain.SessionEnd) error {
	return t.printf("Session %d ended (PID %d): %ds attached, %d attempts, %d failures\n",
		e.Session, e.PID, e.Summary.DurationSeconds, e.Summary.Attempts, e.Summary.Failures)
}

func (t *TextWriter) WriteAttachDebug(d *domain.AttachDebug) error {
	if !t.Debug {
		return nil
	}
	parts := []string{fmt.Sprintf("%s -> %s", d.From, d.To)}
	if d.Attempt > 0 {
		parts = append(parts, fmt.Sprintf("attempt %d", d.Attempt))
	}
	if d.Reason != "" {
		parts = append(parts, d.Reason)
	}
	return t.printf("[debug] %s\n", strings.Join(parts, ", "))
}

func (t *TextWriter) WriteError(code, message string, hint ...string) error {
	line := fmt.Sprintf("Error [%s]: %s", code, message)
	if len(hint) > 0 && hint[0] != "" {
		line += fmt.Sprintf(" (hint: %s)", hint[0])
	}
	return t.printf("%s\n", line)
}
