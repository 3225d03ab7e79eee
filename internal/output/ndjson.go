// Package output renders run events for humans (text) and agents (NDJSON).
package output

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/vburojevic/watchattach/internal/domain"
)

// SchemaVersion is stamped on every NDJSON record
const SchemaVersion = 1

// Writer receives run events
type Writer interface {
	WriteReady(r *Ready) error
	WriteSessionStart(s *domain.SessionStart) error
	WriteSessionEnd(e *domain.SessionEnd) error
	WriteAttachDebug(d *domain.AttachDebug) error
	WriteError(code, message string, hint ...string) error
}

// Ready is emitted once the coordinator is armed
type Ready struct {
	Type          string `json:"type"` // ready
	SchemaVersion int    `json:"schemaVersion"`
	Timestamp     string `json:"timestamp"`
	Configuration string `json:"configuration"`
	Program       string `json:"program"`
	Task          string `json:"task,omitempty"`
	Parent        string `json:"parent"`
}

// NewReady builds a ready record
func NewReady(configuration, program, task, parent string, now time.Time) *Ready {
	return &Ready{
		Type:          "ready",
		SchemaVersion: SchemaVersion,
		Timestamp:     now.UTC().Format(time.RFC3339),
		Configuration: configuration,
		Program:       program,
		Task:          task,
		Parent:        parent,
	}
}

// ErrorRecord is an NDJSON error line
type ErrorRecord struct {
	Type          string `json:"type"` // error
	SchemaVersion int    `json:"schemaVersion"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Hint          string `json:"hint,omitempty"`
}

// NDJSONWriter writes one JSON object per line
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewNDJSONWriter creates a writer on w
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{enc: json.NewEncoder(w)}
}

// Write encodes v as one line
func (w *NDJSONWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

func (w *NDJSONWriter) WriteReady(r *Ready) error { return w.Write(r) }

func (w *NDJSONWriter) WriteSessionStart(s *domain.SessionStart) error { return w.Write(s) }

func (w *NDJSONWriter) WriteSessionEnd(e *domain.SessionEnd) error { return w.Write(e) }

func (w *NDJSONWriter) WriteAttachDebug(d *domain.AttachDebug) error { return w.Write(d) }

// WriteError writes an error record
func (w *NDJSONWriter) WriteError(code, message string, hint ...string) error {
	rec := &ErrorRecord{Type: "error", SchemaVersion: SchemaVersion, Code: code, Message: message}
	if len(hint) > 0 {
		rec.Hint = hint[0]
	}
	return w.Write(rec)
}
