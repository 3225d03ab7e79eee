package tui

import (
	"bytes"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// LineWriter turns written bytes into LineMsg values, one per line
type LineWriter struct {
	mu   sync.Mutex
	send func(tea.Msg)
	buf  bytes.Buffer
}

// NewLineWriter creates a writer delivering lines to send (usually
// (*tea.Program).Send)
func NewLineWriter(send func(tea.Msg)) *LineWriter {
	return &LineWriter{send: send}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.send(LineMsg(strings.TrimRight(line, "\r\n")))
	}
	return len(p), nil
}
