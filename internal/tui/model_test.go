package tui

import (
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func TestModelTracksStateAndCycles(t *testing.T) {
	m := New(".NET Watch Attach", "Api")
	require.NotNil(t, m.Init())

	m = update(t, m, StateMsg{State: "attempting", Attempt: 3})
	assert.Contains(t, m.View(), "attaching (attempt 3)")

	m = update(t, m, StateMsg{State: "armed"})
	m = update(t, m, CycleMsg{Session: 2, PID: 222, PreviousPID: 111})
	view := m.View()
	assert.Contains(t, view, "attached")
	assert.Contains(t, view, "#2 (PID 222)")
	assert.Contains(t, view, "relaunched from 111")

	m = update(t, m, StateMsg{State: "given_up"})
	assert.Contains(t, m.View(), "gave up")
}

func TestModelKeepsRecentLines(t *testing.T) {
	m := New("cfg", "Api")
	m.maxLines = 3
	for i := 0; i < 5; i++ {
		m = update(t, m, LineMsg(fmt.Sprintf("line %d", i)))
	}
	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, m.lines)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	assert.Empty(t, m.lines)
}

func TestModelVisibleLinesFollowsHeight(t *testing.T) {
	m := New("cfg", "Api")
	for i := 0; i < 20; i++ {
		m = update(t, m, LineMsg(fmt.Sprintf("line %d", i)))
	}
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 13})
	assert.Equal(t, []string{"line 17", "line 18", "line 19"}, m.visibleLines())
}

func TestModelQuit(t *testing.T) {
	m := New("cfg", "Api")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, "", next.View())
}

func TestLineWriter(t *testing.T) {
	var got []LineMsg
	w := NewLineWriter(func(msg tea.Msg) { got = append(got, msg.(LineMsg)) })

	n, err := w.Write([]byte("first\nsec"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	_, err = w.Write([]byte("ond\r\n"))
	require.NoError(t, err)

	assert.Equal(t, []LineMsg{"first", "second"}, got)
}
