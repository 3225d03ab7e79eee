package task

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/GianlucaP106/gotmux/gotmux"
	"github.com/google/uuid"
)

// tmuxCommander is the slice of gotmux the executor needs
type tmuxCommander interface {
	Command(req ...string) (string, error)
}

// TmuxExecutor runs each task in its own detached tmux session so its
// output stays inspectable with `tmux attach`.
type TmuxExecutor struct {
	tmux   tmuxCommander
	prefix string
	// how often a running session is checked for exit
	pollInterval time.Duration
}

// DefaultTmuxPollInterval is how often task sessions are checked for exit
const DefaultTmuxPollInterval = time.Second

// NewTmuxExecutor connects to the default tmux server
func NewTmuxExecutor(prefix string) (*TmuxExecutor, error) {
	t, err := gotmux.DefaultTmux()
	if err != nil {
		return nil, fmt.Errorf("tmux unavailable: %w", err)
	}
	return newTmuxExecutor(t, prefix), nil
}

func newTmuxExecutor(t tmuxCommander, prefix string) *TmuxExecutor {
	if prefix == "" {
		prefix = "wattach"
	}
	return &TmuxExecutor{tmux: t, prefix: prefix, pollInterval: DefaultTmuxPollInterval}
}

var unsafeSessionChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SessionName returns the tmux session used for a task label
func (e *TmuxExecutor) SessionName(label string) string {
	clean := strings.Trim(unsafeSessionChars.ReplaceAllString(label, "-"), "-")
	if clean == "" {
		clean = "task"
	}
	return e.prefix + "-" + clean
}

// Execute starts t in a fresh detached session, replacing any stale one
func (e *TmuxExecutor) Execute(ctx context.Context, t *Task) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(t.Command) == "" {
		return nil, fmt.Errorf("task %q has no command", t.Label)
	}
	name := e.SessionName(t.Label)
	if _, err := e.tmux.Command("has-session", "-t", name); err == nil {
		if _, err := e.tmux.Command("kill-session", "-t", name); err != nil {
			return nil, fmt.Errorf("replace tmux session %s: %w", name, err)
		}
	}

	args := []string{"new-session", "-d", "-s", name}
	if t.Options.Cwd != "" {
		args = append(args, "-c", t.Options.Cwd)
	}
	for k, v := range t.Options.Env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, shellLine(t))
	if _, err := e.tmux.Command(args...); err != nil {
		return nil, fmt.Errorf("start task %q in tmux: %w", t.Label, err)
	}

	h := &tmuxHandle{
		id:      uuid.NewString(),
		task:    t,
		session: name,
		tmux:    e.tmux,
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	go h.watch(e.pollInterval)
	return h, nil
}

// shellLine renders the task as one command line for tmux
func shellLine(t *Task) string {
	parts := []string{t.Command}
	for _, a := range t.Args {
		if t.Type == TypeShell {
			parts = append(parts, a)
			continue
		}
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>(){}*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

type tmuxHandle struct {
	id      string
	task    *Task
	session string
	tmux    tmuxCommander
	done    chan struct{}
	stop    chan struct{}

	doneOnce sync.Once
	once     sync.Once
	termErr  error
}

func (h *tmuxHandle) ID() string            { return h.id }
func (h *tmuxHandle) Task() *Task           { return h.task }
func (h *tmuxHandle) Done() <-chan struct{} { return h.done }

// Session returns the tmux session name
func (h *tmuxHandle) Session() string { return h.session }

// watch closes done once the session is gone, e.g. when the task's
// command exits or someone kills the session by hand.
func (h *tmuxHandle) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			if _, err := h.tmux.Command("has-session", "-t", h.session); err != nil {
				h.finish()
				return
			}
		}
	}
}

func (h *tmuxHandle) finish() {
	h.doneOnce.Do(func() { close(h.done) })
}

func (h *tmuxHandle) Terminate() error {
	h.once.Do(func() {
		close(h.stop)
		defer h.finish()
		select {
		case <-h.done:
			// session already ended on its own
			return
		default:
		}
		if _, err := h.tmux.Command("kill-session", "-t", h.session); err != nil {
			h.termErr = fmt.Errorf("kill tmux session %s: %w", h.session, err)
		}
	})
	return h.termErr
}
