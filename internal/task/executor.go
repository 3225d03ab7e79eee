package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutorConfig configures a ProcessExecutor
type ExecutorConfig struct {
	// Stdout and Stderr receive task output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
	// GracePeriod is how long Terminate waits after SIGTERM before killing.
	GracePeriod time.Duration
	// Shell overrides the shell used for shell tasks.
	Shell []string
}

// DefaultExecutorConfig returns the executor defaults
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		GracePeriod: 5 * time.Second,
	}
}

// ProcessExecutor runs tasks as child processes
type ProcessExecutor struct {
	config ExecutorConfig
}

// NewProcessExecutor creates a ProcessExecutor
func NewProcessExecutor(config ExecutorConfig) *ProcessExecutor {
	if config.GracePeriod <= 0 {
		config.GracePeriod = 5 * time.Second
	}
	return &ProcessExecutor{config: config}
}

// Execute starts t. The process outlives ctx; use the Handle to stop it.
func (e *ProcessExecutor) Execute(ctx context.Context, t *Task) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd, err := e.buildCommand(t)
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start task %q: %w", t.Label, err)
	}

	h := &processHandle{
		id:    uuid.NewString(),
		task:  t,
		cmd:   cmd,
		grace: e.config.GracePeriod,
		done:  make(chan struct{}),
	}
	go func() {
		h.waitErr = cmd.Wait()
		close(h.done)
	}()
	return h, nil
}

func (e *ProcessExecutor) buildCommand(t *Task) (*exec.Cmd, error) {
	if strings.TrimSpace(t.Command) == "" {
		return nil, fmt.Errorf("task %q has no command", t.Label)
	}
	var cmd *exec.Cmd
	switch t.Type {
	case TypeShell:
		shell := e.config.Shell
		if len(shell) == 0 {
			shell = defaultShell()
		}
		line := strings.Join(append([]string{t.Command}, t.Args...), " ")
		cmd = exec.Command(shell[0], append(shell[1:], line)...)
	case TypeProcess, "":
		cmd = exec.Command(t.Command, t.Args...)
	default:
		return nil, fmt.Errorf("task %q: unsupported type %q", t.Label, t.Type)
	}

	cmd.Dir = t.Options.Cwd
	cmd.Env = os.Environ()
	for k, v := range t.Options.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = orDiscard(e.config.Stdout)
	cmd.Stderr = orDiscard(e.config.Stderr)
	setProcessGroup(cmd)
	return cmd, nil
}

func defaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"sh", "-c"}
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

type processHandle struct {
	id      string
	task    *Task
	cmd     *exec.Cmd
	grace   time.Duration
	done    chan struct{}
	waitErr error

	once    sync.Once
	termErr error
}

func (h *processHandle) ID() string            { return h.id }
func (h *processHandle) Task() *Task           { return h.task }
func (h *processHandle) Done() <-chan struct{} { return h.done }

// Terminate signals the task's process group, then kills it after the grace period
func (h *processHandle) Terminate() error {
	h.once.Do(func() {
		select {
		case <-h.done:
			return
		default:
		}
		if err := terminateGroup(h.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
			h.termErr = fmt.Errorf("terminate task %q: %w", h.task.Label, err)
		}
		select {
		case <-h.done:
		case <-time.After(h.grace):
			if err := killGroup(h.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
				h.termErr = fmt.Errorf("kill task %q: %w", h.task.Label, err)
			}
			<-h.done
		}
	})
	return h.termErr
}
