// Package task locates and runs companion tasks declared in a VS Code
// style tasks.json.
//
// A Runner combines a Source, which enumerates the declared tasks, with an
// Executor, which starts one and returns a Handle. Handles are terminated
// through the Runner so callers never touch processes directly.
//
//	runner := task.NewRunner(task.NewFileSource(path, time.Minute), task.NewProcessExecutor(task.ExecutorConfig{}))
//	t, err := runner.FindByName(ctx, "watch")
//	h, err := runner.Execute(ctx, t)
//	defer runner.Terminate(h)
package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// ErrTaskNotFound is returned when no declared task carries the requested label
var ErrTaskNotFound = errors.New("task not found")

// Type is the kind of command a task runs
type Type string

const (
	// TypeShell runs Command (joined with Args) through the platform shell.
	TypeShell Type = "shell"
	// TypeProcess executes Command directly with Args.
	TypeProcess Type = "process"
)

// Options holds per-task execution options
type Options struct {
	Cwd string            `json:"cwd,omitempty"`
	Env map[string]string `json:"env,omitempty"`
}

// Task is one declared task
type Task struct {
	Label   string   `json:"label"`
	Type    Type     `json:"type"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Options Options  `json:"options,omitempty"`
}

// Handle is a started task execution
type Handle interface {
	// ID uniquely identifies the execution.
	ID() string
	// Task returns the task being executed.
	Task() *Task
	// Done is closed once the execution has ended.
	Done() <-chan struct{}
	// Terminate stops the execution. Calling it more than once is a no-op.
	Terminate() error
}

// Source enumerates declared tasks
type Source interface {
	Tasks(ctx context.Context) ([]Task, error)
}

// Executor starts tasks
type Executor interface {
	Execute(ctx context.Context, t *Task) (Handle, error)
}

// Runner finds, executes and terminates companion tasks
type Runner interface {
	FindByName(ctx context.Context, name string) (*Task, error)
	Execute(ctx context.Context, t *Task) (Handle, error)
	Terminate(h Handle) error
}

type runner struct {
	source   Source
	executor Executor
}

// NewRunner creates a Runner over source and executor
func NewRunner(source Source, executor Executor) Runner {
	return &runner{source: source, executor: executor}
}

// FindByName returns the first task whose label equals name exactly
func (r *runner) FindByName(ctx context.Context, name string) (*Task, error) {
	tasks, err := r.source.Tasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate tasks: %w", err)
	}
	t, ok := lo.Find(tasks, func(t Task) bool { return t.Label == name })
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrTaskNotFound)
	}
	return &t, nil
}

func (r *runner) Execute(ctx context.Context, t *Task) (Handle, error) {
	if t == nil {
		return nil, errors.New("task is required")
	}
	return r.executor.Execute(ctx, t)
}

func (r *runner) Terminate(h Handle) error {
	if h == nil {
		return nil
	}
	return h.Terminate()
}
