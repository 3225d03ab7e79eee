package task

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTasks = `{
  // See https://go.microsoft.com/fwlink/?LinkId=733558
  "version": "2.0.0",
  "tasks": [
    {
      "label": "build",
      "type": "process",
      "command": "dotnet",
      "args": ["build", "${workspaceFolder}/src/MyApp.csproj", {"value": "-c Debug", "quoting": "strong"}],
    },
    {
      "label": "watch",
      "type": "shell",
      "command": "dotnet watch run",
      "options": {"cwd": "${workspaceFolder}/src", "env": {"DOTNET_ENVIRONMENT": "Development"}},
    },
    {
      "label": "watch",
      "type": "shell",
      "command": "echo duplicate",
    },
    {
      "taskName": "legacy",
      "command": "make",
    },
  ],
}`

type staticSource struct {
	tasks []Task
	err   error
}

func (s staticSource) Tasks(context.Context) ([]Task, error) { return s.tasks, s.err }

type fakeHandle struct {
	id         string
	task       *Task
	done       chan struct{}
	terminated int
}

func (h *fakeHandle) ID() string            { return h.id }
func (h *fakeHandle) Task() *Task           { return h.task }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) Terminate() error      { h.terminated++; return nil }

type fakeExecutor struct{ executed []*Task }

func (e *fakeExecutor) Execute(_ context.Context, t *Task) (Handle, error) {
	e.executed = append(e.executed, t)
	return &fakeHandle{id: "h1", task: t, done: make(chan struct{})}, nil
}

func TestParseTasks(t *testing.T) {
	tasks, err := ParseTasks([]byte(sampleTasks))
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	assert.Equal(t, "build", tasks[0].Label)
	assert.Equal(t, TypeProcess, tasks[0].Type)
	assert.Equal(t, []string{"build", "${workspaceFolder}/src/MyApp.csproj", "-c Debug"}, tasks[0].Args)

	assert.Equal(t, TypeShell, tasks[1].Type)
	assert.Equal(t, "Development", tasks[1].Options.Env["DOTNET_ENVIRONMENT"])

	assert.Equal(t, "legacy", tasks[3].Label)
	assert.Equal(t, TypeProcess, tasks[3].Type)
}

func TestParseTasksErrors(t *testing.T) {
	_, err := ParseTasks([]byte(`{"tasks": [`))
	require.Error(t, err)

	_, err = ParseTasks([]byte(`{"tasks": [{"label": "x", "command": "y", "args": [[1]]}]}`))
	require.Error(t, err)
}

func TestFileSource(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".vscode"), 0o755))
	path := filepath.Join(ws, ".vscode", "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleTasks), 0o644))

	src := NewFileSource(path, time.Minute)
	tasks, err := src.Tasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws, "src"), tasks[1].Options.Cwd)
	assert.Equal(t, ws+"/src/MyApp.csproj", tasks[0].Args[1])

	// cached until invalidated
	require.NoError(t, os.WriteFile(path, []byte(`{"tasks": []}`), 0o644))
	tasks, err = src.Tasks(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 4)

	src.Invalidate()
	tasks, err = src.Tasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "tasks.json"), 0)
	_, err := src.Tasks(context.Background())
	require.Error(t, err)
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("WATTACH_TEST_VAR", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${workspaceFolder}/src", "/ws/proj/src"},
		{"${workspaceRoot}", "/ws/proj"},
		{"${workspaceFolderBasename}", "proj"},
		{"x-${env:WATTACH_TEST_VAR}-y", "x-value-y"},
		{"${unknown}", "${unknown}"},
		{"${unterminated", "${unterminated"},
		{"${workspaceFolder}${workspaceFolderBasename}", "/ws/projproj"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandVariables(tt.in, "/ws/proj"))
		})
	}
}

func TestRunnerFindByName(t *testing.T) {
	tasks, err := ParseTasks([]byte(sampleTasks))
	require.NoError(t, err)
	r := NewRunner(staticSource{tasks: tasks}, &fakeExecutor{})

	t.Run("first match wins", func(t *testing.T) {
		got, err := r.FindByName(context.Background(), "watch")
		require.NoError(t, err)
		assert.Equal(t, "dotnet watch run", got.Command)
	})

	t.Run("exact match only", func(t *testing.T) {
		_, err := r.FindByName(context.Background(), "Watch")
		require.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("source error", func(t *testing.T) {
		boom := errors.New("boom")
		r := NewRunner(staticSource{err: boom}, &fakeExecutor{})
		_, err := r.FindByName(context.Background(), "watch")
		require.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestRunnerExecuteAndTerminate(t *testing.T) {
	exec := &fakeExecutor{}
	r := NewRunner(staticSource{}, exec)

	_, err := r.Execute(context.Background(), nil)
	require.Error(t, err)

	h, err := r.Execute(context.Background(), &Task{Label: "watch", Command: "x"})
	require.NoError(t, err)
	require.NoError(t, r.Terminate(h))
	require.NoError(t, r.Terminate(nil))
	assert.Equal(t, 1, h.(*fakeHandle).terminated)
	assert.Len(t, exec.executed, 1)
}

func TestProcessExecutorRunsToCompletion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	var out bytes.Buffer
	e := NewProcessExecutor(ExecutorConfig{Stdout: &out})

	h, err := e.Execute(context.Background(), &Task{
		Label:   "greet",
		Type:    TypeShell,
		Command: "echo",
		Args:    []string{"hello", "$GREETING_SUFFIX"},
		Options: Options{Env: map[string]string{"GREETING_SUFFIX": "world"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, h.ID())

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not finish")
	}
	assert.Equal(t, "hello world\n", out.String())
	require.NoError(t, h.Terminate())
}

func TestProcessExecutorTerminate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep")
	}
	e := NewProcessExecutor(ExecutorConfig{GracePeriod: 2 * time.Second})
	h, err := e.Execute(context.Background(), &Task{Label: "sleep", Type: TypeShell, Command: "sleep 60"})
	require.NoError(t, err)

	require.NoError(t, h.Terminate())
	select {
	case <-h.Done():
	default:
		t.Fatal("expected task to be done after Terminate")
	}
	require.NoError(t, h.Terminate())
}

func TestProcessExecutorErrors(t *testing.T) {
	e := NewProcessExecutor(ExecutorConfig{})

	_, err := e.Execute(context.Background(), &Task{Label: "empty"})
	require.Error(t, err)

	_, err = e.Execute(context.Background(), &Task{Label: "bad", Type: "npm", Command: "x"})
	require.Error(t, err)

	_, err = e.Execute(context.Background(), &Task{Label: "missing", Type: TypeProcess, Command: "definitely-not-a-real-binary-wattach"})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Execute(ctx, &Task{Label: "x", Command: "true"})
	require.ErrorIs(t, err, context.Canceled)
}

type recordingTmux struct {
	mu       sync.Mutex
	calls    [][]string
	sessions map[string]bool
}

func (r *recordingTmux) Command(req ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	switch req[0] {
	case "has-session":
		if r.sessions[req[2]] {
			return "", nil
		}
		return "", errors.New("can't find session")
	case "new-session":
		r.sessions[req[3]] = true
	case "kill-session":
		delete(r.sessions, req[2])
	}
	return "", nil
}

func TestTmuxExecutor(t *testing.T) {
	rec := &recordingTmux{sessions: map[string]bool{"wattach-dotnet-watch": true}}
	e := newTmuxExecutor(rec, "")
	e.pollInterval = time.Hour

	assert.Equal(t, "wattach-dotnet-watch", e.SessionName("dotnet: watch"))
	assert.Equal(t, "wattach-task", e.SessionName("::"))

	h, err := e.Execute(context.Background(), &Task{
		Label:   "dotnet: watch",
		Type:    TypeProcess,
		Command: "dotnet",
		Args:    []string{"watch", "run", "--project", "src/My App"},
		Options: Options{Cwd: "/ws"},
	})
	require.NoError(t, err)

	require.Len(t, rec.calls, 3)
	assert.Equal(t, []string{"kill-session", "-t", "wattach-dotnet-watch"}, rec.calls[1])
	newSession := rec.calls[2]
	assert.Equal(t, []string{"new-session", "-d", "-s", "wattach-dotnet-watch", "-c", "/ws"}, newSession[:6])
	assert.Equal(t, "dotnet watch run --project 'src/My App'", newSession[len(newSession)-1])

	require.NoError(t, h.Terminate())
	require.NoError(t, h.Terminate())
	assert.False(t, rec.sessions["wattach-dotnet-watch"])
	<-h.Done()

	kills := 0
	for _, c := range rec.calls {
		if c[0] == "kill-session" {
			kills++
		}
	}
	assert.Equal(t, 2, kills)
}

func TestTmuxHandleDoneWhenSessionEnds(t *testing.T) {
	rec := &recordingTmux{sessions: map[string]bool{}}
	e := newTmuxExecutor(rec, "")
	e.pollInterval = 10 * time.Millisecond

	h, err := e.Execute(context.Background(), &Task{Label: "watch", Command: "sleep", Args: []string{"1"}})
	require.NoError(t, err)

	select {
	case <-h.Done():
		t.Fatal("done before the session ended")
	case <-time.After(50 * time.Millisecond):
	}

	// the task's command exits and tmux drops the session
	rec.mu.Lock()
	delete(rec.sessions, "wattach-watch")
	rec.mu.Unlock()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done not closed after the session ended")
	}

	// nothing left to kill
	require.NoError(t, h.Terminate())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, c := range rec.calls {
		assert.NotEqual(t, "kill-session", c[0])
	}
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "plain", shellQuote("plain"))
	assert.Equal(t, "''", shellQuote(""))
	assert.Equal(t, `'it'"'"'s'`, shellQuote("it's"))
	assert.True(t, strings.HasPrefix(shellQuote("a b"), "'"))
}
