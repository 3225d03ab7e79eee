package task

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tidwall/jsonc"
)

// tasksFile mirrors the parts of tasks.json we understand
type tasksFile struct {
	Version string     `json:"version"`
	Tasks   []fileTask `json:"tasks"`
}

type fileTask struct {
	Label    string          `json:"label"`
	TaskName string          `json:"taskName"` // pre-2.0.0 name
	Type     string          `json:"type"`
	Command  string          `json:"command"`
	Args     []any           `json:"args"`
	Options  json.RawMessage `json:"options"`
}

// ParseTasks parses tasks.json content (comments and trailing commas allowed)
func ParseTasks(data []byte) ([]Task, error) {
	var f tasksFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
		return nil, fmt.Errorf("parse tasks: %w", err)
	}
	tasks := make([]Task, 0, len(f.Tasks))
	for i, ft := range f.Tasks {
		t := Task{
			Label:   ft.Label,
			Type:    Type(ft.Type),
			Command: ft.Command,
		}
		if t.Label == "" {
			t.Label = ft.TaskName
		}
		if t.Type == "" {
			t.Type = TypeProcess
		}
		for _, a := range ft.Args {
			s, err := argString(a)
			if err != nil {
				return nil, fmt.Errorf("task %d (%s): %w", i, t.Label, err)
			}
			t.Args = append(t.Args, s)
		}
		if len(ft.Options) > 0 {
			if err := json.Unmarshal(ft.Options, &t.Options); err != nil {
				return nil, fmt.Errorf("task %d (%s) options: %w", i, t.Label, err)
			}
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// argString accepts plain strings and {"value": "...", "quoting": "..."} objects
func argString(a any) (string, error) {
	switch v := a.(type) {
	case string:
		return v, nil
	case float64, bool:
		return fmt.Sprint(v), nil
	case map[string]any:
		if s, ok := v["value"].(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("unsupported argument %v", a)
}

// FileSource reads tasks from a tasks.json file, caching parsed results
type FileSource struct {
	path  string
	cache *gocache.Cache
}

// NewFileSource creates a source for path. ttl <= 0 disables caching.
func NewFileSource(path string, ttl time.Duration) *FileSource {
	s := &FileSource{path: path}
	if ttl > 0 {
		s.cache = gocache.New(ttl, 2*ttl)
	}
	return s
}

// Path returns the tasks file path
func (s *FileSource) Path() string {
	return s.path
}

// Tasks returns the declared tasks with workspace variables expanded
func (s *FileSource) Tasks(ctx context.Context) ([]Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if v, ok := s.cache.Get(s.path); ok {
			return v.([]Task), nil
		}
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}
	tasks, err := ParseTasks(data)
	if err != nil {
		return nil, err
	}
	ws := workspaceFolder(s.path)
	for i := range tasks {
		expandTask(&tasks[i], ws)
	}
	if s.cache != nil {
		s.cache.Set(s.path, tasks, gocache.DefaultExpiration)
	}
	return tasks, nil
}

// Invalidate drops the cached task list
func (s *FileSource) Invalidate() {
	if s.cache != nil {
		s.cache.Delete(s.path)
	}
}

// workspaceFolder is the directory containing .vscode/, or the file's directory
func workspaceFolder(tasksPath string) string {
	dir := filepath.Dir(tasksPath)
	if filepath.Base(dir) == ".vscode" {
		return filepath.Dir(dir)
	}
	return dir
}

func expandTask(t *Task, ws string) {
	t.Command = ExpandVariables(t.Command, ws)
	for i, a := range t.Args {
		t.Args[i] = ExpandVariables(a, ws)
	}
	t.Options.Cwd = ExpandVariables(t.Options.Cwd, ws)
	for k, v := range t.Options.Env {
		t.Options.Env[k] = ExpandVariables(v, ws)
	}
}

// ExpandVariables substitutes ${workspaceFolder}, ${workspaceFolderBasename}
// and ${env:NAME}. Unknown variables are left as written.
func ExpandVariables(s, workspace string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			b.WriteString(s)
			break
		}
		end += start
		b.WriteString(s[:start])
		name := s[start+2 : end]
		switch {
		case name == "workspaceFolder" || name == "workspaceRoot":
			b.WriteString(workspace)
		case name == "workspaceFolderBasename":
			b.WriteString(filepath.Base(workspace))
		case strings.HasPrefix(name, "env:"):
			b.WriteString(os.Getenv(strings.TrimPrefix(name, "env:")))
		default:
			b.WriteString(s[start : end+1])
		}
		s = s[end+1:]
	}
	return b.String()
}
