// Package launch reads debug configurations from a VS Code style
// launch.json and resolves watch-attach entries before a session starts.
package launch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/tidwall/jsonc"
	"github.com/vburojevic/watchattach/internal/domain"
	"github.com/vburojevic/watchattach/internal/task"
)

// ErrConfigurationNotFound is returned when no entry matches the request
var ErrConfigurationNotFound = errors.New("launch configuration not found")

// File is a parsed launch.json
type File struct {
	Path           string           `json:"-"`
	Version        string           `json:"version"`
	Configurations []map[string]any `json:"configurations"`
}

// Parse parses launch.json content (comments and trailing commas allowed)
func Parse(data []byte) (*File, error) {
	var f File
	if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
		return nil, fmt.Errorf("parse launch configurations: %w", err)
	}
	return &f, nil
}

// Load reads and parses path
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read launch configurations: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	f.Path = path
	return f, nil
}

// WatchAttach returns the watch-attach entries in declaration order
func (f *File) WatchAttach() []map[string]any {
	return lo.Filter(f.Configurations, func(c map[string]any, _ int) bool {
		return str(c, domain.KeyType) == domain.WatchAttachType
	})
}

// Find returns the watch-attach entry called name, or the first one when
// name is empty
func (f *File) Find(name string) (map[string]any, error) {
	entries := f.WatchAttach()
	if name == "" {
		if len(entries) == 0 {
			return nil, fmt.Errorf("no %s configuration: %w", domain.WatchAttachType, ErrConfigurationNotFound)
		}
		return entries[0], nil
	}
	entry, ok := lo.Find(f.Configurations, func(c map[string]any) bool { return str(c, domain.KeyName) == name })
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrConfigurationNotFound)
	}
	if str(entry, domain.KeyType) != domain.WatchAttachType {
		return nil, fmt.Errorf("%q has type %q, want %s", name, str(entry, domain.KeyType), domain.WatchAttachType)
	}
	return entry, nil
}

// Resolve prepares an entry for launch. An entry with no type, request and
// name (an empty launch.json) resolves to nil without error, meaning there
// is nothing to launch. A missing program is domain.ErrMissingProgram. The
// returned map is a copy with args defaulted to an empty map and
// ${workspaceFolder} style variables in program expanded.
func (f *File) Resolve(entry map[string]any) (map[string]any, error) {
	if str(entry, domain.KeyType) == "" && str(entry, domain.KeyRequest) == "" && str(entry, domain.KeyName) == "" {
		return nil, nil
	}
	out := lo.Assign(entry)
	program := str(out, "program")
	if program == "" {
		return nil, domain.ErrMissingProgram
	}
	out["program"] = task.ExpandVariables(program, f.workspaceFolder())
	if out["args"] == nil {
		out["args"] = map[string]any{}
	}
	return out, nil
}

// workspaceFolder is the directory holding .vscode, or the file's directory
func (f *File) workspaceFolder() string {
	if f.Path == "" {
		wd, _ := os.Getwd()
		return wd
	}
	dir := filepath.Dir(f.Path)
	if filepath.Base(dir) == ".vscode" {
		return filepath.Dir(dir)
	}
	return dir
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
