package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/vburojevic/watchattach/internal/config"
	"github.com/vburojevic/watchattach/internal/output"
)

// ConfigCmd groups the config subcommands
type ConfigCmd struct {
	Show     ConfigShowCmd     `cmd:"" default:"1" help:"Show the effective configuration"`
	Path     ConfigPathCmd     `cmd:"" help:"Show the config file in use"`
	Generate ConfigGenerateCmd `cmd:"" help:"Print a sample .wattach.yaml"`
}

// ConfigShowCmd prints the effective configuration
type ConfigShowCmd struct{}

// ConfigOutput is the NDJSON config record
type ConfigOutput struct {
	Type             string              `json:"type"` // config
	SchemaVersion    int                 `json:"schemaVersion"`
	File             string              `json:"file,omitempty"`
	Format           string              `json:"format"`
	Quiet            bool                `json:"quiet"`
	Verbose          bool                `json:"verbose"`
	LaunchFile       string              `json:"launch_file"`
	TasksFile        string              `json:"tasks_file"`
	LogFile          string              `json:"log_file,omitempty"`
	PollingInterval  string              `json:"polling_interval"`
	MaxFailures      int                 `json:"max_failures"`
	TaskPresentation string              `json:"task_presentation"`
	TaskCacheTTL     string              `json:"task_cache_ttl"`
	Debuggers        map[string][]string `json:"debuggers,omitempty"`
}

// Run executes the config show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}
	file := config.ConfigFile()

	if globals.Format == "ndjson" {
		return json.NewEncoder(globals.Stdout).Encode(ConfigOutput{
			Type:             "config",
			SchemaVersion:    output.SchemaVersion,
			File:             file,
			Format:           cfg.Format,
			Quiet:            cfg.Quiet,
			Verbose:          cfg.Verbose,
			LaunchFile:       cfg.LaunchFile,
			TasksFile:        cfg.TasksFile,
			LogFile:          cfg.LogFile,
			PollingInterval:  cfg.PollingInterval.String(),
			MaxFailures:      cfg.MaxFailures,
			TaskPresentation: cfg.TaskPresentation,
			TaskCacheTTL:     cfg.TaskCacheTTL.String(),
			Debuggers:        cfg.Debuggers,
		})
	}

	w := globals.Stdout
	fmt.Fprintln(w, "Current Configuration:")
	if file != "" {
		fmt.Fprintf(w, "  (from %s)\n", file)
	}
	fmt.Fprintf(w, "  format:            %s\n", cfg.Format)
	fmt.Fprintf(w, "  quiet:             %t\n", cfg.Quiet)
	fmt.Fprintf(w, "  verbose:           %t\n", cfg.Verbose)
	fmt.Fprintf(w, "  launch_file:       %s\n", cfg.LaunchFile)
	fmt.Fprintf(w, "  tasks_file:        %s\n", cfg.TasksFile)
	fmt.Fprintf(w, "  log_file:          %s\n", lo.Ternary(cfg.LogFile == "", "(none)", cfg.LogFile))
	fmt.Fprintf(w, "  polling_interval:  %s\n", cfg.PollingInterval)
	fmt.Fprintf(w, "  max_failures:      %d\n", cfg.MaxFailures)
	fmt.Fprintf(w, "  task_presentation: %s\n", cfg.TaskPresentation)
	fmt.Fprintf(w, "  task_cache_ttl:    %s\n", cfg.TaskCacheTTL)
	if len(cfg.Debuggers) > 0 {
		fmt.Fprintln(w, "  Debuggers:")
		kinds := lo.Keys(cfg.Debuggers)
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(w, "    %s: %s\n", kind, strings.Join(cfg.Debuggers[kind], " "))
		}
	}
	return nil
}

// ConfigPathCmd prints the config file path
type ConfigPathCmd struct{}

// Run executes the config path command
func (c *ConfigPathCmd) Run(globals *Globals) error {
	file := config.ConfigFile()
	if globals.Format == "ndjson" {
		return json.NewEncoder(globals.Stdout).Encode(map[string]any{
			"type":          "config_path",
			"schemaVersion": output.SchemaVersion,
			"path":          file,
		})
	}
	if file == "" {
		fmt.Fprintln(globals.Stdout, "No configuration file found (looked for .wattach.yaml in ., $HOME and the user config dir)")
		return nil
	}
	fmt.Fprintf(globals.Stdout, "Config file: %s\n", file)
	return nil
}

// ConfigGenerateCmd prints a sample configuration
type ConfigGenerateCmd struct{}

const sampleConfig = `# wattach configuration file
# Place in ./.wattach.yaml, ~/.wattach.yaml or ~/.config/wattach/wattach.yaml

# Output format: text or ndjson
format: ndjson

# Only emit records (ndjson only)
quiet: false

# Mirror status lines to a JSON debug log on stderr
verbose: false

# Workspace files
launch_file: .vscode/launch.json
tasks_file: .vscode/tasks.json

# Append status lines to a file
# log_file: /tmp/wattach.log

# Attach loop
polling_interval: 100ms
max_failures: 5

# Companion tasks run as child processes (process) or in tmux (tmux)
task_presentation: process
task_cache_ttl: 30s

# Debugger adapters by child type; {pid} and {processName} are substituted
debuggers:
  coreclr: [netcoredbg, --interpreter=cli, --attach, "{pid}"]
`

// Run executes the config generate command
func (c *ConfigGenerateCmd) Run(globals *Globals) error {
	_, err := fmt.Fprint(globals.Stdout, sampleConfig)
	return err
}
