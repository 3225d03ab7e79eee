package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/vburojevic/watchattach/internal/cli"
	"github.com/vburojevic/watchattach/internal/config"
)

const quickStart = `wattach - keep a debugger attached to a process that keeps restarting

Quick start:
  wattach run                           Use the first watch-attach entry in .vscode/launch.json
  wattach run "Watch API"               Use a named entry
  wattach run -p MyApp -t watch         Watch MyApp, running the "watch" task first
  wattach probe MyApp                   Check whether MyApp is running

For help:
  wattach --help                        All commands and flags
  wattach schema                        JSON Schema for NDJSON records
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	// Load configuration from files/environment
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI

	// Apply config defaults before parsing
	// These will be overridden by CLI flags if specified
	vars := kong.Vars{
		"config_format":           cfg.Format,
		"config_launch_file":      cfg.LaunchFile,
		"config_tasks_file":       cfg.TasksFile,
		"config_log_file":         cfg.LogFile,
		"config_polling_interval": cfg.PollingInterval.String(),
		"config_max_failures":     fmt.Sprint(cfg.MaxFailures),
	}

	ctx := kong.Parse(&c,
		kong.Name("wattach"),
		kong.Description("Watch Attach: re-attach a debugger every time a watched process restarts"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		vars,
	)

	// Create globals with config fallbacks
	globals := cli.NewGlobalsWithConfig(&c, cfg)
	err = ctx.Run(globals)
	if err != nil {
		os.Exit(1)
	}
}
