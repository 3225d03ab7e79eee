package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"
	"github.com/vburojevic/watchattach/internal/config"
	"github.com/vburojevic/watchattach/internal/coordinator"
	"github.com/vburojevic/watchattach/internal/domain"
	"github.com/vburojevic/watchattach/internal/eventbus"
	"github.com/vburojevic/watchattach/internal/gateway"
	"github.com/vburojevic/watchattach/internal/launch"
	"github.com/vburojevic/watchattach/internal/logging"
	"github.com/vburojevic/watchattach/internal/output"
	"github.com/vburojevic/watchattach/internal/probe"
	"github.com/vburojevic/watchattach/internal/session"
	"github.com/vburojevic/watchattach/internal/task"
	"github.com/vburojevic/watchattach/internal/tui"
)

// RunCmd starts a watch-attach session and keeps a debugger attached
type RunCmd struct {
	Name            string        `arg:"" optional:"" help:"Watch-attach configuration name in launch.json (default: first one)"`
	LaunchFile      string        `default:"${config_launch_file}" type:"path" help:"Path to launch.json"`
	TasksFile       string        `default:"${config_tasks_file}" type:"path" help:"Path to tasks.json"`
	Program         string        `short:"p" help:"Process name to watch; skips launch.json"`
	Task            string        `short:"t" help:"Companion task label to run before attaching (with --program)"`
	PollingInterval time.Duration `default:"${config_polling_interval}" help:"Wait between attach attempts"`
	MaxFailures     int           `default:"${config_max_failures}" help:"Consecutive failed attempts before giving up"`
	Tmux            bool          `help:"Run the companion task in a detached tmux session"`
	LogFile         string        `default:"${config_log_file}" help:"Append status lines to this file"`
	UI              bool          `help:"Interactive status view"`
	DryRun          bool          `name:"dry-run" help:"Resolve the configuration, print it and exit"`
	Timeout         time.Duration `help:"Stop after this long (0 runs until interrupted)"`
}

// DryRunOutput is printed by --dry-run in ndjson mode
type DryRunOutput struct {
	Type          string         `json:"type"` // dry_run
	SchemaVersion int            `json:"schemaVersion"`
	Configuration map[string]any `json:"configuration"`
	Child         map[string]any `json:"child"`
	Adapter       []string       `json:"adapter,omitempty"`
}

// Run executes the run command
func (c *RunCmd) Run(globals *Globals) error {
	if err := validateFlags(globals, c.UI, c.DryRun); err != nil {
		return err
	}
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}

	entry, err := c.resolveConfiguration()
	if err != nil {
		var ce *commandError
		if errors.As(err, &ce) {
			return outputErrorCommon(globals, ce.code, userMessage(ce.err), ce.hint)
		}
		return outputErrorCommon(globals, "SESSION_ERROR", err.Error())
	}
	if entry == nil {
		return outputErrorCommon(globals, "NOTHING_TO_LAUNCH", "the selected configuration is empty", "add type, request and name to the launch.json entry")
	}
	program, err := probe.ResolveProgram(fmt.Sprint(entry["program"]))
	if err != nil {
		return outputErrorCommon(globals, "PROGRAM_INVALID", err.Error())
	}
	entry["program"] = program
	if entry[domain.KeyName] == nil {
		entry[domain.KeyName] = program
	}

	watch, err := domain.DecodeConfiguration(entry)
	if err != nil {
		return outputErrorCommon(globals, "MISSING_PROGRAM", userMessage(err))
	}
	child := domain.BuildChildConfiguration(watch)
	adapters := lo.Assign(gateway.DefaultAdapters(), cfg.Debuggers)

	if c.DryRun {
		return c.printDryRun(globals, entry, child, adapters)
	}

	// the logger, records and child process pipes share these streams
	var streams sync.Mutex
	shared := *globals
	shared.Stdout = guardWriter(globals.Stdout, &streams)
	shared.Stderr = guardWriter(globals.Stderr, &streams)
	globals = &shared

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	// In UI mode every line goes through the bubbletea program.
	var (
		ui      *tea.Program
		model   = tui.New(fmt.Sprint(entry[domain.KeyName]), program)
		status  io.Writer
		console = globals.Stderr
		records output.Writer
	)
	switch {
	case c.UI:
		ui = tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())
		lines := tui.NewLineWriter(ui.Send)
		status, console = lines, lines
		text := output.NewTextWriter(lines)
		text.Debug = globals.Verbose
		records = text
	case globals.Quiet:
		status = io.Discard
		records = globals.writer()
	default:
		status = globals.Stderr
		records = globals.writer()
	}
	if globals.Format == "text" && !c.UI {
		console = globals.Stdout
	}

	closeLog, err := logging.Init(logging.Options{
		Writer:  status,
		Path:    c.LogFile,
		Verbose: globals.Verbose && !c.UI,
	})
	if err != nil {
		return outputErrorCommon(globals, "LOG_FILE_ERROR", err.Error())
	}
	defer closeLog()
	logger := logging.Instance()

	executor, err := c.executor(cfg, console)
	if err != nil {
		return outputErrorCommon(globals, "TMUX_UNAVAILABLE", err.Error(), "install tmux or drop --tmux")
	}

	bus := eventbus.New[domain.SessionEvent]()
	defer bus.Close()

	prober := probe.New(probe.DetectFamily(runtime.GOOS))
	hostCfg := gateway.DefaultHostConfig()
	hostCfg.Adapters = adapters
	hostCfg.Stdout, hostCfg.Stderr = console, console
	hostCfg.Logger = logger
	host := gateway.NewHost(bus, prober, hostCfg)

	var tracker atomic.Pointer[session.Tracker]
	// zap writes to stderr, which the UI owns
	alog := newAgentLogger(lo.Ternary[*Globals](c.UI, nil, globals), fmt.Sprint(entry[domain.KeyName]), func() int {
		if t := tracker.Load(); t != nil {
			return t.CurrentSession()
		}
		return 0
	})
	defer alog.Sync()

	send := func(msg tea.Msg) {
		if ui != nil {
			ui.Send(msg)
		}
	}

	var (
		notified atomic.Value
		parentID atomic.Value
		ended    = make(chan struct{})
		endOnce  atomic.Bool
	)
	notifier := gateway.NotifierFunc(func(message string) {
		notified.Store(message)
		if c.UI || globals.Format == "ndjson" {
			_ = records.WriteError(errorCode(message), message)
			return
		}
		_ = outputErrorCommon(globals, errorCode(message), message)
	})

	sub := bus.Subscribe(func(ev domain.SessionEvent) {
		s := ev.Session
		alog.Debug("%s %s (%s) pid=%d", ev.Kind, s.Name, s.ID, ev.PID)
		switch {
		case s.IsWatchAttach() && ev.Kind == domain.SessionStarted:
			parentID.Store(s.ID)
			tracker.CompareAndSwap(nil, session.NewTracker(program, s.ID, clock.New()))
		case s.IsWatchAttach() && ev.Kind == domain.SessionTerminated:
			if id, _ := parentID.Load().(string); id == s.ID && endOnce.CompareAndSwap(false, true) {
				close(ended)
			}
		case s.IsChildAttach():
			t := tracker.Load()
			if t == nil {
				return
			}
			var change *session.SessionChange
			if ev.Kind == domain.SessionStarted {
				change = t.Attached(ev.PID)
			} else {
				change = t.Detached()
			}
			writeChange(records, change, send)
		}
	})
	defer sub.Unsubscribe()

	coord := coordinator.New(bus, coordinator.Dependencies{
		Gateway:  host,
		Notifier: notifier,
		Prober:   prober,
		Tasks:    task.NewRunner(task.NewFileSource(c.TasksFile, cfg.TaskCacheTTL), executor),
	},
		coordinator.WithPollingInterval(c.PollingInterval),
		coordinator.WithMaxFailures(c.MaxFailures),
		coordinator.WithLogger(logger),
		coordinator.WithStateListener(func(ch coordinator.StateChange) {
			if t := tracker.Load(); t != nil {
				// a retry or giving up means the previous attempt failed
				if ch.From == coordinator.Attempting && (ch.To == coordinator.Attempting && ch.Reason == "retry" || ch.To == coordinator.GivenUp) {
					t.RecordFailure()
				}
				if ch.To == coordinator.Attempting {
					t.RecordAttempt()
				}
			}
			id, _ := parentID.Load().(string)
			if globals.Verbose {
				_ = records.WriteAttachDebug(&domain.AttachDebug{
					Type:          "attach_debug",
					SchemaVersion: output.SchemaVersion,
					Parent:        id,
					From:          ch.From.String(),
					To:            ch.To.String(),
					Attempt:       ch.Attempt,
					Reason:        ch.Reason,
				})
			}
			send(tui.StateMsg{State: ch.To.String(), Attempt: ch.Attempt, Reason: ch.Reason})
		}),
	)

	// Send blocks until the program loop runs
	uiDone := make(chan struct{})
	if ui != nil {
		go func() {
			defer close(uiDone)
			_, _ = ui.Run()
		}()
	}

	logger.Log("Thank you for using wattach %s. Press Ctrl+C to stop.", Version)

	parent, err := host.StartParent(ctx, domain.WatchAttachType, fmt.Sprint(entry[domain.KeyName]), entry)
	if err != nil {
		coord.Dispose()
		return outputErrorCommon(globals, "SESSION_ERROR", err.Error())
	}
	_ = records.WriteReady(output.NewReady(fmt.Sprint(entry[domain.KeyName]), program, watch.Task, parent.ID, time.Now()))

	select {
	case <-ctx.Done():
	case <-ended:
	case <-uiDone:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := host.Shutdown(shutdownCtx); err != nil {
		logger.Log("Shutdown: %v", err)
	}
	coord.Dispose()
	if ui != nil {
		ui.Quit()
		<-uiDone
	}

	if t := tracker.Load(); t != nil {
		if end := t.GetFinalSummary(); end != nil {
			_ = records.WriteSessionEnd(end)
		}
	}
	if msg, ok := notified.Load().(string); ok {
		return wrapNotified(msg)
	}
	return nil
}

// resolveConfiguration returns the launch entry to start, nil when it is
// empty
func (c *RunCmd) resolveConfiguration() (map[string]any, error) {
	file := &launch.File{}
	var entry map[string]any
	if c.Program != "" {
		entry = map[string]any{
			domain.KeyType:    domain.WatchAttachType,
			domain.KeyRequest: "launch",
			domain.KeyName:    c.Program,
			"program":         c.Program,
		}
		if c.Task != "" {
			entry["task"] = c.Task
		}
	} else {
		var err error
		if file, err = launch.Load(c.LaunchFile); err != nil {
			return nil, c.fail("LAUNCH_FILE_INVALID", err, "pass --program to skip launch.json")
		}
		if entry, err = file.Find(c.Name); err != nil {
			return nil, c.fail("CONFIGURATION_NOT_FOUND", err, fmt.Sprintf("add a %q entry to %s", domain.WatchAttachType, c.LaunchFile))
		}
	}
	resolved, err := file.Resolve(entry)
	if err != nil {
		return nil, c.fail("MISSING_PROGRAM", err, "set \"program\" in the configuration")
	}
	return resolved, nil
}

func (c *RunCmd) fail(code string, err error, hint string) error {
	return &commandError{code: code, err: err, hint: hint}
}

func (c *RunCmd) executor(cfg *config.Config, console io.Writer) (task.Executor, error) {
	if c.Tmux || cfg.TaskPresentation == config.PresentationTmux {
		return task.NewTmuxExecutor("wattach")
	}
	ec := task.DefaultExecutorConfig()
	ec.Stdout, ec.Stderr = console, console
	return task.NewProcessExecutor(ec), nil
}

func (c *RunCmd) printDryRun(globals *Globals, entry map[string]any, child domain.ChildDebugConfiguration, adapters map[string][]string) error {
	argv, _ := gateway.AdapterCommand(adapters, child.Type(), 0, child.ProcessName())
	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).Write(DryRunOutput{
			Type:          "dry_run",
			SchemaVersion: output.SchemaVersion,
			Configuration: entry,
			Child:         child,
			Adapter:       argv,
		})
	}
	fmt.Fprintf(globals.Stdout, "Configuration: %v\n", entry[domain.KeyName])
	fmt.Fprintf(globals.Stdout, "Program:       %s\n", child.ProcessName())
	if t, ok := entry["task"].(string); ok && t != "" {
		fmt.Fprintf(globals.Stdout, "Task:          %s\n", t)
	}
	fmt.Fprintf(globals.Stdout, "Child:         %s (%s/%s)\n", child.Name(), child.Type(), child.Request())
	if len(argv) > 0 {
		fmt.Fprintf(globals.Stdout, "Adapter:       %v\n", argv)
	}
	return nil
}

func writeChange(records output.Writer, change *session.SessionChange, send func(tea.Msg)) {
	if change == nil {
		return
	}
	if change.EndSession != nil {
		_ = records.WriteSessionEnd(change.EndSession)
	}
	if s := change.StartSession; s != nil {
		_ = records.WriteSessionStart(s)
		send(tui.CycleMsg{Session: s.Session, PID: s.PID, PreviousPID: s.PreviousPID})
	}
}

// commandError carries an error code for emission by the caller
type commandError struct {
	code string
	err  error
	hint string
}

func (e *commandError) Error() string { return e.err.Error() }

func (e *commandError) Unwrap() error { return e.err }

func userMessage(err error) string {
	if errors.Is(err, domain.ErrMissingProgram) {
		return missingProgramMessage
	}
	return err.Error()
}

// lockedWriter serializes writes to a stream shared with os/exec copy
// goroutines. It has no ReadFrom, so exec copies through Write.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// guardWriter wraps w unless it is a file, which exec hands to children
// directly
func guardWriter(w io.Writer, mu *sync.Mutex) io.Writer {
	if _, ok := w.(*os.File); ok {
		return w
	}
	return &lockedWriter{mu: mu, w: w}
}
