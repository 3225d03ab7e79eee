package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/mattn/go-isatty"
	"github.com/vburojevic/watchattach/internal/config"
	"github.com/vburojevic/watchattach/internal/output"
)

// Build information, set via -ldflags
var (
	Version = "dev"
	Commit  = "none"
)

// CLI is the root command tree
type CLI struct {
	Format  string `short:"f" default:"${config_format}" enum:"text,ndjson" help:"Output format (text or ndjson)"`
	Quiet   bool   `short:"q" help:"Only emit records, no status lines"`
	Verbose bool   `short:"v" help:"Mirror status lines to a JSON debug log on stderr"`

	Run     RunCmd     `cmd:"" help:"Start a watch-attach session and keep a debugger attached across restarts"`
	Probe   ProbeCmd   `cmd:"" help:"Check whether a process is running using the platform probe"`
	Tasks   TasksCmd   `cmd:"" help:"List companion tasks declared in tasks.json"`
	Schema  SchemaCmd  `cmd:"" help:"Print JSON Schema for NDJSON records"`
	Config  ConfigCmd  `cmd:"" help:"Show or generate configuration"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// Globals carries flags and streams shared by every command
type Globals struct {
	Format  string
	Quiet   bool
	Verbose bool
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config
}

// NewGlobalsWithConfig builds Globals from parsed flags, falling back to cfg
func NewGlobalsWithConfig(c *CLI, cfg *config.Config) *Globals {
	if cfg == nil {
		cfg = config.Default()
	}
	format := c.Format
	if format == "" {
		format = cfg.Format
	}
	return &Globals{
		Format:  format,
		Quiet:   c.Quiet || cfg.Quiet,
		Verbose: c.Verbose || cfg.Verbose,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
	}
}

// Debug writes a verbose line to stderr
func (g *Globals) Debug(format string, args ...any) {
	if g == nil || !g.Verbose {
		return
	}
	fmt.Fprintf(g.Stderr, "[debug] "+format+"\n", args...)
}

// writer returns the record writer for the selected format
func (g *Globals) writer() output.Writer {
	if g.Format == "ndjson" {
		return output.NewNDJSONWriter(g.Stdout)
	}
	w := output.NewTextWriter(g.Stdout)
	w.Debug = g.Verbose
	return w
}

// isTerminal reports whether w is an interactive terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// VersionCmd shows version information
type VersionCmd struct{}

// VersionOutput is the NDJSON version record
type VersionOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	GoVersion     string `json:"go_version"`
	Platform      string `json:"platform"`
}

// Run executes the version command
func (c *VersionCmd) Run(globals *Globals) error {
	if globals.Format == "ndjson" {
		return json.NewEncoder(globals.Stdout).Encode(VersionOutput{
			Type:          "version",
			SchemaVersion: output.SchemaVersion,
			Version:       Version,
			Commit:        Commit,
			GoVersion:     runtime.Version(),
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
		})
	}
	fmt.Fprintf(globals.Stdout, "wattach %s (%s) %s %s/%s\n", Version, Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}
