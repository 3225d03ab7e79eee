package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/vburojevic/watchattach/internal/output"
	"github.com/vburojevic/watchattach/internal/probe"
)

// ProbeCmd checks for a running process the way the attach loop does
type ProbeCmd struct {
	Program string        `arg:"" help:"Process image name or .app bundle path"`
	OS      string        `name:"os" enum:"auto,darwin,linux,windows" default:"auto" help:"Matching rule to apply"`
	Timeout time.Duration `default:"10s" help:"Listing timeout"`
}

// ProbeOutput is the NDJSON probe record
type ProbeOutput struct {
	Type          string `json:"type"` // probe
	SchemaVersion int    `json:"schemaVersion"`
	Program       string `json:"program"`
	Family        string `json:"family"`
	Running       bool   `json:"running"`
	PID           int    `json:"pid,omitempty"`
}

// Run executes the probe command
func (c *ProbeCmd) Run(globals *Globals) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	program, err := probe.ResolveProgram(c.Program)
	if err != nil {
		return outputErrorCommon(globals, "PROGRAM_INVALID", err.Error())
	}
	goos := c.OS
	if goos == "" || goos == "auto" {
		goos = runtime.GOOS
	}
	p := probe.New(probe.DetectFamily(goos))

	running, err := p.IsRunning(ctx, program)
	if err != nil {
		return outputErrorCommon(globals, "PROBE_FAILED", err.Error())
	}
	pid := 0
	if running {
		if pid, err = p.FindPID(ctx, program); err != nil && !errors.Is(err, probe.ErrProcessNotFound) {
			return outputErrorCommon(globals, "PROBE_FAILED", err.Error())
		}
	}
	globals.Debug("probe %s (%s): running=%t pid=%d", program, p.Family(), running, pid)

	if globals.Format == "ndjson" {
		return json.NewEncoder(globals.Stdout).Encode(ProbeOutput{
			Type:          "probe",
			SchemaVersion: output.SchemaVersion,
			Program:       program,
			Family:        p.Family().String(),
			Running:       running,
			PID:           pid,
		})
	}
	switch {
	case !running:
		fmt.Fprintf(globals.Stdout, "%s is not running\n", program)
	case pid > 0:
		fmt.Fprintf(globals.Stdout, "%s is running (PID %d)\n", program, pid)
	default:
		fmt.Fprintf(globals.Stdout, "%s is running\n", program)
	}
	return nil
}
