// Package probe answers whether the watched process is currently running.
//
// The probe shells out to the platform process listing and matches the
// program name against its text. Matching is heuristic and differs per
// OS family:
//
//   - Windows: tasklist filtered by image name; the comparison uses the
//     name truncated to 25 characters because tasklist truncates long
//     image names.
//   - Darwin (and other Unix): plain substring match on `ps` output.
//   - Linux: the name must end a path that contains a /bin/ segment, so a
//     shell or grep line mentioning the name does not count.
//
// These rules can produce false positives (a command line that merely
// mentions the program) and false negatives (a binary run from outside a
// bin directory on Linux). They are kept as-is on purpose.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ErrProcessNotFound is returned by FindPID when no process matches
var ErrProcessNotFound = errors.New("process not found")

// Family selects the listing command and matching rule
type Family int

const (
	FamilyDarwin Family = iota
	FamilyLinux
	FamilyWindows
)

// String returns the family name
func (f Family) String() string {
	switch f {
	case FamilyDarwin:
		return "darwin"
	case FamilyLinux:
		return "linux"
	case FamilyWindows:
		return "windows"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// DetectFamily maps a GOOS value to a probe family. Unknown Unix flavours
// use the Darwin rule.
func DetectFamily(goos string) Family {
	switch goos {
	case "windows":
		return FamilyWindows
	case "linux", "android":
		return FamilyLinux
	default:
		return FamilyDarwin
	}
}

// WindowsImageNameLimit is the number of characters tasklist keeps of an image name
const WindowsImageNameLimit = 25

// Runner executes a listing command and returns its stdout
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", name, err)
	}
	return out, nil
}

// Probe checks the process listing of one OS family
type Probe struct {
	family Family
	run    Runner
}

// Option configures a Probe
type Option func(*Probe)

// WithRunner replaces the command runner
func WithRunner(r Runner) Option {
	return func(p *Probe) { p.run = r }
}

// New creates a Probe for family
func New(family Family, opts ...Option) *Probe {
	p := &Probe{family: family, run: ExecRunner}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Family returns the probe's OS family
func (p *Probe) Family() Family {
	return p.family
}

// IsRunning reports whether a process matching name is in the listing.
// Failing to run the listing command is an error, not a false result.
func (p *Probe) IsRunning(ctx context.Context, name string) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, errors.New("process name is required")
	}
	listing, err := p.list(ctx, name)
	if err != nil {
		return false, err
	}
	return Matches(p.family, string(listing), name), nil
}

// FindPID returns the newest (highest) PID whose listing line matches name
func (p *Probe) FindPID(ctx context.Context, name string) (int, error) {
	listing, err := p.list(ctx, name)
	if err != nil {
		return 0, err
	}
	best := 0
	for _, line := range strings.Split(string(listing), "\n") {
		if !Matches(p.family, line, name) {
			continue
		}
		if pid := linePID(p.family, line); pid > best {
			best = pid
		}
	}
	if best == 0 {
		return 0, fmt.Errorf("%s: %w", name, ErrProcessNotFound)
	}
	return best, nil
}

func (p *Probe) list(ctx context.Context, name string) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch p.family {
	case FamilyWindows:
		out, err = p.run(ctx, "powershell.exe", "tasklist", "/fi", fmt.Sprintf(`"IMAGENAME eq %s"`, name))
	default:
		out, err = p.run(ctx, "ps", "-o", "pid,ppid,command", "-ax")
	}
	if err != nil {
		return nil, fmt.Errorf("list processes (%s): %w", p.family, err)
	}
	return out, nil
}

// Matches applies the family's matching rule to a process listing
func Matches(family Family, listing, name string) bool {
	if name == "" {
		return false
	}
	switch family {
	case FamilyWindows:
		return strings.Contains(listing, truncateImageName(name))
	case FamilyLinux:
		return binPathPattern(name).MatchString(listing)
	default:
		return strings.Contains(listing, name)
	}
}

func truncateImageName(name string) string {
	r := []rune(name)
	if len(r) > WindowsImageNameLimit {
		return string(r[:WindowsImageNameLimit])
	}
	return name
}

func binPathPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`/bin/(\S*/)?` + regexp.QuoteMeta(name) + `(\s|$)`)
}

// linePID extracts the PID column from one listing line
func linePID(family Family, line string) int {
	fields := strings.Fields(line)
	idx := 0
	if family == FamilyWindows {
		// Image Name   PID Session Name ...
		idx = 1
	}
	if len(fields) <= idx {
		return 0
	}
	pid, err := strconv.Atoi(fields[idx])
	if err != nil {
		return 0
	}
	return pid
}
