package domain

import (
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/samber/lo"
)

// ErrMissingProgram is returned when a watch-attach configuration has no program
var ErrMissingProgram = errors.New("cannot find a program to debug")

// WatchAttachConfiguration holds the user-declared settings of one watch-attach session
type WatchAttachConfiguration struct {
	Program string         `mapstructure:"program" json:"program"`
	Task    string         `mapstructure:"task" json:"task,omitempty"`
	Args    map[string]any `mapstructure:"args" json:"args,omitempty"`
}

// Validate checks the invariants the coordinator relies on
func (c *WatchAttachConfiguration) Validate() error {
	// any non-empty name is kept as given, whitespace included
	if c.Program == "" {
		return ErrMissingProgram
	}
	return nil
}

// DecodeConfiguration converts a session's raw configuration map into a
// WatchAttachConfiguration. Unknown keys (type, request, name, ...) are ignored.
func DecodeConfiguration(raw map[string]any) (WatchAttachConfiguration, error) {
	var cfg WatchAttachConfiguration
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return WatchAttachConfiguration{}, fmt.Errorf("decode watch attach configuration: %w", err)
	}
	if cfg.Args == nil {
		cfg.Args = map[string]any{}
	}
	if err := cfg.Validate(); err != nil {
		return WatchAttachConfiguration{}, err
	}
	return cfg, nil
}

// Child configuration keys
const (
	KeyType        = "type"
	KeyRequest     = "request"
	KeyName        = "name"
	KeyProcessName = "processName"
)

// Fixed template values for child sessions
const (
	ChildDebuggerType = "coreclr"
	ChildRequest      = "attach"
)

// ChildDebugConfiguration is the materialized configuration handed to the gateway
type ChildDebugConfiguration map[string]any

// childTemplate returns the fixed fields every child configuration carries
func childTemplate() map[string]any {
	return map[string]any{
		KeyType:    ChildDebuggerType,
		KeyRequest: ChildRequest,
		KeyName:    ChildSessionName,
	}
}

// BuildChildConfiguration merges user args, the fixed template and the
// process name. Template fields and processName always win over args.
func BuildChildConfiguration(cfg WatchAttachConfiguration) ChildDebugConfiguration {
	merged := lo.Assign(
		cfg.Args,
		childTemplate(),
		map[string]any{KeyProcessName: cfg.Program},
	)
	return ChildDebugConfiguration(merged)
}

func (c ChildDebugConfiguration) str(key string) string {
	s, _ := c[key].(string)
	return s
}

// Type returns the debugger kind
func (c ChildDebugConfiguration) Type() string { return c.str(KeyType) }

// Request returns the debug request ("attach")
func (c ChildDebugConfiguration) Request() string { return c.str(KeyRequest) }

// Name returns the child session display name
func (c ChildDebugConfiguration) Name() string { return c.str(KeyName) }

// ProcessName returns the process image to attach to
func (c ChildDebugConfiguration) ProcessName() string { return c.str(KeyProcessName) }
