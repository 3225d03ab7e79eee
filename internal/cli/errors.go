package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vburojevic/watchattach/internal/output"
)

// outputErrorCommon normalizes error emission across commands, respecting
// ndjson vs text formats so agents always get machine-readable failures.
func outputErrorCommon(globals *Globals, code, message string, hint ...string) error {
	if globals != nil && globals.Format == "ndjson" {
		output.NewNDJSONWriter(globals.Stdout).WriteError(code, message, hint...)
	} else if globals != nil {
		output.NewTextWriter(globals.Stderr).WriteError(code, message, hint...)
	}
	return errors.New(message)
}

// errorCode maps user-facing coordinator messages to stable codes
func errorCode(message string) string {
	switch {
	case message == missingProgramMessage:
		return "MISSING_PROGRAM"
	case strings.HasPrefix(message, taskNotFoundPrefix):
		return "TASK_NOT_FOUND"
	default:
		return "SESSION_ERROR"
	}
}

const (
	missingProgramMessage = "Cannot find a program to debug"
	taskNotFoundPrefix    = "Could not find task"
)

// errNotified is returned by run when the coordinator reported a fatal error
var errNotified = errors.New("session ended with an error")

func wrapNotified(message string) error {
	return fmt.Errorf("%w: %s", errNotified, message)
}
