package cli

import (
	"encoding/json"
	"strings"
)

// SchemaCmd outputs JSON Schema for wattach NDJSON records
type SchemaCmd struct {
	Type []string `short:"t" help:"Record types to include (ready,session_start,session_end,attach_debug,error). Default: all"`
}

var schemaTypes = []string{"ready", "session_start", "session_end", "attach_debug", "error"}

// Run executes the schema command
func (c *SchemaCmd) Run(globals *Globals) error {
	schemas := map[string]map[string]any{
		"ready":         readySchema(),
		"session_start": sessionStartSchema(),
		"session_end":   sessionEndSchema(),
		"attach_debug":  attachDebugSchema(),
		"error":         errorSchema(),
	}

	typesToOutput := c.Type
	if len(typesToOutput) == 0 {
		typesToOutput = schemaTypes
	}

	defs := map[string]any{}
	for _, t := range typesToOutput {
		t = strings.ToLower(strings.TrimSpace(t))
		if schema, ok := schemas[t]; ok {
			defs[t] = schema
		}
	}

	encoder := json.NewEncoder(globals.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]any{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"title":       "wattach Output Schemas",
		"description": "JSON Schema definitions for all wattach NDJSON record types",
		"definitions": defs,
	})
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func record(title, typ string, props map[string]any, required ...string) map[string]any {
	props["type"] = map[string]any{"const": typ}
	props["schemaVersion"] = prop("integer", "Record schema version")
	return map[string]any{
		"type":       "object",
		"title":      title,
		"properties": props,
		"required":   append([]string{"type", "schemaVersion"}, required...),
	}
}

func readySchema() map[string]any {
	return record("Ready", "ready", map[string]any{
		"timestamp":     map[string]any{"type": "string", "format": "date-time", "description": "When the parent session started"},
		"configuration": prop("string", "Launch configuration name"),
		"program":       prop("string", "Watched process image name"),
		"task":          prop("string", "Companion task label"),
		"parent":        prop("string", "Parent session ID"),
	}, "timestamp", "configuration", "program", "parent")
}

func sessionStartSchema() map[string]any {
	return record("Session Start", "session_start", map[string]any{
		"alert":        map[string]any{"type": "string", "enum": []string{"APP_RELAUNCHED"}, "description": "Set when the process restarted with a new PID"},
		"session":      prop("integer", "Attach cycle number, starting at 1"),
		"pid":          prop("integer", "Attached process ID"),
		"previous_pid": prop("integer", "PID of the previous cycle"),
		"program":      prop("string", "Watched process image name"),
		"parent":       prop("string", "Parent session ID"),
		"timestamp":    map[string]any{"type": "string", "format": "date-time"},
	}, "session", "pid", "program", "parent", "timestamp")
}

func sessionEndSchema() map[string]any {
	return record("Session End", "session_end", map[string]any{
		"session": prop("integer", "Attach cycle number that ended"),
		"pid":     prop("integer", "Process ID of the cycle"),
		"summary": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"attempts":         prop("integer", "Attach attempts that led to the cycle"),
				"failures":         prop("integer", "Failed attempts before the cycle"),
				"duration_seconds": prop("integer", "Seconds the debugger stayed attached"),
			},
		},
	}, "session", "pid", "summary")
}

func attachDebugSchema() map[string]any {
	states := []string{"idle", "armed", "attempting", "attached", "given_up"}
	return record("Attach Debug", "attach_debug", map[string]any{
		"parent":  prop("string", "Parent session ID"),
		"from":    map[string]any{"type": "string", "enum": states},
		"to":      map[string]any{"type": "string", "enum": states},
		"attempt": prop("integer", "1-based attempt number"),
		"reason":  prop("string", "Why the transition happened"),
	}, "from", "to")
}

func errorSchema() map[string]any {
	return record("Error", "error", map[string]any{
		"code":    prop("string", "Stable error code, e.g. MISSING_PROGRAM or TASK_NOT_FOUND"),
		"message": prop("string", "Human readable message"),
		"hint":    prop("string", "Suggested fix"),
	}, "code", "message")
}
