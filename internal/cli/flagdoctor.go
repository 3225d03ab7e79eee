package cli

// validateFlags centralizes common flag combinations to keep behavior consistent.
func validateFlags(globals *Globals, ui bool, dryRun bool) error {
	if ui && dryRun {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--ui cannot be combined with --dry-run", "drop one of them")
	}
	if ui && globals != nil && globals.Format == "ndjson" {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--ui requires text output", "add --format text or remove --ui")
	}
	if ui && globals != nil && !isTerminal(globals.Stdout) {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--ui requires an interactive terminal", "run without --ui when output is redirected")
	}
	// quiet + text is confusing for agents; steer to ndjson
	if globals != nil && globals.Format == "text" && globals.Quiet {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--quiet is only supported with ndjson output", "switch to --format ndjson or drop --quiet")
	}
	return nil
}
