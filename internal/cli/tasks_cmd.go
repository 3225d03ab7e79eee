package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/vburojevic/watchattach/internal/output"
	"github.com/vburojevic/watchattach/internal/task"
)

// TasksCmd lists the tasks a watch-attach configuration can reference
type TasksCmd struct {
	TasksFile string `default:"${config_tasks_file}" type:"path" help:"Path to tasks.json"`
}

// TaskOutput is one NDJSON task record
type TaskOutput struct {
	Type          string    `json:"type"` // task
	SchemaVersion int       `json:"schemaVersion"`
	Task          task.Task `json:"task"`
}

// Run executes the tasks command
func (c *TasksCmd) Run(globals *Globals) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tasks, err := task.NewFileSource(c.TasksFile, 0).Tasks(ctx)
	if err != nil {
		return outputErrorCommon(globals, "TASKS_FILE_INVALID", err.Error())
	}

	if globals.Format == "ndjson" {
		enc := json.NewEncoder(globals.Stdout)
		for _, t := range tasks {
			if err := enc.Encode(TaskOutput{Type: "task", SchemaVersion: output.SchemaVersion, Task: t}); err != nil {
				return err
			}
		}
		return nil
	}

	if len(tasks) == 0 {
		fmt.Fprintf(globals.Stdout, "No tasks in %s\n", c.TasksFile)
		return nil
	}
	table := tablewriter.NewWriter(globals.Stdout)
	table.Header("Label", "Type", "Command", "Cwd")
	for _, t := range tasks {
		command := strings.TrimSpace(t.Command + " " + strings.Join(t.Args, " "))
		if err := table.Append([]string{t.Label, string(t.Type), command, t.Options.Cwd}); err != nil {
			return fmt.Errorf("render tasks: %w", err)
		}
	}
	return table.Render()
}
