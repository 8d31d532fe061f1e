// This file implements a hook that runs a shell command with event data
// passed as environment variables.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// ShellHook runs a shell command when events occur.
type ShellHook struct {
	id       string
	command  string
	args     []string
	env      []string
	passJSON bool
}

// NewShellHook creates a hook that runs scriptPath via /bin/sh.
func NewShellHook(id, scriptPath string) *ShellHook {
	return &ShellHook{
		id:      id,
		command: "/bin/sh",
		args:    []string{scriptPath},
	}
}

// NewShellHookWithCommand creates a hook that runs an arbitrary command.
func NewShellHookWithCommand(id, command string, args []string) *ShellHook {
	return &ShellHook{id: id, command: command, args: args}
}

// SetPassJSON enables passing the event as JSON on the child's stdin.
func (h *ShellHook) SetPassJSON(passJSON bool) *ShellHook {
	h.passJSON = passJSON
	return h
}

// SetEnv sets additional environment variables for the child process.
func (h *ShellHook) SetEnv(env []string) *ShellHook {
	h.env = env
	return h
}

// Execute runs the command with the event passed as environment variables.
func (h *ShellHook) Execute(ctx context.Context, event Event) error {
	cmd := exec.CommandContext(ctx, h.command, h.args...)
	cmd.Env = append(cmd.Env, h.env...)
	cmd.Env = append(cmd.Env, h.buildEnvironment(event)...)

	if h.passJSON {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("shell hook %s: stdin pipe: %w", h.id, err)
		}
		go func() {
			defer stdin.Close()
			json.NewEncoder(stdin).Encode(event)
		}()
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell hook %s: %w", h.id, err)
	}
	return nil
}

// Type returns the hook type.
func (h *ShellHook) Type() string { return "shell" }

// ID returns the hook id.
func (h *ShellHook) ID() string { return h.id }

func (h *ShellHook) buildEnvironment(event Event) []string {
	env := []string{
		"STREAMCORE_EVENT_TYPE=" + string(event.Type),
		fmt.Sprintf("STREAMCORE_TIMESTAMP=%d", event.Timestamp),
	}
	if event.ItemID != "" {
		env = append(env, "STREAMCORE_ITEM_ID="+event.ItemID)
	}
	if event.PositionMs != 0 {
		env = append(env, fmt.Sprintf("STREAMCORE_POSITION_MS=%d", event.PositionMs))
	}
	if event.DurationMs != 0 {
		env = append(env, fmt.Sprintf("STREAMCORE_DURATION_MS=%d", event.DurationMs))
	}
	if event.Err != "" {
		env = append(env, "STREAMCORE_ERROR="+event.Err)
	}
	for key, value := range event.Data {
		env = append(env, "STREAMCORE_"+strings.ToUpper(key)+fmt.Sprintf("=%v", value))
	}
	return env
}
