// This file implements a hook that writes structured event data to stderr.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// StdioHook writes event data to an output stream in a configured format.
type StdioHook struct {
	id     string
	format string // "json" or "env"
	output *os.File
}

// NewStdioHook creates a new stdio hook.
func NewStdioHook(id, format string) *StdioHook {
	return &StdioHook{
		id:     id,
		format: format,
		output: os.Stderr, // stderr keeps stdout free for the media pipeline
	}
}

// SetOutput overrides the output destination (default: stderr).
func (h *StdioHook) SetOutput(output *os.File) *StdioHook {
	h.output = output
	return h
}

// Execute writes the event in the configured format.
func (h *StdioHook) Execute(ctx context.Context, event Event) error {
	switch h.format {
	case "json":
		return h.outputJSON(event)
	case "env":
		return h.outputEnv(event)
	default:
		return fmt.Errorf("stdio hook %s: unsupported format: %s", h.id, h.format)
	}
}

// Type returns the hook type.
func (h *StdioHook) Type() string { return "stdio" }

// ID returns the hook id.
func (h *StdioHook) ID() string { return h.id }

func (h *StdioHook) outputJSON(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("stdio hook %s: marshal: %w", h.id, err)
	}
	if _, err := fmt.Fprintf(h.output, "STREAMCORE_EVENT: %s\n", data); err != nil {
		return fmt.Errorf("stdio hook %s: write: %w", h.id, err)
	}
	return nil
}

func (h *StdioHook) outputEnv(event Event) error {
	lines := []string{
		"# streamcore event: " + string(event.Type),
		"STREAMCORE_EVENT_TYPE=" + string(event.Type),
		fmt.Sprintf("STREAMCORE_TIMESTAMP=%d", event.Timestamp),
	}
	if event.ItemID != "" {
		lines = append(lines, "STREAMCORE_ITEM_ID="+event.ItemID)
	}
	if event.PositionMs != 0 {
		lines = append(lines, fmt.Sprintf("STREAMCORE_POSITION_MS=%d", event.PositionMs))
	}
	if event.DurationMs != 0 {
		lines = append(lines, fmt.Sprintf("STREAMCORE_DURATION_MS=%d", event.DurationMs))
	}
	if event.Err != "" {
		lines = append(lines, "STREAMCORE_ERROR="+event.Err)
	}
	for key, value := range event.Data {
		lines = append(lines, "STREAMCORE_"+strings.ToUpper(key)+fmt.Sprintf("=%v", value))
	}
	lines = append(lines, "")

	for _, line := range lines {
		if _, err := fmt.Fprintln(h.output, line); err != nil {
			return fmt.Errorf("stdio hook %s: write: %w", h.id, err)
		}
	}
	return nil
}
