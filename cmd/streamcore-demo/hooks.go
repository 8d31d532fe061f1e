package main

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alxayo/streamcore/internal/player/hooks"
)

var hookEventTypes = map[string]hooks.EventType{
	"loading":               hooks.EventLoading,
	"playing":               hooks.EventPlaying,
	"position":              hooks.EventPosition,
	"paused":                hooks.EventPaused,
	"resumed":               hooks.EventResumed,
	"end_of_track":          hooks.EventEndOfTrack,
	"stopped":               hooks.EventStopped,
	"preload_next":          hooks.EventPreloadNext,
	"audio_output_underrun": hooks.EventUnderrun,
	"error":                 hooks.EventPlayerError,
}

// buildHookManager wires the -hook-script/-hook-webhook/-hook-stdio-format
// flags into a hooks.Manager, mirroring the event_type=value assignment
// syntax the RTMP server's -hook-script/-hook-webhook flags used.
func buildHookManager(scripts, webhooks []string, stdioFormat, timeout string, concurrency int, log *zap.SugaredLogger) (*hooks.Manager, error) {
	cfg := hooks.DefaultConfig()
	cfg.Timeout = timeout
	cfg.Concurrency = concurrency
	cfg.StdioFormat = stdioFormat

	m := hooks.NewManager(cfg, log)

	for i, assignment := range scripts {
		eventType, path, err := splitHookAssignment("hook-script", assignment)
		if err != nil {
			return nil, err
		}
		if err := m.Register(eventType, hooks.NewShellHook(fmt.Sprintf("shell-%d", i), path)); err != nil {
			return nil, err
		}
	}

	for i, assignment := range webhooks {
		eventType, url, err := splitHookAssignment("hook-webhook", assignment)
		if err != nil {
			return nil, err
		}
		hook := hooks.NewWebhookHook(fmt.Sprintf("webhook-%d", i), url, 10*time.Second)
		if err := m.Register(eventType, hook); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func splitHookAssignment(flagName, assignment string) (hooks.EventType, string, error) {
	parts := strings.SplitN(assignment, "=", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid -%s %q, expected event_type=value", flagName, assignment)
	}
	eventType, ok := hookEventTypes[parts[0]]
	if !ok {
		return "", "", fmt.Errorf("invalid -%s: unknown event type %q", flagName, parts[0])
	}
	return eventType, parts[1], nil
}
