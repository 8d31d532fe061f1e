// This file implements the central manager for registering and dispatching
// hooks to playback events.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager manages hook registration and dispatch.
type Manager struct {
	hooks     map[EventType][]Hook
	stdioHook *StdioHook
	mu        sync.RWMutex
	pool      *executionPool
	log       *zap.SugaredLogger
	config    Config
}

// NewManager creates a new hook manager.
func NewManager(config Config, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if _, err := time.ParseDuration(config.Timeout); err != nil {
		log.Warnw("invalid hook timeout, using default", "timeout", config.Timeout, "error", err)
		config.Timeout = "10s"
	}

	m := &Manager{
		hooks:  make(map[EventType][]Hook),
		log:    log,
		config: config,
		pool:   newExecutionPool(config.Concurrency, log),
	}

	if config.StdioFormat != "" {
		if err := m.EnableStdioOutput(config.StdioFormat); err != nil {
			log.Warnw("invalid stdio hook format, stdio output disabled", "format", config.StdioFormat, "error", err)
		}
	}

	return m
}

// Register registers a hook for the given event type.
func (m *Manager) Register(eventType EventType, hook Hook) error {
	if hook == nil {
		return fmt.Errorf("hooks: cannot register a nil hook")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks[eventType] = append(m.hooks[eventType], hook)
	m.log.Infow("hook registered", "event_type", eventType, "hook_type", hook.Type(), "hook_id", hook.ID())
	return nil
}

// Unregister removes a hook by id from the given event type.
func (m *Manager) Unregister(eventType EventType, hookID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	hooks := m.hooks[eventType]
	for i, h := range hooks {
		if h.ID() == hookID {
			m.hooks[eventType] = append(hooks[:i], hooks[i+1:]...)
			m.log.Infow("hook unregistered", "event_type", eventType, "hook_id", hookID)
			return true
		}
	}
	return false
}

// Trigger dispatches event to every hook registered for its type, plus the
// stdio hook if enabled. Dispatch happens asynchronously; Trigger never
// blocks the caller (the player worker loop) on a slow hook.
func (m *Manager) Trigger(ctx context.Context, event Event) {
	if m == nil {
		return
	}

	m.mu.RLock()
	registered := m.hooks[event.Type]
	targets := make([]Hook, len(registered))
	copy(targets, registered)
	if m.stdioHook != nil {
		targets = append(targets, m.stdioHook)
	}
	m.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	m.log.Debugw("dispatching hook event", "event_type", event.Type, "hook_count", len(targets), "event", event.String())

	timeout, err := time.ParseDuration(m.config.Timeout)
	if err != nil {
		timeout = 10 * time.Second
	}
	for _, h := range targets {
		m.pool.execute(ctx, h, event, timeout)
	}
}

// EnableStdioOutput enables structured output to stderr.
func (m *Manager) EnableStdioOutput(format string) error {
	if format != "json" && format != "env" {
		return fmt.Errorf("hooks: unsupported stdio format: %s", format)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stdioHook = NewStdioHook("stdio", format)
	m.log.Infow("stdio hook output enabled", "format", format)
	return nil
}

// DisableStdioOutput disables structured output.
func (m *Manager) DisableStdioOutput() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stdioHook = nil
	m.log.Infow("stdio hook output disabled")
}

// Close shuts down the manager, waiting for in-flight hook executions.
func (m *Manager) Close() error {
	if m.pool != nil {
		m.pool.close()
	}
	m.log.Infow("hook manager closed")
	return nil
}

// executionPool bounds concurrent hook execution.
type executionPool struct {
	workers chan struct{}
	size    int
	log     *zap.SugaredLogger
}

func newExecutionPool(size int, log *zap.SugaredLogger) *executionPool {
	if size <= 0 {
		size = 10
	}
	return &executionPool{
		workers: make(chan struct{}, size),
		size:    size,
		log:     log,
	}
}

func (ep *executionPool) execute(ctx context.Context, h Hook, event Event, timeout time.Duration) {
	go func() {
		ep.workers <- struct{}{}
		defer func() { <-ep.workers }()

		execCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		err := h.Execute(execCtx, event)
		elapsed := time.Since(start)

		if err != nil {
			ep.log.Errorw("hook execution failed",
				"hook_type", h.Type(), "hook_id", h.ID(), "event_type", event.Type,
				"duration_ms", elapsed.Milliseconds(), "error", err)
			return
		}
		ep.log.Debugw("hook executed",
			"hook_type", h.Type(), "hook_id", h.ID(), "event_type", event.Type,
			"duration_ms", elapsed.Milliseconds())
	}()
}

// close waits for every in-flight execution to release its worker slot.
func (ep *executionPool) close() {
	for i := 0; i < cap(ep.workers); i++ {
		ep.workers <- struct{}{}
	}
}
