package tool

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// Request is one tool invocation.
type Request struct {
	Tool      string         `json:"tool_name"`
	Payload   map[string]any `json:"payload,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Registry *Registry
	Logger   *slog.Logger
	Observer Observer
	// NewID overrides request-id generation, mainly for tests.
	NewID func() string
}

// Dispatcher routes invocations through the sealed registry: lookup,
// input validation, execution, output validation. It holds no mutable state
// across calls, so any number of invocations may be dispatched concurrently.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	observer Observer
	newID    func() string
}

// NewDispatcher creates a dispatcher over a sealed registry.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("tool: dispatcher registry is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	return &Dispatcher{
		registry: cfg.Registry,
		logger:   logger,
		observer: observer,
		newID:    newID,
	}, nil
}

// Dispatch runs one invocation to completion and returns the validated
// output or a classified *DispatchError. Each state has its own error exit;
// no state is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (map[string]any, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = d.newID()
	}
	start := time.Now()

	t, ok := d.registry.Lookup(req.Tool)
	if !ok {
		return nil, d.fail(requestID, start, notFoundError(req.Tool))
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	inputs, violations := t.InputSchema().Conform(payload)
	if len(violations) > 0 {
		return nil, d.fail(requestID, start, invalidInputError(req.Tool, violations))
	}

	raw, execErr := d.execute(ctx, t, inputs)
	if execErr != nil {
		// The failure detail is logged here; the caller sees the tool's own
		// error message and never an internal stack artifact.
		d.logger.Error("tool execution failed",
			"tool", req.Tool,
			"request_id", requestID,
			"error", execErr,
		)
		return nil, d.fail(requestID, start, executionFailedError(req.Tool, execErr.Error(), execErr))
	}

	if raw == nil {
		raw = map[string]any{}
	}
	outputs, violations := t.OutputSchema().Conform(raw)
	if len(violations) > 0 {
		d.logger.Error("tool output violates its declared schema",
			"tool", req.Tool,
			"request_id", requestID,
			"violations", len(violations),
		)
		return nil, d.fail(requestID, start, invalidOutputError(req.Tool, violations))
	}

	d.observer.ObserveDispatch(DispatchObservation{
		RequestID:  requestID,
		Tool:       req.Tool,
		DurationMS: time.Since(start).Milliseconds(),
		Success:    true,
	})
	return outputs, nil
}

// execute invokes the tool with panic recovery: a defect in the tool's own
// logic is contained to this invocation and surfaced as a plain error.
func (d *Dispatcher) execute(ctx context.Context, t Tool, inputs map[string]any) (outputs map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("tool execution panicked",
				"tool", t.Name(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			outputs = nil
			err = errors.New("tool execution failed")
		}
	}()
	return t.Execute(ctx, inputs)
}

func (d *Dispatcher) fail(requestID string, start time.Time, dispatchErr *DispatchError) error {
	d.observer.ObserveDispatch(DispatchObservation{
		RequestID:  requestID,
		Tool:       dispatchErr.Tool,
		DurationMS: time.Since(start).Milliseconds(),
		Success:    false,
		ErrorKind:  dispatchErr.Kind,
	})
	return dispatchErr
}
