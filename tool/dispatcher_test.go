package tool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/covailent/mcpd/schema"
)

type recordingObserver struct {
	mu           sync.Mutex
	observations []DispatchObservation
}

func (o *recordingObserver) ObserveDispatch(obs DispatchObservation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observations = append(o.observations, obs)
}

func (o *recordingObserver) last(t *testing.T) DispatchObservation {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.observations) == 0 {
		t.Fatal("no observations recorded")
	}
	return o.observations[len(o.observations)-1]
}

func newEchoDispatcher(t *testing.T) (*Dispatcher, *recordingObserver) {
	t.Helper()
	observer := &recordingObserver{}
	reg := Discover([]Constructor{singleToolConstructor(t, "echo")}, discardLogger())
	d, err := NewDispatcher(DispatcherConfig{
		Registry: reg,
		Logger:   discardLogger(),
		Observer: observer,
	})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return d, observer
}

func TestDispatchEchoScenario(t *testing.T) {
	d, observer := newEchoDispatcher(t)

	out, err := d.Dispatch(context.Background(), Request{
		Tool:    "echo",
		Payload: map[string]any{"text": "hi"},
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out["text"] != "hi" {
		t.Fatalf("text = %v, want hi", out["text"])
	}

	obs := observer.last(t)
	if !obs.Success || obs.Tool != "echo" || obs.RequestID == "" {
		t.Fatalf("observation = %+v, want success with request id", obs)
	}
}

func TestDispatchEmptyPayloadIsInvalidInput(t *testing.T) {
	d, _ := newEchoDispatcher(t)

	_, err := d.Dispatch(context.Background(), Request{Tool: "echo", Payload: map[string]any{}})
	dispatchErr, ok := AsDispatchError(err)
	if !ok {
		t.Fatalf("error = %v, want *DispatchError", err)
	}
	if dispatchErr.Kind != KindInvalidInput {
		t.Fatalf("Kind = %q, want %q", dispatchErr.Kind, KindInvalidInput)
	}
	if len(dispatchErr.Violations) != 1 || dispatchErr.Violations[0].Field != "text" {
		t.Fatalf("violations = %v, want one naming text", dispatchErr.Violations)
	}
}

func TestDispatchUnknownToolIsNotFound(t *testing.T) {
	d, observer := newEchoDispatcher(t)

	_, err := d.Dispatch(context.Background(), Request{Tool: "missing"})
	dispatchErr, ok := AsDispatchError(err)
	if !ok {
		t.Fatalf("error = %v, want *DispatchError", err)
	}
	if dispatchErr.Kind != KindNotFound {
		t.Fatalf("Kind = %q, want %q", dispatchErr.Kind, KindNotFound)
	}
	if obs := observer.last(t); obs.Success || obs.ErrorKind != KindNotFound {
		t.Fatalf("observation = %+v, want not_found failure", obs)
	}
}

func TestDispatchValidationPrecedesExecution(t *testing.T) {
	executed := false
	tl, err := New(Declaration{
		Name:        "guarded",
		Description: "Records whether it ran.",
		Input:       schema.Obj(schema.Field{Name: "text", Type: schema.TypeString, Required: true}),
		Output:      schema.Obj(),
		Run: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			executed = true
			return map[string]any{}, nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	reg := Discover([]Constructor{func() ([]Tool, error) { return []Tool{tl}, nil }}, discardLogger())
	d, err := NewDispatcher(DispatcherConfig{Registry: reg, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	if _, err := d.Dispatch(context.Background(), Request{Tool: "guarded"}); err == nil {
		t.Fatal("Dispatch() = nil error, want InvalidInput")
	}
	if executed {
		t.Fatal("execute ran despite input validation failure")
	}

	if _, err := d.Dispatch(context.Background(), Request{Tool: "absent"}); err == nil {
		t.Fatal("Dispatch() = nil error, want NotFound")
	}
	if executed {
		t.Fatal("execute ran for an unregistered tool name")
	}
}

func TestDispatchStripsUnrecognizedFieldsBeforeExecution(t *testing.T) {
	var seen map[string]any
	tl, err := New(Declaration{
		Name:        "strict",
		Description: "Captures the inputs it receives.",
		Input:       schema.Obj(schema.Field{Name: "text", Type: schema.TypeString, Required: true}),
		Output:      schema.Obj(),
		Run: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			seen = inputs
			return map[string]any{}, nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	reg := Discover([]Constructor{func() ([]Tool, error) { return []Tool{tl}, nil }}, discardLogger())
	d, err := NewDispatcher(DispatcherConfig{Registry: reg, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	if _, err := d.Dispatch(context.Background(), Request{
		Tool:    "strict",
		Payload: map[string]any{"text": "hi", "debug": true},
	}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if _, ok := seen["debug"]; ok {
		t.Fatal("execute received an undeclared field")
	}
	if seen["text"] != "hi" {
		t.Fatalf("text = %v, want hi", seen["text"])
	}
}

func TestDispatchMalformedOutputIsInvalidOutput(t *testing.T) {
	tl, err := New(Declaration{
		Name:        "broken",
		Description: "Returns output violating its own schema.",
		Input:       schema.Obj(),
		Output:      schema.Obj(schema.Field{Name: "score", Type: schema.TypeFloat, Required: true}),
		Run: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			return map[string]any{"score": "not a number"}, nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	reg := Discover([]Constructor{func() ([]Tool, error) { return []Tool{tl}, nil }}, discardLogger())
	d, err := NewDispatcher(DispatcherConfig{Registry: reg, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	out, err := d.Dispatch(context.Background(), Request{Tool: "broken"})
	if out != nil {
		t.Fatalf("output = %v, want nil (malformed data must not be returned)", out)
	}
	dispatchErr, ok := AsDispatchError(err)
	if !ok {
		t.Fatalf("error = %v, want *DispatchError", err)
	}
	if dispatchErr.Kind != KindInvalidOutput {
		t.Fatalf("Kind = %q, want %q", dispatchErr.Kind, KindInvalidOutput)
	}
}

func TestDispatchExecutionErrorIsExecutionFailed(t *testing.T) {
	tl, err := New(Declaration{
		Name:        "failing",
		Description: "Always fails.",
		Input:       schema.Obj(),
		Output:      schema.Obj(),
		Run: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			return nil, errors.New("upstream unavailable")
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	reg := Discover([]Constructor{func() ([]Tool, error) { return []Tool{tl}, nil }}, discardLogger())
	d, err := NewDispatcher(DispatcherConfig{Registry: reg, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	_, err = d.Dispatch(context.Background(), Request{Tool: "failing"})
	dispatchErr, ok := AsDispatchError(err)
	if !ok {
		t.Fatalf("error = %v, want *DispatchError", err)
	}
	if dispatchErr.Kind != KindExecutionFailed {
		t.Fatalf("Kind = %q, want %q", dispatchErr.Kind, KindExecutionFailed)
	}
}

func TestDispatchRecoversPanickingTool(t *testing.T) {
	tl, err := New(Declaration{
		Name:        "panicky",
		Description: "Panics on execution.",
		Input:       schema.Obj(),
		Output:      schema.Obj(),
		Run: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			panic("tool defect")
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	reg := Discover([]Constructor{func() ([]Tool, error) { return []Tool{tl}, nil }}, discardLogger())
	d, err := NewDispatcher(DispatcherConfig{Registry: reg, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	_, err = d.Dispatch(context.Background(), Request{Tool: "panicky"})
	dispatchErr, ok := AsDispatchError(err)
	if !ok {
		t.Fatalf("error = %v, want *DispatchError", err)
	}
	if dispatchErr.Kind != KindExecutionFailed {
		t.Fatalf("Kind = %q, want %q", dispatchErr.Kind, KindExecutionFailed)
	}
	if dispatchErr.Message != "tool execution failed" {
		t.Fatalf("Message = %q, want generic failure message without panic detail", dispatchErr.Message)
	}
}

func TestDispatchConcurrentInvocations(t *testing.T) {
	d, _ := newEchoDispatcher(t)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := d.Dispatch(context.Background(), Request{
				Tool:    "echo",
				Payload: map[string]any{"text": "hi"},
			})
			if err != nil {
				errs <- err
				return
			}
			if out["text"] != "hi" {
				errs <- errors.New("unexpected echo output")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent dispatch error = %v", err)
	}
}
