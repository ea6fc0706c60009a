// Package tool implements the dispatch core: tool contracts, the sealed
// registry built at startup, and the dispatcher that routes invocations
// through input validation, execution, and output validation.
package tool

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/covailent/mcpd/schema"
)

// Tool names are lowercase snake_case, at most 64 characters.
var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Tool is the contract every dispatchable tool satisfies. Implementations
// must be safe for concurrent Execute calls; the dispatcher gives each
// invocation an already-validated input payload and validates the returned
// payload against OutputSchema before it reaches any caller.
type Tool interface {
	Name() string
	Description() string
	InputSchema() schema.Object
	OutputSchema() schema.Object
	Execute(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

// RunFunc is the execution body of a declared tool.
type RunFunc func(ctx context.Context, inputs map[string]any) (map[string]any, error)

// Declaration describes a tool to New.
type Declaration struct {
	Name        string
	Description string
	Input       schema.Object
	Output      schema.Object
	Run         RunFunc
}

// New builds a Tool from a declaration, checking the contract at
// construction time so a malformed tool can never enter a registry.
func New(decl Declaration) (Tool, error) {
	if decl.Run == nil {
		return nil, fmt.Errorf("tool %q: run body is nil", decl.Name)
	}
	t := declaredTool{decl: decl}
	if err := validateContract(t); err != nil {
		return nil, err
	}
	return t, nil
}

type declaredTool struct {
	decl Declaration
}

func (t declaredTool) Name() string                { return t.decl.Name }
func (t declaredTool) Description() string         { return t.decl.Description }
func (t declaredTool) InputSchema() schema.Object  { return t.decl.Input }
func (t declaredTool) OutputSchema() schema.Object { return t.decl.Output }

func (t declaredTool) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	return t.decl.Run(ctx, inputs)
}

// validateContract checks the construction-time invariants shared by every
// tool implementation, declared or not.
func validateContract(t Tool) error {
	name := t.Name()
	if name == "" {
		return errors.New("tool has an empty name")
	}
	if !toolNamePattern.MatchString(name) {
		return fmt.Errorf("tool %q: name must match %s", name, toolNamePattern)
	}
	if t.Description() == "" {
		return fmt.Errorf("tool %q: description is empty", name)
	}
	if err := t.InputSchema().Check(); err != nil {
		return fmt.Errorf("tool %q: input schema: %w", name, err)
	}
	if err := t.OutputSchema().Check(); err != nil {
		return fmt.Errorf("tool %q: output schema: %w", name, err)
	}
	return nil
}
