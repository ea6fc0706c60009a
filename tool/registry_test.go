package tool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/covailent/mcpd/schema"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoTool(t *testing.T, name string) Tool {
	t.Helper()
	tl, err := New(Declaration{
		Name:        name,
		Description: "Echo the provided text back.",
		Input:       schema.Obj(schema.Field{Name: "text", Type: schema.TypeString, Required: true}),
		Output:      schema.Obj(schema.Field{Name: "text", Type: schema.TypeString, Required: true}),
		Run: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			return map[string]any{"text": inputs["text"]}, nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tl
}

func singleToolConstructor(t *testing.T, name string) Constructor {
	tl := echoTool(t, name)
	return func() ([]Tool, error) { return []Tool{tl}, nil }
}

func TestNewRejectsBadDeclarations(t *testing.T) {
	run := func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		return nil, nil
	}
	valid := schema.Obj(schema.Field{Name: "text", Type: schema.TypeString})

	tests := []struct {
		name string
		decl Declaration
	}{
		{"empty name", Declaration{Description: "d", Input: valid, Output: valid, Run: run}},
		{"empty description", Declaration{Name: "echo", Input: valid, Output: valid, Run: run}},
		{"invalid name", Declaration{Name: "Echo Tool!", Description: "d", Input: valid, Output: valid, Run: run}},
		{"nil run body", Declaration{Name: "echo", Description: "d", Input: valid, Output: valid}},
		{"malformed input schema", Declaration{
			Name: "echo", Description: "d",
			Input:  schema.Obj(schema.Field{Name: "x", Type: "uuid"}),
			Output: valid, Run: run,
		}},
		{"malformed output schema", Declaration{
			Name: "echo", Description: "d",
			Input:  valid,
			Output: schema.Obj(schema.Field{Name: "x", Type: schema.TypeArray}),
			Run:    run,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.decl); err == nil {
				t.Fatal("New() = nil error, want configuration error")
			}
		})
	}
}

func TestNewAcceptsBoundaryNames(t *testing.T) {
	run := func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		return nil, nil
	}
	valid := schema.Obj(schema.Field{Name: "text", Type: schema.TypeString})

	for _, name := range []string{"x", "a2", strings.Repeat("a", 64)} {
		if _, err := New(Declaration{Name: name, Description: "d", Input: valid, Output: valid, Run: run}); err != nil {
			t.Fatalf("New(%q) error = %v, want nil", name, err)
		}
	}
	if _, err := New(Declaration{Name: strings.Repeat("a", 65), Description: "d", Input: valid, Output: valid, Run: run}); err == nil {
		t.Fatal("New() = nil error for 65-character name, want configuration error")
	}
}

func TestDiscoverRegistersAllUnits(t *testing.T) {
	reg := Discover([]Constructor{
		singleToolConstructor(t, "alpha"),
		singleToolConstructor(t, "beta"),
	}, discardLogger())

	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", reg.Len())
	}
	if _, ok := reg.Lookup("alpha"); !ok {
		t.Fatal("alpha not registered")
	}
	if _, ok := reg.Lookup("beta"); !ok {
		t.Fatal("beta not registered")
	}
}

func TestDiscoverFirstRegistrationWinsOnDuplicate(t *testing.T) {
	first, err := New(Declaration{
		Name:        "dock_ligand",
		Description: "First registration.",
		Input:       schema.Obj(),
		Output:      schema.Obj(schema.Field{Name: "which", Type: schema.TypeString, Required: true}),
		Run: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			return map[string]any{"which": "first"}, nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	second, err := New(Declaration{
		Name:        "dock_ligand",
		Description: "Duplicate registration.",
		Input:       schema.Obj(),
		Output:      schema.Obj(schema.Field{Name: "which", Type: schema.TypeString, Required: true}),
		Run: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			return map[string]any{"which": "second"}, nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	reg := Discover([]Constructor{
		func() ([]Tool, error) { return []Tool{first}, nil },
		func() ([]Tool, error) { return []Tool{second}, nil },
		singleToolConstructor(t, "bystander"),
	}, discardLogger())

	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (duplicate skipped, bystander kept)", reg.Len())
	}
	registered, ok := reg.Lookup("dock_ligand")
	if !ok {
		t.Fatal("dock_ligand not registered")
	}
	out, err := registered.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out["which"] != "first" {
		t.Fatalf("which = %v, want first", out["which"])
	}
}

func TestDiscoverIsolatesFailingUnits(t *testing.T) {
	reg := Discover([]Constructor{
		singleToolConstructor(t, "alpha"),
		func() ([]Tool, error) { return nil, errors.New("boom") },
		func() ([]Tool, error) { panic("defective unit") },
		nil,
		singleToolConstructor(t, "omega"),
	}, discardLogger())

	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", reg.Len())
	}
	if _, ok := reg.Lookup("alpha"); !ok {
		t.Fatal("alpha missing after a sibling unit failed")
	}
	if _, ok := reg.Lookup("omega"); !ok {
		t.Fatal("omega missing after a sibling unit failed")
	}
}

func TestDiscoverSkipsContractViolations(t *testing.T) {
	reg := Discover([]Constructor{
		func() ([]Tool, error) { return []Tool{badContractTool{}}, nil },
		singleToolConstructor(t, "alpha"),
	}, discardLogger())

	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}
	if _, ok := reg.Lookup("alpha"); !ok {
		t.Fatal("alpha missing")
	}
}

// badContractTool implements the interface but breaks the contract.
type badContractTool struct{}

func (badContractTool) Name() string                { return "" }
func (badContractTool) Description() string         { return "" }
func (badContractTool) InputSchema() schema.Object  { return schema.Obj() }
func (badContractTool) OutputSchema() schema.Object { return schema.Obj() }
func (badContractTool) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	return nil, nil
}

func TestCatalogPreservesRegistrationOrder(t *testing.T) {
	reg := Discover([]Constructor{
		singleToolConstructor(t, "zeta"),
		singleToolConstructor(t, "alpha"),
		singleToolConstructor(t, "mid"),
	}, discardLogger())

	catalog := reg.Catalog()
	if len(catalog) != 3 {
		t.Fatalf("catalog length = %d, want 3", len(catalog))
	}
	want := []string{"zeta", "alpha", "mid"}
	for i, entry := range catalog {
		if entry.Name != want[i] {
			t.Fatalf("catalog[%d] = %q, want %q", i, entry.Name, want[i])
		}
		if entry.Description == "" {
			t.Fatalf("catalog[%d] has empty description", i)
		}
	}
}

func TestCatalogEmptyRegistry(t *testing.T) {
	reg := Discover(nil, discardLogger())
	if got := reg.Catalog(); len(got) != 0 {
		t.Fatalf("catalog = %v, want empty", got)
	}
}
