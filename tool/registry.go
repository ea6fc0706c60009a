package tool

import (
	"fmt"
	"log/slog"

	"github.com/covailent/mcpd/schema"
)

// Constructor builds the tools of one implementation unit. A unit may yield
// zero, one, or many tools.
type Constructor func() ([]Tool, error)

// Entry is the exported metadata for one registered tool.
type Entry struct {
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	InputSchema  schema.Object `json:"input_schema"`
	OutputSchema schema.Object `json:"output_schema"`
}

// Registry maps tool names to registered tools. It is built once by Discover
// and sealed before it is handed out; after that it is read-only and safe for
// concurrent lookup without synchronization.
type Registry struct {
	tools map[string]Tool
	order []string
}

// Discover runs every constructor exactly once and builds the sealed
// registry. Each constructor executes inside an isolated failure boundary:
// an error or panic in one unit is logged and skipped, and discovery
// continues with the rest. Duplicate names keep the first registration; the
// duplicate is logged and dropped.
func Discover(constructors []Constructor, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{tools: make(map[string]Tool)}
	for i, constructor := range constructors {
		tools, err := construct(constructor)
		if err != nil {
			logger.Error("tool unit failed to load; skipping",
				"unit", i,
				"error", err,
			)
			continue
		}
		for _, t := range tools {
			if err := validateContract(t); err != nil {
				logger.Error("tool failed contract validation; skipping",
					"unit", i,
					"error", err,
				)
				continue
			}
			name := t.Name()
			if _, dup := r.tools[name]; dup {
				logger.Warn("duplicate tool name; keeping first registration",
					"tool", name,
					"unit", i,
				)
				continue
			}
			r.tools[name] = t
			r.order = append(r.order, name)
			logger.Info("registered tool", "tool", name)
		}
	}
	return r
}

// construct invokes one constructor with panic isolation, so that a defect in
// a single unit cannot abort discovery of the remaining units.
func construct(constructor Constructor) (tools []Tool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			tools = nil
			err = fmt.Errorf("constructor panicked: %v", rec)
		}
	}()
	if constructor == nil {
		return nil, fmt.Errorf("constructor is nil")
	}
	return constructor()
}

// Lookup resolves a tool by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Catalog returns metadata for every registered tool in registration order.
// It is a pure read of the sealed registry.
func (r *Registry) Catalog() []Entry {
	entries := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		entries = append(entries, Entry{
			Name:         t.Name(),
			Description:  t.Description(),
			InputSchema:  t.InputSchema(),
			OutputSchema: t.OutputSchema(),
		})
	}
	return entries
}
