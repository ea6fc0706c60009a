package tools

import (
	"io"
	"log/slog"
	"testing"

	"github.com/covailent/mcpd/tool"
)

func TestConstructorsRegisterAllToolsInOrder(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := tool.Discover(Constructors(Config{}), logger)

	want := []string{
		"fetch_compound_by_name",
		"get_activity_data_for_target",
		"mutate_ligand",
		"optimize_molecule",
		"dock_ligand",
		"render_structure",
	}
	catalog := reg.Catalog()
	if len(catalog) != len(want) {
		t.Fatalf("catalog length = %d, want %d", len(catalog), len(want))
	}
	for i, entry := range catalog {
		if entry.Name != want[i] {
			t.Fatalf("catalog[%d] = %q, want %q", i, entry.Name, want[i])
		}
		if entry.Description == "" {
			t.Fatalf("%s has an empty description", entry.Name)
		}
		if len(entry.OutputSchema.Fields) == 0 {
			t.Fatalf("%s has an empty output schema", entry.Name)
		}
	}
}

func TestEveryToolExposesAHealthProbe(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := tool.Discover(Constructors(Config{}), logger)

	for _, entry := range reg.Catalog() {
		tl, ok := reg.Lookup(entry.Name)
		if !ok {
			t.Fatalf("%s missing from registry", entry.Name)
		}
		if _, ok := tl.(tool.HealthChecker); !ok {
			t.Fatalf("%s does not implement HealthChecker", entry.Name)
		}
	}
}
