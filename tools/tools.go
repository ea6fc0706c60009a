// Package tools holds the built-in tool units: ChEMBL lookups, RDKit
// structure edits, AutoDock Vina docking, and PyMOL rendering. Each unit
// exposes a constructor suitable for tool.Discover; units are opaque to the
// dispatcher and only speak schema-conformant payloads.
package tools

import (
	"context"
	"time"

	"github.com/covailent/mcpd/schema"
	"github.com/covailent/mcpd/tool"
)

// Config carries per-unit settings. Zero values fall back to the defaults
// each unit documents.
type Config struct {
	// ChEMBL REST endpoint overrides.
	ChemblBaseURL   string `yaml:"chembl_base_url"`
	ChemblTimeoutMS int    `yaml:"chembl_timeout_ms"`

	// RDKitCommand is the JSON-over-stdio helper binary that performs the
	// actual cheminformatics work.
	RDKitCommand   string `yaml:"rdkit_command"`
	RDKitTimeoutMS int    `yaml:"rdkit_timeout_ms"`

	// Docking binaries. Each must be on PATH or an absolute path.
	VinaCommand            string `yaml:"vina_command"`
	PrepareReceptorCommand string `yaml:"prepare_receptor_command"`
	PrepareLigandCommand   string `yaml:"prepare_ligand_command"`
	VinaTimeoutMS          int    `yaml:"vina_timeout_ms"`

	PyMOLCommand   string `yaml:"pymol_command"`
	PyMOLTimeoutMS int    `yaml:"pymol_timeout_ms"`
}

func timeoutOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// Constructors returns the startup constructor list in registration order.
// The order is part of the catalog contract: /tools reports tools in the
// order their units appear here.
// checkedTool attaches a health probe to a declared tool so the monitor can
// pick it up through the optional HealthChecker interface.
type checkedTool struct {
	tool.Tool
	check func(ctx context.Context) error
}

func (t checkedTool) CheckHealth(ctx context.Context) error { return t.check(ctx) }

// logsField is the trailing log-trail field every unit's output carries.
func logsField(description string) schema.Field {
	return schema.Field{
		Name: "logs", Type: schema.TypeArray, Required: true,
		Description: description,
		Items:       &schema.Field{Name: "entry", Type: schema.TypeString},
	}
}

func logsValue(logs []string) []any {
	out := make([]any, len(logs))
	for i, entry := range logs {
		out[i] = entry
	}
	return out
}

func Constructors(cfg Config) []tool.Constructor {
	return []tool.Constructor{
		func() ([]tool.Tool, error) { return ChemblTools(cfg) },
		func() ([]tool.Tool, error) { return RDKitTools(cfg) },
		func() ([]tool.Tool, error) { return VinaTools(cfg) },
		func() ([]tool.Tool, error) { return PyMOLTools(cfg) },
	}
}
