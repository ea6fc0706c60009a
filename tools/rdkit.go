package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/covailent/mcpd/schema"
	"github.com/covailent/mcpd/tool"
)

const (
	defaultRDKitCommand = "mcpd-rdkit-helper"
	defaultRDKitTimeout = 30 * time.Second
)

// rdkitHelper wraps the cheminformatics helper binary. Each call is one
// short-lived subprocess: the request goes to stdin as a JSON document, the
// response comes back on stdout as a JSON document.
type rdkitHelper struct {
	command string
	timeout time.Duration
}

type rdkitRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

type rdkitResponse struct {
	OK     bool           `json:"ok"`
	Error  string         `json:"error,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

func newRDKitHelper(cfg Config) *rdkitHelper {
	command := cfg.RDKitCommand
	if command == "" {
		command = defaultRDKitCommand
	}
	return &rdkitHelper{
		command: command,
		timeout: timeoutOrDefault(cfg.RDKitTimeoutMS, defaultRDKitTimeout),
	}
}

func (h *rdkitHelper) run(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(rdkitRequest{Action: action, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode helper request: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, h.command)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if execCtx.Err() != nil {
			return nil, fmt.Errorf("rdkit helper timed out after %s", h.timeout)
		}
		detail := bytes.TrimSpace(stderr.Bytes())
		if len(detail) > 0 {
			return nil, fmt.Errorf("rdkit helper failed: %s", detail)
		}
		return nil, fmt.Errorf("rdkit helper failed: %w", err)
	}

	var resp rdkitResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode helper response: %w", err)
	}
	if !resp.OK {
		if resp.Error == "" {
			resp.Error = "helper reported failure without detail"
		}
		return nil, fmt.Errorf("rdkit helper: %s", resp.Error)
	}
	if resp.Result == nil {
		resp.Result = map[string]any{}
	}
	return resp.Result, nil
}

func (h *rdkitHelper) checkHealth(ctx context.Context) error {
	if _, err := exec.LookPath(h.command); err != nil {
		return fmt.Errorf("rdkit helper not available: %w", err)
	}
	return nil
}

// RDKitTools builds the structure-editing tools backed by the helper
// subprocess: mutate_ligand and optimize_molecule.
func RDKitTools(cfg Config) ([]tool.Tool, error) {
	helper := newRDKitHelper(cfg)

	mutate, err := tool.New(tool.Declaration{
		Name:        "mutate_ligand",
		Description: "Apply a textual chemical modification to a ligand SMILES using RDKit.",
		Input: schema.Obj(
			schema.Field{Name: "smiles", Type: schema.TypeString, Required: true, Description: "Original molecule in SMILES format."},
			schema.Field{Name: "modification", Type: schema.TypeString, Required: true, Description: "Textual description of the desired modification."},
		),
		Output: schema.Obj(
			schema.Field{Name: "modified_smiles", Type: schema.TypeString, Required: true, Description: "Modified molecule in SMILES format."},
			logsField("Step-by-step logs of the mutation process."),
		),
		Run: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			return helper.run(ctx, "mutate_ligand", inputs)
		},
	})
	if err != nil {
		return nil, err
	}

	optimize, err := tool.New(tool.Declaration{
		Name:        "optimize_molecule",
		Description: "Generate a 3D conformation and optimize it with a force field via RDKit.",
		Input: schema.Obj(
			schema.Field{Name: "smiles", Type: schema.TypeString, Required: true, Description: "Molecule in SMILES format to optimize."},
			schema.Field{Name: "max_iterations", Type: schema.TypeInteger, Default: 200, Description: "Maximum iterations for force field optimization."},
		),
		Output: schema.Obj(
			schema.Field{Name: "optimized_smiles", Type: schema.TypeString, Required: true, Description: "SMILES of the optimized molecule."},
			schema.Field{Name: "energy", Type: schema.TypeFloat, Required: true, Description: "Final force-field energy after optimization."},
			logsField("Step-by-step logs of the optimization process."),
		),
		Run: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			return helper.run(ctx, "optimize_molecule", inputs)
		},
	})
	if err != nil {
		return nil, err
	}

	return []tool.Tool{
		checkedTool{Tool: mutate, check: helper.checkHealth},
		checkedTool{Tool: optimize, check: helper.checkHealth},
	}, nil
}
