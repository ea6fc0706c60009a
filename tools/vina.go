package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/covailent/mcpd/schema"
	"github.com/covailent/mcpd/tool"
)

const (
	defaultVinaCommand            = "vina"
	defaultPrepareReceptorCommand = "prepare_receptor"
	defaultPrepareLigandCommand   = "prepare_ligand4"
	defaultVinaTimeout            = 5 * time.Minute
)

// vinaRunner drives the docking pipeline: receptor and ligand preparation
// followed by the Vina search, all inside a fresh temp workdir per call.
type vinaRunner struct {
	vina            string
	prepareReceptor string
	prepareLigand   string
	timeout         time.Duration
}

func newVinaRunner(cfg Config) *vinaRunner {
	r := &vinaRunner{
		vina:            cfg.VinaCommand,
		prepareReceptor: cfg.PrepareReceptorCommand,
		prepareLigand:   cfg.PrepareLigandCommand,
		timeout:         timeoutOrDefault(cfg.VinaTimeoutMS, defaultVinaTimeout),
	}
	if r.vina == "" {
		r.vina = defaultVinaCommand
	}
	if r.prepareReceptor == "" {
		r.prepareReceptor = defaultPrepareReceptorCommand
	}
	if r.prepareLigand == "" {
		r.prepareLigand = defaultPrepareLigandCommand
	}
	return r
}

func (r *vinaRunner) checkHealth(ctx context.Context) error {
	for _, command := range []string{r.vina, r.prepareReceptor, r.prepareLigand} {
		if _, err := exec.LookPath(command); err != nil {
			return fmt.Errorf("docking binary not available: %w", err)
		}
	}
	return nil
}

// VinaTools builds the dock_ligand tool.
func VinaTools(cfg Config) ([]tool.Tool, error) {
	runner := newVinaRunner(cfg)

	dock, err := tool.New(tool.Declaration{
		Name:        "dock_ligand",
		Description: "Dock a ligand into a protein using AutoDock Vina via command line.",
		Input: schema.Obj(
			schema.Field{Name: "ligand_smiles", Type: schema.TypeString, Required: true, Description: "Ligand structure in SMILES format."},
			schema.Field{Name: "receptor_pdb_path", Type: schema.TypeString, Required: true, Description: "Path to the target protein PDB file."},
			schema.Field{Name: "center_x", Type: schema.TypeFloat, Default: 0.0, Description: "X coordinate of docking box center."},
			schema.Field{Name: "center_y", Type: schema.TypeFloat, Default: 0.0, Description: "Y coordinate of docking box center."},
			schema.Field{Name: "center_z", Type: schema.TypeFloat, Default: 0.0, Description: "Z coordinate of docking box center."},
			schema.Field{Name: "size_x", Type: schema.TypeFloat, Default: 20.0, Description: "Size of docking box along X axis."},
			schema.Field{Name: "size_y", Type: schema.TypeFloat, Default: 20.0, Description: "Size of docking box along Y axis."},
			schema.Field{Name: "size_z", Type: schema.TypeFloat, Default: 20.0, Description: "Size of docking box along Z axis."},
			schema.Field{Name: "exhaustiveness", Type: schema.TypeInteger, Default: 8, Description: "Exhaustiveness of the global search."},
			schema.Field{Name: "num_modes", Type: schema.TypeInteger, Default: 9, Description: "Maximum number of binding modes to generate."},
		),
		Output: schema.Obj(
			schema.Field{Name: "top_score", Type: schema.TypeFloat, Required: true, Description: "Best docking affinity score in kcal/mol."},
			schema.Field{Name: "pose_output_path", Type: schema.TypeString, Required: true, Description: "Path to the PDBQT file of the top-scoring pose."},
			logsField("Step-by-step execution logs."),
		),
		Run: runner.dockLigand,
	})
	if err != nil {
		return nil, err
	}

	return []tool.Tool{checkedTool{Tool: dock, check: runner.checkHealth}}, nil
}

func (r *vinaRunner) dockLigand(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	logs := []string{}

	receptorPDB := inputs["receptor_pdb_path"].(string)
	if _, err := os.Stat(receptorPDB); err != nil {
		return nil, fmt.Errorf("receptor file not found: %s", receptorPDB)
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	workdir, err := os.MkdirTemp("", "vina_")
	if err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	logs = append(logs, "Created working directory: "+workdir)

	stem := strings.TrimSuffix(filepath.Base(receptorPDB), filepath.Ext(receptorPDB))
	receptorPDBQT := filepath.Join(workdir, stem+".pdbqt")
	prepRec := exec.CommandContext(execCtx, r.prepareReceptor, "-r", receptorPDB, "-o", receptorPDBQT)
	logs = append(logs, "Running receptor preparation: "+strings.Join(prepRec.Args, " "))
	if out, err := prepRec.CombinedOutput(); err != nil {
		return nil, subprocessError("receptor preparation", out, err)
	}
	logs = append(logs, "Receptor PDBQT generated.")

	ligandPDBQT := filepath.Join(workdir, "ligand.pdbqt")
	prepLig := exec.CommandContext(execCtx, r.prepareLigand, "-l", "-", "-o", ligandPDBQT)
	prepLig.Stdin = strings.NewReader(inputs["ligand_smiles"].(string))
	logs = append(logs, "Running ligand preparation: "+strings.Join(prepLig.Args, " "))
	if out, err := prepLig.CombinedOutput(); err != nil {
		return nil, subprocessError("ligand preparation", out, err)
	}
	logs = append(logs, "Ligand PDBQT generated.")

	posePath := filepath.Join(workdir, "out.pdbqt")
	vinaCmd := exec.CommandContext(execCtx, r.vina,
		"--receptor", receptorPDBQT,
		"--ligand", ligandPDBQT,
		"--center_x", floatArg(inputs["center_x"]),
		"--center_y", floatArg(inputs["center_y"]),
		"--center_z", floatArg(inputs["center_z"]),
		"--size_x", floatArg(inputs["size_x"]),
		"--size_y", floatArg(inputs["size_y"]),
		"--size_z", floatArg(inputs["size_z"]),
		"--exhaustiveness", intArg(inputs["exhaustiveness"]),
		"--num_modes", intArg(inputs["num_modes"]),
		"--out", posePath,
	)
	logs = append(logs, "Executing Vina: "+strings.Join(vinaCmd.Args, " "))

	var stdout, stderr bytes.Buffer
	vinaCmd.Stdout = &stdout
	vinaCmd.Stderr = &stderr
	if err := vinaCmd.Run(); err != nil {
		return nil, subprocessError("vina", stderr.Bytes(), err)
	}
	logs = append(logs, strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")...)

	topScore, parseLog := parseTopScore(stdout.String())
	logs = append(logs, parseLog)

	return map[string]any{
		"top_score":        topScore,
		"pose_output_path": posePath,
		"logs":             logsValue(logs),
	}, nil
}

// parseTopScore pulls the affinity of the first binding mode out of Vina's
// result table. The table row for the best mode starts with the literal "1".
func parseTopScore(stdout string) (float64, string) {
	for _, line := range strings.Split(stdout, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "1 ") {
			continue
		}
		parts := strings.Fields(trimmed)
		if len(parts) < 2 {
			continue
		}
		score, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0.0, "Failed to parse score line: " + line
		}
		return score, fmt.Sprintf("Parsed top score: %g", score)
	}
	return 0.0, "No docking score parsed; setting top_score to 0.0"
}

func subprocessError(stage string, output []byte, err error) error {
	detail := strings.TrimSpace(string(output))
	if detail != "" {
		return fmt.Errorf("%s failed: %s", stage, detail)
	}
	return fmt.Errorf("%s failed: %w", stage, err)
}

func floatArg(value any) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", value)
	}
}

func intArg(value any) string {
	switch v := value.(type) {
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return fmt.Sprintf("%v", value)
	}
}
