package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/covailent/mcpd/schema"
	"github.com/covailent/mcpd/tool"
)

const (
	defaultPyMOLCommand = "pymol"
	defaultPyMOLTimeout = 2 * time.Minute
)

type pymolRunner struct {
	command string
	timeout time.Duration
}

func newPyMOLRunner(cfg Config) *pymolRunner {
	command := cfg.PyMOLCommand
	if command == "" {
		command = defaultPyMOLCommand
	}
	return &pymolRunner{
		command: command,
		timeout: timeoutOrDefault(cfg.PyMOLTimeoutMS, defaultPyMOLTimeout),
	}
}

func (r *pymolRunner) checkHealth(ctx context.Context) error {
	if _, err := exec.LookPath(r.command); err != nil {
		return fmt.Errorf("pymol not available: %w", err)
	}
	return nil
}

// PyMOLTools builds the render_structure tool, a headless batch render of a
// structure file to PNG.
func PyMOLTools(cfg Config) ([]tool.Tool, error) {
	runner := newPyMOLRunner(cfg)

	render, err := tool.New(tool.Declaration{
		Name:        "render_structure",
		Description: "Render a molecular structure file to a PNG image using PyMOL in batch mode.",
		Input: schema.Obj(
			schema.Field{Name: "structure_path", Type: schema.TypeString, Required: true, Description: "Path to the structure file (PDB, PDBQT, SDF, ...)."},
			schema.Field{Name: "width", Type: schema.TypeInteger, Default: 1200, Description: "Image width in pixels."},
			schema.Field{Name: "height", Type: schema.TypeInteger, Default: 900, Description: "Image height in pixels."},
			schema.Field{Name: "representation", Type: schema.TypeString, Default: "cartoon", Description: "Display representation: cartoon, sticks, spheres, or surface."},
		),
		Output: schema.Obj(
			schema.Field{Name: "image_path", Type: schema.TypeString, Required: true, Description: "Path to the rendered PNG."},
			logsField("Step-by-step rendering logs."),
		),
		Run: runner.renderStructure,
	})
	if err != nil {
		return nil, err
	}

	return []tool.Tool{checkedTool{Tool: render, check: runner.checkHealth}}, nil
}

var pymolRepresentations = map[string]struct{}{
	"cartoon": {},
	"sticks":  {},
	"spheres": {},
	"surface": {},
}

func (r *pymolRunner) renderStructure(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	logs := []string{}

	structurePath := inputs["structure_path"].(string)
	if _, err := os.Stat(structurePath); err != nil {
		return nil, fmt.Errorf("structure file not found: %s", structurePath)
	}

	representation := fmt.Sprintf("%v", inputs["representation"])
	if _, ok := pymolRepresentations[representation]; !ok {
		return nil, fmt.Errorf("unknown representation %q", representation)
	}

	workdir, err := os.MkdirTemp("", "pymol_")
	if err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	logs = append(logs, "Created working directory: "+workdir)

	imagePath := filepath.Join(workdir, "render.png")
	script := strings.Join([]string{
		"load " + structurePath,
		"hide everything",
		"show " + representation,
		"bg_color white",
		"orient",
		fmt.Sprintf("png %s, width=%s, height=%s, ray=1", imagePath, intArg(inputs["width"]), intArg(inputs["height"])),
	}, "; ")

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.command, "-cq", "-d", script)
	logs = append(logs, "Executing PyMOL: "+strings.Join(cmd.Args, " "))
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, subprocessError("pymol render", out, err)
	}

	if _, err := os.Stat(imagePath); err != nil {
		return nil, fmt.Errorf("pymol produced no image at %s", imagePath)
	}
	logs = append(logs, "Rendered image: "+imagePath)

	return map[string]any{
		"image_path": imagePath,
		"logs":       logsValue(logs),
	}, nil
}
