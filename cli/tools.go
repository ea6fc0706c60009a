package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/covailent/mcpd/tool"
	"github.com/covailent/mcpd/tools"
)

// NewToolsCmd creates the "tools" subcommand.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools discovery would register",
		RunE:  runTools,
	}
	cmd.Flags().Bool("json", false, "Emit the catalog as JSON")
	cmd.Flags().String("config", "", "Path to mcpd.yaml")
	return cmd
}

func runTools(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	registry := tool.Discover(tools.Constructors(cfg.Tools), slog.Default())
	catalog := registry.Catalog()

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		data, err := json.MarshalIndent(catalog, "", "  ")
		if err != nil {
			return fmt.Errorf("serializing catalog: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tINPUTS\tDESCRIPTION")
	for _, entry := range catalog {
		fmt.Fprintf(writer, "%s\t%d\t%s\n", entry.Name, len(entry.InputSchema.Fields), entry.Description)
	}
	return writer.Flush()
}
