package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the "history" subcommand.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent tool invocations from the journal",
		RunE:  runHistory,
	}
	cmd.Flags().Int("limit", 20, "Maximum number of invocations to show")
	cmd.Flags().Bool("json", false, "Emit invocations as JSON")
	cmd.Flags().String("config", "", "Path to mcpd.yaml")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	journal, err := openJournal(cfg)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	if journal == nil {
		return exitError(exitValidation, "invocation journal is disabled in the config")
	}
	defer journal.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	invocations, err := journal.Recent(cmd.Context(), limit)
	if err != nil {
		return exitError(exitRuntime, "reading journal: %v", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		data, err := json.MarshalIndent(invocations, "", "  ")
		if err != nil {
			return fmt.Errorf("serializing invocations: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "STARTED\tTOOL\tOUTCOME\tDURATION\tREQUEST")
	for _, inv := range invocations {
		outcome := "ok"
		if !inv.Success {
			outcome = inv.ErrorKind
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%dms\t%s\n",
			inv.StartedAt.Format(time.RFC3339),
			inv.Tool,
			outcome,
			inv.DurationMS,
			inv.RequestID,
		)
	}
	return writer.Flush()
}
