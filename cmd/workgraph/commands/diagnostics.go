package commands

import (
	"fmt"
	"io"
	"strings"

	"workgraph/internal/graph"
	"workgraph/internal/workspace"

	"github.com/spf13/cobra"
)

func newDiagnosticsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "List dangling links and broken cycles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(engine, cfg.SnapshotDir, cfg.Workers)
			if err != nil {
				return err
			}
			return runDiagnostics(cmd.OutOrStdout(), ws, format)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", FormatText, "output format (text, json or yaml)")
	return cmd
}

func runDiagnostics(w io.Writer, ws *workspace.Workspace, format string) error {
	diags := ws.Diagnostics()
	if !strings.EqualFold(format, FormatText) {
		if diags == nil {
			diags = []graph.Diagnostic{}
		}
		return writeFormatted(w, format, diags)
	}

	if len(diags) == 0 {
		fmt.Fprintln(w, "No diagnostics.")
		return nil
	}
	for _, d := range diags {
		fmt.Fprintf(w, "%s %s: %s\n", d.Code, d.ItemID, d.Message)
	}
	return nil
}
