package commands

import (
	"fmt"
	"io"

	"workgraph/internal/workspace"

	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the workspace and print a summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(engine, cfg.SnapshotDir, cfg.Workers)
			if err != nil {
				return err
			}
			return runBuild(cmd.OutOrStdout(), ws)
		},
	}
}

func runBuild(w io.Writer, ws *workspace.Workspace) error {
	diags := ws.Diagnostics()
	fmt.Fprintf(w, "Workspace %s\n", ws.ID())
	fmt.Fprintf(w, "  Items:       %d (%d roots)\n", len(ws.WorkItems()), len(ws.RootWorkItems()))
	fmt.Fprintf(w, "  Users:       %d\n", len(ws.Users()))
	fmt.Fprintf(w, "  Products:    %d\n", len(ws.Products()))
	fmt.Fprintf(w, "  Milestones:  %d\n", len(ws.Milestones()))
	fmt.Fprintf(w, "  Diagnostics: %d\n", len(diags))
	for _, d := range diags {
		fmt.Fprintf(w, "%s %s: %s\n", d.Code, d.ItemID, d.Message)
	}
	return nil
}
