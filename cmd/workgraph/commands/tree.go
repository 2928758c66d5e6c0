package commands

import (
	"errors"
	"fmt"
	"io"

	"workgraph/internal/visuals"
	"workgraph/internal/workitem"
	"workgraph/internal/workspace"

	"github.com/spf13/cobra"
)

var errUnknownItem = errors.New("unknown work item")

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [item-id]",
		Short: "Render the work item hierarchy as a Mermaid flowchart",
		Long: `Render the work item hierarchy as a Mermaid flowchart, starting from every
root item or from the given item.

Examples:
  workgraph tree
  workgraph tree dotnet/runtime#1`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(engine, cfg.SnapshotDir, cfg.Workers)
			if err != nil {
				return err
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runTree(cmd.OutOrStdout(), ws, id)
		},
	}
}

func runTree(w io.Writer, ws *workspace.Workspace, id string) error {
	roots := ws.RootWorkItems()
	if id != "" {
		it, ok := ws.WorkItem(id)
		if !ok {
			return fmt.Errorf("%w: %s", errUnknownItem, id)
		}
		roots = []*workitem.WorkItem{it}
	}
	_, err := fmt.Fprintln(w, visuals.GenerateHierarchyChart(ws, roots))
	return err
}
