package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"workgraph/internal/stats"
	"workgraph/internal/workspace"

	"github.com/spf13/cobra"
)

// AgingFlags holds flags specific to the aging command.
type AgingFlags struct {
	Output    string
	StaleOnly bool
}

type agingView struct {
	Persistence []stats.StatePersistence `json:"persistence" yaml:"persistence"`
	Items       []stats.StateAge         `json:"items" yaml:"items"`
}

func newAgingCmd() *cobra.Command {
	flags := &AgingFlags{}
	cmd := &cobra.Command{
		Use:   "aging",
		Short: "Age open work items against how long items usually stay in each state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(engine, cfg.SnapshotDir, cfg.Workers)
			if err != nil {
				return err
			}
			return runAging(cmd.OutOrStdout(), ws, flags, time.Now().UTC())
		},
	}
	cmd.Flags().StringVarP(&flags.Output, "output", "o", FormatText, "output format (text, json or yaml)")
	cmd.Flags().BoolVar(&flags.StaleOnly, "stale", false, "only list items past the 85th percentile of their state")
	return cmd
}

func runAging(w io.Writer, ws *workspace.Workspace, flags *AgingFlags, now time.Time) error {
	items := ws.WorkItems()
	view := agingView{
		Persistence: stats.CalculateStatePersistence(items),
		Items:       []stats.StateAge{},
	}
	for _, a := range stats.CalculateStateAging(items, now) {
		if flags.StaleOnly && !a.IsStale {
			continue
		}
		view.Items = append(view.Items, a)
	}
	if view.Persistence == nil {
		view.Persistence = []stats.StatePersistence{}
	}

	if !strings.EqualFold(flags.Output, FormatText) {
		return writeFormatted(w, flags.Output, view)
	}

	fmt.Fprintln(w, "State residency (days):")
	for _, p := range view.Persistence {
		fmt.Fprintf(w, "  %-11s n=%-4d median=%-6.1f p85=%-6.1f p95=%.1f\n", p.State, p.Count, p.Median, p.P85, p.P95)
	}
	fmt.Fprintf(w, "Open items: %d\n", len(view.Items))
	for _, a := range view.Items {
		marker := ""
		if a.IsStale {
			marker = " (stale)"
		}
		fmt.Fprintf(w, "  %-30s %-10s %-11s %6.1f days, P%d%s\n", a.ID, a.Kind, a.State, a.DaysInState, a.Percentile, marker)
	}
	return nil
}
