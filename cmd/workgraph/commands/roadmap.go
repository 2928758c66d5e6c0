package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"workgraph/internal/roadmap"
	"workgraph/internal/visuals"
	"workgraph/internal/workitem"
	"workgraph/internal/workspace"

	"github.com/spf13/cobra"
)

// RoadmapFlags holds flags specific to the roadmap command.
type RoadmapFlags struct {
	Product string
	From    string
	To      string
	Output  string
}

type milestoneView struct {
	Version  string `json:"version" yaml:"version"`
	Released string `json:"released" yaml:"released"`
}

type entryView struct {
	Milestone string `json:"milestone" yaml:"milestone"`
	State     string `json:"state" yaml:"state"`
}

type roadmapItemView struct {
	ID      string      `json:"id" yaml:"id"`
	Title   string      `json:"title" yaml:"title"`
	Kind    string      `json:"kind" yaml:"kind"`
	State   string      `json:"state" yaml:"state"`
	Before  *entryView  `json:"before,omitempty" yaml:"before,omitempty"`
	Entries []entryView `json:"entries" yaml:"entries"`
	After   *entryView  `json:"after,omitempty" yaml:"after,omitempty"`
}

type roadmapView struct {
	Product    string            `json:"product" yaml:"product"`
	Milestones []milestoneView   `json:"milestones" yaml:"milestones"`
	Items      []roadmapItemView `json:"items" yaml:"items"`
}

func newRoadmapCmd() *cobra.Command {
	flags := &RoadmapFlags{}
	cmd := &cobra.Command{
		Use:   "roadmap",
		Short: "Project item states onto a product's release milestones",
		Long: `Project each item's state history onto the release milestones of one product.

With --from and --to the output is cut to that milestone range; each item then
also reports the last state before the range and the first state after it.

Examples:
  workgraph roadmap --product .NET
  workgraph roadmap --product .NET --from 8.0 --to 9.0 --output json
  workgraph roadmap --product .NET --output mermaid`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(engine, cfg.SnapshotDir, cfg.Workers)
			if err != nil {
				return err
			}
			return runRoadmap(cmd.OutOrStdout(), ws, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.Product, "product", "p", "", "product name")
	cmd.Flags().StringVar(&flags.From, "from", "", "first milestone version of the range")
	cmd.Flags().StringVar(&flags.To, "to", "", "last milestone version of the range")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", FormatYAML, "output format (yaml, json or mermaid)")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}

func runRoadmap(w io.Writer, ws *workspace.Workspace, flags *RoadmapFlags) error {
	r, err := roadmap.Build(ws, flags.Product, nil)
	if err != nil {
		return err
	}

	view := roadmapView{Product: r.Product.Name, Milestones: []milestoneView{}, Items: []roadmapItemView{}}
	ranged := flags.From != "" || flags.To != ""

	columns := r.Milestones
	var from, to *workitem.Milestone
	if ranged {
		if from, err = rangeEnd(r, flags.From, 0); err != nil {
			return err
		}
		if to, err = rangeEnd(r, flags.To, len(r.Milestones)-1); err != nil {
			return err
		}
		if columns, err = r.Range(from, to); err != nil {
			return err
		}
	}
	if strings.EqualFold(flags.Output, FormatMermaid) {
		if ranged {
			keep := make(map[*workitem.Milestone]bool, len(columns))
			for _, m := range columns {
				keep[m] = true
			}
			if r, err = roadmap.Build(ws, flags.Product, func(m *workitem.Milestone) bool { return keep[m] }); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintln(w, visuals.GenerateRoadmapChart(r))
		return err
	}

	for _, m := range columns {
		view.Milestones = append(view.Milestones, milestoneView{
			Version:  m.Version.String(),
			Released: m.ReleaseDate.Format(time.DateOnly),
		})
	}

	for _, it := range r.Items {
		iv := roadmapItemView{
			ID:      it.WorkItem.ID,
			Title:   it.WorkItem.Title,
			Kind:    it.WorkItem.Kind.String(),
			State:   it.WorkItem.State.String(),
			Entries: []entryView{},
		}
		entries := it.Entries
		if ranged {
			states, err := r.GetStates(it, from, to)
			if err != nil {
				return err
			}
			iv.Before = viewOf(states.Before)
			iv.After = viewOf(states.After)
			entries = states.Within
		}
		for _, e := range entries {
			iv.Entries = append(iv.Entries, *viewOf(&e))
		}
		view.Items = append(view.Items, iv)
	}

	return writeFormatted(w, flags.Output, view)
}

// rangeEnd resolves a --from or --to version, defaulting to the column at
// fallback when the flag is empty.
func rangeEnd(r *roadmap.Roadmap, version string, fallback int) (*workitem.Milestone, error) {
	if version == "" {
		if len(r.Milestones) == 0 {
			return nil, fmt.Errorf("%w: product %s has no dated milestones", roadmap.ErrUnknownMilestone, r.Product.Name)
		}
		return r.Milestones[fallback], nil
	}
	m, ok := r.Milestone(version)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", roadmap.ErrUnknownMilestone, r.Product.Name, version)
	}
	return m, nil
}

func viewOf(e *roadmap.Entry) *entryView {
	if e == nil {
		return nil
	}
	return &entryView{Milestone: e.Milestone.Version.String(), State: e.State.String()}
}
