package visuals

import (
	"fmt"
	"math"
	"strings"

	"workgraph/internal/roadmap"
	"workgraph/internal/workitem"
)

// Hierarchy is the parent/child view a chart walks.
type Hierarchy interface {
	Children(id string) []*workitem.WorkItem
}

// maxNodes bounds the flowchart; Mermaid's layout degrades long before this.
const maxNodes = 200

// GenerateHierarchyChart creates a Mermaid flowchart of the items reachable
// from roots. Items reachable through several parents appear once.
func GenerateHierarchyChart(h Hierarchy, roots []*workitem.WorkItem) string {
	if len(roots) == 0 {
		return ""
	}

	aliases := make(map[string]string)
	var nodes, edges []string
	truncated := false

	alias := func(it *workitem.WorkItem) (string, bool) {
		if a, ok := aliases[it.ID]; ok {
			return a, false
		}
		a := fmt.Sprintf("n%d", len(aliases))
		aliases[it.ID] = a
		node := fmt.Sprintf("    %s[\"%s\"]", a, label(it))
		if !it.IsOpen() {
			node += ":::closed"
		}
		nodes = append(nodes, node)
		return a, true
	}

	var walk func(it *workitem.WorkItem)
	walk = func(it *workitem.WorkItem) {
		parent, _ := alias(it)
		for _, child := range h.Children(it.ID) {
			if _, seen := aliases[child.ID]; !seen && len(aliases) >= maxNodes {
				truncated = true
				continue
			}
			a, fresh := alias(child)
			edges = append(edges, fmt.Sprintf("    %s --> %s", parent, a))
			if fresh {
				walk(child)
			}
		}
	}
	for _, r := range roots {
		if _, seen := aliases[r.ID]; seen {
			continue
		}
		if len(aliases) >= maxNodes {
			truncated = true
			break
		}
		walk(r)
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("flowchart TD\n")
	if truncated {
		sb.WriteString(fmt.Sprintf("    %%%% truncated to %d items\n", maxNodes))
	}
	for _, n := range nodes {
		sb.WriteString(n + "\n")
	}
	for _, e := range edges {
		sb.WriteString(e + "\n")
	}
	sb.WriteString("    classDef closed fill:#eee,color:#888\n")
	sb.WriteString("```")
	return sb.String()
}

func label(it *workitem.WorkItem) string {
	title := strings.ReplaceAll(it.Title, `"`, "#quot;")
	return fmt.Sprintf("%s %s<br/>%s", it.Kind, it.ID, title)
}

// chartStates are the lines of the roadmap chart, in drawing order.
var chartStates = []workitem.State{workitem.Committed, workitem.InProgress, workitem.Completed}

// GenerateRoadmapChart creates a Mermaid xychart-beta with one line per
// state, counting the items in that state at each milestone. Cut items count
// as completed.
func GenerateRoadmapChart(r *roadmap.Roadmap) string {
	if len(r.Milestones) == 0 {
		return ""
	}

	var labels []string
	series := make([][]string, len(chartStates))
	maxVal := 0

	for _, m := range r.Milestones {
		labels = append(labels, fmt.Sprintf("\"%s\"", m.Version))
		counts := make([]int, len(chartStates))
		for _, it := range r.Items {
			s, ok, err := r.StateAt(it, m)
			if err != nil || !ok {
				continue
			}
			for i, want := range chartStates {
				if s.Rank() == want.Rank() {
					counts[i]++
				}
			}
		}
		for i, c := range counts {
			series[i] = append(series[i], fmt.Sprintf("%d", c))
			if c > maxVal {
				maxVal = c
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString(fmt.Sprintf("    title \"Roadmap: %s\"\n", r.Product.Name))
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Items\" 0 --> %d\n", maxVal+int(math.Max(1, float64(maxVal)*0.2))))
	for _, values := range series {
		sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(values, ", ")))
	}
	sb.WriteString("```")
	return sb.String()
}
