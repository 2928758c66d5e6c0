// Package azdo maps crawled Azure DevOps work items onto work item candidates.
package azdo

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"workgraph/internal/graph"
	"workgraph/internal/history"
	"workgraph/internal/links"
	"workgraph/internal/source"

	"github.com/rs/zerolog/log"
)

var replayedFields = []string{
	history.AzureState,
	history.AzureWorkItemType,
	history.AzureTitle,
	history.AzureAssignedTo,
	history.AzureTags,
	history.AzurePriority,
	history.AzureCost,
	history.AzureMilestone,
}

// MapWorkItem transforms a crawled work item into a candidate. products are
// the candidate product names configured for the item's project.
func MapWorkItem(dto WorkItemDTO, refs *links.Resolver, products []string) (source.Candidate, error) {
	if dto.Org == "" || dto.ID <= 0 {
		return source.Candidate{}, fmt.Errorf("%w: azdo work item %s#%d", source.ErrMissingID, dto.Org, dto.ID)
	}

	id := links.AzureID(dto.Org, dto.ID)
	c := source.Candidate{
		ID:        id,
		URL:       dto.URL,
		Origin:    strings.ToLower(dto.Org + "/" + dto.Project),
		IsPrivate: true,
		CreatedBy: fieldString(dto.Fields[FieldCreatedBy]),
	}
	if c.URL == "" {
		c.URL = fmt.Sprintf("https://dev.azure.com/%s/%s/_workitems/edit/%d", dto.Org, dto.Project, dto.ID)
	}
	if t, err := ParseTime(fieldString(dto.Fields[FieldCreatedDate])); err == nil {
		c.CreatedAt = t
	}
	if area := fieldString(dto.Fields[FieldAreaPath]); area != "" {
		c.Areas = []string{strings.ReplaceAll(area, `\`, "/")}
	}

	rec := history.Record{
		Source:   history.SourceAzure,
		Fields:   make(map[string]string),
		Products: products,
	}
	for _, f := range replayedFields {
		if v := fieldString(dto.Fields[f]); v != "" {
			rec.Fields[f] = v
		}
	}
	rec.Log = MapUpdates(id, dto.Updates)
	c.Record = rec

	c.Edges = mapRelations(id, dto.Relations, refs)
	return c, nil
}

// MapUpdates flattens the update history into raw changes, keeping only the
// fields the reconstructor replays. The first revision creates the item and
// is not a transition.
func MapUpdates(id string, updates []UpdateDTO) []history.RawChange {
	sorted := slices.Clone(updates)
	slices.SortStableFunc(sorted, func(a, b UpdateDTO) int { return a.Rev - b.Rev })

	var out []history.RawChange
	for _, u := range sorted {
		if u.Rev <= 1 {
			continue
		}
		when, ok := updateTime(u)
		if !ok {
			log.Warn().Str("item", id).Int("rev", u.Rev).Msg("Skipping update with unreadable timestamp")
			continue
		}

		names := make([]string, 0, len(u.Fields))
		for name := range u.Fields {
			if history.IsKnownField(history.SourceAzure, name) {
				names = append(names, name)
			}
		}
		slices.Sort(names)

		for _, name := range names {
			fc := u.Fields[name]
			rc := history.RawChange{
				Field: name,
				Actor: u.RevisedBy.handle(),
				When:  when,
				Old:   fieldString(fc.OldValue),
				New:   fieldString(fc.NewValue),
			}
			if rc.Old == rc.New {
				continue
			}
			out = append(out, rc)
		}
	}

	slices.SortStableFunc(out, func(a, b history.RawChange) int {
		return a.When.Compare(b.When)
	})
	return out
}

// updateTime prefers System.ChangedDate; revisedDate is the end of the
// revision's validity rather than its start.
func updateTime(u UpdateDTO) (time.Time, bool) {
	if fc, ok := u.Fields[FieldChangedDate]; ok {
		if t, err := ParseTime(fieldString(fc.NewValue)); err == nil {
			return t, true
		}
	}
	if t, err := ParseTime(u.RevisedDate); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func mapRelations(id string, relations []RelationDTO, refs *links.Resolver) []graph.Edge {
	var edges []graph.Edge
	for _, r := range relations {
		other, ok := refs.Resolve(r.URL, "")
		if !ok || other == id {
			continue
		}
		switch r.Rel {
		case RelChild:
			edges = append(edges, graph.Edge{Parent: id, Child: other})
		case RelParent:
			edges = append(edges, graph.Edge{Parent: other, Child: id})
		case RelHyperlink:
			// Hyperlinks only count when they point at a GitHub issue.
			if strings.Contains(other, "/") {
				edges = append(edges, graph.Edge{Parent: id, Child: other})
			}
		}
	}
	return edges
}
