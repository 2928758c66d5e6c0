// Package github maps crawled GitHub issues onto work item candidates.
package github

import (
	"fmt"
	"slices"
	"strings"

	"workgraph/internal/graph"
	"workgraph/internal/history"
	"workgraph/internal/links"
	"workgraph/internal/source"

	"github.com/rs/zerolog/log"
)

// AreaLabelPrefix marks labels that place an issue in an area, e.g. "area-GC".
const AreaLabelPrefix = "area-"

// MapIssue transforms a crawled issue into a candidate. products are the
// candidate product names configured for the issue's repository.
func MapIssue(dto IssueDTO, refs *links.Resolver, products []string) (source.Candidate, error) {
	if dto.Owner == "" || dto.Repo == "" || dto.Number <= 0 {
		return source.Candidate{}, fmt.Errorf("%w: github issue %s/%s#%d", source.ErrMissingID, dto.Owner, dto.Repo, dto.Number)
	}

	origin := strings.ToLower(dto.Owner + "/" + dto.Repo)
	c := source.Candidate{
		ID:        links.GitHubID(dto.Owner, dto.Repo, dto.Number),
		URL:       dto.URL,
		Origin:    origin,
		IsPrivate: dto.Private,
		CreatedBy: dto.User.login(),
	}
	if t, err := ParseTime(dto.CreatedAt); err == nil {
		c.CreatedAt = t
	}

	rec := history.Record{
		Source:   history.SourceGitHub,
		Open:     !strings.EqualFold(dto.State, "closed"),
		Title:    dto.Title,
		Products: products,
	}
	if dto.Milestone != nil {
		rec.Milestone = dto.Milestone.Title
	}
	for _, l := range dto.Labels {
		rec.Labels = append(rec.Labels, l.Name)
		if len(l.Name) > len(AreaLabelPrefix) && strings.EqualFold(l.Name[:len(AreaLabelPrefix)], AreaLabelPrefix) {
			c.Areas = append(c.Areas, l.Name[len(AreaLabelPrefix):])
		}
	}
	for _, a := range dto.Assignees {
		rec.Assignees = append(rec.Assignees, a.Login)
	}
	rec.Log = MapTimeline(c.ID, dto.Timeline)
	c.Record = rec

	for _, child := range refs.TaskListReferences(dto.Body, origin) {
		if child == c.ID {
			continue
		}
		c.Edges = append(c.Edges, graph.Edge{Parent: c.ID, Child: child})
	}

	return c, nil
}

// MapTimeline converts the timeline into raw changes the reconstructor can
// replay. Events without a replayable effect (comments, mentions,
// cross-references) are dropped, as are events with an unreadable timestamp.
func MapTimeline(id string, events []EventDTO) []history.RawChange {
	var out []history.RawChange
	skipped := 0

	for _, e := range events {
		when, err := ParseTime(e.CreatedAt)
		if err != nil {
			log.Warn().Str("item", id).Str("event", e.Event).Str("created_at", e.CreatedAt).Msg("Skipping timeline event with unreadable timestamp")
			continue
		}
		rc := history.RawChange{Actor: e.Actor.login(), When: when}

		switch e.Event {
		case EventLabeled, EventUnlabeled:
			if e.Label == nil {
				continue
			}
			rc.Field = history.FieldLabel
			if e.Event == EventLabeled {
				rc.New = e.Label.Name
			} else {
				rc.Old = e.Label.Name
			}
		case EventAssigned, EventUnassigned:
			if e.Assignee == nil {
				continue
			}
			rc.Field = history.FieldAssignee
			if e.Event == EventAssigned {
				rc.New = e.Assignee.Login
			} else {
				rc.Old = e.Assignee.Login
			}
		case EventMilestoned, EventDemilestoned:
			if e.Milestone == nil {
				continue
			}
			rc.Field = history.FieldMilestone
			if e.Event == EventMilestoned {
				rc.New = e.Milestone.Title
			} else {
				rc.Old = e.Milestone.Title
			}
		case EventRenamed:
			if e.Rename == nil {
				continue
			}
			rc.Field = history.FieldTitle
			rc.Old, rc.New = e.Rename.From, e.Rename.To
		case EventClosed:
			rc.Field, rc.Old, rc.New = history.FieldState, "open", "closed"
		case EventReopened:
			rc.Field, rc.Old, rc.New = history.FieldState, "closed", "open"
		default:
			skipped++
			continue
		}
		out = append(out, rc)
	}

	if skipped > 0 {
		log.Debug().Str("item", id).Int("skipped", skipped).Msg("Ignored timeline events without field changes")
	}

	slices.SortStableFunc(out, func(a, b history.RawChange) int {
		return a.When.Compare(b.When)
	})
	return out
}
