package history

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"workgraph/internal/identity"
	"workgraph/internal/workitem"
)

// tracker holds the low-level fields of one item while its log is replayed.
// It never leaves the reconstructor.
type tracker struct {
	open      bool
	title     string
	milestone string
	labels    map[string]struct{}
	assignees map[string]struct{}
	fields    map[string]string
}

func newTracker(rec Record) *tracker {
	t := &tracker{
		open:      rec.Open,
		title:     rec.Title,
		milestone: rec.Milestone,
		labels:    make(map[string]struct{}, len(rec.Labels)),
		assignees: make(map[string]struct{}, len(rec.Assignees)),
		fields:    maps.Clone(rec.Fields),
	}
	if t.fields == nil {
		t.fields = make(map[string]string)
	}
	for _, l := range rec.Labels {
		t.labels[l] = struct{}{}
	}
	for _, a := range rec.Assignees {
		if a != "" {
			t.assignees[a] = struct{}{}
		}
	}
	return t
}

// values are the derived properties before milestone and user resolution.
type values struct {
	state     workitem.State
	kind      workitem.Kind
	priority  *int
	cost      workitem.Cost
	milestone string
	title     string
	bottomUp  bool
	assignees []string // sorted handles
}

// schema knows how one tracker stores the semantic properties.
type schema interface {
	revert(t *tracker, c RawChange) error
	derive(t *tracker) values
}

func schemaFor(s Source) (schema, error) {
	switch s {
	case SourceGitHub:
		return githubSchema{}, nil
	case SourceAzure:
		return azureSchema{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// GitHub label conventions.
const (
	LabelStatusPrefix   = "Status:"
	LabelPriorityPrefix = "Priority:"
	LabelCostPrefix     = "Cost:"
	LabelBottomUp       = "Bottom Up Work"
)

var githubKindLabels = map[string]workitem.Kind{
	"theme":      workitem.Theme,
	"epic":       workitem.Epic,
	"user story": workitem.UserStory,
}

type githubSchema struct{}

func (githubSchema) revert(t *tracker, c RawChange) error {
	switch c.Field {
	case FieldLabel:
		if c.New != "" {
			delete(t.labels, c.New)
		}
		if c.Old != "" {
			t.labels[c.Old] = struct{}{}
		}
	case FieldAssignee:
		if c.New != "" {
			delete(t.assignees, c.New)
		}
		if c.Old != "" {
			t.assignees[c.Old] = struct{}{}
		}
	case FieldMilestone:
		if c.New != "" && strings.EqualFold(t.milestone, c.New) {
			t.milestone = ""
		}
		if c.Old != "" {
			t.milestone = c.Old
		}
	case FieldTitle:
		t.title = c.Old
	case FieldState:
		t.open = !strings.EqualFold(c.Old, "closed")
	default:
		return fmt.Errorf("%w: github %q", ErrUnknownField, c.Field)
	}
	return nil
}

func (githubSchema) derive(t *tracker) values {
	v := values{
		kind:      workitem.Task,
		milestone: t.milestone,
		title:     t.title,
		assignees: sortedKeys(t.assignees),
	}

	kindFound := false
	status := workitem.Proposed
	cut := false
	for label := range t.labels {
		lower := strings.ToLower(strings.TrimSpace(label))

		if k, ok := githubKindLabels[lower]; ok {
			if !kindFound || k < v.kind {
				v.kind = k
				kindFound = true
			}
			continue
		}
		if lower == strings.ToLower(LabelBottomUp) {
			v.bottomUp = true
			continue
		}
		if rest, ok := cutPrefixFold(label, LabelStatusPrefix); ok {
			if s, ok := workitem.ParseState(rest); ok {
				if s == workitem.Cut {
					cut = true
				} else if s.Rank() > status.Rank() {
					status = s
				}
			}
			continue
		}
		if rest, ok := cutPrefixFold(label, LabelPriorityPrefix); ok {
			if p, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
				if v.priority == nil || p < *v.priority {
					v.priority = workitem.IntPtr(p)
				}
			}
			continue
		}
		if rest, ok := cutPrefixFold(label, LabelCostPrefix); ok {
			if c, ok := workitem.ParseCost(rest); ok && c > v.cost {
				v.cost = c
			}
		}
	}

	switch {
	case cut:
		v.state = workitem.Cut
	case !t.open:
		v.state = workitem.Completed
	default:
		v.state = status
	}
	return v
}

var azureStates = map[string]workitem.State{
	"new":         workitem.Proposed,
	"proposed":    workitem.Proposed,
	"committed":   workitem.Committed,
	"approved":    workitem.Committed,
	"active":      workitem.InProgress,
	"in progress": workitem.InProgress,
	"started":     workitem.InProgress,
	"cut":         workitem.Cut,
	"removed":     workitem.Cut,
	"done":        workitem.Completed,
	"closed":      workitem.Completed,
	"resolved":    workitem.Completed,
	"completed":   workitem.Completed,
}

var azureKinds = map[string]workitem.Kind{
	"scenario":    workitem.Theme,
	"theme":       workitem.Theme,
	"experience":  workitem.Epic,
	"epic":        workitem.Epic,
	"deliverable": workitem.UserStory,
	"user story":  workitem.UserStory,
	"feature":     workitem.UserStory,
	"task":        workitem.Task,
}

// Tag marking bottom-up work in System.Tags.
const AzureTagBottomUp = "BottomUp"

type azureSchema struct{}

func (azureSchema) revert(t *tracker, c RawChange) error {
	if !IsKnownField(SourceAzure, c.Field) {
		return fmt.Errorf("%w: azdo %q", ErrUnknownField, c.Field)
	}
	if c.Old == "" {
		delete(t.fields, c.Field)
	} else {
		t.fields[c.Field] = c.Old
	}
	return nil
}

func (azureSchema) derive(t *tracker) values {
	v := values{
		state:     workitem.Proposed,
		kind:      workitem.Task,
		milestone: t.fields[AzureMilestone],
		title:     t.fields[AzureTitle],
	}
	if s, ok := azureStates[strings.ToLower(strings.TrimSpace(t.fields[AzureState]))]; ok {
		v.state = s
	}
	if k, ok := azureKinds[strings.ToLower(strings.TrimSpace(t.fields[AzureWorkItemType]))]; ok {
		v.kind = k
	}
	if p, err := strconv.Atoi(strings.TrimSpace(t.fields[AzurePriority])); err == nil {
		v.priority = workitem.IntPtr(p)
	}
	if c, ok := workitem.ParseCost(t.fields[AzureCost]); ok {
		v.cost = c
	}
	for _, tag := range strings.Split(t.fields[AzureTags], ";") {
		if strings.EqualFold(strings.TrimSpace(tag), AzureTagBottomUp) {
			v.bottomUp = true
		}
	}
	if a := identity.NormalizeAzureHandle(t.fields[AzureAssignedTo]); a != "" {
		v.assignees = []string{a}
	}
	return v
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
