package history

import (
	"testing"
	"time"

	"workgraph/internal/identity"
	"workgraph/internal/milestone"
	"workgraph/internal/workitem"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

func newTestReconstructor(t *testing.T) (*Reconstructor, *milestone.Parser) {
	t.Helper()
	p, err := milestone.NewParser(milestone.Config{
		Patterns: []string{`^(?P<version>\d+(?:\.\d+){0,2})(?:\s*(?P<suffixName>Preview|P)\s*(?P<suffixNumber>\d+))?$`},
		Products: []string{".NET"},
		SuffixAliases: map[string]string{
			"Preview": "P",
		},
	})
	require.NoError(t, err)
	return NewReconstructor(p, identity.NewResolver(nil), 0), p
}

func assertContinuity(t *testing.T, changes []workitem.Change) {
	t.Helper()
	last := make(map[workitem.ChangeKind]workitem.Change)
	for i, c := range changes {
		if i > 0 {
			assert.False(t, c.When.Before(changes[i-1].When), "changes out of order at %d", i)
		}
		if c.Kind.IsMembership() {
			continue
		}
		if p, ok := last[c.Kind]; ok {
			assert.Equal(t, p.Value, c.PreviousValue, "continuity broken for %s at %d", c.Kind, i)
		}
		last[c.Kind] = c
	}
}

func TestReconstruct_LabelSwapIsOneTransition(t *testing.T) {
	r, _ := newTestReconstructor(t)

	rec := Record{
		Source: SourceGitHub,
		Open:   true,
		Labels: []string{"Status: Committed"},
		Log: []RawChange{
			{Field: FieldLabel, Actor: "mona", When: at(1), New: "Status: Proposed"},
			{Field: FieldLabel, Actor: "mona", When: at(2), Old: "Status: Proposed"},
			{Field: FieldLabel, Actor: "mona", When: at(2), New: "Status: Committed"},
		},
	}

	changes, err := r.Reconstruct(rec)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	c := changes[0]
	assert.Equal(t, workitem.StateChanged, c.Kind)
	assert.Equal(t, at(2), c.When)
	assert.Equal(t, workitem.Proposed, c.PreviousValue)
	assert.Equal(t, workitem.Committed, c.Value)
	assert.Equal(t, "mona", c.Actor.GitHubLogin)
}

func TestReconstruct_AddBeforeRemoveInSameCluster(t *testing.T) {
	r, _ := newTestReconstructor(t)

	rec := Record{
		Source: SourceGitHub,
		Open:   true,
		Labels: []string{"Status: In Progress"},
		Log: []RawChange{
			{Field: FieldLabel, Actor: "mona", When: at(1), New: "Status: Committed"},
			{Field: FieldLabel, Actor: "mona", When: at(5), New: "Status: In Progress"},
			{Field: FieldLabel, Actor: "mona", When: at(5), Old: "Status: Committed"},
		},
	}

	changes, err := r.Reconstruct(rec)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, workitem.Proposed, changes[0].PreviousValue)
	assert.Equal(t, workitem.Committed, changes[0].Value)
	assert.Equal(t, workitem.Committed, changes[1].PreviousValue)
	assert.Equal(t, workitem.InProgress, changes[1].Value)
	assertContinuity(t, changes)
}

func TestReconstruct_MilestoneSwapInEitherOrder(t *testing.T) {
	orders := map[string][]RawChange{
		"MilestonedFirst": {
			{Field: FieldMilestone, Actor: "mona", When: at(10), New: "8.0"},
			{Field: FieldMilestone, Actor: "mona", When: at(10), Old: "7.0"},
		},
		"DemilestonedFirst": {
			{Field: FieldMilestone, Actor: "mona", When: at(10), Old: "7.0"},
			{Field: FieldMilestone, Actor: "mona", When: at(10), New: "8.0"},
		},
	}

	for name, swap := range orders {
		t.Run(name, func(t *testing.T) {
			r, p := newTestReconstructor(t)
			rec := Record{
				Source:    SourceGitHub,
				Open:      true,
				Milestone: "8.0",
				Log: append([]RawChange{
					{Field: FieldMilestone, Actor: "mona", When: at(0), New: "7.0"},
				}, swap...),
			}

			changes, err := r.Reconstruct(rec)
			require.NoError(t, err)
			require.Len(t, changes, 2)

			seven := p.Milestone(".NET", workitem.Version{Major: 7})
			eight := p.Milestone(".NET", workitem.Version{Major: 8})

			assert.Equal(t, at(0), changes[0].When)
			assert.Nil(t, changes[0].PreviousValue)
			assert.Same(t, seven, changes[0].Milestone())

			assert.Equal(t, at(10), changes[1].When)
			assert.Same(t, seven, changes[1].PreviousValue)
			assert.Same(t, eight, changes[1].Milestone())
			assertContinuity(t, changes)
		})
	}
}

func TestReconstruct_CloseAndReopen(t *testing.T) {
	r, _ := newTestReconstructor(t)

	rec := Record{
		Source: SourceGitHub,
		Open:   false,
		Labels: []string{"Epic", "Status: In Progress"},
		Log: []RawChange{
			{Field: FieldState, Actor: "a", When: at(1), Old: "open", New: "closed"},
			{Field: FieldState, Actor: "b", When: at(2), Old: "closed", New: "open"},
			{Field: FieldState, Actor: "a", When: at(3), Old: "open", New: "closed"},
		},
	}

	changes, err := r.Reconstruct(rec)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	for _, c := range changes {
		assert.Equal(t, workitem.StateChanged, c.Kind)
	}
	assert.Equal(t, workitem.Completed, changes[2].Value)
	assert.Equal(t, "b", changes[1].Actor.GitHubLogin)
	assertContinuity(t, changes)
}

func TestReconstruct_MilestoneUnsetSetIsCompacted(t *testing.T) {
	r, p := newTestReconstructor(t)

	rec := Record{
		Source:    SourceGitHub,
		Open:      true,
		Milestone: "8.0",
		Products:  []string{".NET"},
		Log: []RawChange{
			{Field: FieldMilestone, Actor: "mona", When: at(0), New: "7.0"},
			{Field: FieldMilestone, Actor: "mona", When: at(10), Old: "7.0"},
			{Field: FieldMilestone, Actor: "mona", When: at(10).Add(2 * time.Second), New: "8.0"},
		},
	}

	changes, err := r.Reconstruct(rec)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	seven := p.Milestone(".NET", workitem.Version{Major: 7})
	eight := p.Milestone(".NET", workitem.Version{Major: 8})

	assert.Nil(t, changes[0].PreviousValue)
	assert.Same(t, seven, changes[0].Milestone())

	assert.Equal(t, workitem.MilestoneChanged, changes[1].Kind)
	assert.Same(t, seven, changes[1].PreviousValue)
	assert.Same(t, eight, changes[1].Milestone())
	assert.Equal(t, at(10).Add(2*time.Second), changes[1].When)
	assertContinuity(t, changes)
}

func TestReconstruct_CompactionRespectsWindowAndActor(t *testing.T) {
	r, _ := newTestReconstructor(t)

	base := Record{
		Source:    SourceGitHub,
		Open:      true,
		Milestone: "8.0",
		Products:  []string{".NET"},
	}

	late := base
	late.Log = []RawChange{
		{Field: FieldMilestone, Actor: "mona", When: at(0), New: "7.0"},
		{Field: FieldMilestone, Actor: "mona", When: at(10), Old: "7.0"},
		{Field: FieldMilestone, Actor: "mona", When: at(11), New: "8.0"},
	}
	changes, err := r.Reconstruct(late)
	require.NoError(t, err)
	assert.Len(t, changes, 3)
	assertContinuity(t, changes)

	otherActor := base
	otherActor.Log = []RawChange{
		{Field: FieldMilestone, Actor: "mona", When: at(0), New: "7.0"},
		{Field: FieldMilestone, Actor: "mona", When: at(10), Old: "7.0"},
		{Field: FieldMilestone, Actor: "hubot", When: at(10).Add(time.Second), New: "8.0"},
	}
	changes, err = r.Reconstruct(otherActor)
	require.NoError(t, err)
	assert.Len(t, changes, 3)
}

func TestReconstruct_CompactionDropsRoundTrip(t *testing.T) {
	r, _ := newTestReconstructor(t)

	rec := Record{
		Source:    SourceGitHub,
		Open:      true,
		Milestone: "7.0",
		Products:  []string{".NET"},
		Log: []RawChange{
			{Field: FieldMilestone, Actor: "mona", When: at(10), Old: "7.0"},
			{Field: FieldMilestone, Actor: "mona", When: at(10).Add(time.Second), New: "7.0"},
		},
	}

	changes, err := r.Reconstruct(rec)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestReconstruct_AssigneeDeltas(t *testing.T) {
	r, _ := newTestReconstructor(t)

	rec := Record{
		Source:    SourceGitHub,
		Open:      true,
		Assignees: []string{"bob", "carol"},
		Log: []RawChange{
			{Field: FieldAssignee, Actor: "lead", When: at(1), New: "alice"},
			{Field: FieldAssignee, Actor: "lead", When: at(2), New: "bob"},
			{Field: FieldAssignee, Actor: "lead", When: at(3), Old: "alice"},
			{Field: FieldAssignee, Actor: "lead", When: at(3), New: "carol"},
		},
	}

	changes, err := r.Reconstruct(rec)
	require.NoError(t, err)
	require.Len(t, changes, 4)

	assert.Equal(t, workitem.AssigneeAdded, changes[0].Kind)
	assert.Equal(t, "alice", changes[0].User().GitHubLogin)
	assert.Equal(t, workitem.AssigneeAdded, changes[1].Kind)
	assert.Equal(t, "bob", changes[1].User().GitHubLogin)
	assert.Equal(t, workitem.AssigneeRemoved, changes[2].Kind)
	assert.Equal(t, "alice", changes[2].User().GitHubLogin)
	assert.Equal(t, workitem.AssigneeAdded, changes[3].Kind)
	assert.Equal(t, "carol", changes[3].User().GitHubLogin)
}

func TestReconstruct_DerivedPropertiesFromLabels(t *testing.T) {
	r, _ := newTestReconstructor(t)

	rec := Record{
		Source: SourceGitHub,
		Open:   true,
		Title:  "Ship it",
		Labels: []string{"Priority: 1", "Cost: L", "Bottom Up Work", "User Story"},
		Log: []RawChange{
			{Field: FieldLabel, Actor: "a", When: at(1), New: "Priority: 2"},
			{Field: FieldLabel, Actor: "a", When: at(2), Old: "Priority: 2"},
			{Field: FieldLabel, Actor: "a", When: at(2), New: "Priority: 1"},
			{Field: FieldLabel, Actor: "a", When: at(3), New: "Cost: L"},
			{Field: FieldLabel, Actor: "a", When: at(4), New: "Bottom Up Work"},
			{Field: FieldLabel, Actor: "a", When: at(5), New: "User Story"},
			{Field: FieldTitle, Actor: "a", When: at(6), Old: "Ship", New: "Ship it"},
		},
	}

	changes, err := r.Reconstruct(rec)
	require.NoError(t, err)

	kinds := make([]workitem.ChangeKind, 0, len(changes))
	for _, c := range changes {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []workitem.ChangeKind{
		workitem.PriorityChanged,
		workitem.PriorityChanged,
		workitem.CostChanged,
		workitem.IsBottomUpChanged,
		workitem.KindChanged,
		workitem.TitleChanged,
	}, kinds)

	assert.Nil(t, changes[0].PreviousValue)
	assert.Equal(t, 2, changes[0].Value)
	assert.Equal(t, 2, changes[1].PreviousValue)
	assert.Equal(t, 1, changes[1].Value)
	assert.Equal(t, workitem.Large, changes[2].Value)
	assert.Equal(t, true, changes[3].Value)
	assert.Equal(t, workitem.Task, changes[4].PreviousValue)
	assert.Equal(t, workitem.UserStory, changes[4].Value)
	assert.Equal(t, "Ship", changes[5].PreviousValue)
	assertContinuity(t, changes)
}

func TestReconstruct_Azure(t *testing.T) {
	r, _ := newTestReconstructor(t)

	rec := Record{
		Source: SourceAzure,
		Fields: map[string]string{
			AzureState:        "Active",
			AzureWorkItemType: "Deliverable",
			AzureTitle:        "Improve startup",
			AzureAssignedTo:   "Jane Doe <janed@contoso.com>",
			AzurePriority:     "2",
			AzureMilestone:    "8.0",
			AzureTags:         "perf; BottomUp",
		},
		Products: []string{".NET"},
		Log: []RawChange{
			{Field: AzureState, Actor: "Jane Doe <janed@contoso.com>", When: at(1), Old: "New", New: "Committed"},
			{Field: AzureState, Actor: "Jane Doe <janed@contoso.com>", When: at(2), Old: "Committed", New: "Active"},
			{Field: AzureAssignedTo, Actor: "lead", When: at(3), Old: "Bob <bob@contoso.com>", New: "Jane Doe <janed@contoso.com>"},
		},
	}

	current, err := r.Current(rec)
	require.NoError(t, err)
	assert.Equal(t, workitem.InProgress, current.State)
	assert.Equal(t, workitem.UserStory, current.Kind)
	assert.True(t, current.IsBottomUp)
	require.NotNil(t, current.Priority)
	assert.Equal(t, 2, *current.Priority)
	require.Len(t, current.Assignees, 1)
	assert.Equal(t, "janed", current.Assignees[0].MicrosoftAlias)
	require.NotNil(t, current.Milestone)

	changes, err := r.Reconstruct(rec)
	require.NoError(t, err)
	require.Len(t, changes, 4)
	assert.Equal(t, workitem.Proposed, changes[0].PreviousValue)
	assert.Equal(t, workitem.Committed, changes[0].Value)
	assert.Equal(t, "janed", changes[0].Actor.MicrosoftAlias)
	assert.Equal(t, workitem.InProgress, changes[1].Value)
	assert.Equal(t, workitem.AssigneeRemoved, changes[2].Kind)
	assert.Equal(t, "bob", changes[2].User().MicrosoftAlias)
	assert.Equal(t, workitem.AssigneeAdded, changes[3].Kind)
	assertContinuity(t, changes)
}

func TestReconstruct_UnknownMilestoneDegrades(t *testing.T) {
	r, _ := newTestReconstructor(t)

	rec := Record{
		Source:    SourceGitHub,
		Open:      true,
		Milestone: "Backlog",
		Log: []RawChange{
			{Field: FieldMilestone, Actor: "a", When: at(1), New: "Backlog"},
		},
	}

	current, err := r.Current(rec)
	require.NoError(t, err)
	assert.Nil(t, current.Milestone)

	changes, err := r.Reconstruct(rec)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestReconstruct_UnknownFieldIsFatal(t *testing.T) {
	r, _ := newTestReconstructor(t)

	_, err := r.Reconstruct(Record{
		Source: SourceGitHub,
		Log:    []RawChange{{Field: "commented", Actor: "a", When: at(1)}},
	})
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = r.Reconstruct(Record{
		Source: SourceAzure,
		Log:    []RawChange{{Field: "System.History", Actor: "a", When: at(1)}},
	})
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = r.Reconstruct(Record{Source: "trello"})
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestReconstruct_UnsortedLogIsOrdered(t *testing.T) {
	r, _ := newTestReconstructor(t)

	rec := Record{
		Source: SourceGitHub,
		Open:   true,
		Labels: []string{"Status: In Progress"},
		Log: []RawChange{
			{Field: FieldLabel, Actor: "a", When: at(5), New: "Status: In Progress"},
			{Field: FieldLabel, Actor: "a", When: at(1), New: "Status: Committed"},
		},
	}

	changes, err := r.Reconstruct(rec)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, at(1), changes[0].When)
	assert.Equal(t, workitem.Committed, changes[0].Value)
	assertContinuity(t, changes)
}
