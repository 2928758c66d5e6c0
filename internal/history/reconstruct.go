package history

import (
	"fmt"
	"slices"
	"time"

	"workgraph/internal/identity"
	"workgraph/internal/workitem"
)

// DefaultCompactionWindow is how far apart an "unset" and a "set" by the same
// actor may be and still count as one edit.
const DefaultCompactionWindow = 5 * time.Second

// MilestoneResolver maps milestone text to an interned milestone.
type MilestoneResolver interface {
	ResolveMilestone(raw string, candidates []string) *workitem.Milestone
}

// UserResolver maps a tracker handle to an interned user.
type UserResolver interface {
	GetUser(handle string, system identity.System) *workitem.User
}

// Current is the resolved present-day view of a record, used by adapters to
// fill in a work item.
type Current struct {
	State      workitem.State
	Kind       workitem.Kind
	Priority   *int
	Cost       workitem.Cost
	Milestone  *workitem.Milestone
	Title      string
	IsBottomUp bool
	Assignees  []*workitem.User
}

// Reconstructor derives semantic change histories. It holds no per-item
// state, so one instance may serve many goroutines as long as its resolvers
// are safe for concurrent use.
type Reconstructor struct {
	milestones MilestoneResolver
	users      UserResolver
	window     time.Duration
}

// NewReconstructor creates a reconstructor. A non-positive window selects
// DefaultCompactionWindow.
func NewReconstructor(milestones MilestoneResolver, users UserResolver, window time.Duration) *Reconstructor {
	if window <= 0 {
		window = DefaultCompactionWindow
	}
	return &Reconstructor{milestones: milestones, users: users, window: window}
}

type resolved struct {
	values
	ms *workitem.Milestone
}

func (r *Reconstructor) resolve(v values, rec Record, cache map[string]*workitem.Milestone) resolved {
	out := resolved{values: v}
	if v.milestone == "" {
		return out
	}
	m, ok := cache[v.milestone]
	if !ok {
		m = r.milestones.ResolveMilestone(v.milestone, rec.Products)
		cache[v.milestone] = m
	}
	out.ms = m
	return out
}

// Current derives the item's present values from its record.
func (r *Reconstructor) Current(rec Record) (Current, error) {
	s, err := schemaFor(rec.Source)
	if err != nil {
		return Current{}, err
	}
	v := r.resolve(s.derive(newTracker(rec)), rec, map[string]*workitem.Milestone{})

	c := Current{
		State:      v.state,
		Kind:       v.kind,
		Priority:   v.priority,
		Cost:       v.cost,
		Milestone:  v.ms,
		Title:      v.title,
		IsBottomUp: v.bottomUp,
	}
	for _, h := range v.assignees {
		c.Assignees = append(c.Assignees, r.users.GetUser(h, rec.Source.System()))
	}
	return c, nil
}

// Reconstruct replays the record's raw log from newest to oldest and returns
// the semantic changes in ascending order.
//
// Raw changes with the same timestamp and actor are reverted together, so a
// label swap recorded as remove+add yields a single transition.
func (r *Reconstructor) Reconstruct(rec Record) ([]workitem.Change, error) {
	s, err := schemaFor(rec.Source)
	if err != nil {
		return nil, err
	}

	raw := slices.Clone(rec.Log)
	slices.SortStableFunc(raw, func(a, b RawChange) int {
		return a.When.Compare(b.When)
	})

	cache := make(map[string]*workitem.Milestone)
	t := newTracker(rec)
	next := r.resolve(s.derive(t), rec, cache)

	var clusters [][]workitem.Change
	for end := len(raw); end > 0; {
		start := end - 1
		for start > 0 && raw[start-1].When.Equal(raw[end-1].When) && raw[start-1].Actor == raw[end-1].Actor {
			start--
		}

		for i := end - 1; i >= start; i-- {
			if err := s.revert(t, raw[i]); err != nil {
				return nil, fmt.Errorf("reverting change at %s: %w", raw[i].When.Format(time.RFC3339), err)
			}
		}

		prev := r.resolve(s.derive(t), rec, cache)
		actor := r.users.GetUser(raw[start].Actor, rec.Source.System())
		if changes := r.diff(prev, next, actor, raw[start].When, rec.Source.System()); len(changes) > 0 {
			clusters = append(clusters, changes)
		}

		next = prev
		end = start
	}

	var out []workitem.Change
	for i := len(clusters) - 1; i >= 0; i-- {
		out = append(out, clusters[i]...)
	}
	return compact(out, r.window), nil
}

// diff emits one change per property that differs between prev and next.
func (r *Reconstructor) diff(prev, next resolved, actor *workitem.User, when time.Time, system identity.System) []workitem.Change {
	var out []workitem.Change
	emit := func(kind workitem.ChangeKind, value, previous any) {
		out = append(out, workitem.Change{
			Actor:         actor,
			When:          when,
			Kind:          kind,
			Value:         value,
			PreviousValue: previous,
		})
	}

	if prev.kind != next.kind {
		emit(workitem.KindChanged, next.kind, prev.kind)
	}
	if prev.state != next.state {
		emit(workitem.StateChanged, next.state, prev.state)
	}
	if !samePriority(prev.priority, next.priority) {
		emit(workitem.PriorityChanged, workitem.OptionalInt(next.priority), workitem.OptionalInt(prev.priority))
	}
	if prev.cost != next.cost {
		emit(workitem.CostChanged, workitem.OptionalCost(next.cost), workitem.OptionalCost(prev.cost))
	}
	if prev.ms != next.ms {
		emit(workitem.MilestoneChanged, workitem.OptionalMilestone(next.ms), workitem.OptionalMilestone(prev.ms))
	}
	if prev.title != next.title {
		emit(workitem.TitleChanged, next.title, prev.title)
	}
	if prev.bottomUp != next.bottomUp {
		emit(workitem.IsBottomUpChanged, next.bottomUp, prev.bottomUp)
	}

	for _, h := range difference(prev.assignees, next.assignees) {
		emit(workitem.AssigneeRemoved, r.users.GetUser(h, system), nil)
	}
	for _, h := range difference(next.assignees, prev.assignees) {
		emit(workitem.AssigneeAdded, r.users.GetUser(h, system), nil)
	}
	return out
}

// compact merges an "unset" followed closely by a "set" of the same kind and
// actor into one transition. A merge that ends where it started is dropped.
func compact(changes []workitem.Change, window time.Duration) []workitem.Change {
	res := slices.Clone(changes)
	removed := make([]bool, len(res))
	last := make(map[workitem.ChangeKind][]int)

	for i := range res {
		c := &res[i]
		if c.Kind.IsMembership() {
			continue
		}
		stack := last[c.Kind]
		if n := len(stack); n > 0 {
			p := res[stack[n-1]]
			if p.Value == nil && c.PreviousValue == nil && p.Actor == c.Actor && c.When.Sub(p.When) <= window {
				removed[stack[n-1]] = true
				stack = stack[:n-1]
				c.PreviousValue = p.PreviousValue
				if c.PreviousValue == c.Value {
					removed[i] = true
					last[c.Kind] = stack
					continue
				}
			}
		}
		last[c.Kind] = append(stack, i)
	}

	out := res[:0]
	for i, c := range res {
		if !removed[i] {
			out = append(out, c)
		}
	}
	return out
}

func samePriority(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// difference returns the members of a missing from b. Both are sorted.
func difference(a, b []string) []string {
	var out []string
	for _, x := range a {
		if _, found := slices.BinarySearch(b, x); !found {
			out = append(out, x)
		}
	}
	return out
}
