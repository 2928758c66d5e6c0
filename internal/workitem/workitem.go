// Package workitem defines the canonical work-item model shared by every
// tracker adapter: items, their semantic change history, users, products
// and milestones.
package workitem

import (
	"cmp"
	"strings"
	"time"
)

// User is a person known to one or more trackers.
type User struct {
	DisplayName    string `json:"displayName"`
	GitHubLogin    string `json:"gitHubLogin,omitempty"`
	MicrosoftAlias string `json:"microsoftAlias,omitempty"`
}

func (u *User) String() string {
	if u == nil {
		return ""
	}
	switch {
	case u.GitHubLogin != "":
		return u.GitHubLogin
	case u.MicrosoftAlias != "":
		return u.MicrosoftAlias
	}
	return u.DisplayName
}

func (u *User) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// WorkItem is the canonical unit of planning. Items are created once by a
// source adapter and never mutated after the workspace is built. Parent and
// child links live in the workspace, not on the item.
type WorkItem struct {
	ID         string
	URL        string
	Origin     string // owner/repo or org/project the item was crawled from
	IsPrivate  bool
	IsBottomUp bool
	State      State
	Kind       Kind
	Title      string
	Priority   *int
	Cost       Cost
	CreatedAt  time.Time
	CreatedBy  *User
	Milestone  *Milestone
	Assignees  []*User
	Areas      []string
	Teams      []string
	Changes    []Change
}

// IsOpen reports whether the item's state is not terminal.
func (w *WorkItem) IsOpen() bool {
	return w.State.IsOpen()
}

func (w *WorkItem) String() string {
	return w.ID
}

// Compare is the natural work-item order: priority (absent last), kind,
// title, then id.
func Compare(a, b *WorkItem) int {
	switch {
	case a.Priority != nil && b.Priority == nil:
		return -1
	case a.Priority == nil && b.Priority != nil:
		return 1
	case a.Priority != nil && b.Priority != nil:
		if c := cmp.Compare(*a.Priority, *b.Priority); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	if c := strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// CompareKindID orders by kind, then id. The graph builder traverses in this
// order so that results do not depend on input order.
func CompareKindID(a, b *WorkItem) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Change is one semantic transition of a work item.
//
// Value and PreviousValue are typed by Kind: State, Kind, int (priority),
// Cost, *Milestone, string (title), *User (assignee) or bool (bottom-up).
// nil means the property was absent. Assignee changes carry the user in
// Value and leave PreviousValue nil.
type Change struct {
	Actor         *User      `json:"actor"`
	When          time.Time  `json:"when"`
	Kind          ChangeKind `json:"kind"`
	Value         any        `json:"value"`
	PreviousValue any        `json:"previousValue"`
}

// State returns the new state for a StateChanged record.
func (c Change) State() (State, bool) {
	s, ok := c.Value.(State)
	return s, ok
}

// PreviousState returns the prior state for a StateChanged record.
func (c Change) PreviousState() (State, bool) {
	s, ok := c.PreviousValue.(State)
	return s, ok
}

// Milestone returns the new milestone for a MilestoneChanged record.
func (c Change) Milestone() *Milestone {
	m, _ := c.Value.(*Milestone)
	return m
}

// User returns the assignee for AssigneeAdded and AssigneeRemoved records.
func (c Change) User() *User {
	u, _ := c.Value.(*User)
	return u
}

// IntPtr is a convenience for building optional priorities.
func IntPtr(v int) *int {
	return &v
}

// OptionalInt boxes an optional integer so that absence stays a nil interface.
func OptionalInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// OptionalCost boxes a cost; CostNone becomes nil.
func OptionalCost(c Cost) any {
	if c == CostNone {
		return nil
	}
	return c
}

// OptionalMilestone boxes a milestone; a nil pointer becomes a nil interface.
func OptionalMilestone(m *Milestone) any {
	if m == nil {
		return nil
	}
	return m
}
