// Package roadmap maps the state history of a product's work items onto the
// product's release milestones.
package roadmap

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"workgraph/internal/workitem"
)

var (
	// ErrUnknownProduct is returned when the requested product does not exist.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrUnknownMilestone is returned when a milestone is not a roadmap column.
	ErrUnknownMilestone = errors.New("milestone is not a roadmap column")
	// ErrInvalidRange is returned when the end of a range precedes its start.
	ErrInvalidRange = errors.New("invalid milestone range")
)

// Source is the part of a workspace the roadmap reads.
type Source interface {
	WorkItems() []*workitem.WorkItem
	Product(name string) (*workitem.Product, bool)
	DefaultProduct(it *workitem.WorkItem) *workitem.Product
}

// Filter narrows the candidate columns. A nil filter keeps all of them.
type Filter func(m *workitem.Milestone) bool

// Entry is the state an item reached by a milestone.
type Entry struct {
	Milestone *workitem.Milestone `json:"milestone" yaml:"milestone"`
	State     workitem.State      `json:"state" yaml:"state"`

	column int
}

// Item is one work item's coarse timeline. Entries are ascending by column
// and never regress in state rank.
type Item struct {
	WorkItem *workitem.WorkItem `json:"-" yaml:"-"`
	Entries  []Entry            `json:"entries" yaml:"entries"`
}

// Roadmap is the per-product view.
type Roadmap struct {
	Product    *workitem.Product
	Milestones []*workitem.Milestone
	Items      []*Item

	columns map[*workitem.Milestone]int
}

// Build assembles the roadmap for one product.
func Build(src Source, product string, filter Filter) (*Roadmap, error) {
	p, ok := src.Product(product)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, product)
	}

	r := &Roadmap{
		Product: p,
		columns: make(map[*workitem.Milestone]int),
	}
	for _, m := range p.Milestones {
		if !m.Version.IsWhole() || m.ReleaseDate == nil {
			continue
		}
		if filter != nil && !filter(m) {
			continue
		}
		r.Milestones = append(r.Milestones, m)
	}
	slices.SortStableFunc(r.Milestones, func(a, b *workitem.Milestone) int {
		return cmp.Or(a.ReleaseDate.Compare(*b.ReleaseDate), a.Version.Compare(b.Version))
	})
	for i, m := range r.Milestones {
		r.columns[m] = i
	}

	for _, it := range src.WorkItems() {
		if productOf(src, it) != p {
			continue
		}
		r.Items = append(r.Items, &Item{WorkItem: it, Entries: r.timeline(it)})
	}
	return r, nil
}

// productOf resolves the product an item belongs to: its milestone, else the
// most recent milestone in its history, else its origin's default.
func productOf(src Source, it *workitem.WorkItem) *workitem.Product {
	if it.Milestone != nil {
		return it.Milestone.Product
	}
	for i := len(it.Changes) - 1; i >= 0; i-- {
		c := it.Changes[i]
		if c.Kind != workitem.MilestoneChanged {
			continue
		}
		if m := c.Milestone(); m != nil {
			return m.Product
		}
		if m, ok := c.PreviousValue.(*workitem.Milestone); ok && m != nil {
			return m.Product
		}
	}
	return src.DefaultProduct(it)
}

// column returns the first column released at or after t, or -1 when t is
// past the last column.
func (r *Roadmap) column(t time.Time) int {
	i, _ := slices.BinarySearchFunc(r.Milestones, t, func(m *workitem.Milestone, t time.Time) int {
		return m.ReleaseDate.Compare(t)
	})
	if i == len(r.Milestones) {
		return -1
	}
	return i
}

// timeline derives an item's entries. Transitions are scanned newest first;
// per column the latest one wins, and an older transition survives only when
// its rank is strictly below everything recorded after it.
func (r *Roadmap) timeline(it *workitem.WorkItem) []Entry {
	var rev []Entry
	for i := len(it.Changes) - 1; i >= 0; i-- {
		c := it.Changes[i]
		if c.Kind != workitem.StateChanged {
			continue
		}
		s, ok := c.State()
		if !ok {
			continue
		}
		col := r.column(c.When)
		if col < 0 {
			continue
		}
		if n := len(rev); n > 0 {
			last := rev[n-1]
			if col == last.column || s.Rank() >= last.State.Rank() {
				continue
			}
		}
		rev = append(rev, r.entry(col, s))
	}

	if len(rev) == 0 {
		if col := r.currentColumn(it); col >= 0 {
			rev = append(rev, r.entry(col, it.State))
		}
	}
	if len(rev) == 0 {
		return nil
	}
	slices.Reverse(rev)

	first := rev[0]
	if last := rev[len(rev)-1]; last.State != workitem.Proposed && first.State != workitem.Proposed {
		if col := r.column(it.CreatedAt); col >= 0 && col < first.column {
			rev = slices.Insert(rev, 0, r.entry(col, workitem.Proposed))
		}
	}
	return rev
}

func (r *Roadmap) currentColumn(it *workitem.WorkItem) int {
	if it.Milestone == nil {
		return -1
	}
	if col, ok := r.columns[it.Milestone]; ok {
		return col
	}
	if it.Milestone.ReleaseDate != nil {
		return r.column(*it.Milestone.ReleaseDate)
	}
	return -1
}

func (r *Roadmap) entry(col int, s workitem.State) Entry {
	return Entry{Milestone: r.Milestones[col], State: s, column: col}
}

// States is an item's timeline cut to a milestone range.
type States struct {
	// Before is the last entry preceding the range, if any.
	Before *Entry
	// Within holds the entries whose milestone lies inside the range.
	Within []Entry
	// After is the first entry following the range, if any.
	After *Entry
}

// GetStates cuts the item's timeline to the inclusive range [from, to].
func (r *Roadmap) GetStates(it *Item, from, to *workitem.Milestone) (States, error) {
	lo, hi, err := r.span(from, to)
	if err != nil {
		return States{}, err
	}

	var out States
	for _, e := range it.Entries {
		switch {
		case e.column < lo:
			out.Before = &e
		case e.column > hi:
			if out.After == nil {
				out.After = &e
			}
		default:
			out.Within = append(out.Within, e)
		}
	}
	return out, nil
}

// Range returns the columns from through to, inclusive.
func (r *Roadmap) Range(from, to *workitem.Milestone) ([]*workitem.Milestone, error) {
	lo, hi, err := r.span(from, to)
	if err != nil {
		return nil, err
	}
	return slices.Clone(r.Milestones[lo : hi+1]), nil
}

// StateAt returns the state the item had reached by milestone m. ok is false
// when the item has no entry at or before m.
func (r *Roadmap) StateAt(it *Item, m *workitem.Milestone) (workitem.State, bool, error) {
	col, ok := r.columns[m]
	if !ok {
		return workitem.Proposed, false, fmt.Errorf("%w: %s", ErrUnknownMilestone, m)
	}
	state, found := workitem.Proposed, false
	for _, e := range it.Entries {
		if e.column > col {
			break
		}
		state, found = e.State, true
	}
	return state, found, nil
}

func (r *Roadmap) span(from, to *workitem.Milestone) (int, int, error) {
	lo, ok := r.columns[from]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownMilestone, from)
	}
	hi, ok := r.columns[to]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownMilestone, to)
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("%w: %s precedes %s", ErrInvalidRange, to, from)
	}
	return lo, hi, nil
}

// Item returns the roadmap row for the work item with the given id.
func (r *Roadmap) Item(id string) (*Item, bool) {
	for _, it := range r.Items {
		if strings.EqualFold(it.WorkItem.ID, id) {
			return it, true
		}
	}
	return nil, false
}

// Milestone looks a column up by its version text, e.g. "8.0".
func (r *Roadmap) Milestone(version string) (*workitem.Milestone, bool) {
	for _, m := range r.Milestones {
		if m.Version.String() == strings.TrimSpace(version) {
			return m, true
		}
	}
	return nil, false
}
