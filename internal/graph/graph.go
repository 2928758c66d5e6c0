// Package graph turns work items and declared parent/child edges into a
// deterministic acyclic hierarchy.
//
// Building runs in three passes:
//  1. edges naming unknown items are dropped and reported (CR01)
//  2. a depth-first walk in (Kind, ID) order breaks every cycle it finds by
//     removing the closing edge (CR02)
//  3. an open item that has an open parent is detached from its closed parents
//
// Diagnostics are data. Build only fails on contract violations such as a
// duplicate or nil item.
package graph

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"workgraph/internal/workitem"

	"github.com/rs/zerolog/log"
)

var (
	// ErrDuplicateItem is returned when two items share an id.
	ErrDuplicateItem = errors.New("duplicate work item id")
	// ErrNilItem is returned when the item list contains nil.
	ErrNilItem = errors.New("nil work item")
)

// Edge declares that Child is a child of Parent. Both are canonical ids.
type Edge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

func compareEdges(a, b Edge) int {
	return cmp.Or(strings.Compare(a.Parent, b.Parent), strings.Compare(a.Child, b.Child))
}

// Code identifies a construction diagnostic.
type Code string

const (
	// DanglingLink reports an edge to an item that is not in the snapshot.
	DanglingLink Code = "CR01"
	// Cycle reports a parent/child cycle that was broken.
	Cycle Code = "CR02"
)

// Diagnostic is a data-integrity problem found while building the graph. The
// graph is always repaired; the diagnostic tells a human what to fix.
type Diagnostic struct {
	Code    Code     `json:"code" yaml:"code"`
	ItemID  string   `json:"item" yaml:"item"`
	Message string   `json:"message" yaml:"message"`
	Related []string `json:"related,omitempty" yaml:"related,omitempty"`
}

// Result is the repaired hierarchy.
type Result struct {
	// Items in natural order.
	Items []*workitem.WorkItem
	// Roots are the items without a surviving parent, in natural order.
	Roots []*workitem.WorkItem
	// Parents and Children map an item id to its neighbours in natural order.
	Parents     map[string][]*workitem.WorkItem
	Children    map[string][]*workitem.WorkItem
	Diagnostics []Diagnostic
}

type builder struct {
	byID        map[string]*workitem.WorkItem
	children    map[string]map[string]bool
	parents     map[string]map[string]bool
	diagnostics []Diagnostic
}

// Build repairs the declared hierarchy. Neither argument is modified.
func Build(items []*workitem.WorkItem, edges []Edge) (*Result, error) {
	b := &builder{
		byID:     make(map[string]*workitem.WorkItem, len(items)),
		children: make(map[string]map[string]bool),
		parents:  make(map[string]map[string]bool),
	}
	for _, it := range items {
		if it == nil {
			return nil, ErrNilItem
		}
		if _, dup := b.byID[it.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, it.ID)
		}
		b.byID[it.ID] = it
	}

	b.pruneDangling(edges)
	b.breakCycles()
	b.unlinkClosedParents()

	return b.result(), nil
}

func (b *builder) link(parent, child string) {
	if b.children[parent] == nil {
		b.children[parent] = make(map[string]bool)
	}
	if b.parents[child] == nil {
		b.parents[child] = make(map[string]bool)
	}
	b.children[parent][child] = true
	b.parents[child][parent] = true
}

func (b *builder) unlink(parent, child string) {
	delete(b.children[parent], child)
	delete(b.parents[child], parent)
}

// pruneDangling drops edges to unknown items. CR01 is reported once per
// (referrer, missing id) pair, so two items pointing at the same missing id
// yield two diagnostics, each attributed to its referrer.
func (b *builder) pruneDangling(edges []Edge) {
	sorted := slices.Clone(edges)
	slices.SortFunc(sorted, compareEdges)
	sorted = slices.Compact(sorted)

	reported := make(map[Edge]bool)
	report := func(referrer, missing string) {
		key := Edge{Parent: referrer, Child: missing}
		if reported[key] {
			return
		}
		reported[key] = true
		b.diagnostics = append(b.diagnostics, Diagnostic{
			Code:    DanglingLink,
			ItemID:  referrer,
			Message: fmt.Sprintf("%s links to %s, which does not exist", referrer, missing),
			Related: []string{missing},
		})
	}

	for _, e := range sorted {
		_, hasParent := b.byID[e.Parent]
		_, hasChild := b.byID[e.Child]
		switch {
		case hasParent && hasChild:
			b.link(e.Parent, e.Child)
		case hasParent:
			report(e.Parent, e.Child)
		case hasChild:
			report(e.Child, e.Parent)
		default:
			log.Debug().Str("parent", e.Parent).Str("child", e.Child).Msg("Dropping edge between two unknown items")
		}
	}
}

// walkOrder returns ids sorted by (Kind, ID).
func (b *builder) walkOrder(ids []string) []string {
	slices.SortFunc(ids, func(x, y string) int {
		return workitem.CompareKindID(b.byID[x], b.byID[y])
	})
	return ids
}

func (b *builder) childIDs(id string) []string {
	ids := make([]string, 0, len(b.children[id]))
	for c := range b.children[id] {
		ids = append(ids, c)
	}
	return b.walkOrder(ids)
}

func (b *builder) breakCycles() {
	all := make([]string, 0, len(b.byID))
	for id := range b.byID {
		all = append(all, id)
	}
	b.walkOrder(all)

	visited := make(map[string]bool, len(all))
	onPath := make(map[string]int)
	var path []string

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		onPath[id] = len(path)
		path = append(path, id)

		for _, child := range b.childIDs(id) {
			if start, ok := onPath[child]; ok {
				cycle := append(slices.Clone(path[start:]), child)
				b.diagnostics = append(b.diagnostics, Diagnostic{
					Code:    Cycle,
					ItemID:  child,
					Message: "cycle detected: " + strings.Join(cycle, " → "),
					Related: cycle,
				})
				log.Debug().Strs("path", cycle).Msg("Breaking cycle")
				b.unlink(id, child)
				continue
			}
			if !visited[child] {
				visit(child)
			}
		}

		path = path[:len(path)-1]
		delete(onPath, id)
	}

	// Roots first, then whatever only a cycle could reach.
	for _, id := range all {
		if len(b.parents[id]) == 0 && !visited[id] {
			visit(id)
		}
	}
	for _, id := range all {
		if !visited[id] {
			visit(id)
		}
	}
}

// unlinkClosedParents detaches an open item from its closed parents when it
// has at least one open parent. An open item whose parents are all closed
// keeps every edge.
func (b *builder) unlinkClosedParents() {
	for id, it := range b.byID {
		if !it.IsOpen() {
			continue
		}
		var closed []string
		hasOpen := false
		for p := range b.parents[id] {
			if b.byID[p].IsOpen() {
				hasOpen = true
			} else {
				closed = append(closed, p)
			}
		}
		if !hasOpen {
			continue
		}
		for _, p := range closed {
			b.unlink(p, id)
		}
	}
}

func (b *builder) neighbours(set map[string]bool) []*workitem.WorkItem {
	if len(set) == 0 {
		return nil
	}
	out := make([]*workitem.WorkItem, 0, len(set))
	for id := range set {
		out = append(out, b.byID[id])
	}
	slices.SortFunc(out, workitem.Compare)
	return out
}

func (b *builder) result() *Result {
	r := &Result{
		Items:       make([]*workitem.WorkItem, 0, len(b.byID)),
		Parents:     make(map[string][]*workitem.WorkItem),
		Children:    make(map[string][]*workitem.WorkItem),
		Diagnostics: b.diagnostics,
	}
	for id, it := range b.byID {
		r.Items = append(r.Items, it)
		if ps := b.neighbours(b.parents[id]); ps != nil {
			r.Parents[id] = ps
		} else {
			r.Roots = append(r.Roots, it)
		}
		if cs := b.neighbours(b.children[id]); cs != nil {
			r.Children[id] = cs
		}
	}
	slices.SortFunc(r.Items, workitem.Compare)
	slices.SortFunc(r.Roots, workitem.Compare)
	return r
}
