package workspace

import (
	"slices"
	"strings"

	"workgraph/internal/workitem"
)

// AreaNode is one level of the "/"-separated area hierarchy. WorkItems holds
// every item whose area is this node or lies below it, in natural order.
type AreaNode struct {
	Name      string
	Path      string
	Children  []*AreaNode
	WorkItems []*workitem.WorkItem
}

func buildAreaTree(items []*workitem.WorkItem) []*AreaNode {
	type node struct {
		*AreaNode
		children map[string]*node
		seen     map[*workitem.WorkItem]bool
	}
	newNode := func(name, path string) *node {
		return &node{
			AreaNode: &AreaNode{Name: name, Path: path},
			children: make(map[string]*node),
			seen:     make(map[*workitem.WorkItem]bool),
		}
	}
	root := newNode("", "")

	for _, it := range items {
		for _, area := range it.Areas {
			cur := root
			for _, part := range strings.Split(area, "/") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				key := strings.ToLower(part)
				next, ok := cur.children[key]
				if !ok {
					path := part
					if cur.Path != "" {
						path = cur.Path + "/" + part
					}
					next = newNode(part, path)
					cur.children[key] = next
				}
				if !next.seen[it] {
					next.seen[it] = true
					next.WorkItems = append(next.WorkItems, it)
				}
				cur = next
			}
		}
	}

	var finish func(n *node) []*AreaNode
	finish = func(n *node) []*AreaNode {
		out := make([]*AreaNode, 0, len(n.children))
		for _, c := range n.children {
			c.Children = finish(c)
			slices.SortFunc(c.WorkItems, workitem.Compare)
			out = append(out, c.AreaNode)
		}
		slices.SortFunc(out, func(a, b *AreaNode) int {
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return finish(root)
}

// Find returns the node at path, ignoring case.
func Find(nodes []*AreaNode, path string) (*AreaNode, bool) {
	var cur *AreaNode
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		var next *AreaNode
		for _, n := range nodes {
			if strings.EqualFold(n.Name, part) {
				next = n
				break
			}
		}
		if next == nil {
			return nil, false
		}
		cur, nodes = next, next.Children
	}
	return cur, cur != nil
}
