// Package graph holds the traversal helpers shared by the permission
// requires graph and the role inheritance graph. Nodes are referenced by name.
package graph

import (
	"slices"
)

// EdgeFunc returns the outgoing edges of a node. Unknown nodes have none.
type EdgeFunc func(node string) []string

// FindCycle walks depth-first from start and returns the first cycle it meets
// as a path whose first and last elements are equal, or nil when none is reachable.
func FindCycle(start string, edges EdgeFunc) []string {
	done := make(map[string]bool)
	var path []string
	var walk func(node string) []string
	walk = func(node string) []string {
		if i := slices.Index(path, node); i >= 0 {
			return append(slices.Clone(path[i:]), node)
		}
		if done[node] {
			return nil
		}
		path = append(path, node)
		for _, next := range edges(node) {
			if cycle := walk(next); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		done[node] = true
		return nil
	}
	return walk(start)
}

// Reachable returns every node reachable from start, excluding start itself,
// in first-visit order. The visited set makes it terminate on cyclic input.
func Reachable(start string, edges EdgeFunc) []string {
	visited := map[string]bool{start: true}
	var out []string
	var walk func(node string)
	walk = func(node string) {
		for _, next := range edges(node) {
			if visited[next] {
				continue
			}
			visited[next] = true
			out = append(out, next)
			walk(next)
		}
	}
	walk(start)
	return out
}

// Set is a string set with insertion order preserved for stable output.
type Set struct {
	index map[string]struct{}
	items []string
}

func NewSet(items ...string) *Set {
	s := &Set{index: make(map[string]struct{}, len(items))}
	s.Add(items...)
	return s
}

func (s *Set) Add(items ...string) {
	for _, it := range items {
		if _, ok := s.index[it]; ok {
			continue
		}
		s.index[it] = struct{}{}
		s.items = append(s.items, it)
	}
}

func (s *Set) Remove(item string) {
	if _, ok := s.index[item]; !ok {
		return
	}
	delete(s.index, item)
	s.items = slices.DeleteFunc(s.items, func(v string) bool { return v == item })
}

func (s *Set) Has(item string) bool {
	_, ok := s.index[item]
	return ok
}

func (s *Set) Len() int { return len(s.items) }

// Items returns a sorted copy of the members.
func (s *Set) Items() []string {
	out := slices.Clone(s.items)
	slices.Sort(out)
	return out
}
