package graph

import (
	"slices"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/validator"
)

// dag is the dependency graph of one batch. Nodes are indexes into the
// prepared operations.
type dag struct {
	ids    []core.OpID
	causal [][]int // producer -> consumers
	order  [][]int // causal plus conflict ordering edges
}

func newDAG(prepared []*validator.Prepared) *dag {
	n := len(prepared)
	d := &dag{
		ids:    make([]core.OpID, n),
		causal: make([][]int, n),
		order:  make([][]int, n),
	}
	producer := make(map[core.SealRef]int)
	for i, p := range prepared {
		d.ids[i] = p.ID
		for _, seal := range p.Op.ProducedSeals() {
			producer[seal] = i
		}
	}
	for j, p := range prepared {
		for _, seal := range p.Op.ConsumedSeals() {
			if i, ok := producer[seal]; ok && i != j {
				d.link(i, j)
			}
		}
	}
	// every transition of a batch carrying the genesis depends on it
	for i, p := range prepared {
		if !p.Type.Genesis {
			continue
		}
		for j, other := range prepared {
			if !other.Type.Genesis {
				d.link(i, j)
			}
		}
	}
	return d
}

func (d *dag) link(from, to int) {
	if slices.Contains(d.causal[from], to) {
		return
	}
	d.causal[from] = append(d.causal[from], to)
	d.order[from] = append(d.order[from], to)
}

// addConflicts orders every operation sharing a consumed seal after the
// one with the smallest identifier, unless that would close a cycle.
func (d *dag) addConflicts(prepared []*validator.Prepared) {
	consumers := make(map[core.SealRef][]int)
	var seals []core.SealRef
	for i, p := range prepared {
		for _, seal := range p.Op.ConsumedSeals() {
			if _, ok := consumers[seal]; !ok {
				seals = append(seals, seal)
			}
			consumers[seal] = append(consumers[seal], i)
		}
	}
	slices.Sort(seals)
	for _, seal := range seals {
		nodes := consumers[seal]
		if len(nodes) < 2 {
			continue
		}
		winner := slices.MinFunc(nodes, func(a, b int) int { return compareIDs(d.ids[a], d.ids[b]) })
		for _, loser := range nodes {
			if loser == winner || slices.Contains(d.order[winner], loser) || reaches(d.order, loser, winner) {
				continue
			}
			d.order[winner] = append(d.order[winner], loser)
		}
	}
}

// sort returns a topological order over edges, breaking ties by the
// smallest identifier. It returns false if the graph has a cycle.
func (d *dag) sort(edges [][]int) ([]int, bool) {
	indegree := make([]int, len(d.ids))
	for _, targets := range edges {
		for _, t := range targets {
			indegree[t]++
		}
	}
	var ready []int
	for i, deg := range indegree {
		if deg == 0 {
			ready = append(ready, i)
		}
	}
	out := make([]int, 0, len(d.ids))
	for len(ready) > 0 {
		k := 0
		for i := range ready {
			if compareIDs(d.ids[ready[i]], d.ids[ready[k]]) < 0 {
				k = i
			}
		}
		next := ready[k]
		ready = slices.Delete(ready, k, k+1)
		out = append(out, next)
		for _, t := range edges[next] {
			indegree[t]--
			if indegree[t] == 0 {
				ready = append(ready, t)
			}
		}
	}
	return out, len(out) == len(d.ids)
}

// cycle returns the nodes left unsorted by a failed topological sort.
func (d *dag) cycle(sorted []int) []core.OpID {
	done := make([]bool, len(d.ids))
	for _, i := range sorted {
		done[i] = true
	}
	var out []core.OpID
	for i, ok := range done {
		if !ok {
			out = append(out, d.ids[i])
		}
	}
	slices.SortFunc(out, compareIDs)
	return out
}

// ancestors returns, for every node, its causal ancestors.
func (d *dag) ancestors() []map[int]bool {
	parents := make([][]int, len(d.ids))
	for i, targets := range d.causal {
		for _, t := range targets {
			parents[t] = append(parents[t], i)
		}
	}
	out := make([]map[int]bool, len(d.ids))
	for i := range d.ids {
		seen := make(map[int]bool)
		stack := slices.Clone(parents[i])
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[n] {
				continue
			}
			seen[n] = true
			stack = append(stack, parents[n]...)
		}
		out[i] = seen
	}
	return out
}

func reaches(edges [][]int, from, to int) bool {
	seen := make(map[int]bool)
	stack := []int{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, edges[n]...)
	}
	return false
}

func compareIDs(a, b core.OpID) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}
