package engine

import (
	"sort"

	"recalc/address"
)

type dfsColor uint8

const (
	dfsWhite dfsColor = iota
	dfsGray
	dfsBlack
)

// dfsSorter runs an iterative three-color depth-first search over the
// precedent relation and emits nodes in post-order: every precedent
// appears before its dependents. A gray-on-gray revisit marks a cycle;
// cycle members are reported separately and excluded from the order.
type dfsSorter struct {
	nodes      []address.Range
	precedents map[address.Range][]address.Range
	colors     map[address.Range]dfsColor
	sorted     []address.Range
	cycle      map[address.Range]struct{}
}

func newDFSSorter(nodes []address.Range) *dfsSorter {
	sorted := append([]address.Range(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	return &dfsSorter{
		nodes:      sorted,
		precedents: make(map[address.Range][]address.Range),
		colors:     make(map[address.Range]dfsColor, len(sorted)),
		cycle:      make(map[address.Range]struct{}),
	}
}

// addPrecedent records that pre must be computed before dep.
func (d *dfsSorter) addPrecedent(dep, pre address.Range) {
	d.precedents[dep] = append(d.precedents[dep], pre)
}

type dfsFrame struct {
	node  address.Range
	child int
}

// run sorts all nodes. Ties break by address order so output is
// reproducible across runs.
func (d *dfsSorter) run() {
	for dep, pres := range d.precedents {
		sort.Slice(pres, func(i, j int) bool { return pres[i].Less(pres[j]) })
		d.precedents[dep] = pres
	}
	for _, n := range d.nodes {
		if d.colors[n] == dfsWhite {
			d.visit(n)
		}
	}
}

func (d *dfsSorter) visit(root address.Range) {
	stack := []dfsFrame{{node: root}}
	d.colors[root] = dfsGray

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		pres := d.precedents[top.node]
		if top.child < len(pres) {
			next := pres[top.child]
			top.child++
			switch d.colors[next] {
			case dfsWhite:
				d.colors[next] = dfsGray
				stack = append(stack, dfsFrame{node: next})
			case dfsGray:
				// every gray node from the revisited one up the stack
				// is on the cycle
				d.markCycle(stack, next)
			}
			continue
		}
		d.colors[top.node] = dfsBlack
		if _, bad := d.cycle[top.node]; !bad {
			d.sorted = append(d.sorted, top.node)
		}
		stack = stack[:len(stack)-1]
	}
}

func (d *dfsSorter) markCycle(stack []dfsFrame, from address.Range) {
	start := 0
	for i := range stack {
		if stack[i].node == from {
			start = i
			break
		}
	}
	for _, f := range stack[start:] {
		d.cycle[f.node] = struct{}{}
	}
}
