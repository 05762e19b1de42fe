package engine

import (
	"recalc/address"
	"recalc/formula"
	"recalc/model"
	"recalc/tracker"
)

// scheduleUnit maps a dirty formula cell to what actually gets
// scheduled: the cell itself, or for a grouped formula the group's
// origin-anchored rectangle. Non-origin members ride along with their
// origin.
func scheduleUnit(cxt *model.Context, pos address.Address) (address.Range, *model.FormulaCell, bool) {
	fc := cxt.GetFormulaCell(pos)
	if fc == nil {
		return address.Range{}, nil, false
	}
	origin := fc.GroupOrigin(pos)
	unit := address.Range{
		First: origin,
		Last: address.New(origin.Sheet,
			origin.Row+fc.Status().GroupRows-1,
			origin.Column+fc.Status().GroupColumns-1),
	}
	return unit, cxt.GetFormulaCell(origin), true
}

// SortDirtyCells orders the dirty set so every precedent is interpreted
// before its dependents. Cells on a reference cycle are marked with a
// ref-cycle error result and left out of the order.
func SortDirtyCells(cxt *model.Context, dirty map[address.Address]struct{}) []address.Range {
	units := make(map[address.Range]*model.FormulaCell)
	for pos := range dirty {
		unit, fc, ok := scheduleUnit(cxt, pos)
		if !ok {
			continue
		}
		units[unit] = fc
	}

	nodes := make([]address.Range, 0, len(units))
	for unit := range units {
		nodes = append(nodes, unit)
	}
	d := newDFSSorter(nodes)

	// precedent edges come from each unit's reference tokens, restricted
	// to units that are themselves dirty
	for unit, fc := range units {
		origin := unit.First
		for _, ref := range ReferencedRanges(cxt, fc.Tokens(), origin) {
			for other := range units {
				if other == unit {
					continue
				}
				if ref.Overlaps(other) {
					d.addPrecedent(unit, other)
				}
			}
		}
	}
	d.run()

	// reset every dirty unit before interpretation so dependents cannot
	// observe stale results, then fail the cycle members fast
	for _, fc := range units {
		fc.Reset()
	}
	for unit := range d.cycle {
		units[unit].SetResult(formula.ErrorResult(formula.RefCycle))
	}
	return d.sorted
}

// ReferencedRanges collects the absolute ranges a token stream reads,
// resolving relative references against origin and following named
// expressions recursively; a name already being walked is skipped.
func ReferencedRanges(cxt *model.Context, tokens formula.Tokens, origin address.Address) []address.Range {
	var out []address.Range
	seen := make(map[string]struct{})
	var walk func(ts formula.Tokens, origin address.Address)
	walk = func(ts formula.Tokens, origin address.Address) {
		for _, t := range ts {
			switch t.Op {
			case formula.OpSingleRef:
				out = append(out, address.NewRange(t.Ref.Resolve(origin)))
			case formula.OpRangeRef:
				out = append(out, t.Range.Resolve(origin))
			case formula.OpTableRef:
				if th := cxt.Config().TableHandler; th != nil {
					if rng, ok := th.ResolveTable(origin, t.Table); ok {
						out = append(out, rng)
					}
				}
			case formula.OpNamedExpression:
				if _, busy := seen[t.Name]; busy {
					continue
				}
				if ne := cxt.GetNamedExpression(origin.Sheet, t.Name); ne != nil {
					seen[t.Name] = struct{}{}
					walk(ne.Tokens, origin)
					delete(seen, t.Name)
				}
			}
		}
	}
	walk(tokens, origin)
	return out
}

// QueryAndSortDirtyCells combines the tracker's transitive dirty-set
// query with the topological sort. extraDirty asserts additional formula
// cells dirty without a prior modification, e.g. freshly parsed
// formulas.
func QueryAndSortDirtyCells(cxt *model.Context, tr *tracker.Tracker, modified []address.Range, extraDirty []address.Address) []address.Range {
	dirty := tr.QueryDirtyCells(modified)
	for _, pos := range extraDirty {
		dirty[pos] = struct{}{}
	}
	return SortDirtyCells(cxt, dirty)
}
