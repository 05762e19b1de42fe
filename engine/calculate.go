// Package engine turns a set of dirty formula cells into recomputed
// results: it orders the cells topologically by their precedent relation
// and interprets them, either serially or on a pool of worker threads
// fed in dependency order.
package engine

import (
	"recalc/address"
	"recalc/interpreter"
	"recalc/model"
)

// Calculate interprets the sorted dirty cells. For the duration of the
// run the workbook's wait policy is block-until-done, so a worker that
// reads an unfinished precedent blocks on that cell's calc status; the
// policy reverts on exit so out-of-calculation reads fail fast.
//
// threads is the worker count; zero runs everything serially on the
// caller.
func Calculate(cxt *model.Context, sorted []address.Range, threads int) {
	if len(sorted) == 0 {
		return
	}

	cxt.SetWaitPolicy(model.WaitBlock)
	defer cxt.SetWaitPolicy(model.WaitError)

	if threads <= 0 {
		for _, unit := range sorted {
			if fc := cxt.GetFormulaCell(unit.First); fc != nil {
				interpreter.InterpretCell(cxt, fc, unit.First)
			}
		}
		return
	}

	qlog.Debugf("interpreting %d cells with %d workers", len(sorted), threads)
	q := newQueueManager(cxt, threads)
	for _, unit := range sorted {
		if fc := cxt.GetFormulaCell(unit.First); fc != nil {
			q.addCell(fc, unit.First)
		}
	}
	q.terminate()
}
