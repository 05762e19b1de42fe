// Package tracker maintains the listener relationships between cells:
// which source ranges must be recalculated when a destination range
// changes. Relations are indexed per sheet in an R-tree keyed by the
// destination rectangle, so the dominant query — "which listeners overlap
// this modified range" — is a spatial search.
package tracker

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/rtree"

	"recalc/address"
)

var tlog = logrus.WithField("module", "tracker")

// ListenerError is a synchronous error reported to a tracker mutation.
type ListenerError struct {
	Msg string
}

func (e *ListenerError) Error() string { return e.Msg }

func listenerErrorf(format string, args ...any) error {
	return &ListenerError{Msg: fmt.Sprintf(format, args...)}
}

// entry is the payload stored at one destination rectangle: the set of
// source ranges listening to it. A destination rectangle appears in the
// tree at most once.
type entry struct {
	dst     address.Range
	sources map[address.Range]struct{}
}

type sheetIndex struct {
	tree    rtree.RTreeG[*entry]
	entries map[address.Range]*entry
}

func newSheetIndex() *sheetIndex {
	return &sheetIndex{entries: make(map[address.Range]*entry)}
}

func rect(r address.Range) (min, max [2]float64) {
	min = [2]float64{float64(r.First.Column), float64(r.First.Row)}
	max = [2]float64{float64(r.Last.Column), float64(r.Last.Row)}
	return min, max
}

// Tracker is the dirty-cell tracker: per-sheet listener indexes plus the
// flat set of volatile cells. It is not thread-safe; mutate it only
// between calculation runs.
type Tracker struct {
	sheets   []*sheetIndex
	volatile map[address.Address]struct{}
}

func New() *Tracker {
	return &Tracker{volatile: make(map[address.Address]struct{})}
}

func (t *Tracker) sheetFor(n int32, grow bool) *sheetIndex {
	if n < 0 {
		return nil
	}
	if int(n) >= len(t.sheets) {
		if !grow {
			return nil
		}
		for int(n) >= len(t.sheets) {
			t.sheets = append(t.sheets, newSheetIndex())
		}
	}
	return t.sheets[n]
}

func checkDestination(dst address.Range) error {
	if dst.First.Sheet < 0 {
		return listenerErrorf("invalid sheet position (%d)", dst.First.Sheet)
	}
	if !dst.Valid() || !dst.SingleSheet() {
		return listenerErrorf("invalid destination cell or range %v", dst)
	}
	return nil
}

// Add records that src listens to dst: any change overlapping dst makes
// src dirty. A duplicate pair is a silent no-op.
func (t *Tracker) Add(src, dst address.Range) error {
	if err := checkDestination(dst); err != nil {
		return err
	}
	sh := t.sheetFor(dst.First.Sheet, true)
	e, ok := sh.entries[dst]
	if !ok {
		e = &entry{dst: dst, sources: make(map[address.Range]struct{})}
		sh.entries[dst] = e
		min, max := rect(dst)
		sh.tree.Insert(min, max, e)
	}
	e.sources[src] = struct{}{}
	return nil
}

// Remove deletes the (src, dst) listener pair. Removing a pair that was
// never added is a no-op logged at warning level. The destination's
// R-tree entry is erased once its last source is gone.
func (t *Tracker) Remove(src, dst address.Range) error {
	if err := checkDestination(dst); err != nil {
		return err
	}
	sh := t.sheetFor(dst.First.Sheet, false)
	if sh == nil {
		tlog.Warnf("remove: nothing is tracked on sheet %d", dst.First.Sheet)
		return nil
	}
	e, ok := sh.entries[dst]
	if !ok {
		tlog.Warnf("remove: %v is not being tracked by anybody", dst)
		return nil
	}
	if _, ok := e.sources[src]; !ok {
		tlog.Warnf("remove: %v was not tracking %v", src, dst)
		return nil
	}
	delete(e.sources, src)
	if len(e.sources) == 0 {
		delete(sh.entries, dst)
		min, max := rect(dst)
		sh.tree.Delete(min, max, e)
	}
	return nil
}

// AddVolatile registers a formula cell that is dirty on every
// calculation.
func (t *Tracker) AddVolatile(pos address.Address) {
	t.volatile[pos] = struct{}{}
}

// RemoveVolatile unregisters a volatile cell.
func (t *Tracker) RemoveVolatile(pos address.Address) {
	delete(t.volatile, pos)
}

// Volatiles returns the registered volatile cells.
func (t *Tracker) Volatiles() []address.Address {
	out := make([]address.Address, 0, len(t.volatile))
	for pos := range t.volatile {
		out = append(out, pos)
	}
	return out
}

// Empty reports whether the tracker holds no listeners and no volatile
// cells.
func (t *Tracker) Empty() bool {
	if len(t.volatile) > 0 {
		return false
	}
	for _, sh := range t.sheets {
		if len(sh.entries) > 0 {
			return false
		}
	}
	return true
}

// overlapping collects the source ranges of every listener entry whose
// destination rectangle overlaps rng.
func (t *Tracker) overlapping(rng address.Range) []address.Range {
	sh := t.sheetFor(rng.First.Sheet, false)
	if sh == nil {
		return nil
	}
	var out []address.Range
	min, max := rect(rng)
	sh.tree.Search(min, max, func(_, _ [2]float64, e *entry) bool {
		for src := range e.sources {
			out = append(out, src)
		}
		return true
	})
	return out
}

// QueryDirtyCells returns the forward-transitive closure of cells made
// dirty by the modified ranges, seeded with every volatile cell.
func (t *Tracker) QueryDirtyCells(modified []address.Range) map[address.Address]struct{} {
	dirty := make(map[address.Address]struct{}, len(t.volatile)+len(modified))
	for pos := range t.volatile {
		dirty[pos] = struct{}{}
	}

	work := modified
	for len(work) > 0 {
		var next []address.Range
		for _, rng := range work {
			for _, src := range t.overlapping(rng) {
				head := src.First
				if _, seen := dirty[head]; seen {
					continue
				}
				dirty[head] = struct{}{}
				next = append(next, src)
			}
		}
		work = next
	}
	return dirty
}
