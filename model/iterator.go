package model

import (
	"sort"

	"recalc/address"
	"recalc/formula"
)

// IterDirection selects the traversal order of a model iterator.
type IterDirection uint8

const (
	IterRowMajor IterDirection = iota
	IterColumnMajor
)

// ModelIterator walks a sheet or sub-range lazily, yielding every
// position including empty ones so consumers can observe geometry. It is
// finite and non-restartable.
type ModelIterator struct {
	cxt  *Context
	rng  address.Range
	dir  IterDirection
	pos  address.Address
	done bool
}

// Iterate returns an iterator over sub of the given sheet. A zero sub
// iterates the whole sheet.
func (cxt *Context) Iterate(sheet int32, dir IterDirection, sub address.Range) *ModelIterator {
	if sub == (address.Range{}) {
		sub = address.Range{
			First: address.New(sheet, 0, 0),
			Last:  address.New(sheet, cxt.rows-1, cxt.cols-1),
		}
	}
	sub.First.Sheet, sub.Last.Sheet = sheet, sheet
	it := &ModelIterator{cxt: cxt, rng: sub, dir: dir, pos: sub.First}
	if cxt.sheet(sheet) == nil || !sub.Valid() {
		it.done = true
	}
	return it
}

// Next yields the next (position, value) pair and false on exhaustion.
func (it *ModelIterator) Next() (address.Address, CellValue, bool) {
	if it.done {
		return address.Address{}, CellValue{}, false
	}
	pos := it.pos
	val := it.cxt.CellValue(pos)

	if it.dir == IterRowMajor {
		switch {
		case it.pos.Column < it.rng.Last.Column:
			it.pos.Column++
		case it.pos.Row < it.rng.Last.Row:
			it.pos.Column = it.rng.First.Column
			it.pos.Row++
		default:
			it.done = true
		}
	} else {
		switch {
		case it.pos.Row < it.rng.Last.Row:
			it.pos.Row++
		case it.pos.Column < it.rng.Last.Column:
			it.pos.Row = it.rng.First.Row
			it.pos.Column++
		default:
			it.done = true
		}
	}
	return pos, val, true
}

// NamedExpressionsIterator walks either the workbook-global named
// expressions or the ones scoped to a single sheet.
type NamedExpressionsIterator struct {
	names []string
	exps  map[string]*formula.NamedExpression
	next  int
}

// IterateNamedExpressions returns an iterator over the global scope.
func (cxt *Context) IterateNamedExpressions() *NamedExpressionsIterator {
	return newNamedExpIterator(cxt.named)
}

// IterateSheetNamedExpressions returns an iterator over one sheet's
// scope; an unknown sheet yields an empty iterator.
func (cxt *Context) IterateSheetNamedExpressions(sheet int32) *NamedExpressionsIterator {
	sh := cxt.sheet(sheet)
	if sh == nil {
		return newNamedExpIterator(nil)
	}
	return newNamedExpIterator(sh.named)
}

func newNamedExpIterator(exps map[string]*formula.NamedExpression) *NamedExpressionsIterator {
	it := &NamedExpressionsIterator{exps: exps}
	for name := range exps {
		it.names = append(it.names, name)
	}
	sort.Strings(it.names)
	return it
}

func (it *NamedExpressionsIterator) Next() (*formula.NamedExpression, bool) {
	if it.next >= len(it.names) {
		return nil, false
	}
	ne := it.exps[it.names[it.next]]
	it.next++
	return ne, true
}
