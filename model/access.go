package model

import (
	"recalc/address"
	"recalc/formula"
)

// ValueType is the observable value category of a cell, independent of
// its storage tag: a formula cell reports the type of its cached result.
type ValueType uint8

const (
	ValueEmpty ValueType = iota
	ValueBoolean
	ValueNumeric
	ValueString
	ValueError
	ValueUnknown
)

// CellAccess is a read-only snapshot of one cell. Any mutation of the
// workbook invalidates it.
type CellAccess struct {
	cxt *Context
	pos address.Address
	val CellValue
}

// GetCellAccess snapshots the cell at pos.
func (cxt *Context) GetCellAccess(pos address.Address) CellAccess {
	return CellAccess{cxt: cxt, pos: pos, val: cxt.CellValue(pos)}
}

// Type reports the storage tag of the cell.
func (a CellAccess) Type() CellType { return a.val.Type }

// ValueType reports the observable value category; for a formula cell
// this is the category of its cached result.
func (a CellAccess) ValueType() ValueType {
	switch a.val.Type {
	case CellEmpty:
		return ValueEmpty
	case CellBoolean:
		return ValueBoolean
	case CellNumeric:
		return ValueNumeric
	case CellString:
		return ValueString
	case CellFormula:
		res, err := a.val.Formula.Result(a.cxt.WaitPolicy())
		if err != nil {
			return ValueUnknown
		}
		switch res.Type() {
		case formula.ResultValue:
			return ValueNumeric
		case formula.ResultString:
			return ValueString
		case formula.ResultError:
			return ValueError
		}
		return ValueUnknown
	}
	return ValueUnknown
}

// Number reads the numeric value; error results read as 0.
func (a CellAccess) Number() float64 { return a.cxt.GetNumeric(a.pos) }

// Boolean reads the boolean value.
func (a CellAccess) Boolean() bool { return a.cxt.GetBoolean(a.pos) }

// String reads the textual value.
func (a CellAccess) String() string { return a.cxt.GetString(a.pos) }

// StringID reads the interned string id.
func (a CellAccess) StringID() uint32 { return a.cxt.GetStringID(a.pos) }

// FormulaCell returns the underlying formula cell, or nil.
func (a CellAccess) FormulaCell() *FormulaCell { return a.val.Formula }

// FormulaResult returns the cached result under the current wait policy.
func (a CellAccess) FormulaResult() (formula.Result, error) {
	if a.val.Type != CellFormula {
		return formula.Result{}, ErrResultNotAvailable
	}
	return a.val.Formula.Result(a.cxt.WaitPolicy())
}

// ErrorValue is the canonical way to observe a formula error; non-error
// cells report NoError.
func (a CellAccess) ErrorValue() formula.ErrorKind {
	if a.val.Type != CellFormula {
		return formula.NoError
	}
	res, err := a.val.Formula.Result(a.cxt.WaitPolicy())
	if err != nil {
		return formula.NoError
	}
	return res.Error()
}
