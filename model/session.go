package model

import (
	"recalc/address"
	"recalc/formula"
)

// SessionHandler receives interpretation events for tracing and
// diagnostics. Implementations may be nil-safe no-ops; every cell
// interpretation gets its own instance from the config factory so
// handlers need not be thread-safe.
type SessionHandler interface {
	BeginCellInterpret(pos address.Address)
	EndCellInterpret()
	PushToken(op formula.OpCode)
	PushValue(v float64)
	PushString(id uint32)
	PushSingleRef(ref address.Address, sheetName string)
	PushRangeRef(rng address.Range, sheetName string)
	PushFunction(fn formula.FunctionOp)
	SetResult(res formula.Result)
	SetInvalidExpression(msg string)
	SetFormulaError(msg string)
}

// TableHandler resolves a table reference to an absolute range using
// whatever table catalog the host keeps.
type TableHandler interface {
	ResolveTable(pos address.Address, ref formula.TableRef) (address.Range, bool)
}
