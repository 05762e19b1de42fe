package model

import (
	"errors"
	"sync"

	"recalc/address"
	"recalc/formula"
)

// WaitPolicy selects what a formula-result read does when no result has
// been cached yet.
type WaitPolicy uint8

const (
	// WaitError fails the read with ErrResultNotAvailable. This is the
	// policy outside of a calculation run.
	WaitError WaitPolicy = iota
	// WaitBlock blocks on the calc status until a peer publishes the
	// result. The engine flips to this policy for the duration of a
	// calculation.
	WaitBlock
	// WaitImmediate returns a no-value-available sentinel result.
	WaitImmediate
)

// ErrResultNotAvailable is returned by result reads under WaitError when
// the cell has not been computed.
var ErrResultNotAvailable = errors.New("formula result not available")

// CalcStatus is the shared mutable state of one formula group: the cached
// result and the completion signal dependents block on. Every member of a
// group holds the same CalcStatus.
type CalcStatus struct {
	mu     sync.Mutex
	cond   *sync.Cond
	result *formula.Result

	// group shape; (1, 1) for a singleton cell
	GroupRows    int32
	GroupColumns int32
}

func NewCalcStatus(rows, cols int32) *CalcStatus {
	cs := &CalcStatus{GroupRows: rows, GroupColumns: cols}
	cs.cond = sync.NewCond(&cs.mu)
	return cs
}

// SetResult publishes the result and wakes every waiter. The stored
// result is immutable until the next Reset.
func (cs *CalcStatus) SetResult(res formula.Result) {
	cs.mu.Lock()
	cs.result = &res
	cs.mu.Unlock()
	cs.cond.Broadcast()
}

// Reset clears the cached result and wakes waiters so a blocked reader
// can re-observe the cleared state.
func (cs *CalcStatus) Reset() {
	cs.mu.Lock()
	cs.result = nil
	cs.mu.Unlock()
	cs.cond.Broadcast()
}

// Result fetches the cached result under policy. Under WaitBlock it
// waits until a writer publishes; under WaitImmediate a missing result
// reads as a NoValueAvailable error result; under WaitError it fails
// with ErrResultNotAvailable.
func (cs *CalcStatus) Result(policy WaitPolicy) (formula.Result, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	switch policy {
	case WaitBlock:
		for cs.result == nil {
			cs.cond.Wait()
		}
		return *cs.result, nil
	case WaitImmediate:
		if cs.result == nil {
			return formula.ErrorResult(formula.NoValueAvailable), nil
		}
		return *cs.result, nil
	default:
		if cs.result == nil {
			return formula.Result{}, ErrResultNotAvailable
		}
		return *cs.result, nil
	}
}

// Peek returns the cached result without waiting.
func (cs *CalcStatus) Peek() (formula.Result, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.result == nil {
		return formula.Result{}, false
	}
	return *cs.result, true
}

// FormulaCell is one formula-bearing cell. Members of a grouped formula
// share the token stream and calc status and differ only in their offset
// within the group rectangle.
type FormulaCell struct {
	tokens *formula.Tokens
	status *CalcStatus

	RowOffset    int32
	ColumnOffset int32
}

// NewFormulaCell returns a singleton formula cell owning a fresh calc
// status.
func NewFormulaCell(tokens *formula.Tokens) *FormulaCell {
	return &FormulaCell{tokens: tokens, status: NewCalcStatus(1, 1)}
}

// NewGroupedFormulaCell returns one member of a formula group.
func NewGroupedFormulaCell(tokens *formula.Tokens, status *CalcStatus, rowOffset, colOffset int32) *FormulaCell {
	return &FormulaCell{tokens: tokens, status: status, RowOffset: rowOffset, ColumnOffset: colOffset}
}

// Tokens returns the shared token stream.
func (fc *FormulaCell) Tokens() formula.Tokens {
	if fc.tokens == nil {
		return nil
	}
	return *fc.tokens
}

// TokensHandle exposes the shared token-store pointer; group membership
// is defined by sharing it.
func (fc *FormulaCell) TokensHandle() *formula.Tokens { return fc.tokens }

// Status returns the shared calc status.
func (fc *FormulaCell) Status() *CalcStatus { return fc.status }

// Grouped reports whether the cell belongs to a group larger than 1x1.
func (fc *FormulaCell) Grouped() bool {
	return fc.status.GroupRows != 1 || fc.status.GroupColumns != 1
}

// GroupOrigin maps this cell's position to the origin cell of its group.
func (fc *FormulaCell) GroupOrigin(pos address.Address) address.Address {
	pos.Row -= fc.RowOffset
	pos.Column -= fc.ColumnOffset
	return pos
}

// SetResult publishes the result for the whole group.
func (fc *FormulaCell) SetResult(res formula.Result) {
	fc.status.SetResult(res)
}

// Reset clears the group's cached result.
func (fc *FormulaCell) Reset() {
	fc.status.Reset()
}

// Result reads the group result under policy and projects it onto this
// member cell.
func (fc *FormulaCell) Result(policy WaitPolicy) (formula.Result, error) {
	res, err := fc.status.Result(policy)
	if err != nil {
		return formula.Result{}, err
	}
	return res.ValueAt(fc.RowOffset, fc.ColumnOffset), nil
}

// GroupResult reads the group result under policy without projecting.
func (fc *FormulaCell) GroupResult(policy WaitPolicy) (formula.Result, error) {
	return fc.status.Result(policy)
}
