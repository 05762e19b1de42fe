package interpreter

import (
	"recalc/address"
	"recalc/formula"
	"recalc/model"
)

// FormulaError carries the error kind a failed evaluation stores into
// the cell's result cache.
type FormulaError struct {
	Kind formula.ErrorKind
	Msg  string
}

func (e *FormulaError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

func formulaErr(kind formula.ErrorKind, msg string) error {
	return &FormulaError{Kind: kind, Msg: msg}
}

type stackValueType uint8

const (
	svValue stackValueType = iota
	svString
	svSingleRef
	svRangeRef
	svMatrix
	svError
)

// stackValue is one slot of the interpreter's value stack. References
// stay unresolved on the stack so functions can consume whole ranges;
// popValue resolves them through the model on demand.
type stackValue struct {
	typ    stackValueType
	value  float64
	strID  uint32
	pos    address.Address
	rng    address.Range
	matrix *formula.Matrix
	err    formula.ErrorKind
}

func valueSV(v float64) stackValue          { return stackValue{typ: svValue, value: v} }
func stringSV(id uint32) stackValue         { return stackValue{typ: svString, strID: id} }
func singleRefSV(pos address.Address) stackValue {
	return stackValue{typ: svSingleRef, pos: pos}
}
func rangeRefSV(rng address.Range) stackValue { return stackValue{typ: svRangeRef, rng: rng} }
func matrixSV(m *formula.Matrix) stackValue   { return stackValue{typ: svMatrix, matrix: m} }
func errorSV(kind formula.ErrorKind) stackValue { return stackValue{typ: svError, err: kind} }

// valueStack evaluates against a model context: popping a slot as a
// concrete value reads referenced cells through the context, which
// blocks on unfinished precedents under the engine's wait policy.
type valueStack struct {
	cxt   *model.Context
	slots []stackValue
}

func newValueStack(cxt *model.Context) *valueStack {
	return &valueStack{cxt: cxt}
}

func (s *valueStack) push(v stackValue) { s.slots = append(s.slots, v) }

func (s *valueStack) pop() (stackValue, error) {
	if len(s.slots) == 0 {
		return stackValue{}, formulaErr(formula.InvalidExpression, "value stack is empty")
	}
	v := s.slots[len(s.slots)-1]
	s.slots = s.slots[:len(s.slots)-1]
	return v, nil
}

func (s *valueStack) len() int { return len(s.slots) }

// popValue pops the top slot as a number. Single references read the
// referenced cell; a range must be degenerate to read as a value; error
// slots surface their error kind.
func (s *valueStack) popValue() (float64, error) {
	v, err := s.pop()
	if err != nil {
		return 0, err
	}
	return s.numeric(v)
}

func (s *valueStack) numeric(v stackValue) (float64, error) {
	switch v.typ {
	case svValue:
		return v.value, nil
	case svString:
		return 0, nil
	case svSingleRef:
		if err := s.checkCellError(v.pos); err != nil {
			return 0, err
		}
		return s.cxt.GetNumeric(v.pos), nil
	case svRangeRef:
		if v.rng.First == v.rng.Last {
			return s.numeric(singleRefSV(v.rng.First))
		}
		return 0, formulaErr(formula.InvalidValueType, "range used as a single value")
	case svMatrix:
		return v.matrix.Numeric(0, 0), nil
	case svError:
		return 0, formulaErr(v.err, "")
	}
	return 0, formulaErr(formula.InvalidValueType, "")
}

// popString pops the top slot as an interned string id, rendering
// numeric values in lexical form through the pool.
func (s *valueStack) popString() (uint32, error) {
	v, err := s.pop()
	if err != nil {
		return model.EmptyStringID, err
	}
	switch v.typ {
	case svString:
		return v.strID, nil
	case svValue:
		return s.cxt.Strings().Intern(formula.NumberResult(v.value).Display()), nil
	case svSingleRef:
		if err := s.checkCellError(v.pos); err != nil {
			return model.EmptyStringID, err
		}
		return s.cxt.Strings().Intern(s.cxt.GetString(v.pos)), nil
	case svError:
		return model.EmptyStringID, formulaErr(v.err, "")
	}
	return model.EmptyStringID, formulaErr(formula.InvalidValueType, "string expected")
}

// checkCellError propagates a referenced formula cell's cached error so
// arithmetic on an error cell yields the same error.
func (s *valueStack) checkCellError(pos address.Address) error {
	fc := s.cxt.GetFormulaCell(pos)
	if fc == nil {
		return nil
	}
	res, err := fc.Result(s.cxt.WaitPolicy())
	if err != nil {
		return formulaErr(formula.NoValueAvailable, "")
	}
	if kind := res.Error(); kind != formula.NoError {
		return formulaErr(kind, "")
	}
	return nil
}
