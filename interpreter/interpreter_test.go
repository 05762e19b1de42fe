package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"recalc/address"
	"recalc/formula"
	"recalc/model"
)

func newTestContext(t *testing.T) *model.Context {
	t.Helper()
	cxt := model.NewContext(100, 30, model.Config{})
	_, err := cxt.AppendSheet("Sheet1")
	require.NoError(t, err)
	return cxt
}

func evalAt(cxt *model.Context, pos address.Address, tokens formula.Tokens) formula.Result {
	in := New(cxt, pos, address.NewRange(pos), nil)
	return in.Interpret(tokens)
}

func eval(cxt *model.Context, tokens formula.Tokens) formula.Result {
	return evalAt(cxt, address.New(0, 0, 0), tokens)
}

func num(v float64) formula.Token { return formula.Token{Op: formula.OpValue, Value: v} }
func op(o formula.OpCode) formula.Token { return formula.Token{Op: o} }

func TestArithmeticPrecedence(t *testing.T) {
	cxt := newTestContext(t)

	res := eval(cxt, formula.Tokens{num(1), op(formula.OpPlus), num(2), op(formula.OpMultiply), num(3)})
	require.Equal(t, 7.0, res.Number())

	res = eval(cxt, formula.Tokens{
		op(formula.OpOpen), num(1), op(formula.OpPlus), num(2), op(formula.OpClose),
		op(formula.OpMultiply), num(3),
	})
	require.Equal(t, 9.0, res.Number())

	res = eval(cxt, formula.Tokens{num(10), op(formula.OpMinus), num(4), op(formula.OpDivide), num(2)})
	require.Equal(t, 8.0, res.Number())

	res = eval(cxt, formula.Tokens{op(formula.OpMinus), num(5), op(formula.OpPlus), num(2)})
	require.Equal(t, -3.0, res.Number())
}

func TestDivisionByZero(t *testing.T) {
	cxt := newTestContext(t)
	res := eval(cxt, formula.Tokens{num(1), op(formula.OpDivide), num(0)})
	require.Equal(t, formula.ResultError, res.Type())
	require.Equal(t, formula.DivisionByZero, res.Error())
}

func TestComparisons(t *testing.T) {
	cxt := newTestContext(t)

	res := eval(cxt, formula.Tokens{num(10), op(formula.OpGreater), num(5)})
	require.Equal(t, 1.0, res.Number())

	res = eval(cxt, formula.Tokens{num(10), op(formula.OpLess), num(5)})
	require.Equal(t, 0.0, res.Number())

	res = eval(cxt, formula.Tokens{num(3), op(formula.OpEqual), num(3)})
	require.Equal(t, 1.0, res.Number())

	res = eval(cxt, formula.Tokens{num(3), op(formula.OpNotEqual), num(3)})
	require.Equal(t, 0.0, res.Number())
}

func TestSingleRefRead(t *testing.T) {
	cxt := newTestContext(t)
	require.NoError(t, cxt.SetNumericCell(address.New(0, 0, 0), 5))

	// evaluated at A2, referencing A1 relatively
	tokens := formula.Tokens{
		{Op: formula.OpSingleRef, Ref: address.NewRef(0, -1, 0)},
		op(formula.OpMultiply), num(2),
	}
	res := evalAt(cxt, address.New(0, 1, 0), tokens)
	require.Equal(t, 10.0, res.Number())
}

func TestSelfReferenceIsCycle(t *testing.T) {
	cxt := newTestContext(t)

	tokens := formula.Tokens{{Op: formula.OpSingleRef, Ref: address.NewRef(0, 0, 0)}}
	res := eval(cxt, tokens)
	require.Equal(t, formula.RefCycle, res.Error())

	// a range containing the cell's own position is also a cycle
	rangeTokens := formula.Tokens{
		{Op: formula.OpFunction, Func: formula.FuncSum},
		op(formula.OpOpen),
		{Op: formula.OpRangeRef, Range: address.RefRange{
			First: address.NewRef(0, 0, 0),
			Last:  address.NewRef(0, 2, 0),
		}},
		op(formula.OpClose),
	}
	res = eval(cxt, rangeTokens)
	require.Equal(t, formula.RefCycle, res.Error())
}

func TestSumOverRangeAndValues(t *testing.T) {
	cxt := newTestContext(t)
	for i, v := range []float64{1, 2, 3} {
		require.NoError(t, cxt.SetNumericCell(address.New(0, int32(i), 0), v))
	}
	// a string in the range is skipped, not an error
	_, err := cxt.SetStringCell(address.New(0, 1, 1), "note")
	require.NoError(t, err)

	tokens := formula.Tokens{
		{Op: formula.OpFunction, Func: formula.FuncSum},
		op(formula.OpOpen),
		{Op: formula.OpRangeRef, Range: address.RefRange{
			First: address.NewRef(0, -9, -9),
			Last:  address.NewRef(0, -7, -8),
		}},
		op(formula.OpSep),
		num(10),
		op(formula.OpClose),
	}
	res := evalAt(cxt, address.New(0, 9, 9), tokens)
	require.Equal(t, 16.0, res.Number())
}

func TestStringConcat(t *testing.T) {
	cxt := newTestContext(t)
	a := cxt.Strings().Intern("foo")
	b := cxt.Strings().Intern("bar")

	tokens := formula.Tokens{
		{Op: formula.OpString, ID: a},
		op(formula.OpConcat),
		{Op: formula.OpString, ID: b},
	}
	res := eval(cxt, tokens)
	require.Equal(t, formula.ResultString, res.Type())
	s, ok := cxt.Strings().Get(res.StringID())
	require.True(t, ok)
	require.Equal(t, "foobar", s)
}

func TestBuiltinFunctions(t *testing.T) {
	cxt := newTestContext(t)

	ifTokens := formula.Tokens{
		{Op: formula.OpFunction, Func: formula.FuncIf},
		op(formula.OpOpen),
		num(1), op(formula.OpSep), num(10), op(formula.OpSep), num(20),
		op(formula.OpClose),
	}
	require.Equal(t, 10.0, eval(cxt, ifTokens).Number())

	lenTokens := formula.Tokens{
		{Op: formula.OpFunction, Func: formula.FuncLen},
		op(formula.OpOpen),
		{Op: formula.OpString, ID: cxt.Strings().Intern("hello")},
		op(formula.OpClose),
	}
	require.Equal(t, 5.0, eval(cxt, lenTokens).Number())

	avgTokens := formula.Tokens{
		{Op: formula.OpFunction, Func: formula.FuncAverage},
		op(formula.OpOpen),
		num(2), op(formula.OpSep), num(4), op(formula.OpSep), num(6),
		op(formula.OpClose),
	}
	require.Equal(t, 4.0, eval(cxt, avgTokens).Number())

	badArity := formula.Tokens{
		{Op: formula.OpFunction, Func: formula.FuncIf},
		op(formula.OpOpen), num(1), op(formula.OpClose),
	}
	require.Equal(t, formula.InvalidExpression, eval(cxt, badArity).Error())
}

func TestNowIsVolatileButComputes(t *testing.T) {
	cxt := newTestContext(t)
	tokens := formula.Tokens{
		{Op: formula.OpFunction, Func: formula.FuncNow},
		op(formula.OpOpen), op(formula.OpClose),
	}
	res := eval(cxt, tokens)
	require.Equal(t, formula.ResultValue, res.Type())
	require.Greater(t, res.Number(), 40000.0, "serial dates after 2009 exceed 40000")
}

func TestNamedExpressionExpansion(t *testing.T) {
	cxt := newTestContext(t)
	origin := address.New(0, 0, 0)
	require.NoError(t, cxt.SetNamedExpression("Rate", origin, formula.Tokens{num(0.5)}))

	tokens := formula.Tokens{
		{Op: formula.OpNamedExpression, Name: "Rate"},
		op(formula.OpMultiply), num(8),
	}
	require.Equal(t, 4.0, eval(cxt, tokens).Number())
}

func TestNamedExpressionPrecedenceOverInline(t *testing.T) {
	cxt := newTestContext(t)
	origin := address.New(0, 0, 0)
	// the spliced open/close markers must keep the inner sum intact
	require.NoError(t, cxt.SetNamedExpression("Base", origin,
		formula.Tokens{num(1), op(formula.OpPlus), num(2)}))

	tokens := formula.Tokens{
		{Op: formula.OpNamedExpression, Name: "Base"},
		op(formula.OpMultiply), num(10),
	}
	require.Equal(t, 30.0, eval(cxt, tokens).Number())
}

func TestNamedExpressionCycles(t *testing.T) {
	cxt := newTestContext(t)
	origin := address.New(0, 0, 0)
	require.NoError(t, cxt.SetNamedExpression("X", origin,
		formula.Tokens{{Op: formula.OpNamedExpression, Name: "Y"}}))
	require.NoError(t, cxt.SetNamedExpression("Y", origin,
		formula.Tokens{{Op: formula.OpNamedExpression, Name: "X"}}))

	res := eval(cxt, formula.Tokens{{Op: formula.OpNamedExpression, Name: "X"}})
	require.Equal(t, formula.InvalidExpression, res.Error())

	res = eval(cxt, formula.Tokens{{Op: formula.OpNamedExpression, Name: "Missing"}})
	require.Equal(t, formula.NameNotFound, res.Error())
}

func TestUnknownFunction(t *testing.T) {
	cxt := newTestContext(t)
	tokens := formula.Tokens{
		{Op: formula.OpFunction, Func: formula.FuncUnknown},
		op(formula.OpOpen), op(formula.OpClose),
	}
	require.Equal(t, formula.NameNotFound, eval(cxt, tokens).Error())
}

func TestErrorPropagationFromReferencedCell(t *testing.T) {
	cxt := newTestContext(t)

	// A1 holds a formula whose cached result is an error
	tokens := formula.Tokens{num(1)}
	fc, err := cxt.SetFormulaCell(address.New(0, 0, 0), &tokens, nil)
	require.NoError(t, err)
	fc.SetResult(formula.ErrorResult(formula.DivisionByZero))

	depTokens := formula.Tokens{
		{Op: formula.OpSingleRef, Ref: address.NewRef(0, -1, 0)},
		op(formula.OpPlus), num(1),
	}
	res := evalAt(cxt, address.New(0, 1, 0), depTokens)
	require.Equal(t, formula.DivisionByZero, res.Error())
}

func TestInterpretCellPublishesResult(t *testing.T) {
	cxt := newTestContext(t)
	require.NoError(t, cxt.SetNumericCell(address.New(0, 0, 0), 6))

	tokens := formula.Tokens{
		{Op: formula.OpSingleRef, Ref: address.NewRef(0, -1, 0)},
		op(formula.OpMultiply), num(7),
	}
	pos := address.New(0, 1, 0)
	fc, err := cxt.SetFormulaCell(pos, &tokens, nil)
	require.NoError(t, err)

	res := InterpretCell(cxt, fc, pos)
	require.Equal(t, 42.0, res.Number())

	cached, err := fc.Result(model.WaitError)
	require.NoError(t, err)
	require.Equal(t, 42.0, cached.Number())
}

func TestGroupedMatrixInterpret(t *testing.T) {
	cxt := newTestContext(t)
	// column vector A1:A3 and row vector C1:E1
	for i, v := range []float64{1, 2, 3} {
		require.NoError(t, cxt.SetNumericCell(address.New(0, int32(i), 0), v))
	}
	for i, v := range []float64{4, 5, 6} {
		require.NoError(t, cxt.SetNumericCell(address.New(0, 0, int32(2+i)), v))
	}

	group := address.Range{First: address.New(0, 4, 2), Last: address.New(0, 6, 4)}
	tokens := formula.Tokens{
		{Op: formula.OpFunction, Func: formula.FuncMMult},
		op(formula.OpOpen),
		{Op: formula.OpRangeRef, Range: address.RefRange{
			First: address.AbsRef(0, 0, 0), Last: address.AbsRef(0, 2, 0),
		}},
		op(formula.OpSep),
		{Op: formula.OpRangeRef, Range: address.RefRange{
			First: address.AbsRef(0, 0, 2), Last: address.AbsRef(0, 0, 4),
		}},
		op(formula.OpClose),
	}
	require.NoError(t, cxt.SetGroupedFormulaCells(group, &tokens, nil))

	origin := cxt.GetFormulaCell(group.First)
	res := InterpretCell(cxt, origin, group.First)
	require.Equal(t, formula.ResultMatrix, res.Type())

	// (3x1) x (1x3): out[r][c] = a[r] * b[c]
	require.Equal(t, 4.0, cxt.GetNumeric(address.New(0, 4, 2)))
	require.Equal(t, 5.0, cxt.GetNumeric(address.New(0, 4, 3)))
	require.Equal(t, 18.0, cxt.GetNumeric(address.New(0, 6, 4)))
}
