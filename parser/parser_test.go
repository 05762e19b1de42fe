package parser

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
	_, err = cxt.AppendSheet("Sheet2")
	require.NoError(t, err)
	return cxt
}

func ops(tokens formula.Tokens) []formula.OpCode {
	out := make([]formula.OpCode, len(tokens))
	for i, t := range tokens {
		out[i] = t.Op
	}
	return out
}

func TestParseArithmetic(t *testing.T) {
	cxt := newTestContext(t)
	res := NewExcelA1Resolver(cxt)
	origin := address.New(0, 0, 0)

	tokens, err := Parse(cxt, origin, res, "1+2*3")
	require.NoError(t, err)
	require.Equal(t, []formula.OpCode{
		formula.OpValue, formula.OpPlus, formula.OpValue, formula.OpMultiply, formula.OpValue,
	}, ops(tokens))
	require.Equal(t, 1.0, tokens[0].Value)
	require.Equal(t, 3.0, tokens[4].Value)
}

func TestParseLeadingEquals(t *testing.T) {
	cxt := newTestContext(t)
	res := NewExcelA1Resolver(cxt)

	tokens, err := Parse(cxt, address.New(0, 0, 0), res, "=2+2")
	require.NoError(t, err)
	require.Len(t, tokens, 3)
}

func TestParseSingleRef(t *testing.T) {
	cxt := newTestContext(t)
	res := NewExcelA1Resolver(cxt)

	// at A2, "A1*2" is a relative row -1 reference
	origin := address.New(0, 1, 0)
	tokens, err := Parse(cxt, origin, res, "A1*2")
	require.NoError(t, err)
	require.Equal(t, formula.OpSingleRef, tokens[0].Op)
	require.Equal(t, address.New(0, 0, 0), tokens[0].Ref.Resolve(origin))
	require.True(t, tokens[0].Ref.RelRow)
	require.True(t, tokens[0].Ref.RelColumn)
}

func TestParseAbsoluteRef(t *testing.T) {
	cxt := newTestContext(t)
	res := NewExcelA1Resolver(cxt)

	origin := address.New(0, 5, 5)
	tokens, err := Parse(cxt, origin, res, "$B$3+B3")
	require.NoError(t, err)

	abs := tokens[0].Ref
	require.False(t, abs.RelRow)
	require.False(t, abs.RelColumn)
	require.Equal(t, address.New(0, 2, 1), abs.Resolve(origin))

	rel := tokens[2].Ref
	require.True(t, rel.RelRow)
	require.Equal(t, address.New(0, 2, 1), rel.Resolve(origin))
}

func TestParseCrossSheetRef(t *testing.T) {
	cxt := newTestContext(t)
	res := NewExcelA1Resolver(cxt)

	origin := address.New(1, 1, 1) // on Sheet2
	tokens, err := Parse(cxt, origin, res, "Sheet1!A10")
	require.NoError(t, err)
	require.Equal(t, formula.OpSingleRef, tokens[0].Op)
	pos := tokens[0].Ref.Resolve(origin)
	require.Equal(t, address.New(0, 9, 0), pos)

	_, err = Parse(cxt, origin, res, "NoSuchSheet!A1")
	require.Error(t, err)
}

func TestParseFunctionWithRangeArgs(t *testing.T) {
	cxt := newTestContext(t)
	res := NewExcelA1Resolver(cxt)

	origin := address.New(0, 4, 2) // C5
	tokens, err := Parse(cxt, origin, res, "SUM(A1:A3, C1:E1)")
	require.NoError(t, err)
	require.Equal(t, []formula.OpCode{
		formula.OpFunction, formula.OpOpen,
		formula.OpRangeRef, formula.OpSep, formula.OpRangeRef,
		formula.OpClose,
	}, ops(tokens))
	require.Equal(t, formula.FuncSum, tokens[0].Func)

	first := tokens[2].Range.Resolve(origin)
	require.Equal(t, address.New(0, 0, 0), first.First)
	require.Equal(t, address.New(0, 2, 0), first.Last)

	second := tokens[4].Range.Resolve(origin)
	require.Equal(t, address.New(0, 0, 2), second.First)
	require.Equal(t, address.New(0, 0, 4), second.Last)
}

func TestParseStringAndBooleanLiterals(t *testing.T) {
	cxt := newTestContext(t)
	res := NewExcelA1Resolver(cxt)

	tokens, err := Parse(cxt, address.New(0, 0, 0), res, `"hi"&"there"`)
	require.NoError(t, err)
	require.Equal(t, formula.OpString, tokens[0].Op)
	s, ok := cxt.Strings().Get(tokens[0].ID)
	require.True(t, ok)
	require.Equal(t, "hi", s)
	require.Equal(t, formula.OpConcat, tokens[1].Op)

	tokens, err = Parse(cxt, address.New(0, 0, 0), res, "TRUE+FALSE")
	require.NoError(t, err)
	require.Equal(t, 1.0, tokens[0].Value)
	require.Equal(t, 0.0, tokens[2].Value)
}

func TestParseNamedExpressionReference(t *testing.T) {
	cxt := newTestContext(t)
	res := NewExcelA1Resolver(cxt)

	tokens, err := Parse(cxt, address.New(0, 0, 0), res, "Rate*2")
	require.NoError(t, err)
	require.Equal(t, formula.OpNamedExpression, tokens[0].Op)
	require.Equal(t, "Rate", tokens[0].Name)
}

func TestParseUnknownFunction(t *testing.T) {
	cxt := newTestContext(t)
	res := NewExcelA1Resolver(cxt)

	_, err := Parse(cxt, address.New(0, 0, 0), res, "BOGUS(1)")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestPrintRoundTrip(t *testing.T) {
	cxt := newTestContext(t)
	res := NewExcelA1Resolver(cxt)
	origin := address.New(0, 4, 2)

	for _, text := range []string{
		"A1*2",
		"SUM(A1:A3,C1:E1)",
		"$B$3+B3",
		"1+2*3",
		`"hi"&B2`,
	} {
		tokens, err := Parse(cxt, origin, res, text)
		require.NoError(t, err)
		require.Equal(t, text, Print(cxt, origin, res, tokens))
	}
}

func TestPrintCrossSheetCarriesPrefix(t *testing.T) {
	cxt := newTestContext(t)
	res := NewExcelA1Resolver(cxt)
	origin := address.New(1, 1, 1)

	tokens, err := Parse(cxt, origin, res, "Sheet1!A10*2")
	require.NoError(t, err)
	require.Equal(t, "Sheet1!A10*2", Print(cxt, origin, res, tokens))
}

func TestA1ResolverNames(t *testing.T) {
	cxt := newTestContext(t)
	res := NewExcelA1Resolver(cxt)
	origin := address.New(0, 9, 3)

	rn := res.Resolve("AA12", origin)
	require.Equal(t, ResolvedCellRef, rn.Type)
	require.Equal(t, address.New(0, 11, 26), rn.Ref.Resolve(origin))
	require.Equal(t, "AA12", res.GetName(rn.Ref, origin, false))

	rn = res.Resolve("$A$1:B2", origin)
	require.Equal(t, ResolvedRangeRef, rn.Type)
	require.Equal(t, "$A$1:B2", res.GetRangeName(rn.Range, origin, false))

	rn = res.Resolve("SUM", origin)
	require.Equal(t, ResolvedFunction, rn.Type)
	require.Equal(t, formula.FuncSum, rn.Func)

	rn = res.Resolve("my_total", origin)
	require.Equal(t, ResolvedNamedExpression, rn.Type)

	rn = res.Resolve("!!!", origin)
	require.Equal(t, ResolvedInvalid, rn.Type)
}

func TestR1C1Resolver(t *testing.T) {
	cxt := newTestContext(t)
	res := NewExcelR1C1Resolver(cxt)
	origin := address.New(0, 4, 4)

	rn := res.Resolve("R1C1", origin)
	require.Equal(t, ResolvedCellRef, rn.Type)
	require.Equal(t, address.New(0, 0, 0), rn.Ref.Resolve(origin))
	require.False(t, rn.Ref.RelRow)

	rn = res.Resolve("R[-1]C[2]", origin)
	require.Equal(t, ResolvedCellRef, rn.Type)
	require.Equal(t, address.New(0, 3, 6), rn.Ref.Resolve(origin))
	require.True(t, rn.Ref.RelRow)
	require.Equal(t, "R[-1]C[2]", res.GetName(rn.Ref, origin, false))

	rn = res.Resolve("RC", origin)
	require.Equal(t, ResolvedCellRef, rn.Type)
	require.Equal(t, origin, rn.Ref.Resolve(origin))

	rn = res.Resolve("R1C1:R3C1", origin)
	require.Equal(t, ResolvedRangeRef, rn.Type)
	rng := rn.Range.Resolve(origin)
	require.Equal(t, address.New(0, 0, 0), rng.First)
	require.Equal(t, address.New(0, 2, 0), rng.Last)
}

func TestColumnNames(t *testing.T) {
	cases := map[int32]string{0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", 701: "ZZ", 702: "AAA"}
	for idx, name := range cases {
		require.Equal(t, name, columnName(idx))
		back, ok := columnIndex(name)
		require.True(t, ok)
		require.Equal(t, idx, back)
	}
	_, ok := columnIndex("")
	require.False(t, ok)
	_, ok = columnIndex("A1")
	require.False(t, ok)
}
