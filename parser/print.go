package parser

import (
	"strconv"
	"strings"

	"recalc/address"
	"recalc/formula"
	"recalc/model"
)

var opSymbols = map[formula.OpCode]string{
	formula.OpPlus:         "+",
	formula.OpMinus:        "-",
	formula.OpMultiply:     "*",
	formula.OpDivide:       "/",
	formula.OpExponent:     "^",
	formula.OpConcat:       "&",
	formula.OpEqual:        "=",
	formula.OpNotEqual:     "<>",
	formula.OpLess:         "<",
	formula.OpGreater:      ">",
	formula.OpLessEqual:    "<=",
	formula.OpGreaterEqual: ">=",
	formula.OpOpen:         "(",
	formula.OpClose:        ")",
	formula.OpSep:          ",",
}

// Print renders a token stream back to formula text for diagnostics.
// References render through res; cross-sheet references carry their
// sheet prefix.
func Print(cxt *model.Context, origin address.Address, res Resolver, tokens formula.Tokens) string {
	var b strings.Builder
	for _, t := range tokens {
		switch t.Op {
		case formula.OpSingleRef:
			withSheet := t.Ref.Resolve(origin).Sheet != origin.Sheet
			b.WriteString(res.GetName(t.Ref, origin, withSheet))
		case formula.OpRangeRef:
			withSheet := t.Range.First.Resolve(origin).Sheet != origin.Sheet
			b.WriteString(res.GetRangeName(t.Range, origin, withSheet))
		case formula.OpNamedExpression:
			b.WriteString(t.Name)
		case formula.OpTableRef:
			b.WriteString(t.Table.Name)
		case formula.OpValue:
			b.WriteString(strconv.FormatFloat(t.Value, 'g', -1, 64))
		case formula.OpString:
			s, _ := cxt.Strings().Get(t.ID)
			b.WriteByte('"')
			b.WriteString(s)
			b.WriteByte('"')
		case formula.OpError:
			b.WriteString(t.Err.String())
		case formula.OpFunction:
			b.WriteString(t.Func.String())
		default:
			if sym, ok := opSymbols[t.Op]; ok {
				b.WriteString(sym)
			}
		}
	}
	return b.String()
}
