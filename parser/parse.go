package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/efp"

	"recalc/address"
	"recalc/formula"
	"recalc/model"
)

// ParseError reports a formula that could not be turned into a token
// stream.
type ParseError struct {
	Formula string
	Msg     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Formula, e.Msg)
}

func parseErrorf(text, format string, args ...any) error {
	return &ParseError{Formula: text, Msg: fmt.Sprintf(format, args...)}
}

var infixOps = map[string]formula.OpCode{
	"+":  formula.OpPlus,
	"-":  formula.OpMinus,
	"*":  formula.OpMultiply,
	"/":  formula.OpDivide,
	"^":  formula.OpExponent,
	"&":  formula.OpConcat,
	"=":  formula.OpEqual,
	"<>": formula.OpNotEqual,
	"<":  formula.OpLess,
	">":  formula.OpGreater,
	"<=": formula.OpLessEqual,
	">=": formula.OpGreaterEqual,
}

// Parse tokenizes and parses formula text into the engine's token
// stream. References resolve through res against the origin cell; a
// leading "=" is tolerated and ignored.
func Parse(cxt *model.Context, origin address.Address, res Resolver, text string) (formula.Tokens, error) {
	src := strings.TrimPrefix(strings.TrimSpace(text), "=")
	ep := efp.ExcelParser()
	raw := ep.Parse(src)
	if raw == nil {
		return nil, parseErrorf(text, "tokenizer failed")
	}

	out := make(formula.Tokens, 0, len(raw))
	for _, t := range raw {
		switch t.TType {
		case efp.TokenTypeOperand:
			tok, err := operandToken(cxt, origin, res, t, text)
			if err != nil {
				return nil, err
			}
			out = append(out, tok)

		case efp.TokenTypeFunction:
			if t.TSubType == efp.TokenSubTypeStart {
				op := formula.FunctionOpFromName(t.TValue)
				if op == formula.FuncUnknown {
					return nil, parseErrorf(text, "unknown function %q", t.TValue)
				}
				out = append(out,
					formula.Token{Op: formula.OpFunction, Func: op},
					formula.Token{Op: formula.OpOpen})
			} else {
				out = append(out, formula.Token{Op: formula.OpClose})
			}

		case efp.TokenTypeSubexpression:
			if t.TSubType == efp.TokenSubTypeStart {
				out = append(out, formula.Token{Op: formula.OpOpen})
			} else {
				out = append(out, formula.Token{Op: formula.OpClose})
			}

		case efp.TokenTypeArgument:
			out = append(out, formula.Token{Op: formula.OpSep})

		case efp.TokenTypeOperatorPrefix:
			switch t.TValue {
			case "-":
				out = append(out, formula.Token{Op: formula.OpMinus})
			case "+":
				// unary plus is a no-op
			default:
				return nil, parseErrorf(text, "unsupported prefix operator %q", t.TValue)
			}

		case efp.TokenTypeOperatorInfix:
			op, ok := infixOps[t.TValue]
			if !ok {
				return nil, parseErrorf(text, "unsupported operator %q", t.TValue)
			}
			out = append(out, formula.Token{Op: op})

		case efp.TokenTypeWhitespace, efp.TokenTypeNoop:
			// skip

		default:
			return nil, parseErrorf(text, "unsupported token %q (%s)", t.TValue, t.TType)
		}
	}
	if len(out) == 0 {
		return nil, parseErrorf(text, "empty formula")
	}
	return out, nil
}

func operandToken(cxt *model.Context, origin address.Address, res Resolver, t efp.Token, text string) (formula.Token, error) {
	switch t.TSubType {
	case efp.TokenSubTypeNumber:
		v, err := strconv.ParseFloat(t.TValue, 64)
		if err != nil {
			return formula.Token{}, parseErrorf(text, "bad number %q", t.TValue)
		}
		return formula.Token{Op: formula.OpValue, Value: v}, nil

	case efp.TokenSubTypeText:
		return formula.Token{Op: formula.OpString, ID: cxt.Strings().Intern(t.TValue)}, nil

	case efp.TokenSubTypeLogical:
		v := 0.0
		if strings.EqualFold(t.TValue, "TRUE") {
			v = 1
		}
		return formula.Token{Op: formula.OpValue, Value: v}, nil

	case efp.TokenSubTypeError:
		return formula.Token{Op: formula.OpError, Err: formula.ErrorKindFromName(t.TValue)}, nil

	case efp.TokenSubTypeRange:
		rn := res.Resolve(t.TValue, origin)
		switch rn.Type {
		case ResolvedCellRef:
			return formula.Token{Op: formula.OpSingleRef, Ref: rn.Ref}, nil
		case ResolvedRangeRef:
			return formula.Token{Op: formula.OpRangeRef, Range: rn.Range}, nil
		case ResolvedNamedExpression:
			return formula.Token{Op: formula.OpNamedExpression, Name: rn.Name}, nil
		case ResolvedTableRef:
			return formula.Token{Op: formula.OpTableRef, Table: rn.Table}, nil
		default:
			return formula.Token{}, parseErrorf(text, "unresolvable reference %q", t.TValue)
		}
	}
	return formula.Token{}, parseErrorf(text, "unsupported operand %q (%s)", t.TValue, t.TSubType)
}
