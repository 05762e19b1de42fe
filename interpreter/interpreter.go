// Package interpreter evaluates parsed formula token streams against the
// workbook model. It walks tokens with an explicit index (no lexing at
// interpret time), keeps intermediate values on an explicit stack, and
// resolves references through the model so reads of unfinished formula
// cells block under the engine's wait policy.
package interpreter

import (
	"math"

	"recalc/address"
	"recalc/formula"
	"recalc/model"
)

// Interpreter evaluates one formula cell. A fresh instance is used per
// cell interpretation; it is not reused across cells.
type Interpreter struct {
	cxt     *model.Context
	pos     address.Address
	group   address.Range
	tokens  formula.Tokens
	idx     int
	stack   *valueStack
	session model.SessionHandler

	// names currently being inlined, to catch mutual recursion
	expanding map[string]struct{}
}

// New returns an interpreter for the cell at pos. For a grouped formula
// pos is the group origin and group covers the whole rectangle; for a
// singleton both describe the single cell.
func New(cxt *model.Context, pos address.Address, group address.Range, session model.SessionHandler) *Interpreter {
	return &Interpreter{
		cxt:       cxt,
		pos:       pos,
		group:     group,
		stack:     newValueStack(cxt),
		session:   session,
		expanding: make(map[string]struct{}),
	}
}

// InterpretCell computes the result of the formula cell at pos and
// publishes it into the cell's calc status, waking any blocked
// dependents. Only a group's origin cell is interpreted; members share
// the published matrix result.
func InterpretCell(cxt *model.Context, fc *model.FormulaCell, pos address.Address) formula.Result {
	origin := fc.GroupOrigin(pos)
	group := address.Range{
		First: origin,
		Last: address.New(origin.Sheet,
			origin.Row+fc.Status().GroupRows-1,
			origin.Column+fc.Status().GroupColumns-1),
	}

	var session model.SessionHandler
	if f := cxt.Config().SessionHandlerFactory; f != nil {
		session = f()
	}

	in := New(cxt, origin, group, session)
	res := in.Interpret(fc.Tokens())
	fc.SetResult(res)
	return res
}

// Interpret evaluates the token stream and returns the result. Failures
// are folded into an error result; they never escape as Go errors.
func (in *Interpreter) Interpret(tokens formula.Tokens) formula.Result {
	if in.session != nil {
		in.session.BeginCellInterpret(in.pos)
		defer in.session.EndCellInterpret()
	}

	expanded, err := in.expand(tokens)
	if err == nil {
		in.tokens = expanded
		in.idx = 0
		err = in.expression()
		if err == nil && (in.idx != len(in.tokens) || in.stack.len() != 1) {
			err = formulaErr(formula.InvalidExpression, "left-over tokens after evaluation")
		}
	}

	var res formula.Result
	if err == nil {
		res, err = in.finalResult()
	}
	if err != nil {
		res = formula.ErrorResult(errKindOf(err))
		if in.session != nil {
			if res.Error() == formula.InvalidExpression {
				in.session.SetInvalidExpression(err.Error())
			} else {
				in.session.SetFormulaError(err.Error())
			}
		}
	}
	if in.session != nil {
		in.session.SetResult(res)
	}
	return res
}

func errKindOf(err error) formula.ErrorKind {
	if fe, ok := err.(*FormulaError); ok {
		return fe.Kind
	}
	return formula.OtherError
}

// finalResult turns the single remaining stack slot into the cell
// result. String results are interned; a matrix on a singleton cell
// collapses to its top-left element.
func (in *Interpreter) finalResult() (formula.Result, error) {
	v, err := in.stack.pop()
	if err != nil {
		return formula.Result{}, err
	}
	grouped := in.group.Rows() != 1 || in.group.Columns() != 1

	if v.typ == svMatrix {
		if grouped {
			if v.matrix.Rows() != in.group.Rows() || v.matrix.Columns() != in.group.Columns() {
				return formula.Result{}, formulaErr(formula.InvalidValueType, "matrix does not match group shape")
			}
			return formula.MatrixResult(v.matrix), nil
		}
		return formula.NumberResult(v.matrix.Numeric(0, 0)), nil
	}
	if grouped {
		// scalar result broadcast over the group rectangle
		m := formula.NewMatrix(in.group.Rows(), in.group.Columns())
		for r := int32(0); r < m.Rows(); r++ {
			for c := int32(0); c < m.Columns(); c++ {
				if err := in.fillMatrixSlot(m, r, c, v); err != nil {
					return formula.Result{}, err
				}
			}
		}
		return formula.MatrixResult(m), nil
	}

	switch v.typ {
	case svString:
		return formula.StringResult(v.strID), nil
	case svError:
		return formula.ErrorResult(v.err), nil
	default:
		in.stack.push(v)
		n, err := in.stack.popValue()
		if err != nil {
			return formula.Result{}, err
		}
		return formula.NumberResult(n), nil
	}
}

func (in *Interpreter) fillMatrixSlot(m *formula.Matrix, r, c int32, v stackValue) error {
	switch v.typ {
	case svString:
		m.SetString(r, c, v.strID)
	case svError:
		m.SetError(r, c, v.err)
	default:
		in.stack.push(v)
		n, err := in.stack.popValue()
		if err != nil {
			return err
		}
		m.SetNumber(r, c, n)
	}
	return nil
}

// expand inlines named-expression tokens, splicing each referenced
// stream between open/close markers. Mutual recursion between names is
// an invalid expression.
func (in *Interpreter) expand(tokens formula.Tokens) (formula.Tokens, error) {
	out := make(formula.Tokens, 0, len(tokens))
	for _, t := range tokens {
		if t.Op != formula.OpNamedExpression {
			out = append(out, t)
			continue
		}
		ne := in.cxt.GetNamedExpression(in.pos.Sheet, t.Name)
		if ne == nil {
			return nil, formulaErr(formula.NameNotFound, t.Name)
		}
		if _, busy := in.expanding[t.Name]; busy {
			return nil, formulaErr(formula.InvalidExpression, "circular named expression "+t.Name)
		}
		in.expanding[t.Name] = struct{}{}
		inner, err := in.expand(ne.Tokens)
		delete(in.expanding, t.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, formula.Token{Op: formula.OpOpen})
		out = append(out, inner...)
		out = append(out, formula.Token{Op: formula.OpClose})
	}
	return out, nil
}

func (in *Interpreter) cur() (formula.Token, bool) {
	if in.idx >= len(in.tokens) {
		return formula.Token{}, false
	}
	return in.tokens[in.idx], true
}

func (in *Interpreter) advance() { in.idx++ }

// expression = term (("+"|"-"|"&"|comparison) term)*
func (in *Interpreter) expression() error {
	if err := in.term(); err != nil {
		return err
	}
	for {
		t, ok := in.cur()
		if !ok {
			return nil
		}
		if t.Op.IsOperator() && in.session != nil {
			in.session.PushToken(t.Op)
		}
		switch t.Op {
		case formula.OpPlus, formula.OpMinus:
			in.advance()
			left, err := in.stack.popValue()
			if err != nil {
				return err
			}
			if err := in.term(); err != nil {
				return err
			}
			right, err := in.stack.popValue()
			if err != nil {
				return err
			}
			if t.Op == formula.OpPlus {
				in.stack.push(valueSV(left + right))
			} else {
				in.stack.push(valueSV(left - right))
			}
		case formula.OpConcat:
			in.advance()
			left, err := in.stack.popString()
			if err != nil {
				return err
			}
			if err := in.term(); err != nil {
				return err
			}
			right, err := in.stack.popString()
			if err != nil {
				return err
			}
			ls, _ := in.cxt.Strings().Get(left)
			rs, _ := in.cxt.Strings().Get(right)
			in.stack.push(stringSV(in.cxt.Strings().Intern(ls + rs)))
		case formula.OpEqual, formula.OpNotEqual, formula.OpLess,
			formula.OpGreater, formula.OpLessEqual, formula.OpGreaterEqual:
			in.advance()
			left, err := in.stack.popValue()
			if err != nil {
				return err
			}
			if err := in.term(); err != nil {
				return err
			}
			right, err := in.stack.popValue()
			if err != nil {
				return err
			}
			in.stack.push(valueSV(boolValue(compare(t.Op, left, right))))
		default:
			return nil
		}
	}
}

func compare(op formula.OpCode, left, right float64) bool {
	switch op {
	case formula.OpEqual:
		return left == right
	case formula.OpNotEqual:
		return left != right
	case formula.OpLess:
		return left < right
	case formula.OpGreater:
		return left > right
	case formula.OpLessEqual:
		return left <= right
	default:
		return left >= right
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// term = factor (("*"|"/"|"^") factor)*
func (in *Interpreter) term() error {
	if err := in.factor(); err != nil {
		return err
	}
	for {
		t, ok := in.cur()
		if !ok {
			return nil
		}
		switch t.Op {
		case formula.OpMultiply, formula.OpDivide, formula.OpExponent:
			if in.session != nil {
				in.session.PushToken(t.Op)
			}
			in.advance()
			left, err := in.stack.popValue()
			if err != nil {
				return err
			}
			if err := in.factor(); err != nil {
				return err
			}
			right, err := in.stack.popValue()
			if err != nil {
				return err
			}
			switch t.Op {
			case formula.OpMultiply:
				in.stack.push(valueSV(left * right))
			case formula.OpExponent:
				in.stack.push(valueSV(math.Pow(left, right)))
			default:
				if right == 0 {
					return formulaErr(formula.DivisionByZero, "")
				}
				in.stack.push(valueSV(left / right))
			}
		default:
			return nil
		}
	}
}

// factor = paren | value | string | single-ref | range-ref | function |
// error-literal | unary-minus factor
func (in *Interpreter) factor() error {
	t, ok := in.cur()
	if !ok {
		return formulaErr(formula.InvalidExpression, "unexpected end of expression")
	}
	switch t.Op {
	case formula.OpOpen:
		in.advance()
		if err := in.expression(); err != nil {
			return err
		}
		c, ok := in.cur()
		if !ok || c.Op != formula.OpClose {
			return formulaErr(formula.InvalidExpression, "unbalanced parenthesis")
		}
		in.advance()
		return nil
	case formula.OpValue:
		in.advance()
		if in.session != nil {
			in.session.PushValue(t.Value)
		}
		in.stack.push(valueSV(t.Value))
		return nil
	case formula.OpString:
		in.advance()
		if in.session != nil {
			in.session.PushString(t.ID)
		}
		in.stack.push(stringSV(t.ID))
		return nil
	case formula.OpError:
		in.advance()
		in.stack.push(errorSV(t.Err))
		return nil
	case formula.OpMinus:
		in.advance()
		if err := in.factor(); err != nil {
			return err
		}
		v, err := in.stack.popValue()
		if err != nil {
			return err
		}
		in.stack.push(valueSV(-v))
		return nil
	case formula.OpSingleRef:
		in.advance()
		return in.pushSingleRef(t.Ref)
	case formula.OpRangeRef:
		in.advance()
		return in.pushRangeRef(t.Range)
	case formula.OpTableRef:
		in.advance()
		return in.pushTableRef(t.Table)
	case formula.OpFunction:
		return in.functionCall()
	default:
		return formulaErr(formula.InvalidExpression, "unexpected token "+t.Op.String())
	}
}

// pushSingleRef resolves the reference against the interpreted cell and
// pushes it. A reference back into the cell's own group is a cycle.
func (in *Interpreter) pushSingleRef(ref address.Ref) error {
	pos := ref.Resolve(in.pos)
	if in.group.Contains(pos) {
		return formulaErr(formula.RefCycle, "")
	}
	if in.session != nil {
		name, _ := in.cxt.SheetName(pos.Sheet)
		in.session.PushSingleRef(pos, name)
	}
	in.stack.push(singleRefSV(pos))
	return nil
}

// pushRangeRef resolves the range against the interpreted cell. A range
// overlapping the cell's own group is a cycle.
func (in *Interpreter) pushRangeRef(ref address.RefRange) error {
	rng := ref.Resolve(in.pos)
	if rng.Overlaps(in.group) {
		return formulaErr(formula.RefCycle, "")
	}
	if !rng.SingleSheet() {
		return formulaErr(formula.InvalidValueType, "multi-sheet range")
	}
	if in.session != nil {
		name, _ := in.cxt.SheetName(rng.First.Sheet)
		in.session.PushRangeRef(rng, name)
	}
	in.stack.push(rangeRefSV(rng))
	return nil
}

func (in *Interpreter) pushTableRef(ref formula.TableRef) error {
	th := in.cxt.Config().TableHandler
	if th == nil {
		return formulaErr(formula.NameNotFound, ref.Name)
	}
	rng, ok := th.ResolveTable(in.pos, ref)
	if !ok {
		return formulaErr(formula.NameNotFound, ref.Name)
	}
	return in.pushRangeRef(address.RefRange{
		First: address.AbsRef(rng.First.Sheet, rng.First.Row, rng.First.Column),
		Last:  address.AbsRef(rng.Last.Sheet, rng.Last.Row, rng.Last.Column),
	})
}

// functionCall = function open (expression (sep expression)*)? close.
// Arguments evaluate left to right, one stack value each; the function
// pops its arity and pushes one result.
func (in *Interpreter) functionCall() error {
	t, _ := in.cur()
	fn := lookupBuiltin(t.Func)
	if fn == nil {
		return formulaErr(formula.NameNotFound, t.Func.String())
	}
	if in.session != nil {
		in.session.PushFunction(t.Func)
	}
	in.advance()

	o, ok := in.cur()
	if !ok || o.Op != formula.OpOpen {
		return formulaErr(formula.InvalidExpression, "missing argument list for "+fn.Name)
	}
	in.advance()

	var args []stackValue
	if c, ok := in.cur(); ok && c.Op == formula.OpClose {
		in.advance()
	} else {
		for {
			if err := in.expression(); err != nil {
				return err
			}
			arg, err := in.stack.pop()
			if err != nil {
				return err
			}
			args = append(args, arg)

			nx, ok := in.cur()
			if !ok {
				return formulaErr(formula.InvalidExpression, "unterminated argument list for "+fn.Name)
			}
			if nx.Op == formula.OpSep {
				in.advance()
				continue
			}
			if nx.Op == formula.OpClose {
				in.advance()
				break
			}
			return formulaErr(formula.InvalidExpression, "unexpected token in argument list for "+fn.Name)
		}
	}

	if len(args) < fn.MinArgs || (fn.MaxArgs >= 0 && len(args) > fn.MaxArgs) {
		return formulaErr(formula.InvalidExpression, fn.Name+" called with wrong argument count")
	}
	out, err := fn.Fn(in, args)
	if err != nil {
		return err
	}
	in.stack.push(out)
	return nil
}
