package interpreter

import (
	"math"
	"strings"
	"time"

	"recalc/address"
	"recalc/formula"
	"recalc/model"
)

// BuiltinFn computes one formula function from its evaluated arguments
// and returns the single value it pushes back.
type BuiltinFn func(in *Interpreter, args []stackValue) (stackValue, error)

// Builtin describes one entry of the function table. MaxArgs < 0 means
// variadic.
type Builtin struct {
	Name    string
	MinArgs int
	MaxArgs int
	Fn      BuiltinFn
}

var builtins = map[formula.FunctionOp]*Builtin{}

func registerBuiltin(op formula.FunctionOp, min, max int, fn BuiltinFn) {
	builtins[op] = &Builtin{Name: op.String(), MinArgs: min, MaxArgs: max, Fn: fn}
}

func lookupBuiltin(op formula.FunctionOp) *Builtin {
	return builtins[op]
}

func init() {
	registerBuiltin(formula.FuncSum, 1, -1, builtinSum)
	registerBuiltin(formula.FuncMin, 1, -1, builtinMin)
	registerBuiltin(formula.FuncMax, 1, -1, builtinMax)
	registerBuiltin(formula.FuncAverage, 1, -1, builtinAverage)
	registerBuiltin(formula.FuncCount, 1, -1, builtinCount)
	registerBuiltin(formula.FuncCountA, 1, -1, builtinCountA)
	registerBuiltin(formula.FuncIf, 3, 3, builtinIf)
	registerBuiltin(formula.FuncLen, 1, 1, builtinLen)
	registerBuiltin(formula.FuncConcatenate, 1, -1, builtinConcatenate)
	registerBuiltin(formula.FuncNow, 0, 0, builtinNow)
	registerBuiltin(formula.FuncToday, 0, 0, builtinToday)
	registerBuiltin(formula.FuncPi, 0, 0, builtinPi)
	registerBuiltin(formula.FuncMMult, 2, 2, builtinMMult)
}

// forEachCell visits every cell position covered by an argument: one
// position for scalars and single refs, the whole rectangle for ranges.
func forEachCell(in *Interpreter, arg stackValue, fn func(pos address.Address, hasPos bool, v stackValue) error) error {
	switch arg.typ {
	case svSingleRef:
		return fn(arg.pos, true, arg)
	case svRangeRef:
		it := address.NewIterator(arg.rng, true)
		for pos, ok := it.Next(); ok; pos, ok = it.Next() {
			if err := fn(pos, true, singleRefSV(pos)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fn(address.Address{}, false, arg)
	}
}

// numericFold folds every numeric cell covered by args; empty and string
// cells are skipped when skipNonNumeric is set.
func numericFold(in *Interpreter, args []stackValue, skipNonNumeric bool, fold func(v float64)) error {
	for _, arg := range args {
		err := forEachCell(in, arg, func(pos address.Address, hasPos bool, v stackValue) error {
			if hasPos && skipNonNumeric {
				switch in.cxt.CellType(pos) {
				case model.CellEmpty, model.CellString:
					return nil
				}
			}
			n, err := in.stack.numeric(v)
			if err != nil {
				return err
			}
			fold(n)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func builtinSum(in *Interpreter, args []stackValue) (stackValue, error) {
	total := 0.0
	if err := numericFold(in, args, true, func(v float64) { total += v }); err != nil {
		return stackValue{}, err
	}
	return valueSV(total), nil
}

func builtinMin(in *Interpreter, args []stackValue) (stackValue, error) {
	best := math.Inf(1)
	seen := false
	err := numericFold(in, args, true, func(v float64) {
		seen = true
		if v < best {
			best = v
		}
	})
	if err != nil {
		return stackValue{}, err
	}
	if !seen {
		return valueSV(0), nil
	}
	return valueSV(best), nil
}

func builtinMax(in *Interpreter, args []stackValue) (stackValue, error) {
	best := math.Inf(-1)
	seen := false
	err := numericFold(in, args, true, func(v float64) {
		seen = true
		if v > best {
			best = v
		}
	})
	if err != nil {
		return stackValue{}, err
	}
	if !seen {
		return valueSV(0), nil
	}
	return valueSV(best), nil
}

func builtinAverage(in *Interpreter, args []stackValue) (stackValue, error) {
	total, count := 0.0, 0
	err := numericFold(in, args, true, func(v float64) {
		total += v
		count++
	})
	if err != nil {
		return stackValue{}, err
	}
	if count == 0 {
		return stackValue{}, formulaErr(formula.DivisionByZero, "AVERAGE of no values")
	}
	return valueSV(total / float64(count)), nil
}

func builtinCount(in *Interpreter, args []stackValue) (stackValue, error) {
	count := 0
	if err := numericFold(in, args, true, func(float64) { count++ }); err != nil {
		return stackValue{}, err
	}
	return valueSV(float64(count)), nil
}

func builtinCountA(in *Interpreter, args []stackValue) (stackValue, error) {
	count := 0
	for _, arg := range args {
		err := forEachCell(in, arg, func(pos address.Address, hasPos bool, v stackValue) error {
			if !hasPos || in.cxt.CellType(pos) != model.CellEmpty {
				count++
			}
			return nil
		})
		if err != nil {
			return stackValue{}, err
		}
	}
	return valueSV(float64(count)), nil
}

func builtinIf(in *Interpreter, args []stackValue) (stackValue, error) {
	cond, err := in.stack.numeric(args[0])
	if err != nil {
		return stackValue{}, err
	}
	if cond != 0 {
		return args[1], nil
	}
	return args[2], nil
}

func builtinLen(in *Interpreter, args []stackValue) (stackValue, error) {
	in.stack.push(args[0])
	id, err := in.stack.popString()
	if err != nil {
		return stackValue{}, err
	}
	s, _ := in.cxt.Strings().Get(id)
	return valueSV(float64(len(s))), nil
}

func builtinConcatenate(in *Interpreter, args []stackValue) (stackValue, error) {
	var b strings.Builder
	for _, arg := range args {
		in.stack.push(arg)
		id, err := in.stack.popString()
		if err != nil {
			return stackValue{}, err
		}
		s, _ := in.cxt.Strings().Get(id)
		b.WriteString(s)
	}
	return stringSV(in.cxt.Strings().Intern(b.String())), nil
}

// excelEpoch is the serial-date origin; day serials count from it.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

func builtinNow(in *Interpreter, args []stackValue) (stackValue, error) {
	now := time.Now().UTC()
	return valueSV(now.Sub(excelEpoch).Hours() / 24), nil
}

func builtinToday(in *Interpreter, args []stackValue) (stackValue, error) {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	return valueSV(math.Floor(now.Sub(excelEpoch).Hours() / 24)), nil
}

func builtinPi(in *Interpreter, args []stackValue) (stackValue, error) {
	return valueSV(math.Pi), nil
}

// rangeMatrix reads a rectangular argument into a dense numeric matrix.
func rangeMatrix(in *Interpreter, arg stackValue) (*formula.Matrix, error) {
	switch arg.typ {
	case svMatrix:
		return arg.matrix, nil
	case svRangeRef:
		rows, cols := arg.rng.Rows(), arg.rng.Columns()
		m := formula.NewMatrix(rows, cols)
		for r := int32(0); r < rows; r++ {
			for c := int32(0); c < cols; c++ {
				pos := address.New(arg.rng.First.Sheet, arg.rng.First.Row+r, arg.rng.First.Column+c)
				if err := in.stack.checkCellError(pos); err != nil {
					return nil, err
				}
				m.SetNumber(r, c, in.cxt.GetNumeric(pos))
			}
		}
		return m, nil
	case svSingleRef:
		m := formula.NewMatrix(1, 1)
		if err := in.stack.checkCellError(arg.pos); err != nil {
			return nil, err
		}
		m.SetNumber(0, 0, in.cxt.GetNumeric(arg.pos))
		return m, nil
	default:
		n, err := in.stack.numeric(arg)
		if err != nil {
			return nil, err
		}
		m := formula.NewMatrix(1, 1)
		m.SetNumber(0, 0, n)
		return m, nil
	}
}

// builtinMMult multiplies an (m x k) argument with a (k x n) argument.
func builtinMMult(in *Interpreter, args []stackValue) (stackValue, error) {
	left, err := rangeMatrix(in, args[0])
	if err != nil {
		return stackValue{}, err
	}
	right, err := rangeMatrix(in, args[1])
	if err != nil {
		return stackValue{}, err
	}
	if left.Columns() != right.Rows() {
		return stackValue{}, formulaErr(formula.InvalidValueType, "MMULT shape mismatch")
	}
	out := formula.NewMatrix(left.Rows(), right.Columns())
	for r := int32(0); r < left.Rows(); r++ {
		for c := int32(0); c < right.Columns(); c++ {
			sum := 0.0
			for k := int32(0); k < left.Columns(); k++ {
				sum += left.Numeric(r, k) * right.Numeric(k, c)
			}
			out.SetNumber(r, c, sum)
		}
	}
	return matrixSV(out), nil
}
