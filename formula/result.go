package formula

import (
	"strconv"
)

// ResultType tags a cached formula result.
type ResultType uint8

const (
	ResultValue ResultType = iota
	ResultString
	ResultError
	ResultMatrix
)

// Result is the cached outcome of interpreting a formula cell: a number,
// an interned string, an error, or a matrix for grouped formulas. The
// zero value is the numeric result 0.
type Result struct {
	typ    ResultType
	number float64
	strID  uint32
	err    ErrorKind
	matrix *Matrix
}

func NumberResult(v float64) Result {
	return Result{typ: ResultValue, number: v}
}

func StringResult(id uint32) Result {
	return Result{typ: ResultString, strID: id}
}

func ErrorResult(kind ErrorKind) Result {
	return Result{typ: ResultError, err: kind}
}

func MatrixResult(m *Matrix) Result {
	return Result{typ: ResultMatrix, matrix: m}
}

func (r Result) Type() ResultType { return r.typ }

// Number returns the numeric value. Error results read as 0; string
// results read as 0.
func (r Result) Number() float64 {
	if r.typ == ResultValue {
		return r.number
	}
	return 0
}

func (r Result) StringID() uint32 {
	if r.typ == ResultString {
		return r.strID
	}
	return 0
}

func (r Result) Error() ErrorKind {
	if r.typ == ResultError {
		return r.err
	}
	return NoError
}

func (r Result) Matrix() *Matrix { return r.matrix }

// ValueAt projects the result onto one member cell of a formula group.
// Non-matrix results are shared by every member.
func (r Result) ValueAt(row, col int32) Result {
	if r.typ != ResultMatrix || r.matrix == nil {
		return r
	}
	e := r.matrix.At(row, col)
	switch e.Type {
	case MatrixNumber:
		return NumberResult(e.Number)
	case MatrixBoolean:
		if e.Boolean {
			return NumberResult(1)
		}
		return NumberResult(0)
	case MatrixString:
		return StringResult(e.StringID)
	case MatrixError:
		return ErrorResult(e.Err)
	default:
		return NumberResult(0)
	}
}

// Display renders the result for diagnostics. String results render as
// their id since the pool lives in the model.
func (r Result) Display() string {
	switch r.typ {
	case ResultValue:
		return strconv.FormatFloat(r.number, 'g', -1, 64)
	case ResultString:
		return "string:" + strconv.FormatUint(uint64(r.strID), 10)
	case ResultError:
		return r.err.String()
	case ResultMatrix:
		return "matrix"
	}
	return ""
}
