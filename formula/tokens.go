package formula

import (
	"strings"

	"recalc/address"
)

// OpCode identifies a formula token.
type OpCode uint8

const (
	OpUnknown OpCode = iota

	// references
	OpSingleRef
	OpRangeRef
	OpTableRef
	OpNamedExpression

	// literals
	OpValue
	OpString
	OpError

	// operators
	OpPlus
	OpMinus
	OpMultiply
	OpDivide
	OpExponent
	OpConcat
	OpEqual
	OpNotEqual
	OpLess
	OpGreater
	OpLessEqual
	OpGreaterEqual

	// structure
	OpOpen
	OpClose
	OpSep
	OpFunction
)

var opNames = [...]string{
	OpUnknown:         "unknown",
	OpSingleRef:       "single-ref",
	OpRangeRef:        "range-ref",
	OpTableRef:        "table-ref",
	OpNamedExpression: "named-expression",
	OpValue:           "value",
	OpString:          "string",
	OpError:           "error",
	OpPlus:            "plus",
	OpMinus:           "minus",
	OpMultiply:        "multiply",
	OpDivide:          "divide",
	OpExponent:        "exponent",
	OpConcat:          "concat",
	OpEqual:           "equal",
	OpNotEqual:        "not-equal",
	OpLess:            "less",
	OpGreater:         "greater",
	OpLessEqual:       "less-equal",
	OpGreaterEqual:    "greater-equal",
	OpOpen:            "open",
	OpClose:           "close",
	OpSep:             "sep",
	OpFunction:        "function",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return opNames[OpUnknown]
}

// IsOperator reports whether the opcode is an arithmetic, comparison or
// concatenation operator.
func (op OpCode) IsOperator() bool {
	switch op {
	case OpPlus, OpMinus, OpMultiply, OpDivide, OpExponent, OpConcat,
		OpEqual, OpNotEqual, OpLess, OpGreater, OpLessEqual, OpGreaterEqual:
		return true
	}
	return false
}

// TableRef references a table column span by name.
type TableRef struct {
	Name        string
	ColumnFirst string
	ColumnLast  string
	Areas       uint32
}

// Token is one element of a parsed formula expression. Which payload
// fields are meaningful depends on Op.
type Token struct {
	Op    OpCode
	Value float64          // OpValue
	ID    uint32           // OpString: interned string id
	Name  string           // OpNamedExpression
	Err   ErrorKind        // OpError
	Ref   address.Ref      // OpSingleRef
	Range address.RefRange // OpRangeRef
	Func  FunctionOp       // OpFunction
	Table TableRef         // OpTableRef
}

// Tokens is a parsed token stream. Formula cells of one group share a
// single Tokens value through the same pointer.
type Tokens []Token

// String renders an opcode-level summary, useful in logs and tests.
func (ts Tokens) String() string {
	var b strings.Builder
	for i, t := range ts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.Op.String())
	}
	return b.String()
}

// HasRefs reports whether the stream contains any reference token.
func (ts Tokens) HasRefs() bool {
	for _, t := range ts {
		switch t.Op {
		case OpSingleRef, OpRangeRef, OpTableRef, OpNamedExpression:
			return true
		}
	}
	return false
}

// IsVolatile reports whether any function in the stream is volatile.
func (ts Tokens) IsVolatile() bool {
	for _, t := range ts {
		if t.Op == OpFunction && t.Func.Volatile() {
			return true
		}
	}
	return false
}

// NamedExpression is a named token stream anchored at an origin address.
type NamedExpression struct {
	Name   string
	Origin address.Address
	Tokens Tokens
}
