package model

import "recalc/formula"

// CellType tags the storage variant of a cell.
type CellType uint8

const (
	CellEmpty CellType = iota
	CellBoolean
	CellNumeric
	CellString
	CellFormula
)

var cellTypeNames = [...]string{
	CellEmpty:   "empty",
	CellBoolean: "boolean",
	CellNumeric: "numeric",
	CellString:  "string",
	CellFormula: "formula",
}

func (t CellType) String() string {
	if int(t) < len(cellTypeNames) {
		return cellTypeNames[t]
	}
	return "unknown"
}

// CellValue is the tagged union yielded by iterators and read out of the
// store. Which payload field is meaningful depends on Type.
type CellValue struct {
	Type     CellType
	Number   float64
	Boolean  bool
	StringID uint32
	Formula  *FormulaCell
}

// block is a run of same-typed cells. Exactly one payload slice is
// non-nil, matching typ; an empty block carries only its size.
type block struct {
	typ   CellType
	size  int32
	nums  []float64
	bools []bool
	strs  []uint32
	cells []*FormulaCell
}

func newEmptyBlock(size int32) *block {
	return &block{typ: CellEmpty, size: size}
}

func singleBlock(v CellValue) *block {
	b := &block{typ: v.Type, size: 1}
	switch v.Type {
	case CellNumeric:
		b.nums = []float64{v.Number}
	case CellBoolean:
		b.bools = []bool{v.Boolean}
	case CellString:
		b.strs = []uint32{v.StringID}
	case CellFormula:
		b.cells = []*FormulaCell{v.Formula}
	}
	return b
}

// value reads the slot at off as a tagged union.
func (b *block) value(off int32) CellValue {
	v := CellValue{Type: b.typ}
	switch b.typ {
	case CellNumeric:
		v.Number = b.nums[off]
	case CellBoolean:
		v.Boolean = b.bools[off]
	case CellString:
		v.StringID = b.strs[off]
	case CellFormula:
		v.Formula = b.cells[off]
	}
	return v
}

// sub copies out the slot range [from, to).
func (b *block) sub(from, to int32) *block {
	nb := &block{typ: b.typ, size: to - from}
	switch b.typ {
	case CellNumeric:
		nb.nums = append([]float64(nil), b.nums[from:to]...)
	case CellBoolean:
		nb.bools = append([]bool(nil), b.bools[from:to]...)
	case CellString:
		nb.strs = append([]uint32(nil), b.strs[from:to]...)
	case CellFormula:
		nb.cells = append([]*FormulaCell(nil), b.cells[from:to]...)
	}
	return nb
}

// absorb appends all slots of o, which must share the same type.
func (b *block) absorb(o *block) {
	b.size += o.size
	switch b.typ {
	case CellNumeric:
		b.nums = append(b.nums, o.nums...)
	case CellBoolean:
		b.bools = append(b.bools, o.bools...)
	case CellString:
		b.strs = append(b.strs, o.strs...)
	case CellFormula:
		b.cells = append(b.cells, o.cells...)
	}
}

// column is a blocked vector covering every row of the sheet; block sizes
// always sum to the sheet's row count.
type column struct {
	blocks []*block
}

func newColumn(rows int32) *column {
	return &column{blocks: []*block{newEmptyBlock(rows)}}
}

// locate finds the block containing row and the block's starting row.
func (c *column) locate(row int32) (int, int32) {
	start := int32(0)
	for i, b := range c.blocks {
		if row < start+b.size {
			return i, start
		}
		start += b.size
	}
	return -1, 0
}

func (c *column) valueAt(row int32) CellValue {
	i, start := c.locate(row)
	if i < 0 {
		return CellValue{}
	}
	return c.blocks[i].value(row - start)
}

func (c *column) typeAt(row int32) CellType {
	i, _ := c.locate(row)
	if i < 0 {
		return CellEmpty
	}
	return c.blocks[i].typ
}

// set overwrites the slot at row with v, splitting and re-merging blocks
// as needed.
func (c *column) set(row int32, v CellValue) {
	i, start := c.locate(row)
	if i < 0 {
		return
	}
	b := c.blocks[i]
	off := row - start

	if b.typ == v.Type {
		switch b.typ {
		case CellNumeric:
			b.nums[off] = v.Number
		case CellBoolean:
			b.bools[off] = v.Boolean
		case CellString:
			b.strs[off] = v.StringID
		case CellFormula:
			b.cells[off] = v.Formula
		}
		return
	}

	repl := make([]*block, 0, 3)
	if off > 0 {
		repl = append(repl, b.sub(0, off))
	}
	repl = append(repl, singleBlock(v))
	if off+1 < b.size {
		repl = append(repl, b.sub(off+1, b.size))
	}

	blocks := make([]*block, 0, len(c.blocks)+2)
	blocks = append(blocks, c.blocks[:i]...)
	blocks = append(blocks, repl...)
	blocks = append(blocks, c.blocks[i+1:]...)
	c.blocks = blocks

	c.coalesce(i)
}

// coalesce merges equal-typed neighbors in the window around block i.
func (c *column) coalesce(i int) {
	lo := i - 1
	if lo < 0 {
		lo = 0
	}
	for j := lo; j < len(c.blocks)-1 && j <= i+2; {
		cur, next := c.blocks[j], c.blocks[j+1]
		if cur.typ != next.typ {
			j++
			continue
		}
		cur.absorb(next)
		c.blocks = append(c.blocks[:j+1], c.blocks[j+2:]...)
	}
}

// dataSpan returns the first and last non-empty rows, or ok=false for an
// all-empty column.
func (c *column) dataSpan() (first, last int32, ok bool) {
	start := int32(0)
	first, last = -1, -1
	for _, b := range c.blocks {
		if b.typ != CellEmpty {
			if first < 0 {
				first = start
			}
			last = start + b.size - 1
		}
		start += b.size
	}
	return first, last, first >= 0
}

// sheetStore holds one sheet's columns plus its sheet-local named
// expressions.
type sheetStore struct {
	cols  []*column
	named map[string]*formula.NamedExpression
}

func newSheetStore(rows, cols int32) *sheetStore {
	s := &sheetStore{
		cols:  make([]*column, cols),
		named: make(map[string]*formula.NamedExpression),
	}
	for i := range s.cols {
		s.cols[i] = newColumn(rows)
	}
	return s
}
