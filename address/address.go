package address

import "fmt"

// Address is a fully resolved (sheet, row, column) position. Every address
// stored inside the engine is of this form.
type Address struct {
	Sheet  int32
	Row    int32
	Column int32
}

func New(sheet, row, column int32) Address {
	return Address{Sheet: sheet, Row: row, Column: column}
}

func (a Address) String() string {
	return fmt.Sprintf("(sheet=%d; row=%d; col=%d)", a.Sheet, a.Row, a.Column)
}

// Less orders addresses lexicographically by sheet, then row, then column.
func (a Address) Less(b Address) bool {
	if a.Sheet != b.Sheet {
		return a.Sheet < b.Sheet
	}
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Column < b.Column
}

// Ref is a reference whose components may be relative to an origin cell.
// A component with its flag set to true is relative and stores a delta;
// an absolute component stores the resolved value directly.
type Ref struct {
	Sheet     int32
	Row       int32
	Column    int32
	RelSheet  bool
	RelRow    bool
	RelColumn bool
}

// NewRef returns a fully relative reference with the given deltas.
func NewRef(sheet, row, column int32) Ref {
	return Ref{
		Sheet: sheet, Row: row, Column: column,
		RelSheet: true, RelRow: true, RelColumn: true,
	}
}

// AbsRef returns a fully absolute reference.
func AbsRef(sheet, row, column int32) Ref {
	return Ref{Sheet: sheet, Row: row, Column: column}
}

// Resolve turns the reference into an absolute address against origin.
// Relative components add their delta to the corresponding origin component.
func (r Ref) Resolve(origin Address) Address {
	pos := Address{Sheet: r.Sheet, Row: r.Row, Column: r.Column}
	if r.RelSheet {
		pos.Sheet += origin.Sheet
	}
	if r.RelRow {
		pos.Row += origin.Row
	}
	if r.RelColumn {
		pos.Column += origin.Column
	}
	return pos
}

// Rebase re-expresses the reference relative to a new origin so that it
// resolves to the same absolute address as it did against the old origin.
func (r Ref) Rebase(old, new Address) Ref {
	abs := r.Resolve(old)
	out := r
	if r.RelSheet {
		out.Sheet = abs.Sheet - new.Sheet
	}
	if r.RelRow {
		out.Row = abs.Row - new.Row
	}
	if r.RelColumn {
		out.Column = abs.Column - new.Column
	}
	return out
}

func (r Ref) String() string {
	part := func(v int32, rel bool) string {
		if rel {
			return fmt.Sprintf("[%d]", v)
		}
		return fmt.Sprintf("%d", v)
	}
	return fmt.Sprintf("(sheet=%s; row=%s; col=%s)",
		part(r.Sheet, r.RelSheet), part(r.Row, r.RelRow), part(r.Column, r.RelColumn))
}

// RefRange is a possibly-relative rectangular reference.
type RefRange struct {
	First Ref
	Last  Ref
}

func (r RefRange) Resolve(origin Address) Range {
	return Range{First: r.First.Resolve(origin), Last: r.Last.Resolve(origin)}
}

func (r RefRange) String() string {
	return r.First.String() + "-" + r.Last.String()
}

// Range is an inclusive rectangle of absolute addresses.
type Range struct {
	First Address
	Last  Address
}

// NewRange returns the degenerate range covering a single address.
func NewRange(pos Address) Range {
	return Range{First: pos, Last: pos}
}

func (r Range) String() string {
	return r.First.String() + "-" + r.Last.String()
}

// Valid reports whether the range is component-wise ordered. Multi-sheet
// spans are allowed here; use SingleSheet where range-value semantics
// require one sheet.
func (r Range) Valid() bool {
	return r.First.Sheet <= r.Last.Sheet &&
		r.First.Row <= r.Last.Row &&
		r.First.Column <= r.Last.Column
}

// SingleSheet reports whether the range covers exactly one sheet.
func (r Range) SingleSheet() bool {
	return r.First.Sheet == r.Last.Sheet
}

// Contains reports whether pos lies inside the range, inclusive on all
// edges.
func (r Range) Contains(pos Address) bool {
	return r.First.Sheet <= pos.Sheet && pos.Sheet <= r.Last.Sheet &&
		r.First.Row <= pos.Row && pos.Row <= r.Last.Row &&
		r.First.Column <= pos.Column && pos.Column <= r.Last.Column
}

// Overlaps reports whether the two ranges intersect, inclusive on all
// edges.
func (r Range) Overlaps(o Range) bool {
	return r.First.Sheet <= o.Last.Sheet && o.First.Sheet <= r.Last.Sheet &&
		r.First.Row <= o.Last.Row && o.First.Row <= r.Last.Row &&
		r.First.Column <= o.Last.Column && o.First.Column <= r.Last.Column
}

// Rows returns the number of rows the range spans.
func (r Range) Rows() int32 {
	return r.Last.Row - r.First.Row + 1
}

// Columns returns the number of columns the range spans.
func (r Range) Columns() int32 {
	return r.Last.Column - r.First.Column + 1
}

// Less orders ranges lexicographically by first, then last corner.
func (r Range) Less(o Range) bool {
	if r.First != o.First {
		return r.First.Less(o.First)
	}
	return o.Last != r.Last && r.Last.Less(o.Last)
}
