// Package document is the host-facing workbook facade. It owns the
// model context, the dirty-cell tracker and the reference bookkeeping
// that ties them together: every formula cell's reference footprint is
// registered as listener edges on write and deregistered on
// replacement, and Calculate runs the modified → dirty → sorted →
// interpret pipeline.
package document

import (
	"fmt"

	"recalc/address"
	"recalc/engine"
	"recalc/formula"
	"recalc/model"
	"recalc/parser"
	"recalc/tracker"
)

// ResolverChoice selects the cell-address grammar of a document.
type ResolverChoice uint8

const (
	ResolveExcelA1 ResolverChoice = iota
	ResolveExcelR1C1
)

// formulaRefs remembers the listener edges one formula cell (or group
// origin) registered, so replacing the cell can deregister them.
type formulaRefs struct {
	src  address.Range
	dsts []address.Range
}

// Document is a workbook.
type Document struct {
	cxt *model.Context
	tr  *tracker.Tracker
	res parser.Resolver

	modified      []address.Range
	dirtyFormulas []address.Address
	refs          map[address.Address]formulaRefs
}

// New creates a workbook whose sheets all have rows x cols cells, using
// the Excel A1 grammar.
func New(rows, cols int32) *Document {
	return NewWithConfig(rows, cols, model.Config{}, ResolveExcelA1)
}

// NewWithConfig creates a workbook with an explicit model config and
// address grammar.
func NewWithConfig(rows, cols int32, cfg model.Config, choice ResolverChoice) *Document {
	cxt := model.NewContext(rows, cols, cfg)
	d := &Document{
		cxt:  cxt,
		tr:   tracker.New(),
		refs: make(map[address.Address]formulaRefs),
	}
	switch choice {
	case ResolveExcelR1C1:
		d.res = parser.NewExcelR1C1Resolver(cxt)
	default:
		d.res = parser.NewExcelA1Resolver(cxt)
	}
	return d
}

// Context exposes the underlying model.
func (d *Document) Context() *model.Context { return d.cxt }

// Tracker exposes the dirty-cell tracker.
func (d *Document) Tracker() *tracker.Tracker { return d.tr }

// Resolver exposes the document's address grammar.
func (d *Document) Resolver() parser.Resolver { return d.res }

// AppendSheet adds a sheet with a globally unique name.
func (d *Document) AppendSheet(name string) (int32, error) {
	return d.cxt.AppendSheet(name)
}

// SetSheetName renames a sheet; the name must stay globally unique.
func (d *Document) SetSheetName(sheet int32, name string) error {
	return d.cxt.SetSheetName(sheet, name)
}

// ResolveCellName parses a cell name like "A1" or "Sheet2!B3" into an
// absolute address, anchored at the top-left of the first sheet.
func (d *Document) ResolveCellName(name string) (address.Address, error) {
	rn := d.res.Resolve(name, address.Address{})
	if rn.Type != parser.ResolvedCellRef {
		return address.Address{}, fmt.Errorf("not a cell name: %q", name)
	}
	return rn.Ref.Resolve(address.Address{}), nil
}

// ResolveRangeName parses a range name like "A1:B3" into an absolute
// range; a plain cell name yields its degenerate range.
func (d *Document) ResolveRangeName(name string) (address.Range, error) {
	rn := d.res.Resolve(name, address.Address{})
	switch rn.Type {
	case parser.ResolvedCellRef:
		return address.NewRange(rn.Ref.Resolve(address.Address{})), nil
	case parser.ResolvedRangeRef:
		return rn.Range.Resolve(address.Address{}), nil
	}
	return address.Range{}, fmt.Errorf("not a range name: %q", name)
}

func (d *Document) recordModified(rng address.Range) {
	d.modified = append(d.modified, rng)
}

// removeFormula deregisters the listener edges and volatile flag of any
// formula cell currently at pos. For a grouped cell the whole group's
// registration (keyed by its origin) is removed.
func (d *Document) removeFormula(pos address.Address) {
	fc := d.cxt.GetFormulaCell(pos)
	if fc == nil {
		return
	}
	origin := fc.GroupOrigin(pos)
	info, ok := d.refs[origin]
	if ok {
		for _, dst := range info.dsts {
			_ = d.tr.Remove(info.src, dst)
		}
		delete(d.refs, origin)
	}
	d.tr.RemoveVolatile(origin)
}

// SetNumericCell stores a number at pos, replacing any previous cell
// and its listener edges.
func (d *Document) SetNumericCell(pos address.Address, v float64) error {
	d.removeFormula(pos)
	if err := d.cxt.SetNumericCell(pos, v); err != nil {
		return err
	}
	d.recordModified(address.NewRange(pos))
	return nil
}

// SetBooleanCell stores a boolean at pos.
func (d *Document) SetBooleanCell(pos address.Address, v bool) error {
	d.removeFormula(pos)
	if err := d.cxt.SetBooleanCell(pos, v); err != nil {
		return err
	}
	d.recordModified(address.NewRange(pos))
	return nil
}

// SetStringCell stores text at pos.
func (d *Document) SetStringCell(pos address.Address, s string) error {
	d.removeFormula(pos)
	if _, err := d.cxt.SetStringCell(pos, s); err != nil {
		return err
	}
	d.recordModified(address.NewRange(pos))
	return nil
}

// EmptyCell clears pos, removing a formula cell's listener edges with
// it.
func (d *Document) EmptyCell(pos address.Address) error {
	d.removeFormula(pos)
	if err := d.cxt.EmptyCell(pos); err != nil {
		return err
	}
	d.recordModified(address.NewRange(pos))
	return nil
}

// registerFormula wires the reference footprint of tokens into the
// tracker with src as the listening range.
func (d *Document) registerFormula(src address.Range, origin address.Address, tokens formula.Tokens) error {
	dsts := engine.ReferencedRanges(d.cxt, tokens, origin)
	for _, dst := range dsts {
		if err := d.tr.Add(src, dst); err != nil {
			return err
		}
	}
	d.refs[origin] = formulaRefs{src: src, dsts: dsts}
	if tokens.IsVolatile() {
		d.tr.AddVolatile(origin)
	}
	d.dirtyFormulas = append(d.dirtyFormulas, origin)
	return nil
}

// SetFormulaCell parses text and places the resulting formula cell at
// pos. The previous cell's listener edges are deregistered first.
func (d *Document) SetFormulaCell(pos address.Address, text string) error {
	tokens, err := parser.Parse(d.cxt, pos, d.res, text)
	if err != nil {
		return err
	}
	return d.SetFormulaTokens(pos, tokens, nil)
}

// SetFormulaTokens places an already-parsed formula cell at pos. An
// optional pre-seeded result skips the first interpretation.
func (d *Document) SetFormulaTokens(pos address.Address, tokens formula.Tokens, seed *formula.Result) error {
	d.removeFormula(pos)
	if _, err := d.cxt.SetFormulaCell(pos, &tokens, seed); err != nil {
		return err
	}
	return d.registerFormula(address.NewRange(pos), pos, tokens)
}

// SetGroupedFormulaCells parses text as a grouped formula filling rng.
// The caller clears the rectangle first.
func (d *Document) SetGroupedFormulaCells(rng address.Range, text string) error {
	tokens, err := parser.Parse(d.cxt, rng.First, d.res, text)
	if err != nil {
		return err
	}
	return d.SetGroupedFormulaTokens(rng, tokens, nil)
}

// SetGroupedFormulaTokens places an already-parsed grouped formula. The
// group listens as one source range anchored at its origin.
func (d *Document) SetGroupedFormulaTokens(rng address.Range, tokens formula.Tokens, seed *formula.Matrix) error {
	if err := d.cxt.SetGroupedFormulaCells(rng, &tokens, seed); err != nil {
		return err
	}
	return d.registerFormula(rng, rng.First, tokens)
}

// SetNamedExpression defines a workbook-global named expression from
// formula text anchored at origin.
func (d *Document) SetNamedExpression(name string, origin address.Address, text string) error {
	tokens, err := parser.Parse(d.cxt, origin, d.res, text)
	if err != nil {
		return err
	}
	return d.cxt.SetNamedExpression(name, origin, tokens)
}

// SetSheetNamedExpression defines a sheet-scoped named expression.
func (d *Document) SetSheetNamedExpression(sheet int32, name string, origin address.Address, text string) error {
	tokens, err := parser.Parse(d.cxt, origin, d.res, text)
	if err != nil {
		return err
	}
	return d.cxt.SetSheetNamedExpression(sheet, name, origin, tokens)
}

// FillDownCells replicates the value of src into the next n rows.
func (d *Document) FillDownCells(src address.Address, n int32) error {
	if err := d.cxt.FillDown(src, n); err != nil {
		return err
	}
	d.recordModified(address.Range{
		First: address.New(src.Sheet, src.Row+1, src.Column),
		Last:  address.New(src.Sheet, src.Row+n, src.Column),
	})
	return nil
}

// GetNumericValue reads pos as a number; formula error cells read as 0.
func (d *Document) GetNumericValue(pos address.Address) float64 {
	return d.cxt.GetNumeric(pos)
}

// GetStringValue reads pos as text; numeric formula results render in
// lexical form.
func (d *Document) GetStringValue(pos address.Address) string {
	return d.cxt.GetString(pos)
}

// GetCellAccess snapshots the cell at pos for read-only inspection.
func (d *Document) GetCellAccess(pos address.Address) model.CellAccess {
	return d.cxt.GetCellAccess(pos)
}

// PrintFormula renders the formula at pos back to text, or "" if pos
// holds no formula.
func (d *Document) PrintFormula(pos address.Address) string {
	fc := d.cxt.GetFormulaCell(pos)
	if fc == nil {
		return ""
	}
	return parser.Print(d.cxt, fc.GroupOrigin(pos), d.res, fc.Tokens())
}

// Calculate recomputes every cell whose inputs changed since the last
// run, plus all volatile cells, with the given worker-thread count
// (zero runs serially).
func (d *Document) Calculate(threads int) {
	sorted := engine.QueryAndSortDirtyCells(d.cxt, d.tr, d.modified, d.dirtyFormulas)
	d.modified = d.modified[:0]
	d.dirtyFormulas = d.dirtyFormulas[:0]
	engine.Calculate(d.cxt, sorted, threads)
}
