package model

import (
	"regexp"
	"strconv"

	"recalc/address"
	"recalc/formula"
)

// Config carries construction-time options of a workbook context.
type Config struct {
	// SessionHandlerFactory, when non-nil, produces a fresh handler for
	// each cell interpretation.
	SessionHandlerFactory func() SessionHandler

	// TableHandler resolves table references; nil means every table
	// reference fails to resolve.
	TableHandler TableHandler
}

var namedExpRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Context is the workbook model: the sheet array, string pool,
// named-expression maps, and the engine-wide formula-result wait policy.
// Mutations are serialized by the caller; reads are safe to run
// concurrently during a calculation.
type Context struct {
	rows int32
	cols int32

	sheets     []*sheetStore
	sheetNames []string

	pool  *StringPool
	named map[string]*formula.NamedExpression

	cfg Config

	// flipped to WaitBlock by the engine for the duration of Calculate;
	// written only while no interpreting goroutines run
	waitPolicy WaitPolicy
}

// NewContext creates an empty workbook whose sheets will all have the
// given bounds.
func NewContext(rows, cols int32, cfg Config) *Context {
	return &Context{
		rows:       rows,
		cols:       cols,
		pool:       NewStringPool(),
		named:      make(map[string]*formula.NamedExpression),
		cfg:        cfg,
		waitPolicy: WaitError,
	}
}

func (cxt *Context) Config() Config         { return cxt.cfg }
func (cxt *Context) Rows() int32            { return cxt.rows }
func (cxt *Context) Columns() int32         { return cxt.cols }
func (cxt *Context) Strings() *StringPool   { return cxt.pool }
func (cxt *Context) WaitPolicy() WaitPolicy { return cxt.waitPolicy }

// SetWaitPolicy changes the formula-result wait policy. Only the
// calculation driver calls this, strictly outside of any interpreting
// goroutine's lifetime.
func (cxt *Context) SetWaitPolicy(p WaitPolicy) { cxt.waitPolicy = p }

// SetSheetSize changes the shared sheet bounds. Fails once any sheet
// exists.
func (cxt *Context) SetSheetSize(rows, cols int32) error {
	if len(cxt.sheets) > 0 {
		return contextErrorf(ErrKindSheetSizeLocked, "%d sheet(s) already exist", len(cxt.sheets))
	}
	cxt.rows, cxt.cols = rows, cols
	return nil
}

// AppendSheet adds a sheet and returns its index. Sheet names are
// globally unique.
func (cxt *Context) AppendSheet(name string) (int32, error) {
	for _, n := range cxt.sheetNames {
		if n == name {
			return -1, contextErrorf(ErrKindSheetNameConflict, "%q", name)
		}
	}
	cxt.sheets = append(cxt.sheets, newSheetStore(cxt.rows, cxt.cols))
	cxt.sheetNames = append(cxt.sheetNames, name)
	return int32(len(cxt.sheets) - 1), nil
}

// SetSheetName renames an existing sheet, preserving global uniqueness.
func (cxt *Context) SetSheetName(sheet int32, name string) error {
	if int(sheet) >= len(cxt.sheets) || sheet < 0 {
		return contextErrorf(ErrKindSheetNotFound, "sheet index %d", sheet)
	}
	for i, n := range cxt.sheetNames {
		if n == name && int32(i) != sheet {
			return contextErrorf(ErrKindSheetNameConflict, "%q", name)
		}
	}
	cxt.sheetNames[sheet] = name
	return nil
}

// SheetIndex finds a sheet by name.
func (cxt *Context) SheetIndex(name string) (int32, bool) {
	for i, n := range cxt.sheetNames {
		if n == name {
			return int32(i), true
		}
	}
	return -1, false
}

// SheetName returns the name of a sheet.
func (cxt *Context) SheetName(sheet int32) (string, bool) {
	if sheet < 0 || int(sheet) >= len(cxt.sheetNames) {
		return "", false
	}
	return cxt.sheetNames[sheet], true
}

func (cxt *Context) SheetCount() int32 { return int32(len(cxt.sheets)) }

func (cxt *Context) sheet(i int32) *sheetStore {
	if i < 0 || int(i) >= len(cxt.sheets) {
		return nil
	}
	return cxt.sheets[i]
}

func (cxt *Context) colAt(pos address.Address) *column {
	sh := cxt.sheet(pos.Sheet)
	if sh == nil || pos.Column < 0 || int(pos.Column) >= len(sh.cols) {
		return nil
	}
	if pos.Row < 0 || pos.Row >= cxt.rows {
		return nil
	}
	return sh.cols[pos.Column]
}

func (cxt *Context) checkPos(pos address.Address) error {
	if cxt.colAt(pos) == nil {
		return contextErrorf(ErrKindSheetNotFound, "no cell at %v", pos)
	}
	return nil
}

// SetNumericCell stores a number at pos, replacing any previous cell.
func (cxt *Context) SetNumericCell(pos address.Address, v float64) error {
	if err := cxt.checkPos(pos); err != nil {
		return err
	}
	cxt.colAt(pos).set(pos.Row, CellValue{Type: CellNumeric, Number: v})
	return nil
}

// SetBooleanCell stores a boolean at pos.
func (cxt *Context) SetBooleanCell(pos address.Address, v bool) error {
	if err := cxt.checkPos(pos); err != nil {
		return err
	}
	cxt.colAt(pos).set(pos.Row, CellValue{Type: CellBoolean, Boolean: v})
	return nil
}

// SetStringCell interns s and stores its id at pos.
func (cxt *Context) SetStringCell(pos address.Address, s string) (uint32, error) {
	if err := cxt.checkPos(pos); err != nil {
		return EmptyStringID, err
	}
	id := cxt.pool.Intern(s)
	cxt.colAt(pos).set(pos.Row, CellValue{Type: CellString, StringID: id})
	return id, nil
}

// SetStringCellID stores an already-interned string id at pos.
func (cxt *Context) SetStringCellID(pos address.Address, id uint32) error {
	if err := cxt.checkPos(pos); err != nil {
		return err
	}
	cxt.colAt(pos).set(pos.Row, CellValue{Type: CellString, StringID: id})
	return nil
}

// EmptyCell clears the cell at pos. The caller deregisters any listener
// edges the previous cell held; the store does not.
func (cxt *Context) EmptyCell(pos address.Address) error {
	if err := cxt.checkPos(pos); err != nil {
		return err
	}
	cxt.colAt(pos).set(pos.Row, CellValue{Type: CellEmpty})
	return nil
}

// SetFormulaCell places a singleton formula cell at pos and returns it.
// An optional pre-seeded result skips the first interpretation.
func (cxt *Context) SetFormulaCell(pos address.Address, tokens *formula.Tokens, seed *formula.Result) (*FormulaCell, error) {
	if err := cxt.checkPos(pos); err != nil {
		return nil, err
	}
	fc := NewFormulaCell(tokens)
	if seed != nil {
		fc.SetResult(*seed)
	}
	cxt.colAt(pos).set(pos.Row, CellValue{Type: CellFormula, Formula: fc})
	return fc, nil
}

// SetGroupedFormulaCells fills rng with formula cells sharing one token
// store and one calc status. The caller clears the rectangle first. An
// optional seed matrix must match the group shape exactly.
func (cxt *Context) SetGroupedFormulaCells(rng address.Range, tokens *formula.Tokens, seed *formula.Matrix) error {
	if !rng.Valid() || !rng.SingleSheet() {
		return contextErrorf(ErrKindInvalidRange, "%v", rng)
	}
	if err := cxt.checkPos(rng.First); err != nil {
		return err
	}
	if err := cxt.checkPos(rng.Last); err != nil {
		return err
	}
	rows, cols := rng.Rows(), rng.Columns()
	if seed != nil && (seed.Rows() != rows || seed.Columns() != cols) {
		return contextErrorf(ErrKindGroupShapeMismatch,
			"seed %dx%d for group %dx%d", seed.Rows(), seed.Columns(), rows, cols)
	}
	status := NewCalcStatus(rows, cols)
	if seed != nil {
		status.SetResult(formula.MatrixResult(seed))
	}
	for c := int32(0); c < cols; c++ {
		for r := int32(0); r < rows; r++ {
			pos := address.New(rng.First.Sheet, rng.First.Row+r, rng.First.Column+c)
			fc := NewGroupedFormulaCell(tokens, status, r, c)
			cxt.colAt(pos).set(pos.Row, CellValue{Type: CellFormula, Formula: fc})
		}
	}
	return nil
}

// CellType reports the storage tag at pos; out-of-model positions read
// as empty.
func (cxt *Context) CellType(pos address.Address) CellType {
	col := cxt.colAt(pos)
	if col == nil {
		return CellEmpty
	}
	return col.typeAt(pos.Row)
}

// CellValue reads the tagged union at pos.
func (cxt *Context) CellValue(pos address.Address) CellValue {
	col := cxt.colAt(pos)
	if col == nil {
		return CellValue{}
	}
	return col.valueAt(pos.Row)
}

// GetNumeric reads pos as a number: booleans convert to 0/1, formula
// cells yield their cached numeric result under the current wait policy,
// and error results read as 0.
func (cxt *Context) GetNumeric(pos address.Address) float64 {
	v := cxt.CellValue(pos)
	switch v.Type {
	case CellNumeric:
		return v.Number
	case CellBoolean:
		if v.Boolean {
			return 1
		}
	case CellFormula:
		res, err := v.Formula.Result(cxt.waitPolicy)
		if err != nil {
			return 0
		}
		return res.Number()
	}
	return 0
}

// GetBoolean reads pos as a boolean; numbers read as v != 0.
func (cxt *Context) GetBoolean(pos address.Address) bool {
	v := cxt.CellValue(pos)
	switch v.Type {
	case CellBoolean:
		return v.Boolean
	case CellNumeric:
		return v.Number != 0
	case CellFormula:
		res, err := v.Formula.Result(cxt.waitPolicy)
		if err != nil {
			return false
		}
		return res.Number() != 0
	}
	return false
}

// GetStringID reads pos as an interned string id.
func (cxt *Context) GetStringID(pos address.Address) uint32 {
	v := cxt.CellValue(pos)
	switch v.Type {
	case CellString:
		return v.StringID
	case CellFormula:
		res, err := v.Formula.Result(cxt.waitPolicy)
		if err == nil && res.Type() == formula.ResultString {
			return res.StringID()
		}
	}
	return EmptyStringID
}

// GetString reads pos as text; numeric values and numeric formula
// results render in their lexical form.
func (cxt *Context) GetString(pos address.Address) string {
	v := cxt.CellValue(pos)
	switch v.Type {
	case CellString:
		s, _ := cxt.pool.Get(v.StringID)
		return s
	case CellNumeric:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case CellBoolean:
		if v.Boolean {
			return "true"
		}
		return "false"
	case CellFormula:
		res, err := v.Formula.Result(cxt.waitPolicy)
		if err != nil {
			return ""
		}
		switch res.Type() {
		case formula.ResultString:
			s, _ := cxt.pool.Get(res.StringID())
			return s
		case formula.ResultValue:
			return strconv.FormatFloat(res.Number(), 'g', -1, 64)
		case formula.ResultError:
			return res.Error().String()
		}
	}
	return ""
}

// GetFormulaCell returns the formula cell at pos, or nil.
func (cxt *Context) GetFormulaCell(pos address.Address) *FormulaCell {
	v := cxt.CellValue(pos)
	if v.Type != CellFormula {
		return nil
	}
	return v.Formula
}

// FillDown replicates the value of src into the next n rows of the same
// column. Formula fill-down is not supported.
func (cxt *Context) FillDown(src address.Address, n int32) error {
	col := cxt.colAt(src)
	if col == nil {
		return contextErrorf(ErrKindSheetNotFound, "no cell at %v", src)
	}
	if src.Row+n >= cxt.rows {
		return contextErrorf(ErrKindInvalidRange, "fill-down past sheet bounds at %v", src)
	}
	v := col.valueAt(src.Row)
	if v.Type == CellFormula {
		return contextErrorf(ErrKindFormulaFillDown, "at %v", src)
	}
	for i := int32(1); i <= n; i++ {
		col.set(src.Row+i, v)
	}
	return nil
}

// GetDataRange returns the tightest rectangle containing every non-empty
// cell of the sheet, and false for an all-empty sheet.
func (cxt *Context) GetDataRange(sheet int32) (address.Range, bool) {
	sh := cxt.sheet(sheet)
	if sh == nil {
		return address.Range{}, false
	}
	var (
		out   address.Range
		found bool
	)
	for c, col := range sh.cols {
		first, last, ok := col.dataSpan()
		if !ok {
			continue
		}
		if !found {
			out = address.Range{
				First: address.New(sheet, first, int32(c)),
				Last:  address.New(sheet, last, int32(c)),
			}
			found = true
			continue
		}
		if first < out.First.Row {
			out.First.Row = first
		}
		if last > out.Last.Row {
			out.Last.Row = last
		}
		if int32(c) < out.First.Column {
			out.First.Column = int32(c)
		}
		if int32(c) > out.Last.Column {
			out.Last.Column = int32(c)
		}
	}
	return out, found
}

// SetNamedExpression defines a workbook-global named expression.
func (cxt *Context) SetNamedExpression(name string, origin address.Address, tokens formula.Tokens) error {
	if !namedExpRegexp.MatchString(name) {
		return contextErrorf(ErrKindInvalidName, "%q", name)
	}
	cxt.named[name] = &formula.NamedExpression{Name: name, Origin: origin, Tokens: tokens}
	return nil
}

// SetSheetNamedExpression defines a named expression scoped to a sheet.
func (cxt *Context) SetSheetNamedExpression(sheet int32, name string, origin address.Address, tokens formula.Tokens) error {
	sh := cxt.sheet(sheet)
	if sh == nil {
		return contextErrorf(ErrKindSheetNotFound, "sheet index %d", sheet)
	}
	if !namedExpRegexp.MatchString(name) {
		return contextErrorf(ErrKindInvalidName, "%q", name)
	}
	sh.named[name] = &formula.NamedExpression{Name: name, Origin: origin, Tokens: tokens}
	return nil
}

// GetNamedExpression looks name up sheet-local first, then global.
func (cxt *Context) GetNamedExpression(sheet int32, name string) *formula.NamedExpression {
	if sh := cxt.sheet(sheet); sh != nil {
		if ne, ok := sh.named[name]; ok {
			return ne
		}
	}
	return cxt.named[name]
}
