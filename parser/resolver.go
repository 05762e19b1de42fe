// Package parser turns formula text into the engine's token streams. The
// heavy lifting of tokenization is done by the efp Excel formula parser;
// this package maps its token stream onto engine opcodes and resolves
// reference names through a pluggable address grammar.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"recalc/address"
	"recalc/formula"
	"recalc/model"
)

// ResolvedType classifies what a reference name resolved to.
type ResolvedType uint8

const (
	ResolvedInvalid ResolvedType = iota
	ResolvedCellRef
	ResolvedRangeRef
	ResolvedNamedExpression
	ResolvedFunction
	ResolvedTableRef
)

// ResolvedName is the outcome of resolving one reference name.
type ResolvedName struct {
	Type  ResolvedType
	Ref   address.Ref
	Range address.RefRange
	Func  formula.FunctionOp
	Name  string
	Table formula.TableRef
}

// Resolver is one cell-address grammar. The engine uses a single
// resolver per workbook, chosen at construction.
type Resolver interface {
	// Resolve parses name against origin.
	Resolve(name string, origin address.Address) ResolvedName
	// GetName renders a single reference, optionally with its sheet
	// prefix.
	GetName(ref address.Ref, origin address.Address, withSheet bool) string
	// GetRangeName renders a range reference.
	GetRangeName(rng address.RefRange, origin address.Address, withSheet bool) string
}

// columnName renders a 0-based column index as spreadsheet letters.
func columnName(col int32) string {
	var b []byte
	n := col
	for {
		b = append([]byte{byte('A' + n%26)}, b...)
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	return string(b)
}

// columnIndex parses spreadsheet letters into a 0-based column index.
func columnIndex(name string) (int32, bool) {
	if name == "" {
		return 0, false
	}
	col := int32(0)
	for _, ch := range name {
		if ch < 'A' || ch > 'Z' {
			return 0, false
		}
		col = col*26 + int32(ch-'A') + 1
	}
	return col - 1, true
}

// ExcelA1Resolver implements the Excel A1 grammar: "A1", "$B$2",
// "Sheet1!C3", "'Name with spaces'!A1:B2".
type ExcelA1Resolver struct {
	cxt *model.Context
}

func NewExcelA1Resolver(cxt *model.Context) *ExcelA1Resolver {
	return &ExcelA1Resolver{cxt: cxt}
}

// splitSheetPrefix splits an optional "Sheet!" prefix off a reference
// name, unquoting 'quoted' sheet names.
func splitSheetPrefix(name string) (sheet, rest string, ok bool) {
	i := strings.LastIndexByte(name, '!')
	if i < 0 {
		return "", name, true
	}
	sheet, rest = name[:i], name[i+1:]
	if strings.HasPrefix(sheet, "'") {
		if !strings.HasSuffix(sheet, "'") || len(sheet) < 2 {
			return "", "", false
		}
		sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
	}
	return sheet, rest, true
}

// parseA1Cell parses one A1-style cell name into a reference relative
// to origin. sheetRef carries the resolved sheet component.
func (r *ExcelA1Resolver) parseA1Cell(name string, origin address.Address, sheetRef address.Ref) (address.Ref, bool) {
	absCol := strings.HasPrefix(name, "$")
	if absCol {
		name = name[1:]
	}
	i := 0
	for i < len(name) && name[i] >= 'A' && name[i] <= 'Z' {
		i++
	}
	colName, rest := name[:i], name[i:]
	absRow := strings.HasPrefix(rest, "$")
	if absRow {
		rest = rest[1:]
	}
	col, ok := columnIndex(colName)
	if !ok {
		return address.Ref{}, false
	}
	row64, err := strconv.ParseInt(rest, 10, 32)
	if err != nil || row64 < 1 {
		return address.Ref{}, false
	}
	row := int32(row64) - 1

	ref := sheetRef
	if absCol {
		ref.Column, ref.RelColumn = col, false
	} else {
		ref.Column, ref.RelColumn = col-origin.Column, true
	}
	if absRow {
		ref.Row, ref.RelRow = row, false
	} else {
		ref.Row, ref.RelRow = row-origin.Row, true
	}
	return ref, true
}

func (r *ExcelA1Resolver) Resolve(name string, origin address.Address) ResolvedName {
	sheetName, rest, ok := splitSheetPrefix(name)
	if !ok || rest == "" {
		return ResolvedName{Type: ResolvedInvalid, Name: name}
	}

	sheetRef := address.Ref{RelSheet: true}
	if sheetName != "" {
		idx, found := r.cxt.SheetIndex(sheetName)
		if !found {
			return ResolvedName{Type: ResolvedInvalid, Name: name}
		}
		sheetRef = address.Ref{Sheet: idx}
	}

	if first, last, isRange := strings.Cut(rest, ":"); isRange {
		f, okF := r.parseA1Cell(first, origin, sheetRef)
		l, okL := r.parseA1Cell(last, origin, sheetRef)
		if okF && okL {
			return ResolvedName{
				Type:  ResolvedRangeRef,
				Range: address.RefRange{First: f, Last: l},
				Name:  name,
			}
		}
		return ResolvedName{Type: ResolvedInvalid, Name: name}
	}

	if ref, ok := r.parseA1Cell(rest, origin, sheetRef); ok {
		return ResolvedName{Type: ResolvedCellRef, Ref: ref, Name: name}
	}
	if sheetName == "" {
		if op := formula.FunctionOpFromName(rest); op != formula.FuncUnknown {
			return ResolvedName{Type: ResolvedFunction, Func: op, Name: rest}
		}
		return ResolvedName{Type: ResolvedNamedExpression, Name: rest}
	}
	return ResolvedName{Type: ResolvedInvalid, Name: name}
}

func (r *ExcelA1Resolver) sheetPrefix(ref address.Ref, origin address.Address) string {
	pos := ref.Resolve(origin)
	name, ok := r.cxt.SheetName(pos.Sheet)
	if !ok {
		return ""
	}
	if strings.ContainsAny(name, " !'") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'!"
	}
	return name + "!"
}

func (r *ExcelA1Resolver) GetName(ref address.Ref, origin address.Address, withSheet bool) string {
	pos := ref.Resolve(origin)
	var b strings.Builder
	if withSheet {
		b.WriteString(r.sheetPrefix(ref, origin))
	}
	if !ref.RelColumn {
		b.WriteByte('$')
	}
	b.WriteString(columnName(pos.Column))
	if !ref.RelRow {
		b.WriteByte('$')
	}
	b.WriteString(strconv.FormatInt(int64(pos.Row)+1, 10))
	return b.String()
}

func (r *ExcelA1Resolver) GetRangeName(rng address.RefRange, origin address.Address, withSheet bool) string {
	return r.GetName(rng.First, origin, withSheet) + ":" + r.GetName(rng.Last, origin, false)
}

// ExcelR1C1Resolver implements the Excel R1C1 grammar: "R1C1" absolute,
// "R[-1]C[2]" relative to the origin cell.
type ExcelR1C1Resolver struct {
	cxt *model.Context
}

func NewExcelR1C1Resolver(cxt *model.Context) *ExcelR1C1Resolver {
	return &ExcelR1C1Resolver{cxt: cxt}
}

// parseR1C1Part parses one "R..." or "C..." component, returning the
// value and whether it is relative.
func parseR1C1Part(s string) (val int32, rel, ok bool) {
	if s == "" {
		// bare R or C refers to the origin's own row/column
		return 0, true, true
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		n, err := strconv.ParseInt(s[1:len(s)-1], 10, 32)
		if err != nil {
			return 0, false, false
		}
		return int32(n), true, true
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n < 1 {
		return 0, false, false
	}
	return int32(n) - 1, false, true
}

func (r *ExcelR1C1Resolver) parseR1C1Cell(name string, sheetRef address.Ref) (address.Ref, bool) {
	if !strings.HasPrefix(name, "R") {
		return address.Ref{}, false
	}
	ci := strings.IndexByte(name, 'C')
	if ci < 0 {
		return address.Ref{}, false
	}
	rowVal, rowRel, okR := parseR1C1Part(name[1:ci])
	colVal, colRel, okC := parseR1C1Part(name[ci+1:])
	if !okR || !okC {
		return address.Ref{}, false
	}
	ref := sheetRef
	ref.Row, ref.RelRow = rowVal, rowRel
	ref.Column, ref.RelColumn = colVal, colRel
	return ref, true
}

func (r *ExcelR1C1Resolver) Resolve(name string, origin address.Address) ResolvedName {
	sheetName, rest, ok := splitSheetPrefix(name)
	if !ok || rest == "" {
		return ResolvedName{Type: ResolvedInvalid, Name: name}
	}
	sheetRef := address.Ref{RelSheet: true}
	if sheetName != "" {
		idx, found := r.cxt.SheetIndex(sheetName)
		if !found {
			return ResolvedName{Type: ResolvedInvalid, Name: name}
		}
		sheetRef = address.Ref{Sheet: idx}
	}

	if first, last, isRange := strings.Cut(rest, ":"); isRange {
		f, okF := r.parseR1C1Cell(first, sheetRef)
		l, okL := r.parseR1C1Cell(last, sheetRef)
		if okF && okL {
			return ResolvedName{
				Type:  ResolvedRangeRef,
				Range: address.RefRange{First: f, Last: l},
				Name:  name,
			}
		}
		return ResolvedName{Type: ResolvedInvalid, Name: name}
	}
	if ref, ok := r.parseR1C1Cell(rest, sheetRef); ok {
		return ResolvedName{Type: ResolvedCellRef, Ref: ref, Name: name}
	}
	if sheetName == "" {
		if op := formula.FunctionOpFromName(rest); op != formula.FuncUnknown {
			return ResolvedName{Type: ResolvedFunction, Func: op, Name: rest}
		}
		return ResolvedName{Type: ResolvedNamedExpression, Name: rest}
	}
	return ResolvedName{Type: ResolvedInvalid, Name: name}
}

func r1c1Part(letter byte, val int32, rel bool) string {
	if rel {
		if val == 0 {
			return string(letter)
		}
		return fmt.Sprintf("%c[%d]", letter, val)
	}
	return fmt.Sprintf("%c%d", letter, val+1)
}

func (r *ExcelR1C1Resolver) GetName(ref address.Ref, origin address.Address, withSheet bool) string {
	var b strings.Builder
	if withSheet {
		pos := ref.Resolve(origin)
		if name, ok := r.cxt.SheetName(pos.Sheet); ok {
			b.WriteString(name)
			b.WriteByte('!')
		}
	}
	b.WriteString(r1c1Part('R', ref.Row, ref.RelRow))
	b.WriteString(r1c1Part('C', ref.Column, ref.RelColumn))
	return b.String()
}

func (r *ExcelR1C1Resolver) GetRangeName(rng address.RefRange, origin address.Address, withSheet bool) string {
	return r.GetName(rng.First, origin, withSheet) + ":" + r.GetName(rng.Last, origin, false)
}
