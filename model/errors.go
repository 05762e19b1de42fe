package model

import "fmt"

// ContextErrorKind classifies synchronous model-mutation failures so
// hosts can branch on them.
type ContextErrorKind uint8

const (
	ErrKindSheetNameConflict ContextErrorKind = iota
	ErrKindSheetSizeLocked
	ErrKindSheetNotFound
	ErrKindInvalidName
	ErrKindInvalidRange
	ErrKindFormulaFillDown
	ErrKindGroupShapeMismatch
)

var contextErrorKindNames = [...]string{
	ErrKindSheetNameConflict:  "sheet_name_conflict",
	ErrKindSheetSizeLocked:    "sheet_size_locked",
	ErrKindSheetNotFound:      "sheet_not_found",
	ErrKindInvalidName:        "invalid_name",
	ErrKindInvalidRange:       "invalid_range",
	ErrKindFormulaFillDown:    "formula_fill_down",
	ErrKindGroupShapeMismatch: "group_shape_mismatch",
}

// ContextError is a synchronous error reported to a mutating model call.
type ContextError struct {
	Kind ContextErrorKind
	Msg  string
}

func (e *ContextError) Error() string {
	kind := "unknown"
	if int(e.Kind) < len(contextErrorKindNames) {
		kind = contextErrorKindNames[e.Kind]
	}
	if e.Msg == "" {
		return kind
	}
	return fmt.Sprintf("%s: %s", kind, e.Msg)
}

func contextErrorf(kind ContextErrorKind, format string, args ...any) error {
	return &ContextError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
