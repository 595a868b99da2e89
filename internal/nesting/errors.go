package nesting

import (
	"errors"
	"fmt"
)

// Kind classifies a nesting failure.
type Kind string

const (
	KindInvalidConfig Kind = "InvalidConfig"
	KindInvalidPart   Kind = "InvalidPart"
	KindPartTooLarge  Kind = "PartTooLarge"
	KindUnplaceable   Kind = "Unplaceable"
	KindCancelled     Kind = "Cancelled"
	KindBusy          Kind = "Busy"
)

// ErrBusy is returned when the worker pool has no admission capacity left.
var ErrBusy = &Error{Kind: KindBusy, Message: "nesting service is at capacity"}

// Error is a structured nesting failure carrying enough context for the
// caller to react: the offending part or config field.
type Error struct {
	Kind    Kind   `json:"kind"`
	PartID  string `json:"partId,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	var msg string
	switch {
	case e.PartID != "":
		msg = fmt.Sprintf("%s: part %s: %s", e.Kind, e.PartID, e.Message)
	case e.Field != "":
		msg = fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	default:
		msg = fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind, so errors.Is(err, ErrBusy) works for
// any Busy error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.PartID == "" && t.Field == ""
}

// KindOf returns the kind of a nesting error, or "" for other errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError returns the structured error inside err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func configError(field, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidConfig, Field: field, Message: fmt.Sprintf(format, args...)}
}

func partError(partID, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidPart, PartID: partID, Message: fmt.Sprintf(format, args...)}
}
