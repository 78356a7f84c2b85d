package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the transport boundary.
type Kind int

const (
	// KindConversion covers backend, I/O and encoding failures.
	KindConversion Kind = iota
	// KindInvalidInput covers malformed client input.
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "conversion"
	}
}

var (
	ErrEmptyRequest      = errors.New("request must contain svg_content or svg_base64")
	ErrInvalidBase64     = errors.New("invalid base64 encoding")
	ErrMissingSVGTag     = errors.New("invalid SVG content: no <svg> tag found")
	ErrInvalidDimension  = errors.New("output dimensions must not be negative")
	ErrDimensionTooLarge = errors.New("output dimensions too large")
	ErrNotPNG            = errors.New("renderer output is not a PNG image")
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil && e.Message == "":
		return e.Kind.String() + " error"
	case e.Message == "":
		return e.Err.Error()
	case e.Err == nil:
		return e.Message
	default:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidInput wraps err as a client input failure.
func InvalidInput(msg string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg, Err: err}
}

// ConversionFailed wraps err as a backend failure. The message is the error
// text itself. An err that is already classified keeps its kind.
func ConversionFailed(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindConversion, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. Unclassified
// errors are conversion failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindConversion
}
