// Package errs defines the error taxonomy shared by the pipeline components.
//
// Every failure that crosses a component boundary carries a Code. Callers
// match on codes with errors.Is against the exported sentinels:
//
//	if errors.Is(err, errs.ErrDimensionMismatch) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Code classifies a pipeline failure.
type Code string

const (
	CodeEmptyDocument     Code = "EMPTY_DOCUMENT"
	CodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	CodeEmbeddingService  Code = "EMBEDDING_SERVICE"
	CodeGenerationService Code = "GENERATION_SERVICE"
	CodeDimensionMismatch Code = "DIMENSION_MISMATCH"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeIndexIO           Code = "INDEX_IO"
	CodeParserUnavailable Code = "PARSER_UNAVAILABLE"
)

// Sentinels for errors.Is. They compare equal to any *Error with the same code.
var (
	ErrEmptyDocument     = &Error{Code: CodeEmptyDocument, Message: "document is empty"}
	ErrUnsupportedFormat = &Error{Code: CodeUnsupportedFormat, Message: "unsupported format"}
	ErrEmbeddingService  = &Error{Code: CodeEmbeddingService, Message: "embedding service failed"}
	ErrGenerationService = &Error{Code: CodeGenerationService, Message: "generation service failed"}
	ErrDimensionMismatch = &Error{Code: CodeDimensionMismatch, Message: "vector dimension mismatch"}
	ErrInvalidArgument   = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrIndexIO           = &Error{Code: CodeIndexIO, Message: "index I/O failed"}
	// ErrParserUnavailable means the parser itself cannot run (missing license,
	// unreachable sidecar). The document is not at fault.
	ErrParserUnavailable = &Error{Code: CodeParserUnavailable, Message: "document parser unavailable"}
)

// Error is a classified pipeline error.
type Error struct {
	Code    Code
	Op      string // operation that failed, e.g. "vectordb.Upsert"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates a classified error.
func New(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under code. A nil cause yields nil.
func Wrap(code Code, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Message: defaultMessage(code), Cause: cause}
}

// EmptyDocument reports a document with no text after normalization.
func EmptyDocument(op, name string) *Error {
	return New(CodeEmptyDocument, op, "document %q has no text", name)
}

// UnsupportedFormat reports content that no parser accepts.
func UnsupportedFormat(op, what string) *Error {
	return New(CodeUnsupportedFormat, op, "unsupported format %q", what)
}

// DimensionMismatch reports a vector that disagrees with the index dimension.
func DimensionMismatch(op string, want, got int) *Error {
	return New(CodeDimensionMismatch, op, "expected dimension %d, got %d", want, got)
}

// InvalidArgument reports a caller error.
func InvalidArgument(op, format string, args ...any) *Error {
	return New(CodeInvalidArgument, op, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func defaultMessage(code Code) string {
	switch code {
	case CodeEmptyDocument:
		return ErrEmptyDocument.Message
	case CodeUnsupportedFormat:
		return ErrUnsupportedFormat.Message
	case CodeEmbeddingService:
		return ErrEmbeddingService.Message
	case CodeGenerationService:
		return ErrGenerationService.Message
	case CodeDimensionMismatch:
		return ErrDimensionMismatch.Message
	case CodeInvalidArgument:
		return ErrInvalidArgument.Message
	case CodeIndexIO:
		return ErrIndexIO.Message
	case CodeParserUnavailable:
		return ErrParserUnavailable.Message
	}
	return string(code)
}
