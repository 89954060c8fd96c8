// Package errors provides the error taxonomy for the biobank report pipeline.
// Every failure that reaches an operator carries a Kind so the CLI and the
// HTTP server can tell "need more input" apart from a broken spreadsheet or an
// empty tabulation.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Op names the operation that failed, e.g. "reconcile.run".
type Op string

// Error carries an operation, a kind and an optional cause.
type Error struct {
	Op   Op
	Kind Kind
	Err  error
	Msg  string
}

// Kind classifies an Error for exit codes and HTTP statuses.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindSourceUnavailable means a required input was not supplied.
	KindSourceUnavailable
	// KindInputSchema means an input is present but a required column is
	// missing or a value could not be parsed.
	KindInputSchema
	// KindEmptyInput means an aggregation received zero rows.
	KindEmptyInput
	KindIO
	KindValidation
	KindConfig
	KindParse
)

var kindNames = map[Kind]string{
	KindSourceUnavailable: "source_unavailable",
	KindInputSchema:       "input_schema",
	KindEmptyInput:        "empty_input",
	KindIO:                "io",
	KindValidation:        "validation",
	KindConfig:            "config",
	KindParse:             "parse",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(string(e.Op))
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
		if e.Err != nil {
			b.WriteString(": ")
		}
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an Error from any mix of Op, Kind, error and string (the
// message). Later arguments of the same type win.
func E(args ...interface{}) *Error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case error:
			e.Err = a
		case string:
			e.Msg = a
		}
	}
	return e
}

// Wrap adds op to err, keeping err's kind. A nil err stays nil.
func Wrap(op Op, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapMsg is Wrap with a message.
func WrapMsg(op Op, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Msg: msg, Err: err}
}

// SourceUnavailable reports that the named input was not supplied.
func SourceUnavailable(op Op, source string) *Error {
	return &Error{Op: op, Kind: KindSourceUnavailable, Msg: fmt.Sprintf("input %q was not supplied", source)}
}

// InputSchema reports a missing column or an unparseable value.
func InputSchema(op Op, format string, args ...interface{}) *Error {
	return &Error{Op: op, Kind: KindInputSchema, Msg: fmt.Sprintf(format, args...)}
}

// EmptyInput reports that an aggregation was handed zero rows.
func EmptyInput(op Op, what string) *Error {
	return &Error{Op: op, Kind: KindEmptyInput, Msg: fmt.Sprintf("%s has no rows", what)}
}

// IsKind reports whether any error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// GetKind returns the first non-unknown kind found in err's chain, or
// KindUnknown.
func GetKind(err error) Kind {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return KindUnknown
		}
		if e.Kind != KindUnknown {
			return e.Kind
		}
		err = e.Err
	}
	return KindUnknown
}

// SkipCounter tracks how many values were coerced or skipped while decoding.
// Use this to provide visibility into lenient parsing.
type SkipCounter struct {
	Op         string
	Count      int
	LastErr    error
	LastDetail string
}

func NewSkipCounter(op string) *SkipCounter {
	return &SkipCounter{Op: op}
}

// Skip records a skipped value due to an error.
func (s *SkipCounter) Skip(err error, detail string) {
	s.Count++
	s.LastErr = err
	s.LastDetail = detail
}

// Report logs a summary if anything was skipped.
func (s *SkipCounter) Report(logger zerolog.Logger) {
	if s.Count > 0 {
		logger.Warn().
			Str("op", s.Op).
			Int("skipped", s.Count).
			AnErr("last_error", s.LastErr).
			Str("detail", s.LastDetail).
			Msg("values skipped")
	}
}

// IgnoreError logs err at debug level and drops it.
func IgnoreError(logger zerolog.Logger, err error, reason string) {
	if err != nil {
		logger.Debug().Err(err).Str("reason", reason).Msg("ignoring error")
	}
}
