package engine

import "fmt"

// ErrorKind classifies an evaluation failure so the executor can decide
// suppression policy on the kind instead of sniffing message strings.
type ErrorKind int

// Evaluation failure kinds.
const (
	// ErrMissingColumn means a referenced column or specification is absent.
	ErrMissingColumn ErrorKind = iota
	// ErrNonNumeric means a referenced column holds text/categorical data.
	ErrNonNumeric
	// ErrAllNull means every referenced cell is null.
	ErrAllNull
	// ErrDivisionByZero means a denominator or base value is exactly zero.
	ErrDivisionByZero
	// ErrDomain means an operand is outside the metric's domain (CAGR).
	ErrDomain
	// ErrNoColumns means a sum rule configured no column references.
	ErrNoColumns
	// ErrMissingData means a required table has no rows for the entity.
	ErrMissingData
	// ErrUnsupported means the rule asked for an operation the engine
	// does not implement in that context.
	ErrUnsupported
)

// EvalError is a recoverable per-rule, per-entity evaluation failure.
// It never aborts a run: the executor converts it into an
// unable-to-evaluate finding or suppresses it, by Kind.
type EvalError struct {
	Kind ErrorKind
	Msg  string
}

// Error implements the error interface.
func (e *EvalError) Error() string { return e.Msg }

// evalErrf builds an EvalError with a formatted message.
func evalErrf(kind ErrorKind, format string, args ...any) *EvalError {
	return &EvalError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// withOperand prefixes the message with the operand's role ("Numerator",
// "Denominator", ...) while preserving the kind.
func (e *EvalError) withOperand(role string) *EvalError {
	return &EvalError{Kind: e.Kind, Msg: role + ": " + e.Msg}
}
