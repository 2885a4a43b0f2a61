package kgraph

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error taxonomy.
//
// Four error families cross the engine boundary:
//
//   QueryError              : the query text is at fault (syntax, unbound
//                             variable, runtime type mismatch). Carries a
//                             position when one is known. Never retried.
//   StorageError            : an entity identifier no longer resolves. A
//                             logical inconsistency; surfaced, not retried.
//   TransactionAbortedError : optimistic conflict at commit. Expected and
//                             retryable by the caller with a fresh transaction.
//   KnowledgeGraphError     : anything unexpected. Always wraps the original
//                             cause; never swallows it.
// --------------------------------------------------------------------------

// QueryError reports a problem attributable to the query text itself.
// Line and Column are 1-based; both are 0 when no position is available
// (e.g. a runtime type error deep in an expression).
type QueryError struct {
	Msg    string
	Line   int
	Column int
}

func (e *QueryError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("kgraph: query error at %d:%d: %s", e.Line, e.Column, e.Msg)
	}
	return "kgraph: query error: " + e.Msg
}

// queryErrorf creates a positionless QueryError.
func queryErrorf(format string, args ...any) *QueryError {
	return &QueryError{Msg: fmt.Sprintf(format, args...)}
}

// queryErrorAt creates a QueryError carrying a source position.
func queryErrorAt(line, col int, format string, args ...any) *QueryError {
	return &QueryError{Msg: fmt.Sprintf(format, args...), Line: line, Column: col}
}

// StorageError reports an entity that can no longer be resolved by its
// identifier, or a corrupt stored value.
type StorageError struct {
	Msg string
	Err error // underlying cause, may be nil
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return "kgraph: storage error: " + e.Msg + ": " + e.Err.Error()
	}
	return "kgraph: storage error: " + e.Msg
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErrorf(format string, args ...any) *StorageError {
	return &StorageError{Msg: fmt.Sprintf(format, args...)}
}

// TransactionAbortedError reports an optimistic-concurrency conflict: an
// entity in the write-set was modified by a transaction that committed
// after this transaction's snapshot was taken.
type TransactionAbortedError struct {
	TxID string
	Msg  string
}

func (e *TransactionAbortedError) Error() string {
	return fmt.Sprintf("kgraph: transaction %s aborted: %s", e.TxID, e.Msg)
}

// KnowledgeGraphError wraps an unexpected internal failure. The original
// error is always preserved as the cause.
type KnowledgeGraphError struct {
	Msg string
	Err error
}

func (e *KnowledgeGraphError) Error() string {
	if e.Err != nil {
		return "kgraph: " + e.Msg + ": " + e.Err.Error()
	}
	return "kgraph: " + e.Msg
}

func (e *KnowledgeGraphError) Unwrap() error { return e.Err }

// wrapUnexpected classifies an error crossing the executor boundary.
// Errors already in the taxonomy pass through untouched; everything else
// is wrapped so the cause survives.
func wrapUnexpected(msg string, err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	var se *StorageError
	var te *TransactionAbortedError
	var ke *KnowledgeGraphError
	if errors.As(err, &qe) || errors.As(err, &se) || errors.As(err, &te) || errors.As(err, &ke) {
		return err
	}
	return &KnowledgeGraphError{Msg: msg, Err: err}
}

// IsRetryable reports whether the caller may reasonably retry the failed
// operation with a fresh transaction. Only optimistic conflicts qualify.
func IsRetryable(err error) bool {
	var te *TransactionAbortedError
	return errors.As(err, &te)
}
