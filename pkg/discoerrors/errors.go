// Package discoerrors defines the error taxonomy shared by the disco client
// pipeline and the development node.
//
// Every failure a caller can observe falls into one of three buckets, see
// Classify: the mutation definitely did not happen, definitely happened, or
// its fate is unknown and must be checked by transaction hash.
package discoerrors

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyTransaction is returned when a transaction is built with no messages.
var ErrEmptyTransaction = errors.New("transaction must contain at least one message")

// ErrNotFound is returned by queries for an unknown entry, account or transaction.
var ErrNotFound = errors.New("not found")

// ValidationError reports a malformed or incomplete message, detected locally
// before anything is sent to the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid message: " + e.Reason
	}
	return fmt.Sprintf("invalid message: %s: %s", e.Field, e.Reason)
}

// Invalid is shorthand for constructing a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DecodeError reports bytes that could not be decoded into a known type.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SigningError reports that the wallet could not produce a signature for the
// requested account. Nothing is ever submitted unsigned.
type SigningError struct {
	Address string
	Err     error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sign for %s: %v", e.Address, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// SubmissionError is a synchronous rejection at network intake. The
// transaction was not accepted and will not be applied.
type SubmissionError struct {
	Code Code
	Log  string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("transaction rejected (%s): %s", e.Code, e.Log)
}

// DuplicateTransactionError is returned when an identical envelope is already
// known to the network. The original may or may not have committed yet.
type DuplicateTransactionError struct {
	Hash string
}

func (e *DuplicateTransactionError) Error() string {
	return fmt.Sprintf("transaction %s already known to the network", e.Hash)
}

// BroadcastTimeoutError is returned when polling gave up before the
// transaction reached a terminal state. Its fate is unknown; query it by hash.
type BroadcastTimeoutError struct {
	Hash    string
	Timeout time.Duration
}

func (e *BroadcastTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not committed after %s", e.Hash, e.Timeout)
}

// StaleReadError is returned when the queried endpoint has not yet reached
// the minimum height the caller asked for.
type StaleReadError struct {
	MinHeight uint64
	Height    uint64
}

func (e *StaleReadError) Error() string {
	return fmt.Sprintf("stale read: endpoint at height %d, need at least %d", e.Height, e.MinHeight)
}

// FromCode turns an intake result code into the matching error. CodeOK yields nil.
func FromCode(code Code, log, hash string) error {
	switch code {
	case CodeOK:
		return nil
	case CodeDuplicateTx:
		return &DuplicateTransactionError{Hash: hash}
	default:
		return &SubmissionError{Code: code, Log: log}
	}
}

// ── Predicates ────────────────────────────────────────────────────────────

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

func IsSigning(err error) bool {
	var se *SigningError
	return errors.As(err, &se)
}

func IsSubmission(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se)
}

func IsDuplicate(err error) bool {
	var de *DuplicateTransactionError
	return errors.As(err, &de)
}

func IsTimeout(err error) bool {
	var te *BroadcastTimeoutError
	return errors.As(err, &te)
}

func IsStaleRead(err error) bool {
	var se *StaleReadError
	return errors.As(err, &se)
}

// Certainty describes what a caller may conclude about a mutation from the
// error returned by a sign-and-broadcast call.
type Certainty int

const (
	// Happened means the transaction reached a terminal on-chain state. The
	// broadcast result says whether it succeeded.
	Happened Certainty = iota
	// DidNotHappen means nothing was applied and the call may be rebuilt and retried.
	DidNotHappen
	// Unknown means the transaction may still commit. Check it by hash
	// before retrying.
	Unknown
)

func (c Certainty) String() string {
	switch c {
	case Happened:
		return "happened"
	case DidNotHappen:
		return "did_not_happen"
	default:
		return "unknown"
	}
}

// Classify maps an error from the client pipeline onto a Certainty.
// Anything it does not recognise, including context cancellation and
// transport failures, is Unknown: the envelope may already have left the process.
func Classify(err error) Certainty {
	switch {
	case err == nil:
		return Happened
	case IsTimeout(err), IsDuplicate(err):
		return Unknown
	case errors.Is(err, ErrEmptyTransaction),
		IsValidation(err), IsDecode(err), IsSigning(err), IsSubmission(err):
		return DidNotHappen
	default:
		return Unknown
	}
}
