// Package perrors enumerates the error kinds produced by the streaming
// pipeline (pkg/splitter, pkg/carfile, pkg/cipher, pkg/compress,
// pkg/uploader, pkg/downloader) and provides the Interrupted adapter that
// lets a non-IoError travel up a plain io.Writer-shaped chain.
package perrors

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind identifies one of the distinct, testable error categories a pipeline
// stage can raise.
type Kind int

const (
	// KindIO covers an underlying filesystem or sink write failure.
	KindIO Kind = iota
	// KindTransport covers a network layer error from the HTTP client.
	// The uploader recovers from this internally via its retry loop; the
	// downloader and any one-shot metadata call surface it.
	KindTransport
	// KindServiceResponse covers unparseable or non-CID JSON returned by
	// the Service.
	KindServiceResponse
	// KindNoContentLength covers a download that could not determine the
	// stream's total length from either Content-Range or Content-Length.
	KindNoContentLength
	// KindAuthFailure covers a Poly1305 tag mismatch on decryption.
	KindAuthFailure
	// KindCryptoSetup covers an Argon2 parameter/hash failure, or input
	// shorter than salt+nonce.
	KindCryptoSetup
	// KindCarWrite covers a failure to serialize a CAR record.
	KindCarWrite
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IoError"
	case KindTransport:
		return "Transport"
	case KindServiceResponse:
		return "ServiceResponse"
	case KindNoContentLength:
		return "NoContentLength"
	case KindAuthFailure:
		return "AuthFailure"
	case KindCryptoSetup:
		return "CryptoSetup"
	case KindCarWrite:
		return "CarWrite"
	default:
		return "Unknown"
	}
}

// Error is the structured error type every pipeline stage returns. It
// always carries a Kind so callers can classify failures with errors.As
// without parsing message text.
type Error struct {
	Kind    Kind
	Op      string // the operation that failed, e.g. "cipher.flush", "uploader.post"
	Message string // human-readable detail; empty when Cause alone suffices
	Cause   error
}

func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, KindAuthFailure) style checks against a bare
// Kind wrapped in an *Error via KindSentinel.
func (e *Error) Is(target error) bool {
	var sentinel kindSentinel
	if errors.As(target, &sentinel) {
		return e.Kind == Kind(sentinel)
	}
	return false
}

type kindSentinel Kind

func (s kindSentinel) Error() string { return Kind(s).String() }

// KindSentinel returns a comparable error value usable with errors.Is to
// test only the Kind of a wrapped *Error, ignoring Op/Message/Cause.
func KindSentinel(k Kind) error { return kindSentinel(k) }

// ToIOError adapts err for a plain io.Writer-shaped caller: a KindIO
// *Error is returned verbatim; anything else is wrapped in an
// *fs.PathError (Op "pipeline", Path "chain") whose Unwrap chain still
// carries the original *Error, so FromIOError can recover it.
//
// This mirrors the Rust source's `impl From<Error> for io::Error` pattern,
// where non-IO kinds travel as Interrupted-wrapped IO errors. The chain
// stages in this module return *Error values directly and do not call it.
func ToIOError(err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) && pe.Kind == KindIO {
		return err
	}
	return &fs.PathError{Op: "pipeline", Path: "chain", Err: err}
}

// FromIOError recovers the original *Error from an error returned by a
// chain stage's Write/Flush, undoing ToIOError's wrapping when present.
func FromIOError(err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return err
}
