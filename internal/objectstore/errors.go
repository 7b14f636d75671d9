package objectstore

import (
	"errors"

	"github.com/aws/smithy-go"
)

// Kind is the object-store error taxonomy from §4.1.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindPreconditionFailed Kind = "precondition_failed"
	KindThrottled          Kind = "throttled"
	KindTransient          Kind = "transient"
	KindPermanentFailure   Kind = "permanent_failure"
)

// Retryable reports whether the adapter's retry wrapper should retry an
// error of this kind (Throttled and Transient only, per §4.1).
func (k Kind) Retryable() bool {
	return k == KindThrottled || k == KindTransient
}

// Error wraps a provider failure classified into the local taxonomy.
type Error struct {
	Kind Kind
	Op   string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err classifies as KindNotFound.
func IsNotFound(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == KindNotFound
}

// classify maps an AWS SDK / smithy error into the local taxonomy. Codes
// are matched by name since the SDK exposes them as opaque API error types
// rather than a closed Go enum.
func classify(op, key string, err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchUpload", "NotFound":
			return &Error{Kind: KindNotFound, Op: op, Key: key, Err: err}
		case "PreconditionFailed":
			return &Error{Kind: KindPreconditionFailed, Op: op, Key: key, Err: err}
		case "SlowDown", "RequestLimitExceeded", "TooManyRequests":
			return &Error{Kind: KindThrottled, Op: op, Key: key, Err: err}
		case "RequestTimeout", "InternalError", "ServiceUnavailable":
			return &Error{Kind: KindTransient, Op: op, Key: key, Err: err}
		}
	}
	return &Error{Kind: KindPermanentFailure, Op: op, Key: key, Err: err}
}
