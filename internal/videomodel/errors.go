package videomodel

import (
	"fmt"
	"net/http"
)

// ErrorKind is the closed enum of orchestrator error kinds from §7. Every
// error that crosses a component boundary is one of these so the HTTP
// surface can map it to a status code without guessing.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation_error"
	KindStateConflict   ErrorKind = "state_conflict"
	KindNotFound        ErrorKind = "not_found"
	KindChecksumMismatch ErrorKind = "checksum_mismatch"
	KindUploadExpired   ErrorKind = "upload_expired"
	KindStorageError    ErrorKind = "storage_error"
	KindQueueError      ErrorKind = "queue_error"
	KindWorkerFailure   ErrorKind = "worker_failure"
)

// Error is the structured error type threaded through every component.
// Handlers at the HTTP boundary translate it into the JSON error body
// described in §7; internal callers use errors.As to branch on Kind.
type Error struct {
	Kind           ErrorKind
	Message        string
	CurrentStatus  VideoStatus
	PartNumber     int
	ExpectedPrefix string
	ActualPrefix   string
	RetryAfter     int
	Err            error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode maps the error kind to the HTTP status required by §4.7/§7.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation, KindChecksumMismatch, KindUploadExpired, KindQueueError:
		return http.StatusBadRequest
	case KindStateConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindStorageError:
		return http.StatusBadGateway
	case KindWorkerFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(what, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", what, id)}
}

func NewStateConflictError(current VideoStatus, message string) *Error {
	return &Error{Kind: KindStateConflict, Message: message, CurrentStatus: current}
}

func NewChecksumMismatchError(partNumber int, expectedPrefix, actualPrefix string) *Error {
	return &Error{
		Kind:           KindChecksumMismatch,
		Message:        fmt.Sprintf("checksum mismatch for part %d", partNumber),
		PartNumber:     partNumber,
		ExpectedPrefix: expectedPrefix,
		ActualPrefix:   actualPrefix,
	}
}

func NewUploadExpiredError(message string) *Error {
	return &Error{Kind: KindUploadExpired, Message: message}
}

// StorageErrorSeverity distinguishes transient (retriable) from permanent
// object-store failures, per §4.1's error taxonomy.
type StorageErrorSeverity string

const (
	StorageTransient StorageErrorSeverity = "transient"
	StoragePermanent StorageErrorSeverity = "permanent"
)

func NewStorageError(severity StorageErrorSeverity, err error) *Error {
	return &Error{Kind: KindStorageError, Message: fmt.Sprintf("storage error (%s): %v", severity, err), Err: err}
}

func NewQueueError(err error) *Error {
	return &Error{Kind: KindQueueError, Message: "failed to enqueue processing job", Err: err}
}

func NewWorkerFailureError(message string) *Error {
	return &Error{Kind: KindWorkerFailure, Message: message}
}
