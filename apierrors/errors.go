// Package apierrors implements a classified error taxonomy: an error kind,
// whether it is retryable, and the HTTP status it surfaces as.
package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/clipcut/clipcut-api/log"
)

type Kind string

const (
	KindInvalidParameters   Kind = "invalid-parameters"
	KindNotFound            Kind = "not-found"
	KindForbidden           Kind = "forbidden"
	KindConflict            Kind = "conflict"
	KindExpired             Kind = "expired"
	KindIncomplete          Kind = "incomplete"
	KindOversize            Kind = "oversize"
	KindRejectedType        Kind = "rejected-type"
	KindUnreadable          Kind = "unreadable"
	KindUnsupportedCodec    Kind = "unsupported-codec"
	KindNoSpeechDetected    Kind = "no-speech-detected"
	KindTransientIO         Kind = "transient-io"
	KindTransientDependency Kind = "transient-dependency"
	KindTimeout             Kind = "timeout"
	KindWorkerLost          Kind = "worker-lost"
	KindCancelled           Kind = "cancelled"
	KindRateLimited         Kind = "rate-limited"
	KindInternal            Kind = "internal"
)

// retryableKinds is the pipeline/scheduler retryable set.
var retryableKinds = map[Kind]bool{
	KindTransientIO:         true,
	KindTransientDependency: true,
	KindTimeout:             true,
	KindWorkerLost:          true,
}

func (k Kind) Retryable() bool {
	return retryableKinds[k]
}

// httpStatus maps a Kind to the HTTP status code it surfaces as.
var httpStatus = map[Kind]int{
	KindInvalidParameters:   http.StatusBadRequest,
	KindNotFound:            http.StatusNotFound,
	KindForbidden:           http.StatusForbidden,
	KindConflict:            http.StatusConflict,
	KindExpired:             http.StatusGone,
	KindIncomplete:          http.StatusBadRequest,
	KindOversize:            http.StatusRequestEntityTooLarge,
	KindRejectedType:        http.StatusUnsupportedMediaType,
	KindUnreadable:          http.StatusBadRequest,
	KindUnsupportedCodec:    http.StatusBadRequest,
	KindNoSpeechDetected:    http.StatusOK,
	KindTransientIO:         http.StatusServiceUnavailable,
	KindTransientDependency: http.StatusServiceUnavailable,
	KindTimeout:             http.StatusServiceUnavailable,
	KindWorkerLost:          http.StatusServiceUnavailable,
	KindCancelled:           http.StatusOK,
	KindRateLimited:         http.StatusTooManyRequests,
	KindInternal:            http.StatusInternalServerError,
}

func (k Kind) HTTPStatus() int {
	if s, ok := httpStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is a classified error carrying the (kind, message, retryable) triple
// that job snapshots and HTTP error bodies surface.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// Classify extracts the *Error from an error chain, falling back to an
// internal/non-retryable classification for anything the pipeline didn't
// classify itself.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Kind: KindInternal, Message: err.Error(), cause: err}
}

// wireError is the `{kind, message, retryable}` HTTP error body shape.
type wireError struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// WriteHTTP writes the classified error as the standard error envelope
// `{"error": {...}}` with the status code implied by its Kind.
func WriteHTTP(w http.ResponseWriter, jobID string, err error) *Error {
	ce := Classify(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ce.Kind.HTTPStatus())
	body := map[string]wireError{
		"error": {Kind: ce.Kind, Message: ce.Message, Retryable: ce.Retryable()},
	}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		log.LogError(jobID, "error writing HTTP error body", encErr)
	}
	return ce
}

// WriteKind is a convenience for handlers that haven't constructed an *Error yet.
func WriteKind(w http.ResponseWriter, jobID string, kind Kind, message string) *Error {
	return WriteHTTP(w, jobID, New(kind, message))
}
