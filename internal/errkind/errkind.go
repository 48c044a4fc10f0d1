// Package errkind defines the error categories shared by the enrichment pipeline,
// the search engine and the HTTP layer.
package errkind

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrTransientIO covers network and storage failures that may succeed on a later pass.
	ErrTransientIO = errors.New("transient io error")
	// ErrInference covers empty, malformed or wrongly shaped model output.
	ErrInference = errors.New("inference error")
	// ErrNotFound covers missing rows, objects and gazetteer entries.
	ErrNotFound = errors.New("not found")
	// ErrValidation covers bad caller input.
	ErrValidation = errors.New("validation error")
	// ErrConflict covers writes that would replace something already registered.
	ErrConflict = errors.New("conflict")
)

// Kind is a stable label for an error category, used in logs and metrics.
type Kind string

const (
	KindNone       Kind = "none"
	KindTransient  Kind = "transient_io"
	KindInference  Kind = "inference"
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindCanceled   Kind = "canceled"
	KindInternal   Kind = "internal"
)

// Wrap tags err with the given category while keeping it inspectable with errors.Is.
func Wrap(kind error, msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", kind, msg)
	}
	return fmt.Errorf("%w: %s: %w", kind, msg, err)
}

// Classify maps any error to its category. Timeouts and network errors
// count as transient even when they were not tagged explicitly.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInference):
		return KindInference
	case errors.Is(err, ErrTransientIO), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch Classify(err) {
	case KindNone:
		return http.StatusOK
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
