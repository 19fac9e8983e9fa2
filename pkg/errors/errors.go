package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidScore        = errors.New("score must be between 0 and 5")
	ErrMovieNotFound       = errors.New("movie not found")
	ErrDatasetNotFound     = errors.New("dataset not found")
	ErrIndexNotFound       = errors.New("index not found")
	ErrUnsupportedFormat   = errors.New("unsupported dataset format")
	ErrIngestionInProgress = errors.New("ingestion already in progress")
	ErrIndexUnavailable    = errors.New("search index unavailable")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Kind names the category of a failure independent of transport.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindUpstream   Kind = "upstream"
	KindInternal   Kind = "internal"
)

// KindOf classifies err into the error taxonomy.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidScore),
		errors.Is(err, ErrUnsupportedFormat):
		return KindValidation
	case errors.Is(err, ErrMovieNotFound), errors.Is(err, ErrDatasetNotFound),
		errors.Is(err, ErrIndexNotFound):
		return KindNotFound
	case errors.Is(err, ErrIngestionInProgress):
		return KindConflict
	case errors.Is(err, ErrIndexUnavailable), errors.Is(err, ErrTimeout):
		return KindUpstream
	default:
		return KindInternal
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	}

	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing text for err. Internal failures are
// reported generically so that driver or filesystem details stay in logs.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	for _, sentinel := range []error{
		ErrInvalidInput, ErrInvalidScore, ErrMovieNotFound, ErrDatasetNotFound,
		ErrIndexNotFound, ErrUnsupportedFormat, ErrIngestionInProgress,
		ErrIndexUnavailable, ErrRateLimited, ErrUnauthorized, ErrTimeout,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return ErrInternal.Error()
}
