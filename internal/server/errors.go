package server

import (
	"errors"
	"net/http"

	"tabstat/internal/analysis"
	"tabstat/internal/source"
)

// Error codes shared by every surface. A request can fail loading its
// input, name an operation that does not exist, or fail during the
// computation itself; everything else is an internal fault.
const (
	CodeLoadError        = "LOAD_ERROR"
	CodeInvalidOperation = "INVALID_OPERATION"
	CodeComputationError = "COMPUTATION_ERROR"
	CodeInternal         = "INTERNAL"
)

// ErrorCode classifies err into one of the wire codes.
func ErrorCode(err error) string {
	var le *source.LoadError
	if errors.As(err, &le) {
		return CodeLoadError
	}
	var ioe *analysis.InvalidOpError
	if errors.As(err, &ioe) {
		return CodeInvalidOperation
	}
	var ce *analysis.ComputeError
	if errors.As(err, &ce) {
		return CodeComputationError
	}
	return CodeInternal
}

// HTTPStatus maps an error code onto the JSON API status. Load and
// operation mistakes are the caller's (400), computation failures mean the
// input was readable but not analyzable as asked (422).
func HTTPStatus(code string) int {
	switch code {
	case CodeLoadError, CodeInvalidOperation:
		return http.StatusBadRequest
	case CodeComputationError:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
