package dto

import (
	"net/http"

	"github.com/orderhub/backend/internal/domain/shared"
)

// Kinds raised by the HTTP layer itself. Domain kinds come from shared.
const (
	KindRequestTooLarge    = "REQUEST_TOO_LARGE"
	KindServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// KindHTTPStatus maps error kinds to HTTP status codes
var KindHTTPStatus = map[string]int{
	shared.CodeInvalidInput: http.StatusBadRequest,
	shared.CodeNotFound:     http.StatusNotFound,

	shared.CodeConcurrencyConflict: http.StatusConflict,
	shared.CodeConcurrentBatch:     http.StatusConflict,

	shared.CodeInvalidTransition: http.StatusUnprocessableEntity,
	shared.CodeNoEligibleOrders:  http.StatusUnprocessableEntity,
	shared.CodeInvalidState:      http.StatusUnprocessableEntity,

	shared.CodeCancelled: http.StatusRequestTimeout,

	shared.CodeUpstreamUnavailable: http.StatusServiceUnavailable,
	KindServiceUnavailable:         http.StatusServiceUnavailable,

	KindRequestTooLarge: http.StatusRequestEntityTooLarge,

	shared.CodeInternal: http.StatusInternalServerError,
}

// HTTPStatus returns the status for a kind, 500 when the kind is unknown
func HTTPStatus(kind string) int {
	if status, ok := KindHTTPStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}
