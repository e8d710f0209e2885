package api

import (
	"errors"
	"net/http"

	"signaldesk/pkg/signaldesk"
)

// ErrorResponse represents an error API response with structured information.
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeErrorResponse writes err with the HTTP status its error code maps to.
// Errors without a code use fallbackStatus.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, fallbackStatus int, err error) {
	response := ErrorResponse{
		Code:      fallbackStatus,
		Message:   err.Error(),
		RequestID: requestID(r),
	}

	var sdErr *signaldesk.Error
	if errors.As(err, &sdErr) {
		response.ErrorCode = string(sdErr.Code)
		response.Code = mapErrorCodeToHTTPStatus(sdErr.Code)
	}

	noteFailure(w, signaldesk.ErrorCode(response.ErrorCode), response.Message)
	writeJSON(w, response.Code, response)
}

// mapErrorCodeToHTTPStatus maps business error codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code signaldesk.ErrorCode) int {
	switch code {
	case signaldesk.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case signaldesk.ErrCodeNotFound:
		return http.StatusNotFound
	case signaldesk.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case signaldesk.ErrCodeUpstreamUnavailable, signaldesk.ErrCodeNoUsableModel, signaldesk.ErrCodeMalformedResponse:
		return http.StatusBadGateway
	case signaldesk.ErrCodeConfiguration, signaldesk.ErrCodeDatabase, signaldesk.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
