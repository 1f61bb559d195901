package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal      ErrorCode = "COMMON_001"
	ErrCodeBadRequest    ErrorCode = "COMMON_002"
	ErrCodeNotFound      ErrorCode = "COMMON_005"
	ErrCodeConflict      ErrorCode = "COMMON_006"
	ErrCodeTimeout       ErrorCode = "COMMON_009"
	ErrCodeValidation    ErrorCode = "COMMON_010"
	ErrCodeSerialization ErrorCode = "COMMON_011"
	ErrCodeCacheError    ErrorCode = "COMMON_013"
	ErrCodeInvalidConfig ErrorCode = "COMMON_017"
	ErrCodeClosed        ErrorCode = "COMMON_018"
)

// CodeOK is what GetCode reports for a nil error.
const CodeOK = ErrorCode("OK")

// Viewport Tracker Error Codes
const (
	ErrCodeInvalidViewport ErrorCode = "VPT_001"
)

// Spatial Fetcher Error Codes
const (
	ErrCodeServiceError     ErrorCode = "FET_001"
	ErrCodeMalformedPayload ErrorCode = "FET_003"
	ErrCodeFetcherClosed    ErrorCode = "FET_004"
)

// Event sink Error Codes
const (
	ErrCodePublishFailed ErrorCode = "EVT_001"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:      http.StatusInternalServerError,
	ErrCodeBadRequest:    http.StatusBadRequest,
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeConflict:      http.StatusConflict,
	ErrCodeTimeout:       http.StatusGatewayTimeout,
	ErrCodeValidation:    http.StatusUnprocessableEntity,
	ErrCodeSerialization: http.StatusInternalServerError,
	ErrCodeCacheError:    http.StatusInternalServerError,
	ErrCodeInvalidConfig: http.StatusInternalServerError,
	ErrCodeClosed:        http.StatusServiceUnavailable,

	ErrCodeInvalidViewport: http.StatusUnprocessableEntity,

	ErrCodeServiceError:     http.StatusBadGateway,
	ErrCodeMalformedPayload: http.StatusBadGateway,
	ErrCodeFetcherClosed:    http.StatusServiceUnavailable,

	ErrCodePublishFailed: http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:      "internal server error",
	ErrCodeBadRequest:    "bad request",
	ErrCodeNotFound:      "resource not found",
	ErrCodeConflict:      "resource conflict",
	ErrCodeTimeout:       "request timeout",
	ErrCodeValidation:    "validation failed",
	ErrCodeSerialization: "serialization failed",
	ErrCodeCacheError:    "cache error",
	ErrCodeInvalidConfig: "invalid configuration",
	ErrCodeClosed:        "component closed",

	ErrCodeInvalidViewport: "degenerate or invalid viewport",

	ErrCodeServiceError:     "could not load properties for this area",
	ErrCodeMalformedPayload: "malformed spatial service payload",
	ErrCodeFetcherClosed:    "fetcher closed",

	ErrCodePublishFailed: "failed to publish event",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

//Personal.AI order the ending
