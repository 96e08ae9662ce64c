package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for geocoding operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument   ErrorCode = 1000
	ErrCodeInvalidCoordinate ErrorCode = 1001
	ErrCodeBatchTooLarge     ErrorCode = 1002
	ErrCodeNoMatch           ErrorCode = 1003

	// Server errors (5xx equivalent)
	ErrCodeInternal       ErrorCode = 2000
	ErrCodeNotInitialized ErrorCode = 2001
	ErrCodeDataNotFound   ErrorCode = 2002
	ErrCodeCorruptedData  ErrorCode = 2007
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:                "ok",
	ErrCodeInvalidArgument:   "invalid_argument",
	ErrCodeInvalidCoordinate: "invalid_coordinate",
	ErrCodeBatchTooLarge:     "batch_too_large",
	ErrCodeNoMatch:           "no_match",
	ErrCodeInternal:          "internal",
	ErrCodeNotInitialized:    "not_initialized",
	ErrCodeDataNotFound:      "data_not_found",
	ErrCodeCorruptedData:     "corrupted_data",
}

// String returns the snake_case name used in API responses
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", int(c))
}

// GeoError represents a structured error with code and context
type GeoError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *GeoError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *GeoError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to an HTTP status code
func (e *GeoError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeOK:
		return http.StatusOK
	case ErrCodeInvalidArgument, ErrCodeInvalidCoordinate, ErrCodeBatchTooLarge:
		return http.StatusBadRequest
	case ErrCodeNoMatch:
		return http.StatusNotFound
	case ErrCodeNotInitialized, ErrCodeDataNotFound:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToGRPCStatus converts GeoError to gRPC status
func (e *GeoError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

func (e *GeoError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeInvalidCoordinate:
		return codes.InvalidArgument
	case ErrCodeBatchTooLarge:
		return codes.ResourceExhausted
	case ErrCodeNoMatch, ErrCodeDataNotFound:
		return codes.NotFound
	case ErrCodeNotInitialized:
		return codes.Unavailable
	case ErrCodeCorruptedData:
		return codes.DataLoss
	default:
		return codes.Internal
	}
}

// NewGeoError creates a new GeoError
func NewGeoError(code ErrorCode, message string, cause error) *GeoError {
	return &GeoError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *GeoError) WithDetail(key string, value interface{}) *GeoError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *GeoError {
	return NewGeoError(ErrCodeInvalidArgument, message, cause)
}

func InvalidCoordinate(lat, lon float64, reason string) *GeoError {
	return NewGeoError(ErrCodeInvalidCoordinate, fmt.Sprintf("invalid coordinate (%v, %v): %s", lat, lon, reason), nil).
		WithDetail("latitude", lat).
		WithDetail("longitude", lon).
		WithDetail("reason", reason)
}

func BatchTooLarge(size, maxSize int) *GeoError {
	return NewGeoError(ErrCodeBatchTooLarge, fmt.Sprintf("batch size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func NoMatch(lat, lon float64) *GeoError {
	return NewGeoError(ErrCodeNoMatch, fmt.Sprintf("no place found near (%v, %v)", lat, lon), nil)
}

func InternalError(message string, cause error) *GeoError {
	return NewGeoError(ErrCodeInternal, message, cause)
}

func NotInitialized(state string) *GeoError {
	return NewGeoError(ErrCodeNotInitialized, fmt.Sprintf("geocoder not available: %s", state), nil).
		WithDetail("state", state)
}

func DataNotFound(message string, searched []string) *GeoError {
	return NewGeoError(ErrCodeDataNotFound, message, nil).
		WithDetail("searched", searched)
}

func CorruptedData(message string, cause error) *GeoError {
	return NewGeoError(ErrCodeCorruptedData, message, cause)
}

// As is errors.As, re-exported so callers need not import both packages
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// IsGeoError checks if an error is, or wraps, a GeoError
func IsGeoError(err error) bool {
	var ge *GeoError
	return stderrors.As(err, &ge)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var ge *GeoError
	if stderrors.As(err, &ge) {
		return ge.Code
	}
	return ErrCodeInternal
}

// IsCorrupted reports whether err is a data corruption error
func IsCorrupted(err error) bool {
	return GetCode(err) == ErrCodeCorruptedData
}
