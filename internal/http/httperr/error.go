package httperr

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"teamboard-api/internal/domain"
	"teamboard-api/internal/observability/logger"

	"go.uber.org/zap"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	OK    bool         `json:"ok"`
	Error *ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	ErrorID string            `json:"error_id,omitempty"`
}

// 401 Unauthorized
const (
	ErrCodeMissingAuthorization = "MISSING_AUTHORIZATION"
	ErrCodeInvalidScheme        = "INVALID_SCHEME"
	ErrCodeInvalidToken         = "INVALID_TOKEN"
	ErrCodeInvalidSignature     = "INVALID_SIGNATURE"
	ErrCodeTokenExpired         = "TOKEN_EXPIRED"
	ErrCodeInvalidIssuer        = "INVALID_ISSUER"
	ErrCodeInvalidAudience      = "INVALID_AUDIENCE"
)

// 403 / 404 / 409 / 422
const (
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeIdentityInactive   = "IDENTITY_INACTIVE"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeIdempotencyReuse   = "IDEMPOTENCY_KEY_REUSED"
	ErrCodeInvariantViolation = "INVARIANT_VIOLATION"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// 400 Bad Request
const (
	ErrCodeInvalidWorkspaceID = "INVALID_WORKSPACE_ID"
	ErrCodeInvalidParameter   = "INVALID_PARAMETER"
	ErrCodeInvalidFormat      = "INVALID_FORMAT"
	ErrCodeInvalidBody        = "INVALID_BODY"
	ErrCodeValidationError    = "VALIDATION_ERROR"
)

// 500 Internal Server Error
const (
	ErrCodeInternalError = "INTERNAL_ERROR"
)

var exposeErrorID atomic.Bool

// SetExposeErrorID makes 500 responses carry the request ID as error_id. Enabled in dev.
func SetExposeErrorID(v bool) {
	exposeErrorID.Store(v)
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	WriteErrorWithFields(w, ctx, status, code, message, nil)
}

// WriteErrorWithFields writes a standardized error response with field-level details
func WriteErrorWithFields(w http.ResponseWriter, ctx context.Context, status int, code, message string, fields map[string]string) {
	log := logger.GetLogger(ctx)

	logFields := make([]zap.Field, 0, len(fields)+5)
	logFields = append(logFields,
		logger.Module("http"),
		logger.Action("write_error"),
		zap.Int("status_code", status),
		zap.String("error_code", code),
		zap.String("message", message),
	)
	for k, v := range fields {
		logFields = append(logFields, zap.String("field_"+k, v))
	}

	// 4xx is the caller's problem
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logFields...)
	} else {
		log.Warn(ctx, "request rejected", logFields...)
	}

	writeJSON(w, status, ErrorResponse{
		OK: false,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
			Fields:  fields,
		},
	})
}

// Unauthorized401 writes a 401 Unauthorized response
func Unauthorized401(w http.ResponseWriter, ctx context.Context, code, message string) {
	WriteError(w, ctx, http.StatusUnauthorized, code, message)
}

// Forbidden403 writes a 403 Forbidden response
func Forbidden403(w http.ResponseWriter, ctx context.Context, code, message string) {
	WriteError(w, ctx, http.StatusForbidden, code, message)
}

// NotFound404 writes a 404 Not Found response
func NotFound404(w http.ResponseWriter, ctx context.Context, message string) {
	WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, message)
}

// Conflict409 writes a 409 Conflict response
func Conflict409(w http.ResponseWriter, ctx context.Context, code, message string) {
	WriteError(w, ctx, http.StatusConflict, code, message)
}

// BadRequest400 writes a 400 Bad Request response
func BadRequest400(w http.ResponseWriter, ctx context.Context, code, message string) {
	WriteError(w, ctx, http.StatusBadRequest, code, message)
}

// BadRequest400WithFields writes a 400 Bad Request response with field-level errors
func BadRequest400WithFields(w http.ResponseWriter, ctx context.Context, code, message string, fields map[string]string) {
	WriteErrorWithFields(w, ctx, http.StatusBadRequest, code, message, fields)
}

// TooManyRequests429 writes a 429 response
func TooManyRequests429(w http.ResponseWriter, ctx context.Context, message string) {
	WriteError(w, ctx, http.StatusTooManyRequests, ErrCodeRateLimited, message)
}

// InternalError500 writes a generic 500. message is logged, never returned.
func InternalError500(w http.ResponseWriter, ctx context.Context, message string) {
	reqID := logger.GetRequestIDFromContext(ctx)

	log := logger.GetLogger(ctx)
	fields := []zap.Field{
		logger.Module("http"),
		logger.Action("write_error"),
		zap.String("message", message),
	}
	if root := logger.GetRootError(ctx); root != nil {
		fields = append(fields, zap.Error(root))
	}
	log.Error(ctx, "internal server error", fields...)

	response := ErrorResponse{
		OK: false,
		Error: &ErrorDetail{
			Code:    ErrCodeInternalError,
			Message: "Internal Server Error",
		},
	}
	if exposeErrorID.Load() {
		response.Error.ErrorID = reqID
	}

	writeJSON(w, http.StatusInternalServerError, response)
}

// StatusFor maps a domain error kind to its HTTP status. Untyped errors are 500.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindPermissionDenied:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindInvariantViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// FromDomainError writes the response for an error returned by the service layer.
func FromDomainError(w http.ResponseWriter, ctx context.Context, err error) {
	de, ok := domain.AsError(err)
	if !ok {
		logger.SetRootError(ctx, err)
		InternalError500(w, ctx, err.Error())
		return
	}

	switch de.Kind {
	case domain.KindValidation:
		BadRequest400WithFields(w, ctx, ErrCodeValidationError, de.Message, de.Fields)
	case domain.KindNotFound:
		NotFound404(w, ctx, de.Message)
	case domain.KindPermissionDenied:
		Forbidden403(w, ctx, ErrCodeForbidden, de.Message)
	case domain.KindConflict:
		Conflict409(w, ctx, ErrCodeConflict, de.Message)
	case domain.KindInvariantViolation:
		WriteError(w, ctx, http.StatusUnprocessableEntity, ErrCodeInvariantViolation, de.Message)
	default:
		InternalError500(w, ctx, de.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
