package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidCSV       ErrorCode = "INVALID_CSV"
	ErrCodePromptRejected   ErrorCode = "PROMPT_REJECTED"

	ErrCodeUnauthenticated   ErrorCode = "UNAUTHENTICATED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeInvalidOAuthState ErrorCode = "INVALID_OAUTH_STATE"
	ErrCodeGoogleOAuth       ErrorCode = "GOOGLE_OAUTH_ERROR"

	ErrCodeTripNotFound         ErrorCode = "TRIP_NOT_FOUND"
	ErrCodeUserNotFound         ErrorCode = "USER_NOT_FOUND"
	ErrCodeSheetNotFound        ErrorCode = "SHEET_NOT_FOUND"
	ErrCodeSheetVersionNotFound ErrorCode = "SHEET_VERSION_NOT_FOUND"
	ErrCodeShareNotFound        ErrorCode = "SHARE_NOT_FOUND"

	ErrCodeSheetVersionConflict    ErrorCode = "SHEET_VERSION_CONFLICT"
	ErrCodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"
	ErrCodeRateLimited             ErrorCode = "RATE_LIMITED"
	ErrCodeTurnInProgress          ErrorCode = "TURN_IN_PROGRESS"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"

	ErrCodeSearchQueryFailed ErrorCode = "SEARCH_QUERY_FAILED"

	ErrCodeLLMTimeout       ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMRequestFailed ErrorCode = "LLM_REQUEST_FAILED"
	ErrCodeWebSearchTimeout ErrorCode = "WEB_SEARCH_TIMEOUT"
	ErrCodeWebSearchFailed  ErrorCode = "WEB_SEARCH_FAILED"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeExportDisabled         ErrorCode = "EXPORT_DISABLED"
	ErrCodeExportFailed           ErrorCode = "EXPORT_FAILED"

	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// As unwraps err into a StandardError when one is in the chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	stdErr, ok := As(err)
	return ok && stdErr.Code == code
}

// Normalize converts any error into a StandardError.
func Normalize(err error) *StandardError {
	if stdErr, ok := As(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Request validation failed", details, false)
}

func NewInvalidCSVError(details string) *StandardError {
	return newError(ErrCodeInvalidCSV, "Itinerary CSV is invalid", details, false)
}

func NewPromptRejectedError(reason string) *StandardError {
	return newError(ErrCodePromptRejected, "Prompt is not a trip planning request", reason, false)
}

func NewUnauthenticatedError(details string) *StandardError {
	return newError(ErrCodeUnauthenticated, "Authentication required", details, false)
}

func NewForbiddenError(details string) *StandardError {
	return newError(ErrCodeForbidden, "Access to this resource is not allowed", details, false)
}

func NewInvalidOAuthStateError() *StandardError {
	return newError(ErrCodeInvalidOAuthState, "OAuth state is missing or expired", "", false)
}

func NewGoogleOAuthError(err error) *StandardError {
	return newError(ErrCodeGoogleOAuth, "Google sign-in failed", err.Error(), true)
}

func NewTripNotFoundError(tripID string) *StandardError {
	return newError(ErrCodeTripNotFound, "Trip not found", fmt.Sprintf("tripId: %s", tripID), false)
}

func NewUserNotFoundError(userID string) *StandardError {
	return newError(ErrCodeUserNotFound, "User not found", fmt.Sprintf("userId: %s", userID), false)
}

func NewSheetNotFoundError(tripID string) *StandardError {
	return newError(ErrCodeSheetNotFound, "Trip has no itinerary yet", fmt.Sprintf("tripId: %s", tripID), false)
}

func NewSheetVersionNotFoundError(tripID string, version int) *StandardError {
	return newError(ErrCodeSheetVersionNotFound, "Itinerary version not found",
		fmt.Sprintf("tripId: %s, version: %d", tripID, version), false)
}

func NewShareNotFoundError() *StandardError {
	return newError(ErrCodeShareNotFound, "Shared trip not found", "", false)
}

func NewSheetVersionConflictError(baseVersion, latest int) *StandardError {
	return newError(ErrCodeSheetVersionConflict, "Itinerary was changed since it was loaded",
		fmt.Sprintf("baseVersion: %d, latestVersion: %d", baseVersion, latest), false).
		WithMetadata("latestVersion", latest)
}

func NewInvalidStatusTransitionError(from, to string) *StandardError {
	return newError(ErrCodeInvalidStatusTransition, "Trip status change is not allowed",
		fmt.Sprintf("from: %s, to: %s", from, to), false)
}

func NewRateLimitedError(limit int) *StandardError {
	return newError(ErrCodeRateLimited, "Too many requests, slow down",
		fmt.Sprintf("limit: %d per minute", limit), true)
}

func NewTurnInProgressError(tripID string) *StandardError {
	return newError(ErrCodeTurnInProgress, "The assistant is still answering the previous message",
		fmt.Sprintf("tripId: %s", tripID), true)
}

func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()), true)
}

func NewDatabaseInsertFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Database insert operation failed", err.Error(), true)
}

func NewSearchQueryFailedError(queryType string, err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Elasticsearch query error",
		fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()), true)
}

func NewLLMTimeoutError() *StandardError {
	return newError(ErrCodeLLMTimeout, "Language model request timed out", "", true)
}

func NewLLMRequestFailedError(err error) *StandardError {
	return newError(ErrCodeLLMRequestFailed, "Language model request failed", err.Error(), true)
}

func NewWebSearchTimeoutError() *StandardError {
	return newError(ErrCodeWebSearchTimeout, "Web search API timeout", "", false)
}

func NewWebSearchFailedError(err error) *StandardError {
	return newError(ErrCodeWebSearchFailed, "Web search API error", err.Error(), true)
}

func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()), true)
}

func NewExportDisabledError() *StandardError {
	return newError(ErrCodeExportDisabled, "Spreadsheet export is not configured", "", false)
}

func NewExportFailedError(err error) *StandardError {
	return newError(ErrCodeExportFailed, "Spreadsheet export failed", err.Error(), true)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), err.Error(), true)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

var httpStatusByCode = map[ErrorCode]int{
	ErrCodeValidationFailed:         http.StatusBadRequest,
	ErrCodeInvalidOAuthState:        http.StatusBadRequest,
	ErrCodeInvalidCSV:               http.StatusUnprocessableEntity,
	ErrCodePromptRejected:           http.StatusUnprocessableEntity,
	ErrCodeUnauthenticated:          http.StatusUnauthorized,
	ErrCodeForbidden:                http.StatusForbidden,
	ErrCodeTripNotFound:             http.StatusNotFound,
	ErrCodeUserNotFound:             http.StatusNotFound,
	ErrCodeSheetNotFound:            http.StatusNotFound,
	ErrCodeSheetVersionNotFound:     http.StatusNotFound,
	ErrCodeShareNotFound:            http.StatusNotFound,
	ErrCodeSheetVersionConflict:     http.StatusConflict,
	ErrCodeInvalidStatusTransition:  http.StatusConflict,
	ErrCodeRateLimited:              http.StatusTooManyRequests,
	ErrCodeTurnInProgress:           http.StatusConflict,
	ErrCodeLLMTimeout:               http.StatusGatewayTimeout,
	ErrCodeWebSearchTimeout:         http.StatusGatewayTimeout,
	ErrCodeTimeout:                  http.StatusGatewayTimeout,
	ErrCodeLLMRequestFailed:         http.StatusBadGateway,
	ErrCodeWebSearchFailed:          http.StatusBadGateway,
	ErrCodeGoogleOAuth:              http.StatusBadGateway,
	ErrCodeNotificationSendFailed:   http.StatusBadGateway,
	ErrCodeExportFailed:             http.StatusBadGateway,
	ErrCodeExternalService:          http.StatusBadGateway,
	ErrCodeExportDisabled:           http.StatusServiceUnavailable,
	ErrCodeDatabaseConnectionFailed: http.StatusServiceUnavailable,
}

// HTTPStatus maps an error code to the status the API responds with.
func HTTPStatus(code ErrorCode) int {
	if status, ok := httpStatusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeLLMRequestFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeWebSearchFailed, ErrCodeTimeout, ErrCodeTurnInProgress:
		return 2

	case ErrCodeLLMTimeout:
		return 1

	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SHEET") || strings.Contains(codeStr, "CSV"):
		return "ITINERARY"
	case strings.Contains(codeStr, "LLM") || strings.Contains(codeStr, "WEB_SEARCH") || strings.Contains(codeStr, "PROMPT"):
		return "AI"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "AUTH") || strings.Contains(codeStr, "OAUTH") || code == ErrCodeForbidden:
		return "AUTH"
	case strings.Contains(codeStr, "NOTIFICATION") || strings.Contains(codeStr, "EXPORT"):
		return "INTEGRATION"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
