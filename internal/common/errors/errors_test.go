package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationFailed, http.StatusBadRequest},
		{ErrCodeUnauthenticated, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeTripNotFound, http.StatusNotFound},
		{ErrCodeSheetVersionConflict, http.StatusConflict},
		{ErrCodeInvalidCSV, http.StatusUnprocessableEntity},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeLLMTimeout, http.StatusGatewayTimeout},
		{ErrCodeLLMRequestFailed, http.StatusBadGateway},
		{ErrCodeExportDisabled, http.StatusServiceUnavailable},
		{ErrCodeQueryExecutionFailed, http.StatusInternalServerError},
		{ErrorCode("SOMETHING_NEW"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}

func TestAsAndIs_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("save sheet: %w", NewSheetVersionConflictError(2, 3))

	stdErr, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ErrCodeSheetVersionConflict, stdErr.Code)
	assert.Equal(t, 3, stdErr.Metadata["latestVersion"])
	assert.True(t, Is(wrapped, ErrCodeSheetVersionConflict))
	assert.False(t, Is(wrapped, ErrCodeTripNotFound))

	_, ok = As(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestNormalize_PlainError(t *testing.T) {
	stdErr := Normalize(stderrors.New("disk on fire"))
	assert.Equal(t, ErrCodeInternal, stdErr.Code)
	assert.Equal(t, "disk on fire", stdErr.Details)
	assert.False(t, stdErr.Retryable)
}

func TestConvertToBPMNError(t *testing.T) {
	bpmn := ConvertToBPMNError(NewLLMRequestFailedError(stderrors.New("502")))
	assert.Equal(t, "LLM_REQUEST_FAILED", bpmn.Code)
	assert.Equal(t, 3, bpmn.Retries)

	vars := bpmn.ToErrorVariables()
	assert.Equal(t, "LLM_REQUEST_FAILED", vars["errorCode"])
	assert.Equal(t, "LLM_REQUEST_FAILED", vars["originalErrorCode"])

	nonRetryable := ConvertToBPMNError(NewInvalidCSVError("no header"))
	assert.Equal(t, 0, nonRetryable.Retries)
}

func TestGetErrorCategory(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrCodeSheetVersionConflict, "ITINERARY"},
		{ErrCodeInvalidCSV, "ITINERARY"},
		{ErrCodeLLMTimeout, "AI"},
		{ErrCodeWebSearchFailed, "AI"},
		{ErrCodeSearchQueryFailed, "SEARCH"},
		{ErrCodeQueryExecutionFailed, "DATABASE"},
		{ErrCodeUnauthenticated, "AUTH"},
		{ErrCodeExportFailed, "INTEGRATION"},
		{ErrCodeValidationFailed, "VALIDATION"},
		{ErrCodeInternal, "OTHER"},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorCategory(tt.code))
		})
	}
}

func TestRemainingRetries(t *testing.T) {
	job := func(retries int32) entities.Job {
		return entities.Job{ActivatedJob: &pb.ActivatedJob{Retries: retries}}
	}
	assert.Equal(t, int32(2), remainingRetries(job(3), 3))
	assert.Equal(t, int32(1), remainingRetries(job(5), 1))
	assert.Equal(t, int32(0), remainingRetries(job(0), 3))
}
