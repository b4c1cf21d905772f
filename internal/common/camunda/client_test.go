package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	"tripgen/internal/common/config"
	apperrors "tripgen/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		err  string
		want bool
	}{
		{"rpc error: code = Unavailable desc = connection refused", true},
		{"context deadline exceeded", true},
		{"write: broken pipe", true},
		{"rpc error: code = NotFound desc = process not found", false},
		{"rpc error: code = InvalidArgument", false},
	}
	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableZeebeError(errors.New(tt.err)))
		})
	}
}

func TestMapZeebeError(t *testing.T) {
	tests := []struct {
		err  string
		want apperrors.ErrorCode
	}{
		{"deadline exceeded", apperrors.ErrCodeTimeout},
		{"permission denied", apperrors.ErrCodeForbidden},
		{"process 'tripgen-itinerary' not found", apperrors.ErrCodeValidationFailed},
		{"connection refused", apperrors.ErrCodeExternalService},
	}
	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			err := mapZeebeError(errors.New(tt.err), "create-instance", 2)
			assert.True(t, apperrors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestExecuteWithRetry(t *testing.T) {
	retry := &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		result, err := executeWithRetry(context.Background(), retry, func(context.Context) (interface{}, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("unavailable")
			}
			return int64(42), nil
		}, "create-instance")

		require.NoError(t, err)
		assert.Equal(t, int64(42), result)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		calls := 0
		_, err := executeWithRetry(context.Background(), retry, func(context.Context) (interface{}, error) {
			calls++
			return nil, errors.New("process not found")
		}, "create-instance")

		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		_, err := executeWithRetry(context.Background(), retry, func(context.Context) (interface{}, error) {
			calls++
			return nil, errors.New("connection reset")
		}, "create-instance")

		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeExternalService))
		assert.Equal(t, 3, calls)
	})
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.CamundaConfig{BrokerAddress: "zeebe:26500", Timeout: 5000, RequestTimeout: 2000})

	assert.Equal(t, "zeebe:26500", cfg.GatewayAddress)
	assert.Equal(t, 5*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.Equal(t, DefaultRetryConfig, cfg.RetryConfig)
}
