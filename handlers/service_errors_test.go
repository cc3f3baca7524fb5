package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/auth-service/services"
	"github.com/upb/auth-service/utils"
	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "not found error",
			err:            services.ErrUserNotFound,
			expectedStatus: http.StatusNotFound,
			expectedError:  "not_found",
		},
		{
			name:           "validation error",
			err:            services.ErrInvalidAssertion,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "bad_request",
		},
		{
			name:           "unauthenticated error",
			err:            services.ErrInvalidIdentity,
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "unauthorized",
		},
		{
			name:           "conflict error",
			err:            services.ErrConcurrentUpdate,
			expectedStatus: http.StatusConflict,
			expectedError:  "conflict",
		},
		{
			name:           "store unavailable",
			err:            services.ErrStoreUnavailable.WithCause(errors.New("dial tcp: refused")),
			expectedStatus: http.StatusServiceUnavailable,
			expectedError:  "service_unavailable",
		},
		{
			name:           "internal error",
			err:            services.WrapInternal("boom", errors.New("secret detail")),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
		{
			name:           "plain error",
			err:            errors.New("unknown"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedError, response.Error)
		})
	}
}

func TestHandleServiceError_HidesCauses(t *testing.T) {
	w := httptest.NewRecorder()
	HandleServiceError(w, services.ErrStoreUnavailable.WithCause(errors.New("password=hunter2")), zap.NewNop())

	assert.Equal(t, "5", w.Header().Get("Retry-After"))
	assert.NotContains(t, w.Body.String(), "hunter2")
	assert.Contains(t, w.Body.String(), "store unavailable")
}

func TestHandleServiceError_ConflictDetails(t *testing.T) {
	err := services.NewDomainError(services.ErrorTypeConflict, "email already linked", nil).
		WithDetail("retryable", false)

	w := httptest.NewRecorder()
	HandleServiceError(w, err, zap.NewNop())

	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, false, response.Details["retryable"])
}

func TestHandleServiceError_Nil(t *testing.T) {
	w := httptest.NewRecorder()
	HandleServiceError(w, nil, zap.NewNop())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHandleValidationError(t *testing.T) {
	type request struct {
		Token string `validate:"required"`
	}

	t.Run("validator errors carry field details", func(t *testing.T) {
		err := utils.ValidateStruct(request{})
		require.Error(t, err)

		w := httptest.NewRecorder()
		HandleValidationError(w, err, zap.NewNop())

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Contains(t, response.Details, "Token")
	})

	t.Run("generic error", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleValidationError(w, errors.New("invalid JSON body"), zap.NewNop())

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid JSON body")
	})
}
