package utils

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
)

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(rec, http.StatusOK, map[string]string{"status": "connected"}))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"status":"connected"}}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        *errors.AppError
		wantStatus int
		wantRetry  string
		wantBody   string
	}{
		{
			name:       "customer action carries url",
			err:        errors.RequiredCustomerAction("John Deere", "https://deere.example/terms"),
			wantStatus: http.StatusForbidden,
			wantBody:   `{"success":false,"error":{"code":"REQUIRED_CUSTOMER_ACTION","message":"John Deere requires you to complete an action before data can be shared","details":{"url":"https://deere.example/terms"}}}`,
		},
		{
			name:       "transient sets retry after",
			err:        errors.Transient("FieldView", stderrors.New("503")),
			wantStatus: http.StatusServiceUnavailable,
			wantRetry:  "30",
			wantBody:   `{"success":false,"error":{"code":"TRANSIENT","message":"FieldView is temporarily unavailable, try again shortly"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, WriteError(rec, tt.err))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantRetry, rec.Header().Get("Retry-After"))
			assert.JSONEq(t, tt.wantBody, rec.Body.String())

			var env ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.False(t, env.Success)
		})
	}
}
