package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errMissing = errors.New("missing")
	errBad     = errors.New("bad")
)

func TestErrorMap_StatusFor(t *testing.T) {
	m := ErrorMap{
		{Err: errMissing, Status: http.StatusNotFound},
		{Err: errBad, Status: http.StatusBadRequest},
	}

	assert.Equal(t, http.StatusNotFound, m.StatusFor(fmt.Errorf("wrap: %w", errMissing)))
	assert.Equal(t, http.StatusBadRequest, m.StatusFor(errBad))
	assert.Equal(t, http.StatusInternalServerError, m.StatusFor(errors.New("boom")))
}

func TestSendDomainError_HidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := ErrorMap{{Err: errBad, Status: http.StatusBadRequest}}

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"error conocido", fmt.Errorf("%w: street is required", errBad), http.StatusBadRequest, "bad: street is required"},
		{"error interno", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			SendDomainError(c, m, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body struct {
				Error ErrorResponse `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantMessage, body.Error.Message)
		})
	}
}
