package apperr

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

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"invalid argument", InvalidArgument("bad %s", "input"), http.StatusBadRequest},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"permission denied", PermissionDenied("nope"), http.StatusForbidden},
		{"already exists", AlreadyExists("dup"), http.StatusConflict},
		{"insufficient funds", InsufficientFunds("short"), http.StatusUnprocessableEntity},
		{"resource exhausted", ResourceExhausted("limit"), http.StatusTooManyRequests},
		{"internal", Internal(errors.New("boom"), "failed"), http.StatusInternalServerError},
		{"unclassified", errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatus(tt.err))
		})
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("close position: %w", NotFound("position %d not found", 7))

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInternal))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestInternalUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause, "failed to load market %s", "nyc")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to load market nyc: connection reset", err.Error())
}

func TestBody(t *testing.T) {
	err := ResourceExhausted("daily mint limit exceeded").
		WithDetail("remaining", "10").
		WithDetail("limit", "10000")

	body := Body(err)
	assert.Equal(t, "RESOURCE_EXHAUSTED", body["code"])
	assert.Equal(t, "daily mint limit exceeded", body["error"])
	assert.Equal(t, "10", body["remaining"])
	assert.Equal(t, "10000", body["limit"])

	// causes of unclassified errors are not exposed
	body = Body(errors.New("pq: relation does not exist"))
	assert.Equal(t, "INTERNAL", body["code"])
	assert.Equal(t, "internal error", body["error"])
}

func TestRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/fail", func(c *gin.Context) {
		Respond(c, InsufficientFunds("insufficient balance"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "INSUFFICIENT_FUNDS", response["code"])
	assert.Equal(t, "insufficient balance", response["error"])
}
