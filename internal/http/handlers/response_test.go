package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-mail-triage/internal/services"
)

// envelopeRouter wires one handler behind a fixed request id and a logger
// writing to the returned buffer.
func envelopeRouter(h gin.HandlerFunc) (*gin.Engine, *bytes.Buffer) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	lg := zerolog.New(&buf)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-7")
		c.Set("logger", &lg)
		c.Next()
	})
	r.GET("/x", h)
	return r, &buf
}

func serveEnvelope(t *testing.T, r http.Handler) (int, ErrorResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return w.Code, e
}

func TestFail_Envelope(t *testing.T) {
	r, logs := envelopeRouter(func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "no such route")
	})
	status, e := serveEnvelope(t, r)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, ErrorResponse{RequestID: "rid-7", Code: "not_found", Message: "no such route"}, e)
	assert.Empty(t, logs.String(), "4xx must not be logged")
}

func TestFail_ServerErrorIsLogged(t *testing.T) {
	r, logs := envelopeRouter(func(c *gin.Context) {
		fail(c, http.StatusServiceUnavailable, ErrCodePersistence, "database locked")
	})
	status, e := serveEnvelope(t, r)

	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "database locked", e.Message)
	assert.Contains(t, logs.String(), `"level":"error"`)
	assert.Contains(t, logs.String(), `"status":503`)
}

func TestFailService_StatusByCode(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{fmt.Errorf("%w: unknown dimension %q", services.ErrValidation, "folder"), http.StatusBadRequest, ErrCodeValidation,
			`validation error: unknown dimension "folder"`},
		{services.ErrRuleNotFound, http.StatusNotFound, ErrCodeNotFound, "rule not found"},
		{fmt.Errorf("%w: %w", services.ErrPersistence, errors.New("disk I/O error")), http.StatusInternalServerError,
			ErrCodePersistence, storageFailureMessage},
		{errors.New("unclassified"), http.StatusInternalServerError, ErrCodePersistence, storageFailureMessage},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			r, logs := envelopeRouter(func(c *gin.Context) { failService(c, tc.err) })
			status, e := serveEnvelope(t, r)

			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, e.Code)
			assert.Equal(t, tc.message, e.Message)
			assert.Equal(t, "rid-7", e.RequestID)
			if tc.status >= http.StatusInternalServerError {
				assert.Contains(t, logs.String(), tc.err.Error())
			}
		})
	}
}

func TestWriteModify(t *testing.T) {
	t.Run("failed result keeps service message", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		r := gin.New()
		r.GET("/x", func(c *gin.Context) {
			writeModify(c, &services.ModifyResult{Code: services.CodeNotFound, Message: "Rule not found"}, services.ErrRuleNotFound)
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

		var e RuleErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.False(t, e.Success)
		assert.Equal(t, "Rule not found", e.Message)
	})

	t.Run("error without result", func(t *testing.T) {
		r, _ := envelopeRouter(func(c *gin.Context) {
			writeModify(c, nil, fmt.Errorf("%w: bad level", services.ErrValidation))
		})
		status, e := serveEnvelope(t, r)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "validation error: bad level", e.Message)
	})
}

func Test_statusOf(t *testing.T) {
	assert.Equal(t, http.StatusOK, statusOf(services.CodeOK))
	assert.Equal(t, http.StatusInternalServerError, statusOf(services.Code("mystery")))
}
