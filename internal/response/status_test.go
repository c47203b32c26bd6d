package response

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

	"github.com/stemsi/exstem-proctor/internal/service"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   ErrCode
	}{
		{service.ErrAlreadySubmitted, http.StatusConflict, ErrAlreadySubmitted},
		{service.ErrIncompleteAnswers, http.StatusBadRequest, ErrIncompleteAnswers},
		{service.ErrNotAssigned, http.StatusForbidden, ErrNotAuthorizedToSubmit},
		{service.ErrFaceDetectorUnavailable, http.StatusServiceUnavailable, ErrFaceDetectorUnavailable},
		{fmt.Errorf("submit: %w", service.ErrTestNotFound), http.StatusNotFound, ErrTestNotFound},
		{errors.New("boom"), http.StatusInternalServerError, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			status, code := StatusOf(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestFailError_WritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	FailError(c, service.ErrAlreadySubmitted)

	require.Equal(t, http.StatusConflict, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrAlreadySubmitted, body.Error.Code)
	assert.Equal(t, "You have already submitted this test", body.Error.Message)
	assert.NotEmpty(t, body.Metadata.Timestamp)
}

func TestEveryCodeHasMessage(t *testing.T) {
	for _, e := range serviceErrors {
		assert.NotEmpty(t, GetMessage(e.code), e.code)
	}
}
