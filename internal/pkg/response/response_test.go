package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "tainment-service/internal/pkg/errors"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{xerrors.Validation("bad tier"), http.StatusBadRequest},
		{xerrors.NotFound("no subscription"), http.StatusNotFound},
		{xerrors.Concurrent("lost race"), http.StatusConflict},
		{xerrors.PaymentFailed("card declined"), http.StatusPaymentRequired},
		{xerrors.RateLimited("slow down"), http.StatusTooManyRequests},
		{xerrors.Wrap(xerrors.ErrForbidden, "admin only"), http.StatusForbidden},
		{xerrors.Persistence("insert", errors.New("conn refused")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestFromErrorHidesPersistenceDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FromError(c, xerrors.Persistence("apply transition", errors.New("pq: password authentication failed")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, genericMessage, body.Message)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestFromErrorKeepsRetryContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FromError(c, xerrors.Validation("invalid duration", "months", 2))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid duration (months=2)", body.Message)
	assert.Equal(t, xerrors.ErrValidation.Error(), body.Error)
}
