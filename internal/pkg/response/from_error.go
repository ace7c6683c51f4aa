// internal/pkg/response/from_error.go
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	xerrors "tainment-service/internal/pkg/errors"
)

const genericMessage = "something went wrong, please try again"

// StatusFor maps the error taxonomy to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, xerrors.ErrValidation), errors.Is(err, xerrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, xerrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, xerrors.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, xerrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, xerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, xerrors.ErrConcurrentModification), errors.Is(err, xerrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, xerrors.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// FromError writes the error envelope for err. Server-side failures carry a
// generic message so driver details never reach the client.
func FromError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		Error(c, status, genericMessage, nil)
		return
	}

	message := xerrors.UserMessage(err, genericMessage)
	if status == http.StatusConflict {
		message = "the subscription was changed by another request; please try again"
	}
	Error(c, status, message, kindOf(err))
}

func kindOf(err error) error {
	var e *xerrors.Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, sentinel := range []error{xerrors.ErrNotFound, xerrors.ErrConflict, xerrors.ErrUnauthorized, xerrors.ErrForbidden, xerrors.ErrInvalidInput, xerrors.ErrRateLimited} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}
