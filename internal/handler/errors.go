package handler

import (
	"errors"
	"net/http"

	"pulsechat/internal/transport/httpdto"
	pulse_errors "pulsechat/pkg/errors"

	"github.com/gin-gonic/gin"
)

func httpStatus(err error) int {
	switch {
	case errors.Is(err, pulse_errors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, pulse_errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, pulse_errors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, pulse_errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pulse_errors.ErrAlreadyExists), errors.Is(err, pulse_errors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, pulse_errors.ErrNotApplicable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pulse_errors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(httpStatus(err), httpdto.NewErrorResponse(err.Error(), pulse_errors.Code(err)))
}
