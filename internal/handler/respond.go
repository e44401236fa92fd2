package handler

import (
	"errors"
	"net/http"

	"pollpulse/internal/transport/httpdto"
	pollpulse_errors "pollpulse/pkg/errors"

	"github.com/gin-gonic/gin"
)

// respondError maps the service error taxonomy onto HTTP statuses and stable
// error codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pollpulse_errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "VALIDATION_ERROR"))
	case errors.Is(err, pollpulse_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse(err.Error(), "NOT_FOUND"))
	case errors.Is(err, pollpulse_errors.ErrConflict):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "CONFLICT_ERROR"))
	case errors.Is(err, pollpulse_errors.ErrPollClosed):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "POLL_CLOSED"))
	case errors.Is(err, pollpulse_errors.ErrVoteChangeDisallowed):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "VOTE_CHANGE_DISALLOWED"))
	case errors.Is(err, pollpulse_errors.ErrForbidden):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse(err.Error(), "FORBIDDEN"))
	case errors.Is(err, pollpulse_errors.ErrLoadFailed):
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "LOAD_ERROR"))
	default:
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
	}
}
