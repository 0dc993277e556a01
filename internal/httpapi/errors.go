package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa/internal/domain"
)

// StatusFor maps a domain error onto an HTTP status code.
func StatusFor(err error) int {
	var upstream *domain.UpstreamError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

// abortWithError writes {"detail": ...}. Internal errors get a generic detail.
func abortWithError(c *gin.Context, err error) {
	status := StatusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "internal server error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody{Detail: detail})
}
