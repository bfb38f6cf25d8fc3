// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"deliverd/internal/modules/dispatch"
	"deliverd/internal/modules/order"
	"deliverd/internal/modules/registry"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrAlreadyAssigned):
		writeError(c, http.StatusConflict, "order no longer available")
	case errors.Is(err, order.ErrIllegalTransition), errors.Is(err, order.ErrGuardFailed):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, registry.ErrAuthRequired):
		writeError(c, http.StatusUnauthorized, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
