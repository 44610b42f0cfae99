package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wagercourt/internal/service"
)

type response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Meta    any    `json:"meta,omitempty"`
}

type pageMeta struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, response{Code: 0, Message: "ok", Data: data})
}

func okMeta(c *gin.Context, data, meta any) {
	c.JSON(http.StatusOK, response{Code: 0, Message: "ok", Data: data, Meta: meta})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response{Code: http.StatusBadRequest, Message: err.Error()})
}

// fail maps service error kinds to HTTP statuses. Escrow failures are
// transient, so the meta flags them retryable.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var meta any

	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrAlreadySettled):
		status = http.StatusConflict
	case errors.Is(err, service.ErrEscrowFailure):
		status = http.StatusBadGateway
		meta = gin.H{"retryable": true}
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	c.JSON(status, response{Code: status, Message: message, Meta: meta})
}
