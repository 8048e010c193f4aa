package api

import (
	"errors"
	"net/http"

	"dining-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps the service error taxonomy to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrPrecondition):
		return http.StatusPreconditionFailed
	case errors.Is(err, service.ErrGatewayTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, service.ErrGatewayRejected):
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var (
		verr *service.ValidationError
		terr *service.GatewayTimeoutError
		rerr *service.GatewayRejectedError
		ierr *service.InvalidTransitionError
	)
	switch {
	case errors.As(err, &verr):
		body["field"] = verr.Field
	case errors.As(err, &terr):
		body["status"] = "pending_verification"
		body["idempotency_key"] = terr.IdempotencyKey
	case errors.As(err, &rerr):
		body["status"] = "rejected"
		body["idempotency_key"] = rerr.IdempotencyKey
	case errors.As(err, &ierr):
		body["from"] = ierr.From
		body["to"] = ierr.To
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		body = gin.H{"error": "Internal server error"}
	}

	c.JSON(status, body)
}
