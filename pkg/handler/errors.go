package handler

import (
	"net/http"

	"github.com/Abhijeet1005/zendly-assignment/pkg/models"
	"github.com/Abhijeet1005/zendly-assignment/pkg/service"
	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
	"github.com/gin-gonic/gin"
)

const (
	codeValidation      = "VALIDATION_ERROR"
	codeUnauthorized    = "UNAUTHORIZED"
	codeNotFound        = "NOT_FOUND"
	codeConflict        = "CONFLICT"
	codeExternalService = "EXTERNAL_SERVICE_ERROR"
	codeInternal        = "INTERNAL_SERVER_ERROR"
)

// statusFor maps the service error taxonomy to an HTTP status and code.
func statusFor(err error) (int, string) {
	switch {
	case service.IsValidation(err):
		return http.StatusBadRequest, codeValidation
	case service.IsUnauthorized(err):
		return http.StatusForbidden, codeUnauthorized
	case service.IsNotFound(err):
		return http.StatusNotFound, codeNotFound
	case service.IsConflict(err):
		return http.StatusConflict, codeConflict
	case service.IsExternalService(err):
		return http.StatusBadGateway, codeExternalService
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// respondError writes err as a failure envelope. Unexpected errors are
// logged and hidden from the client.
func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		utils.GetLogger().Error("Unexpected error",
			"error", err, "method", c.Request.Method, "path", c.FullPath())
		msg = "An unexpected error occurred"
	} else {
		utils.GetLogger().Warn("Request failed",
			"code", code, "message", msg, "method", c.Request.Method, "path", c.FullPath())
	}
	c.JSON(status, models.Fail(code, msg))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.Fail(codeValidation, msg))
}
