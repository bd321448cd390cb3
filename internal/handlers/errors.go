package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/checkout"
	"github.com/imrishuroy/go-storefront-orderflow/internal/validation"
)

// statusFor maps an error to its HTTP status and machine-readable code.
func statusFor(err error) (int, string) {
	if errors.Is(err, checkout.ErrOrderReferenceMissing) {
		return http.StatusUnprocessableEntity, "order_reference_missing"
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return http.StatusBadRequest, "validation_failed"
	case apperrors.KindNotFound:
		return http.StatusNotFound, "not_found"
	case apperrors.KindConflict:
		return http.StatusConflict, "conflict"
	case apperrors.KindUpstream:
		if apperrors.IsTimeout(err) {
			return http.StatusGatewayTimeout, "upstream_timeout"
		}
		return http.StatusBadGateway, "upstream_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError aborts the request with the mapped status and an error body.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	status, code := statusFor(err)
	body := gin.H{"error": code, "msg": err.Error()}

	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		body["fields"] = validation.FieldErrors(ve)
	}
	if status >= http.StatusInternalServerError {
		log.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "status", status, "err", err)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, code, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code, "msg": msg})
}
