package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-orderflow/internal/checkout"
	"github.com/imrishuroy/go-storefront-orderflow/internal/validation"
)

// RegisterCheckoutRoutes registers the hosted checkout routes.
func RegisterCheckoutRoutes(r gin.IRouter, cfg HandlerConfig) {
	svc, log := cfg.Checkout, cfg.Log

	r.POST("/checkout/create-checkout-session", func(c *gin.Context) {
		var in checkout.CreateSessionInput
		if err := validation.BindAndValidate(c, &in, cfg.Validate); err != nil {
			return
		}
		sess, err := svc.CreateSession(c.Request.Context(), in)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": sess.ID, "url": sess.URL})
	})

	r.GET("/checkout/get-order", func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			badRequest(c, "missing_session_id", "session_id query parameter is required")
			return
		}
		o, err := svc.ResolveOrderFromSession(c.Request.Context(), sessionID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o})
	})
}
