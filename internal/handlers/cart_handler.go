package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-orderflow/internal/carts"
	"github.com/imrishuroy/go-storefront-orderflow/internal/validation"
)

// RegisterCartRoutes registers the shopping cart routes.
func RegisterCartRoutes(r gin.IRouter, cfg HandlerConfig) {
	svc, log := cfg.Carts, cfg.Log

	r.GET("/cart/user/:id", func(c *gin.Context) {
		items, err := svc.List(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, items)
	})

	r.POST("/cart", func(c *gin.Context) {
		var in carts.AddInput
		if err := validation.BindAndValidate(c, &in, cfg.Validate); err != nil {
			return
		}
		it, err := svc.Add(c.Request.Context(), in)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, it)
	})

	r.PATCH("/cart/:userId/items/:productId", func(c *gin.Context) {
		var in carts.QuantityInput
		if err := validation.BindAndValidate(c, &in, cfg.Validate); err != nil {
			return
		}
		it, err := svc.UpdateQuantity(c.Request.Context(), c.Param("userId"), c.Param("productId"), in)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, it)
	})

	r.DELETE("/cart/:userId/items/:productId", func(c *gin.Context) {
		if err := svc.Remove(c.Request.Context(), c.Param("userId"), c.Param("productId")); err != nil {
			writeError(c, log, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
