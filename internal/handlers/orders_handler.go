package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-storefront-orderflow/internal/orders"
	"github.com/imrishuroy/go-storefront-orderflow/internal/validation"
)

// RegisterOrdersRoutes registers routes for the order API.
func RegisterOrdersRoutes(r gin.IRouter, cfg HandlerConfig) {
	svc, log := cfg.Orders, cfg.Log

	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		raw, err := c.GetRawData()
		if err != nil {
			badRequest(c, "invalid_request_body", err.Error())
			return
		}
		var in orders.CreateInput
		if err := json.Unmarshal(raw, &in); err != nil {
			badRequest(c, "invalid_request_body", err.Error())
			return
		}

		idempKey := c.GetHeader("Idempotency-Key")
		if cfg.Idempotency == nil {
			idempKey = ""
		}
		if idempKey != "" {
			rec, err := cfg.Idempotency.Begin(ctx, idempKey, idempotency.HashRequest(raw))
			if err != nil {
				writeError(c, log, err)
				return
			}
			if rec != nil {
				c.Header("Idempotent-Replayed", "true")
				c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
				return
			}
		}

		order, err := svc.CreateOrder(ctx, in)
		if err != nil && !apperrors.Is(err, apperrors.KindPartial) {
			if idempKey != "" {
				if ferr := cfg.Idempotency.Fail(ctx, idempKey, err.Error()); ferr != nil {
					log.WarnContext(ctx, "idempotency record not released", "key", idempKey, "err", ferr)
				}
			}
			writeError(c, log, err)
			return
		}
		if err != nil {
			log.WarnContext(ctx, "order created with partial failure", "order_id", order.OrderID, "err", err)
		}

		body, err := json.Marshal(order)
		if err != nil {
			writeError(c, log, err)
			return
		}
		if idempKey != "" {
			if cerr := cfg.Idempotency.Complete(ctx, idempKey, order.OrderID, http.StatusCreated, body); cerr != nil {
				log.WarnContext(ctx, "idempotency record not completed", "key", idempKey, "order_id", order.OrderID, "err", cerr)
			}
		}

		c.Header("Location", fmt.Sprintf("/orders/%s", order.OrderID))
		c.Data(http.StatusCreated, "application/json", body)
	})

	r.GET("/orders", func(c *gin.Context) {
		page, ok := intQuery(c, "page")
		if !ok {
			return
		}
		limit, ok := intQuery(c, "limit")
		if !ok {
			return
		}
		if limit > 0 && page == 0 {
			page = 1
		}
		res, err := svc.ListAllOrders(c.Request.Context(), page, limit)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.Header("X-Total-Count", strconv.Itoa(res.TotalCount))
		c.JSON(http.StatusOK, res.Orders)
	})

	r.GET("/orders/:id", func(c *gin.Context) {
		o, err := svc.GetOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, o)
	})

	r.GET("/orders/user/:id", func(c *gin.Context) {
		list, err := svc.ListOrdersForUser(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.PATCH("/orders/:id", func(c *gin.Context) {
		var patch orders.Patch
		if err := validation.BindAndValidate(c, &patch, cfg.Validate); err != nil {
			return
		}
		o, err := svc.UpdateOrder(c.Request.Context(), c.Param("id"), patch)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, o)
	})

	r.POST("/orders/:id/mark-paid", func(c *gin.Context) {
		o, err := svc.MarkPaid(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, o)
	})
}
