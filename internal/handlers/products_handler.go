package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-orderflow/internal/categories"
	"github.com/imrishuroy/go-storefront-orderflow/internal/products"
	"github.com/imrishuroy/go-storefront-orderflow/internal/validation"
)

// RegisterProductsRoutes registers the catalog routes.
func RegisterProductsRoutes(r gin.IRouter, cfg HandlerConfig) {
	svc, log := cfg.Products, cfg.Log

	respond := func(c *gin.Context, p *products.Product, err error) {
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}

	r.POST("/products", func(c *gin.Context) {
		var in products.CreateInput
		if err := validation.BindAndValidate(c, &in, cfg.Validate); err != nil {
			return
		}
		p, err := svc.Create(c.Request.Context(), in)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	})

	// GET /products?category=&subCategory=&sortBy=price&order=desc&page=1&limit=10
	r.GET("/products", func(c *gin.Context) {
		page, ok := intQuery(c, "page")
		if !ok {
			return
		}
		limit, ok := intQuery(c, "limit")
		if !ok {
			return
		}
		q := products.ListQuery{
			Category:     c.Query("category"),
			SubCategory:  c.Query("subCategory"),
			FeaturedOnly: c.Query("featured") == "true",
			HideDeleted:  c.Query("includeDeleted") != "true",
			SortBy:       c.Query("sortBy"),
			Desc:         c.Query("order") == "desc",
			Page:         page,
			Limit:        limit,
		}
		list, total, err := svc.List(c.Request.Context(), q)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.Header("X-Total-Count", strconv.Itoa(total))
		c.JSON(http.StatusOK, list)
	})

	r.GET("/products/featured", func(c *gin.Context) {
		page, ok := intQuery(c, "page")
		if !ok {
			return
		}
		limit, ok := intQuery(c, "limit")
		if !ok {
			return
		}
		res, err := svc.Featured(c.Request.Context(), page, limit)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	respondList := func(c *gin.Context, items []products.Product, err error) {
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, items)
	}

	r.GET("/products/latest-products/:category", func(c *gin.Context) {
		items, err := svc.Latest(c.Request.Context(), c.Param("category"))
		respondList(c, items, err)
	})

	r.GET("/products/suggestions/:query", func(c *gin.Context) {
		items, err := svc.Suggestions(c.Request.Context(), c.Param("query"))
		respondList(c, items, err)
	})

	r.GET("/products/search/:query", func(c *gin.Context) {
		items, err := svc.Search(c.Request.Context(), c.Param("query"))
		respondList(c, items, err)
	})

	r.GET("/products/:id", func(c *gin.Context) {
		p, err := svc.Get(c.Request.Context(), c.Param("id"))
		respond(c, p, err)
	})

	r.PATCH("/products/:id", func(c *gin.Context) {
		var patch products.Patch
		if err := validation.BindAndValidate(c, &patch, cfg.Validate); err != nil {
			return
		}
		p, err := svc.Update(c.Request.Context(), c.Param("id"), patch)
		respond(c, p, err)
	})

	r.PATCH("/products/featured/:id", func(c *gin.Context) {
		p, err := svc.ToggleFeatured(c.Request.Context(), c.Param("id"))
		respond(c, p, err)
	})

	r.PATCH("/products/undelete/:id", func(c *gin.Context) {
		p, err := svc.Undelete(c.Request.Context(), c.Param("id"))
		respond(c, p, err)
	})

	r.DELETE("/products/:id", func(c *gin.Context) {
		p, err := svc.Delete(c.Request.Context(), c.Param("id"))
		respond(c, p, err)
	})
}

// RegisterCategoriesRoutes registers the category routes.
func RegisterCategoriesRoutes(r gin.IRouter, cfg HandlerConfig) {
	svc, log := cfg.Categories, cfg.Log

	r.GET("/categories", func(c *gin.Context) {
		list, err := svc.List(c.Request.Context())
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.POST("/categories", func(c *gin.Context) {
		var in categories.CreateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, "invalid_request_body", err.Error())
			return
		}
		cat, err := svc.Create(c.Request.Context(), in)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Category Created Successfully!", "category": cat})
	})
}
