package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/go-storefront-orderflow/internal/aws"
	"github.com/imrishuroy/go-storefront-orderflow/internal/carts"
	"github.com/imrishuroy/go-storefront-orderflow/internal/categories"
	"github.com/imrishuroy/go-storefront-orderflow/internal/checkout"
	"github.com/imrishuroy/go-storefront-orderflow/internal/config"
	"github.com/imrishuroy/go-storefront-orderflow/internal/counter"
	"github.com/imrishuroy/go-storefront-orderflow/internal/handlers"
	"github.com/imrishuroy/go-storefront-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-storefront-orderflow/internal/metrics"
	"github.com/imrishuroy/go-storefront-orderflow/internal/orders"
	"github.com/imrishuroy/go-storefront-orderflow/internal/products"
	"github.com/imrishuroy/go-storefront-orderflow/internal/validation"
)

const productCacheTTL = 10 * time.Minute

func setupRouter(cfg handlers.HandlerConfig, m *metrics.ServerMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), m.Middleware())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	handlers.Register(r, cfg)

	return r
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(config.APITables...)
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx, aws.Settings{
		Region:           cfg.AWSRegion,
		EndpointOverride: cfg.EndpointOverride,
		Timeout:          cfg.StoreTimeout,
	})
	if err != nil {
		log.Error("failed to init aws clients", "err", err)
		os.Exit(1)
	}

	v := validation.New()

	var cache products.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			ReadTimeout:  cfg.StoreTimeout,
			WriteTimeout: cfg.StoreTimeout,
		})
		cache = products.NewRedisCache(rdb, productCacheTTL)
	}
	categoryStore := categories.NewStore(clients.DynamoDB, cfg.CategoriesTable, v)
	productSvc := products.NewService(products.NewStore(clients.DynamoDB, cfg.ProductsTable), cache, categoryStore, v, log)
	cartSvc := carts.NewService(carts.NewStore(clients.DynamoDB, cfg.CartsTable), productSvc, v, log)

	orderSvc := orders.NewService(orders.Deps{
		Store:    orders.NewStore(clients.DynamoDB, cfg.OrdersTable),
		Sequence: counter.NewStore(clients.DynamoDB, cfg.CountersTable),
		Carts:    cartSvc,
		Products: productSvc,
		Metrics:  metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, "storefront-api", log),
		Validate: v,
		Log:      log,
	})

	if cfg.StripeSecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY is not set; checkout calls will fail")
	}
	success, cancel := checkout.URLsFor(cfg.StorefrontURL)
	stripeClient := checkout.NewStripeClient(cfg.StripeSecretKey, cfg.ProviderTimeout)

	var publisher checkout.Publisher
	if cfg.OrdersQueueURL != "" {
		publisher = aws.NewPublisher(clients.SQS, cfg.OrdersQueueURL)
	}
	checkoutSvc := checkout.NewService(checkout.Deps{
		Provider: checkout.NewStripeGateway(stripeClient.CheckoutSessions, checkout.StripeConfig{
			Currency:   cfg.CheckoutCurrency,
			SuccessURL: success,
			CancelURL:  cancel,
		}),
		Orders:    orderSvc,
		Payer:     orderSvc,
		Publisher: publisher,
		Validate:  v,
		Log:       log,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := setupRouter(handlers.HandlerConfig{
		Orders:      orderSvc,
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		Checkout:    checkoutSvc,
		Carts:       cartSvc,
		Products:    productSvc,
		Categories:  categoryStore,
		Validate:    v,
		Log:         log,
	}, metrics.NewServerMetrics(reg, "api"))

	if cfg.RunLocal {
		log.Info("running local server", "addr", cfg.HTTPAddr)
		if err := r.Run(cfg.HTTPAddr); err != nil {
			log.Error("failed to run local server", "err", err)
			os.Exit(1)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
