package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-storefront-orderflow/internal/aws"
	"github.com/imrishuroy/go-storefront-orderflow/internal/checkout"
	"github.com/imrishuroy/go-storefront-orderflow/internal/config"
	"github.com/imrishuroy/go-storefront-orderflow/internal/metrics"
	"github.com/imrishuroy/go-storefront-orderflow/internal/orders"
	"github.com/imrishuroy/go-storefront-orderflow/internal/validation"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(config.WorkerTables...)
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	clients, err := aws.NewAWSClients(context.Background(), aws.Settings{
		Region:           cfg.AWSRegion,
		EndpointOverride: cfg.EndpointOverride,
		Timeout:          cfg.StoreTimeout,
	})
	if err != nil {
		log.Error("failed to init aws clients", "err", err)
		os.Exit(1)
	}

	v := validation.New()
	orderSvc := orders.NewService(orders.Deps{
		Store:    orders.NewStore(clients.DynamoDB, cfg.OrdersTable),
		Metrics:  metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, "storefront-worker", log),
		Validate: v,
		Log:      log,
	})

	success, cancel := checkout.URLsFor(cfg.StorefrontURL)
	stripeClient := checkout.NewStripeClient(cfg.StripeSecretKey, cfg.ProviderTimeout)
	checkoutSvc := checkout.NewService(checkout.Deps{
		Provider: checkout.NewStripeGateway(stripeClient.CheckoutSessions, checkout.StripeConfig{
			Currency:   cfg.CheckoutCurrency,
			SuccessURL: success,
			CancelURL:  cancel,
		}),
		Orders:   orderSvc,
		Payer:    orderSvc,
		Validate: v,
		Log:      log,
	})

	p := NewProcessor(checkoutSvc, log)

	// If RUN_LOCAL=true, process a single simulated SQS message and exit.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			log.Error("LOCAL_SQS_BODY is required when RUN_LOCAL=true")
			os.Exit(1)
		}
		event := events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local-1", Body: body}}}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Error("local handler error", "err", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
