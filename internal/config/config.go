// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AWSRegion        string
	EndpointOverride string

	OrdersTable      string
	CartsTable       string
	CountersTable    string
	ProductsTable    string
	CategoriesTable  string
	IdempotencyTable string
	OrdersQueueURL   string

	StripeSecretKey  string
	CheckoutCurrency string
	StorefrontURL    string

	RedisAddr        string
	MetricsNamespace string

	StoreTimeout    time.Duration
	ProviderTimeout time.Duration
	IdempotencyTTL  time.Duration

	RunLocal bool
	HTTPAddr string
}

// Table variables each binary must have set.
var (
	APITables = []string{
		"ORDERS_TABLE", "CARTS_TABLE", "COUNTERS_TABLE",
		"PRODUCTS_TABLE", "CATEGORIES_TABLE", "IDEMPOTENCY_TABLE",
	}
	WorkerTables = []string{"ORDERS_TABLE"}
)

// Load reads the process environment. Only the listed table variables are
// required; the rest are read if present.
func Load(tables ...string) (*Config, error) {
	return LoadFrom(os.LookupEnv, tables...)
}

// LoadFrom reads settings through lookup. Every missing required variable is
// reported, not just the first.
func LoadFrom(lookup func(string) (string, bool), tables ...string) (*Config, error) {
	var errs []error
	needed := make(map[string]bool, len(tables))
	for _, t := range tables {
		needed[t] = true
	}
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}
	required := func(key string) string {
		v := get(key, "")
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
		return v
	}
	table := func(key string) string {
		if needed[key] {
			return required(key)
		}
		return get(key, "")
	}
	duration := func(key string, def time.Duration) time.Duration {
		raw := get(key, "")
		if raw == "" {
			return def
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, raw))
			return def
		}
		return d
	}

	cfg := &Config{
		AWSRegion:        get("AWS_REGION", "us-east-1"),
		EndpointOverride: get("AWS_ENDPOINT_OVERRIDE", ""),
		OrdersTable:      table("ORDERS_TABLE"),
		CartsTable:       table("CARTS_TABLE"),
		CountersTable:    table("COUNTERS_TABLE"),
		ProductsTable:    table("PRODUCTS_TABLE"),
		CategoriesTable:  table("CATEGORIES_TABLE"),
		IdempotencyTable: table("IDEMPOTENCY_TABLE"),
		OrdersQueueURL:   get("ORDERS_QUEUE_URL", ""),
		StripeSecretKey:  get("STRIPE_SECRET_KEY", ""),
		CheckoutCurrency: get("CHECKOUT_CURRENCY", "aed"),
		StorefrontURL:    get("STOREFRONT_URL", "http://localhost:3000"),
		RedisAddr:        get("REDIS_ADDR", ""),
		MetricsNamespace: get("METRICS_NAMESPACE", "Storefront"),
		StoreTimeout:     duration("STORE_TIMEOUT", 5*time.Second),
		ProviderTimeout:  duration("PROVIDER_TIMEOUT", 10*time.Second),
		IdempotencyTTL:   duration("IDEMPOTENCY_TTL", 48*time.Hour),
		HTTPAddr:         get("HTTP_ADDR", ":8080"),
	}
	if raw := get("RUN_LOCAL", "false"); raw != "" {
		local, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("RUN_LOCAL: %w", err))
		}
		cfg.RunLocal = local
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
