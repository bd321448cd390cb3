package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-storefront-orderflow/internal/aws"
)

// CloudWatch publishes business event counters, one datum per event.
// Publishing is best-effort: failures are logged and never reach the caller.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	service   string
	log       *slog.Logger
	nowFunc   func() time.Time
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace, service string, log *slog.Logger) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		service:   service,
		log:       log,
		nowFunc:   time.Now,
	}
}

func (c *CloudWatch) Incr(ctx context.Context, name string) {
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &c.namespace,
		MetricData: []types.MetricDatum{{
			MetricName: &name,
			Unit:       types.StandardUnitCount,
			Value:      awsFloat64(1),
			Timestamp:  awsTime(c.nowFunc().UTC()),
			Dimensions: []types.Dimension{{
				Name:  awsString("Service"),
				Value: &c.service,
			}},
		}},
	})
	if err != nil {
		c.log.WarnContext(ctx, "put metric data failed", "metric", name, "err", err)
	}
}

func awsString(s string) *string { return &s }
func awsFloat64(f float64) *float64 { return &f }
func awsTime(t time.Time) *time.Time { return &t }
