package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
)

const defaultRegion = "us-east-1"

// Settings controls how the SDK reaches AWS.
type Settings struct {
	Region string
	// EndpointOverride points every client at e.g. LocalStack or DynamoDB Local.
	EndpointOverride string
	// Timeout bounds each HTTP round trip to AWS.
	Timeout time.Duration
}

// LoadAWSConfig builds an SDK config with a bounded HTTP timeout and automatic
// retries disabled: a failed call surfaces to the caller, who decides whether to reissue.
func LoadAWSConfig(ctx context.Context, s Settings) (sdkaws.Config, error) {
	region := s.Region
	if region == "" {
		region = defaultRegion
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithRetryMaxAttempts(1),
	}
	if s.Timeout > 0 {
		opts = append(opts, config.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(s.Timeout)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return cfg, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return cfg, nil
}
