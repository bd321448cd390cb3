package aws

import (
	"errors"

	"github.com/aws/smithy-go"
)

// IsConditionalCheckFailed reports whether a DynamoDB write was rejected by
// its condition expression.
func IsConditionalCheckFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}
