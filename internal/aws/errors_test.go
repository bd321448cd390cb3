package aws

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestIsConditionalCheckFailed(t *testing.T) {
	msg := "The conditional request failed"
	assert.True(t, IsConditionalCheckFailed(&types.ConditionalCheckFailedException{Message: &msg}))
	assert.True(t, IsConditionalCheckFailed(fmt.Errorf("put item: %w",
		&smithy.GenericAPIError{Code: "ConditionalCheckFailedException"})))

	assert.False(t, IsConditionalCheckFailed(&smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"}))
	assert.False(t, IsConditionalCheckFailed(errors.New("ConditionalCheckFailedException")))
	assert.False(t, IsConditionalCheckFailed(nil))
}
