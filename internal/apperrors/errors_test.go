package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type netTimeout struct{}

func (netTimeout) Error() string { return "i/o timeout" }
func (netTimeout) Timeout() bool { return true }

func TestKindOf(t *testing.T) {
	sentinel := errors.New("order not found")
	err := NotFound("orders.Get", sentinel)

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, errors.Is(err, sentinel))
	assert.True(t, Is(fmt.Errorf("wrapped: %w", err), KindNotFound))
	assert.False(t, Is(err, KindUpstream))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindUnknown))
}

func TestErrorMessage(t *testing.T) {
	err := Upstream("counter.Next", errors.New("connection refused"))
	assert.Equal(t, "counter.Next: connection refused", err.Error())

	bare := &Error{Kind: KindConflict, Op: "orders.Update"}
	assert.Equal(t, "orders.Update: conflict", bare.Error())
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(Upstream("op", context.DeadlineExceeded)))
	assert.True(t, IsTimeout(Upstream("op", fmt.Errorf("get item: %w", netTimeout{}))))
	assert.False(t, IsTimeout(Upstream("op", errors.New("boom"))))
	assert.False(t, IsTimeout(nil))
}
