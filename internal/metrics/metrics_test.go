package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_CountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewServerMetrics(prometheus.NewRegistry(), "api")

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/orders/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/"+id, nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `storefront_api_http_requests_total{handler="/orders/:id",method="GET",status="404"} 2`)
	assert.Contains(t, body, `storefront_api_http_requests_total{handler="unmatched",method="GET",status="404"} 1`)
}

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestCloudWatch_Incr(t *testing.T) {
	cw := &fakeCloudWatch{}
	rec := NewCloudWatch(cw, "Storefront", "api", slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec.Incr(context.Background(), "OrderCreated")

	require.Len(t, cw.inputs, 1)
	in := cw.inputs[0]
	assert.Equal(t, "Storefront", *in.Namespace)
	require.Len(t, in.MetricData, 1)
	assert.Equal(t, "OrderCreated", *in.MetricData[0].MetricName)
	assert.Equal(t, 1.0, *in.MetricData[0].Value)
	assert.Equal(t, "api", *in.MetricData[0].Dimensions[0].Value)
}

func TestCloudWatch_FailureIsSwallowed(t *testing.T) {
	cw := &fakeCloudWatch{err: errors.New("throttled")}
	rec := NewCloudWatch(cw, "Storefront", "api", slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.NotPanics(t, func() { rec.Incr(context.Background(), "CartClearFailed") })
	assert.Len(t, cw.inputs, 1)
}
