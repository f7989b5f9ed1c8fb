package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTP("test", reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/orders/1", "/orders/2", "/health", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/orders/{id}", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET", "unmatched", "404")))
}

func TestNotifierExportsBothOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewNotifier(reg)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `notifier_events_processed_total{outcome="success"} 0`))
	assert.True(t, strings.Contains(body, `notifier_events_processed_total{outcome="error"} 0`))
	assert.Contains(t, body, "notifier_subscriber_state 0")
}

func TestOrdersRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrders(reg)
	m.OrdersCreated.Inc()
	m.EventsPublished.WithLabelValues("dropped").Inc()

	n, err := testutil.GatherAndCount(reg, "ordersvc_orders_created_total", "ordersvc_events_published_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
