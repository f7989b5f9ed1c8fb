// Package metrics declares the Prometheus collectors of both services.
// Collectors are registered on an injected registry so tests stay isolated.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP counts and times requests by chi route pattern.
type HTTP struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewHTTP(namespace string, reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.Requests, m.Duration)
	return m
}

// Middleware records every request once it has been routed. Unrouted
// requests share the "unmatched" label so paths cannot explode cardinality.
func (m *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.Duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Orders holds the order service collectors.
type Orders struct {
	HTTP            *HTTP
	OrdersCreated   prometheus.Counter
	EventsPublished *prometheus.CounterVec
}

func NewOrders(reg prometheus.Registerer) *Orders {
	m := &Orders{
		HTTP: NewHTTP("ordersvc", reg),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ordersvc",
			Name:      "orders_created_total",
			Help:      "Orders committed to the store.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ordersvc",
			Name:      "events_published_total",
			Help:      "order.created publish attempts by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.OrdersCreated, m.EventsPublished)
	return m
}

// Notifier holds the notification service collectors.
type Notifier struct {
	HTTP              *HTTP
	EventsProcessed   *prometheus.CounterVec
	SubscriberState   prometheus.Gauge
	ReconnectAttempts prometheus.Counter
}

func NewNotifier(reg prometheus.Registerer) *Notifier {
	m := &Notifier{
		HTTP: NewHTTP("notifier", reg),
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifier",
			Name:      "events_processed_total",
			Help:      "Received order.created events by outcome.",
		}, []string{"outcome"}),
		SubscriberState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "notifier",
			Name:      "subscriber_state",
			Help:      "Subscription connection state: 0 disconnected, 1 connecting, 2 connected, 3 subscribed.",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notifier",
			Name:      "reconnect_attempts_total",
			Help:      "Failed subscription handshakes.",
		}),
	}
	// both outcomes are exported from the start
	m.EventsProcessed.WithLabelValues("success")
	m.EventsProcessed.WithLabelValues("error")
	reg.MustRegister(m.EventsProcessed, m.SubscriberState, m.ReconnectAttempts)
	return m
}

// Handler serves the exposition format for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
